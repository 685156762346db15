package reconcile

import "time"

// Result represents the reconciliation output for a single entity.
type Result struct {
	// Key is the unique identifier for the entity.
	Key string `json:"key"`

	// Name is the display name of the entity.
	Name string `json:"name"`

	// InternalPresent indicates whether the entity exists in the system of record.
	InternalPresent bool `json:"internal_present"`

	// ChannelPresent indicates whether the channel knows the entity.
	ChannelPresent bool `json:"channel_present"`

	// PollError is set when the channel could not be polled for this entity.
	PollError string `json:"poll_error,omitempty"`

	// Mismatch describes divergent fields, e.g. "quantity: internal=3 channel=5".
	Mismatch []string `json:"mismatch"`

	// Metadata contains domain data (e.g., listing and lot ids).
	Metadata map[string]string `json:"metadata"`
}

// Diverged reports whether the two views disagree.
func (r Result) Diverged() bool {
	return len(r.Mismatch) > 0
}

// Spec defines the configuration for a reconciliation run.
type Spec struct {
	// Adapter provides the domain logic.
	Adapter Adapter

	// Scope restricts the run (e.g., a shop id). Runs with the same scope coalesce.
	Scope string

	// Concurrency bounds concurrent channel polls. Zero means 4.
	Concurrency int

	// PollTimeout bounds each channel poll. Zero means no per-poll timeout.
	PollTimeout time.Duration

	// CacheTTL keeps a built snapshot for reuse. Zero disables caching; concurrent
	// runs are still coalesced.
	CacheTTL time.Duration
}

// CacheKey returns the key under which snapshots of this spec are coalesced and cached.
func (s *Spec) CacheKey() string {
	return s.Adapter.Name() + "|" + s.Scope
}

// InternalItem is an adapter-defined record from the system of record.
type InternalItem any

// ChannelItem is an adapter-defined record from the channel.
type ChannelItem any

// ActionType represents the type of planned action.
type ActionType string

const (
	// ActionRaiseMismatch records a divergence for review or auto-resolution.
	ActionRaiseMismatch ActionType = "raise_mismatch"
)

// Action represents a planned operation.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// Key is the entity identifier.
	Key string `json:"key"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Internal and Channel carry the compared views.
	Internal InternalItem `json:"-"`
	Channel  ChannelItem  `json:"-"`
}

// Plan contains reconciliation results and planned actions.
type Plan struct {
	Results []Result    `json:"results"`
	Actions []Action    `json:"actions"`
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	// TotalItems is the number of entities compared.
	TotalItems int `json:"total_items"`

	// ChannelMissing counts entities the channel does not know.
	ChannelMissing int `json:"channel_missing"`

	// PollFailures counts entities whose channel poll failed.
	PollFailures int `json:"poll_failures"`

	// Mismatches counts divergent entities.
	Mismatches int `json:"mismatches"`

	// RaiseActions counts planned ActionRaiseMismatch actions.
	RaiseActions int `json:"raise_actions"`
}

// Options controls planning and execution.
type Options struct {
	// DryRun prevents execution of any action if true.
	DryRun bool

	// Confirmed must be true for ApplyPlan to execute.
	Confirmed bool

	// RaiseMissing plans an action for entities the channel does not know.
	RaiseMissing bool
}
