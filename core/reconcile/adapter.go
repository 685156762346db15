package reconcile

import (
	"context"
)

// Adapter defines the domain-specific side of a two-source reconciliation:
// how to load the internal index, how to poll the channel for one entity,
// and how to compare the two views.
type Adapter interface {
	// Name returns the unique name of this adapter (e.g., "listings").
	Name() string

	// LoadInternalIndex loads every entity of scope from the system of record,
	// indexed by entity key. Implementations should use batch queries.
	LoadInternalIndex(ctx context.Context, scope string) (map[string]InternalItem, error)

	// PollChannel fetches the channel view of one entity. A nil item with a nil
	// error means the channel does not know the entity.
	// Calls run concurrently, bounded by Spec.Concurrency, each with Spec.PollTimeout.
	PollChannel(ctx context.Context, key string, item InternalItem) (ChannelItem, error)

	// ResolveName returns the display name for an entity.
	ResolveName(item InternalItem) string

	// CompareFields compares both views and returns a description per divergent
	// field (e.g., "quantity: internal=3 channel=5"). Both items are non-nil.
	CompareFields(internal InternalItem, channel ChannelItem) []string

	// GetMetadata returns domain data included in the Result (e.g., external ids).
	// channel may be nil.
	GetMetadata(internal InternalItem, channel ChannelItem) map[string]string
}

// Mutator applies planned actions. Adapters that raise findings implement it.
type Mutator interface {
	// RaiseMismatch records a divergence. Returning created=false means an equivalent
	// finding already existed and nothing was written.
	RaiseMismatch(ctx context.Context, action Action) (created bool, err error)
}

// BatchMutator is an optional Mutator extension that raises many findings at once.
type BatchMutator interface {
	RaiseMismatchBatch(ctx context.Context, actions []Action) (created int, err error)
}
