package reconcile

import (
	"context"
	"fmt"
	"strings"
)

// ReconcileWithPlan compares both sources and returns results with planned actions.
// It does NOT execute actions; use ApplyPlan for that.
func ReconcileWithPlan(ctx context.Context, spec *Spec, opts Options) (*Plan, error) {
	snap, err := GetOrBuildSnapshot(ctx, spec)
	if err != nil {
		return nil, err
	}

	results := resultsFromSnapshot(snap, spec.Adapter)
	summary, actions := buildPlanFromResults(results, snap, opts)

	return &Plan{
		Results: results,
		Actions: actions,
		Summary: summary,
	}, nil
}

// ApplyPlan executes the actions in a plan and returns how many findings were created.
// Requires opts.Confirmed=true and opts.DryRun=false to actually execute.
func ApplyPlan(ctx context.Context, spec *Spec, plan *Plan, opts Options) (created int, err error) {
	if !opts.Confirmed || opts.DryRun {
		return 0, nil
	}
	if len(plan.Actions) == 0 {
		return 0, nil
	}

	mutator, ok := spec.Adapter.(Mutator)
	if !ok {
		return 0, fmt.Errorf("adapter %s does not implement Mutator interface", spec.Adapter.Name())
	}

	var raise []Action
	for _, action := range plan.Actions {
		if action.Type == ActionRaiseMismatch {
			raise = append(raise, action)
		}
	}

	if batch, ok := mutator.(BatchMutator); ok {
		n, err := batch.RaiseMismatchBatch(ctx, raise)
		if err != nil {
			return n, fmt.Errorf("failed to batch raise mismatches: %w", err)
		}
		return n, nil
	}

	for _, action := range raise {
		ok, err := mutator.RaiseMismatch(ctx, action)
		if err != nil {
			return created, fmt.Errorf("failed to raise mismatch for %s: %w", action.Key, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// ReconcileAndApply plans and optionally applies actions.
func ReconcileAndApply(ctx context.Context, spec *Spec, opts Options) (*Plan, int, error) {
	plan, err := ReconcileWithPlan(ctx, spec, opts)
	if err != nil {
		return nil, 0, err
	}

	created, err := ApplyPlan(ctx, spec, plan, opts)
	return plan, created, err
}

// buildPlanFromResults generates a summary and action plan from results.
func buildPlanFromResults(results []Result, snap *Snapshot, opts Options) (PlanSummary, []Action) {
	var (
		summary PlanSummary
		actions []Action
	)

	summary.TotalItems = len(results)

	for _, result := range results {
		if result.PollError != "" {
			summary.PollFailures++
			continue
		}

		if result.InternalPresent && !result.ChannelPresent {
			summary.ChannelMissing++
			if opts.RaiseMissing {
				actions = append(actions, Action{
					Type:     ActionRaiseMismatch,
					Key:      result.Key,
					Reason:   "missing on channel",
					Internal: snap.Internal[result.Key],
				})
				summary.RaiseActions++
			}
			continue
		}

		if result.Diverged() {
			summary.Mismatches++
			actions = append(actions, Action{
				Type:     ActionRaiseMismatch,
				Key:      result.Key,
				Reason:   strings.Join(result.Mismatch, "; "),
				Internal: snap.Internal[result.Key],
				Channel:  snap.Channel[result.Key],
			})
			summary.RaiseActions++
		}
	}

	return summary, actions
}
