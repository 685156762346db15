// Package reconcile provides a generic engine for reconciling a system of record
// against an external channel.
//
// # Architecture
//
// 1. Adapter: domain logic. It loads the internal index with batch queries, polls the
// channel for one entity, and compares the two views.
//
// 2. Snapshot: the internal index plus the channel view of every key. Channel polls
// run concurrently (errgroup, bounded by Spec.Concurrency) with a per-poll timeout.
// A failed poll is recorded for its key and never aborts the run.
//
// 3. Plan: divergent results become ActionRaiseMismatch actions. ApplyPlan hands them
// to the adapter's Mutator, guarded by Options.DryRun and Options.Confirmed.
//
// Runs for the same Spec.CacheKey are coalesced with singleflight, and snapshots may be
// cached for Spec.CacheTTL.
//
// # Usage Example
//
//	spec := &reconcile.Spec{
//	    Adapter:     adapter,
//	    Scope:       "shop:1",
//	    Concurrency: 8,
//	    PollTimeout: 10 * time.Second,
//	}
//
//	plan, created, err := reconcile.ReconcileAndApply(ctx, spec, reconcile.Options{Confirmed: true})
package reconcile
