package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planAdapter() *mockAdapter {
	return &mockAdapter{
		internal: map[string]InternalItem{"a": 3, "b": 5, "c": 1, "d": 2},
		channel:  map[string]ChannelItem{"a": 3, "b": 7, "d": 2},
		pollErr:  map[string]error{"d": errors.New("timeout")},
	}
}

func TestReconcileWithPlan(t *testing.T) {
	adapter := planAdapter()
	spec := &Spec{Adapter: adapter, Scope: "plan"}

	plan, err := ReconcileWithPlan(context.Background(), spec, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, plan.Summary.TotalItems)
	assert.Equal(t, 1, plan.Summary.Mismatches)
	assert.Equal(t, 1, plan.Summary.ChannelMissing)
	assert.Equal(t, 1, plan.Summary.PollFailures)
	assert.Equal(t, 1, plan.Summary.RaiseActions)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "b", plan.Actions[0].Key)
	assert.Equal(t, 5, plan.Actions[0].Internal)
	assert.Equal(t, 7, plan.Actions[0].Channel)
}

func TestReconcileWithPlan_RaiseMissing(t *testing.T) {
	spec := &Spec{Adapter: planAdapter(), Scope: "missing"}

	plan, err := ReconcileWithPlan(context.Background(), spec, Options{RaiseMissing: true})
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Summary.RaiseActions)
	assert.Equal(t, "c", plan.Actions[1].Key)
	assert.Equal(t, "missing on channel", plan.Actions[1].Reason)
	assert.Nil(t, plan.Actions[1].Channel)
}

func TestApplyPlan_Guards(t *testing.T) {
	adapter := planAdapter()
	spec := &Spec{Adapter: adapter, Scope: "guards"}
	plan, err := ReconcileWithPlan(context.Background(), spec, Options{})
	require.NoError(t, err)

	tests := []struct {
		name string
		opts Options
	}{
		{"Not confirmed", Options{}},
		{"Dry run", Options{DryRun: true, Confirmed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ApplyPlan(context.Background(), spec, plan, tt.opts)
			assert.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, adapter.raised)
		})
	}
}

func TestReconcileAndApply_Idempotent(t *testing.T) {
	adapter := planAdapter()
	spec := &Spec{Adapter: adapter, Scope: "apply"}
	opts := Options{Confirmed: true}

	_, created, err := ReconcileAndApply(context.Background(), spec, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	_, created, err = ReconcileAndApply(context.Background(), spec, opts)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, adapter.raised, 1)
}

func TestApplyPlan_MutatorError(t *testing.T) {
	adapter := planAdapter()
	adapter.raiseFn = func(Action) (bool, error) { return false, errors.New("insert failed") }
	spec := &Spec{Adapter: adapter, Scope: "mutator-error"}

	_, _, err := ReconcileAndApply(context.Background(), spec, Options{Confirmed: true})
	assert.ErrorContains(t, err, "insert failed")
}

type batchAdapter struct {
	*mockAdapter
	batches [][]Action
}

func (b *batchAdapter) RaiseMismatchBatch(ctx context.Context, actions []Action) (int, error) {
	b.batches = append(b.batches, actions)
	return len(actions), nil
}

func TestApplyPlan_Batch(t *testing.T) {
	adapter := &batchAdapter{mockAdapter: planAdapter()}
	spec := &Spec{Adapter: adapter, Scope: "batch"}

	_, created, err := ReconcileAndApply(context.Background(), spec, Options{Confirmed: true, RaiseMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, adapter.batches, 1)
	assert.Len(t, adapter.batches[0], 2)
	assert.Empty(t, adapter.raised)
}

type noMutatorAdapter struct {
	Adapter
}

func TestApplyPlan_NoMutator(t *testing.T) {
	spec := &Spec{Adapter: noMutatorAdapter{Adapter: planAdapter()}, Scope: "no-mutator"}

	_, _, err := ReconcileAndApply(context.Background(), spec, Options{Confirmed: true})
	assert.ErrorContains(t, err, "does not implement Mutator")
}
