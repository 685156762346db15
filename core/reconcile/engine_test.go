package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter compares integer quantities keyed by string.
type mockAdapter struct {
	name      string
	internal  map[string]InternalItem
	channel   map[string]ChannelItem
	pollErr   map[string]error
	loadErr   error
	pollDelay time.Duration

	polls    atomic.Int32
	loads    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu      sync.Mutex
	raised  []Action
	known   map[string]bool
	raiseFn func(Action) (bool, error)
}

func (m *mockAdapter) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

func (m *mockAdapter) LoadInternalIndex(ctx context.Context, scope string) (map[string]InternalItem, error) {
	m.loads.Add(1)
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.internal, nil
}

func (m *mockAdapter) PollChannel(ctx context.Context, key string, item InternalItem) (ChannelItem, error) {
	m.polls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.pollDelay > 0 {
		select {
		case <-time.After(m.pollDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.pollErr[key]; err != nil {
		return nil, err
	}
	got, ok := m.channel[key]
	if !ok {
		return nil, nil
	}
	return got, nil
}

func (m *mockAdapter) ResolveName(item InternalItem) string {
	return "item-" + fmt.Sprint(item)
}

func (m *mockAdapter) CompareFields(internal InternalItem, channel ChannelItem) []string {
	if internal.(int) != channel.(int) {
		return []string{fmt.Sprintf("quantity: internal=%d channel=%d", internal, channel)}
	}
	return nil
}

func (m *mockAdapter) GetMetadata(internal InternalItem, channel ChannelItem) map[string]string {
	return map[string]string{"source": "mock"}
}

func (m *mockAdapter) RaiseMismatch(ctx context.Context, action Action) (bool, error) {
	if m.raiseFn != nil {
		return m.raiseFn(action)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known == nil {
		m.known = map[string]bool{}
	}
	if m.known[action.Key] {
		return false, nil
	}
	m.known[action.Key] = true
	m.raised = append(m.raised, action)
	return true, nil
}

func TestReconcileAll(t *testing.T) {
	adapter := &mockAdapter{
		internal: map[string]InternalItem{"a": 3, "b": 5, "c": 1, "d": 2},
		channel:  map[string]ChannelItem{"a": 3, "b": 7, "d": 2},
		pollErr:  map[string]error{"d": errors.New("rate limited")},
	}

	results, err := ReconcileAll(context.Background(), &Spec{Adapter: adapter})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "a", results[0].Key)
	assert.False(t, results[0].Diverged())
	assert.Equal(t, "item-3", results[0].Name)

	assert.Equal(t, []string{"quantity: internal=5 channel=7"}, results[1].Mismatch)

	assert.True(t, results[2].InternalPresent)
	assert.False(t, results[2].ChannelPresent)

	assert.Equal(t, "rate limited", results[3].PollError)
	assert.False(t, results[3].ChannelPresent)
}

func TestBuildSnapshot_LoadError(t *testing.T) {
	adapter := &mockAdapter{loadErr: errors.New("db down")}

	_, err := BuildSnapshot(context.Background(), &Spec{Adapter: adapter})
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, adapter.polls.Load())
}

func TestBuildSnapshot_BoundedConcurrency(t *testing.T) {
	internal := map[string]InternalItem{}
	for i := 0; i < 12; i++ {
		internal[fmt.Sprint(i)] = i
	}
	adapter := &mockAdapter{internal: internal, channel: map[string]ChannelItem{}, pollDelay: 5 * time.Millisecond}

	snap, err := BuildSnapshot(context.Background(), &Spec{Adapter: adapter, Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(12), adapter.polls.Load())
	assert.LessOrEqual(t, adapter.maxSeen.Load(), int32(3))
	assert.Empty(t, snap.Channel)
}

func TestBuildSnapshot_PollTimeout(t *testing.T) {
	adapter := &mockAdapter{
		internal:  map[string]InternalItem{"slow": 1},
		channel:   map[string]ChannelItem{"slow": 1},
		pollDelay: time.Second,
	}

	snap, err := BuildSnapshot(context.Background(), &Spec{Adapter: adapter, PollTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.ErrorIs(t, snap.PollErrors["slow"], context.DeadlineExceeded)
}

func TestGetOrBuildSnapshot_Coalesces(t *testing.T) {
	adapter := &mockAdapter{
		name:      "coalesce",
		internal:  map[string]InternalItem{"a": 1},
		channel:   map[string]ChannelItem{"a": 1},
		pollDelay: 50 * time.Millisecond,
	}
	spec := &Spec{Adapter: adapter, Scope: "shop:1"}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := GetOrBuildSnapshot(context.Background(), spec)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, adapter.loads.Load(), int32(5))
}

func TestGetOrBuildSnapshot_TTL(t *testing.T) {
	adapter := &mockAdapter{name: "ttl", internal: map[string]InternalItem{"a": 1}}
	spec := &Spec{Adapter: adapter, Scope: "shop:2", CacheTTL: time.Minute}
	defer InvalidateSnapshot(spec)

	_, err := GetOrBuildSnapshot(context.Background(), spec)
	require.NoError(t, err)
	_, err = GetOrBuildSnapshot(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.loads.Load())

	InvalidateSnapshot(spec)
	_, err = GetOrBuildSnapshot(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, int32(2), adapter.loads.Load())
}
