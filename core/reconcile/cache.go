package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Snapshot holds both indices of one reconciliation run.
type Snapshot struct {
	// Internal is the system of record index by entity key.
	Internal map[string]InternalItem

	// Channel holds the channel view of every successfully polled key.
	// Keys unknown to the channel are absent.
	Channel map[string]ChannelItem

	// PollErrors holds the failure of every key that could not be polled.
	PollErrors map[string]error

	// Built is the timestamp when this snapshot was built.
	Built time.Time

	// TTL is the time-to-live for this snapshot.
	TTL time.Duration
}

// IsExpired returns true if this snapshot has expired based on its TTL.
func (s *Snapshot) IsExpired() bool {
	if s.TTL == 0 {
		return true
	}
	return time.Since(s.Built) > s.TTL
}

type snapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	sf        singleflight.Group
}

var globalStore = &snapshotStore{
	snapshots: make(map[string]*Snapshot),
}

// BuildSnapshot loads the internal index and polls the channel for every key.
// Poll failures are recorded per key and never abort the build.
// This function does NOT store the snapshot; use GetOrBuildSnapshot for that.
func BuildSnapshot(ctx context.Context, spec *Spec) (*Snapshot, error) {
	internal, err := spec.Adapter.LoadInternalIndex(ctx, spec.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s index: %w", spec.Adapter.Name(), err)
	}

	limit := spec.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var (
		mu         sync.Mutex
		channel    = make(map[string]ChannelItem, len(internal))
		pollErrors = make(map[string]error)
		g          errgroup.Group
	)
	g.SetLimit(limit)

	for key, item := range internal {
		g.Go(func() error {
			pctx := ctx
			if spec.PollTimeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, spec.PollTimeout)
				defer cancel()
			}

			got, err := spec.Adapter.PollChannel(pctx, key, item)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				pollErrors[key] = err
			case got != nil:
				channel[key] = got
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Snapshot{
		Internal:   internal,
		Channel:    channel,
		PollErrors: pollErrors,
		Built:      time.Now(),
		TTL:        spec.CacheTTL,
	}, nil
}

// GetOrBuildSnapshot returns a fresh cached snapshot for spec or builds one.
// Concurrent callers for the same spec share a single build.
func GetOrBuildSnapshot(ctx context.Context, spec *Spec) (*Snapshot, error) {
	key := spec.CacheKey()

	globalStore.mu.RLock()
	snap, exists := globalStore.snapshots[key]
	globalStore.mu.RUnlock()

	if exists && !snap.IsExpired() {
		return snap, nil
	}

	result, err, _ := globalStore.sf.Do(key, func() (any, error) {
		globalStore.mu.RLock()
		snap, exists := globalStore.snapshots[key]
		globalStore.mu.RUnlock()

		if exists && !snap.IsExpired() {
			return snap, nil
		}

		built, err := BuildSnapshot(ctx, spec)
		if err != nil {
			return nil, err
		}

		if built.TTL > 0 {
			globalStore.mu.Lock()
			globalStore.snapshots[key] = built
			globalStore.mu.Unlock()
		}

		return built, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Snapshot), nil
}

// InvalidateSnapshot removes the cached snapshot of spec.
func InvalidateSnapshot(spec *Spec) {
	globalStore.mu.Lock()
	delete(globalStore.snapshots, spec.CacheKey())
	globalStore.mu.Unlock()
}
