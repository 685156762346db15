package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Locker serializes work on a key across goroutines (memory) or processes (redis).
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases
	// the key and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// New builds the configured Locker.
func New(cfg Config) (Locker, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return NewRedis(rdb, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported lock driver %q", cfg.Driver)
	}
}

// Key helpers keep lock names consistent between features.
func LotKey(id uint) string      { return fmt.Sprintf("lot:%d", id) }
func ListingKey(id uint) string  { return fmt.Sprintf("listing:%d", id) }
func MismatchKey(id uint) string { return fmt.Sprintf("mismatch:%d", id) }

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// Memory is an in-process keyed mutex. Entries are dropped when nobody holds or waits on them.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e, false)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, e, true) })
	}, nil
}

func (m *Memory) release(key string, e *memoryEntry, held bool) {
	if held {
		<-e.sem
	}
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// size reports the number of live entries.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
