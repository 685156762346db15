package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Drivers(t *testing.T) {
	l, err := New(Config{Driver: DriverMemory})
	require.NoError(t, err)
	var _ Locker = (*Redis)(nil)

	unlock, err := l.Lock(context.Background(), LotKey(1))
	require.NoError(t, err)
	unlock()
	unlock()

	_, err = New(Config{Driver: "etcd"})
	assert.Error(t, err)
}

func TestMemory_Exclusion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, LotKey(1))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, m.size())
}

func TestMemory_IndependentKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, LotKey(1))
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := m.Lock(ctx, ListingKey(1))
	require.NoError(t, err)
	unlockB()
}

func TestMemory_ContextCancel(t *testing.T) {
	m := NewMemory()
	unlock, err := m.Lock(context.Background(), MismatchKey(9))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, MismatchKey(9))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, m.size())
}

func TestNew(t *testing.T) {
	l, err := New(Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	_, err = New(Config{Driver: "zookeeper"})
	assert.Error(t, err)
}
