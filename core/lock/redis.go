package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis is a distributed Locker backed by redislock.
type Redis struct {
	client *redislock.Client
	cfg    Config
}

// NewRedis wraps a redis client.
func NewRedis(rdb redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: redislock.New(rdb), cfg: cfg}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if _, ok := ctx.Deadline(); !ok && r.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WaitTimeout)
		defer cancel()
	}

	ttl := r.cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	l, err := r.client.Obtain(ctx, r.cfg.Prefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(25 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s: not obtained: %w", key, context.DeadlineExceeded)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	return func() {
		_ = l.Release(context.Background())
	}, nil
}
