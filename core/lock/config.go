package lock

import "time"

// Config holds configuration for per-key mutual exclusion.
type Config struct {
	// Driver selects the implementation (memory, redis).
	Driver string `mapstructure:"driver" default:"memory"`
	// Addr is the redis address.
	Addr string `mapstructure:"addr" default:"localhost:6379"`
	// Password is the redis password.
	Password string `mapstructure:"password" default:""`
	// DB is the redis database index.
	DB int `mapstructure:"db" default:"0"`
	// TTL is how long a redis lock is held before it expires on its own.
	TTL time.Duration `mapstructure:"ttl" default:"30s"`
	// WaitTimeout bounds how long Lock waits when the caller's context has no deadline.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" default:"10s"`
	// Prefix namespaces redis keys.
	Prefix string `mapstructure:"prefix" default:"card-inventory:lock:"`
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)
