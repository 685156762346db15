package channels

import (
	"time"

	"card-inventory/feature/channels/provider/ebay"
)

// Config holds configuration for channel integrations.
type Config struct {
	// EncryptionKey seals credentials at rest (32 bytes, hex or base64).
	// When empty outside production a random key is used.
	EncryptionKey string `mapstructure:"encryption_key" default:""`
	// WebhookSecret verifies order webhooks. Webhooks are refused when empty.
	WebhookSecret string `mapstructure:"webhook_secret" default:""`
	// Sandbox registers the in-memory channel.
	Sandbox bool `mapstructure:"sandbox" default:"true"`
	// Ebay holds the eBay provider settings.
	Ebay ebay.Config `mapstructure:"ebay"`
}

// SyncConfig holds configuration for quantity pushes and sweeps.
type SyncConfig struct {
	// PushTimeout bounds one channel call.
	PushTimeout time.Duration `mapstructure:"push_timeout" default:"10s"`
	// BaseBackoff is the delay before the first retry of a failed push.
	BaseBackoff time.Duration `mapstructure:"base_backoff" default:"30s"`
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff" default:"1h"`
	// MaxAttempts stops automatic retries of a listing.
	MaxAttempts int `mapstructure:"max_attempts" default:"8"`
	// StaleAfter is how long a listing may stay pending before the sweep pushes it.
	StaleAfter time.Duration `mapstructure:"stale_after" default:"5m"`
	// SweepInterval schedules the retry sweep. Zero disables it.
	SweepInterval time.Duration `mapstructure:"sweep_interval" default:"1m"`
	// OrderPollInterval schedules order polling. Zero disables it.
	OrderPollInterval time.Duration `mapstructure:"order_poll_interval" default:"5m"`
	// RefreshBuffer refreshes credentials expiring within this window.
	RefreshBuffer time.Duration `mapstructure:"refresh_buffer" default:"5m"`
	// Concurrency bounds parallel pushes of a sweep.
	Concurrency int `mapstructure:"concurrency" default:"4"`
}

// Backoff returns the delay before the retry following the given attempt count.
func (c SyncConfig) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.PushTimeout <= 0 {
		c.PushTimeout = 10 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}
