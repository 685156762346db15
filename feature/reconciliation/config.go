package reconciliation

import "time"

// Auto-resolve policies.
const (
	PolicyManual       = "manual"
	PolicyPushInternal = "push_internal"
	PolicyPullChannel  = "pull_channel"
)

// Config holds configuration for reconciliation scans.
type Config struct {
	// AutoResolve resolves new mismatches right away: manual, push_internal or pull_channel.
	AutoResolve string `mapstructure:"auto_resolve" default:"manual"`
	// Concurrency bounds concurrent channel polls of a scan.
	Concurrency int `mapstructure:"concurrency" default:"4"`
	// PollTimeout bounds each channel poll.
	PollTimeout time.Duration `mapstructure:"poll_timeout" default:"10s"`
	// CacheTTL reuses a scan snapshot for overlapping scans of a shop. Zero disables it.
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"0s"`
	// ScanInterval is the period of the scheduled scan of every shop.
	ScanInterval time.Duration `mapstructure:"scan_interval" default:"15m"`
	// RaiseMissing raises mismatches for listings the channel no longer knows.
	RaiseMissing bool `mapstructure:"raise_missing" default:"true"`
}

func (c Config) policy() (Resolution, bool) {
	switch c.AutoResolve {
	case PolicyPushInternal:
		return StatusPushInternal, true
	case PolicyPullChannel:
		return StatusPullChannel, true
	}
	return "", false
}
