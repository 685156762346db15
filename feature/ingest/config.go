package ingest

// Config holds configuration for imports.
type Config struct {
	// MaxFileSize is the largest accepted upload in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size" default:"10485760"`
	// MaxRows is the largest accepted number of data rows.
	MaxRows int `mapstructure:"max_rows" default:"50000"`
	// Prefix is the object key prefix of staged uploads and reports.
	Prefix string `mapstructure:"prefix" default:"imports"`
	// ProgressEvery is how many rows pass between progress saves and cancel checks.
	ProgressEvery int `mapstructure:"progress_every" default:"25"`
}

func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 << 20
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 50000
	}
	if c.Prefix == "" {
		c.Prefix = "imports"
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 25
	}
	return c
}
