package worker

// Config holds configuration for the background pool.
type Config struct {
	// Workers is the number of goroutines running jobs.
	Workers int `mapstructure:"workers" default:"4"`
	// QueueSize is how many jobs may wait before Enqueue fails with ErrQueueFull.
	QueueSize int `mapstructure:"queue_size" default:"256"`
}
