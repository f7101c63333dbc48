package ticketq

import "time"

// Config holds configuration for the Pipeline.
type Config struct {
	// BatchSize is the maximum number of jobs a single drain pass pulls
	// from one job type's queue.
	BatchSize int

	// PollInterval is how often the worker pool polls for new jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// DefaultMaxAttempts is the attempt ceiling applied to jobs enqueued
	// without an explicit override.
	DefaultMaxAttempts int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          25,
		PollInterval:       1 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		DefaultMaxAttempts: 3,
	}
}
