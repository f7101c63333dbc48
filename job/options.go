package job

import "github.com/opsdeck/ticketq/id"

// Options configures per-job behavior at enqueue time.
type Options struct {
	// MaxAttempts is the attempt ceiling before the job is dead-lettered.
	MaxAttempts int

	// OrgID scopes the job to a tenant. Optional for maintenance jobs.
	OrgID id.OrgID
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
	}
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// WithMaxAttempts sets the attempt ceiling for the job.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithOrg scopes the job to the given organization.
func WithOrg(orgID id.OrgID) Option {
	return func(o *Options) {
		o.OrgID = orgID
	}
}
