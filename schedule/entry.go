package schedule

import (
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// Entry represents a recurring job registration: a cron expression plus
// the job type and payload to enqueue on each firing.
type Entry struct {
	ticketq.Entity

	ID          id.EntryID `json:"id"`
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	JobType     job.Type   `json:"job_type"`
	Payload     []byte     `json:"payload,omitempty"`
	OrgID       id.OrgID   `json:"org_id,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}

// Definition is a typed schedule definition. T is the payload type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this entry.
	Name string

	// Schedule is a cron expression (e.g. "*/5 * * * *" or "@every 30s").
	Schedule string

	// JobType is the job type to enqueue on each firing.
	JobType job.Type

	// Payload is the default payload to enqueue with the job.
	Payload T
}
