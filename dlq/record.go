package dlq

import (
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// Record captures a job that exhausted its attempt budget and was moved
// to the dead letter queue for inspection or retry.
type Record struct {
	ID          id.RecordID `json:"id"`
	JobID       id.JobID    `json:"job_id"`
	JobType     job.Type    `json:"job_type"`
	Data        []byte      `json:"data"`
	Error       string      `json:"error"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`
	OrgID       id.OrgID    `json:"org_id,omitempty"`
	FailedAt    time.Time   `json:"failed_at"`
	RetriedAt   *time.Time  `json:"retried_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
