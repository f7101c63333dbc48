package job

import (
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
)

// Type identifies one kind of deferred work. The set is closed per
// deployment: every Type must have exactly one registered handler.
type Type string

const (
	// TypeSendEmail delivers one outbound email.
	TypeSendEmail Type = "send_email"
	// TypeGenerateExport builds a ticket export file for a requester.
	TypeGenerateExport Type = "generate_export"
	// TypeGenerateOrgExport builds a full organization export.
	TypeGenerateOrgExport Type = "generate_org_export"
	// TypeRecalculateSLA recomputes a ticket's SLA due times.
	TypeRecalculateSLA Type = "recalculate_sla"
	// TypeProcessAttachment virus-scans an uploaded attachment.
	TypeProcessAttachment Type = "process_attachment"
	// TypeAuditCompaction compacts old audit log entries.
	TypeAuditCompaction Type = "audit_compaction"
	// TypeSLAWarningCheck notifies assignees of tickets nearing SLA breach.
	TypeSLAWarningCheck Type = "sla_warning_check"
)

// Types returns all job types known to this deployment, in a stable order.
func Types() []Type {
	return []Type{
		TypeSendEmail,
		TypeGenerateExport,
		TypeGenerateOrgExport,
		TypeRecalculateSLA,
		TypeProcessAttachment,
		TypeAuditCompaction,
		TypeSLAWarningCheck,
	}
}

// Status represents the lifecycle status of a job. Transitions are
// monotonic (pending → processing → completed|failed) except for
// processing → pending when a retry is scheduled.
type Status string

const (
	// StatusPending means the job is waiting on its type's pending queue.
	StatusPending Status = "pending"
	// StatusProcessing means a worker is currently executing the job.
	StatusProcessing Status = "processing"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job exhausted its attempts and was
	// dead-lettered.
	StatusFailed Status = "failed"
)

// Job represents one unit of deferred work.
type Job struct {
	ticketq.Entity

	ID          id.JobID   `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Data        []byte     `json:"data,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	OrgID       id.OrgID   `json:"org_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryAt     *time.Time `json:"retry_at,omitempty"`
}

// AttemptsExhausted reports whether the job has used up its attempt budget.
func (j *Job) AttemptsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// RetryDue reports whether the job may be executed at the given time.
// A job with no RetryAt is always due.
func (j *Job) RetryDue(now time.Time) bool {
	return j.RetryAt == nil || !j.RetryAt.After(now)
}
