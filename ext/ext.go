// Package ext defines the extension system for ticketq. Extensions are
// notified of lifecycle events (job enqueued, completed, dead-lettered,
// rule matched, etc.) and can react to them — logging, metrics, tracing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Rule hooks carry primitive identifiers
// rather than automation types so extensions stay decoupled from the
// engine's internals.
package ext

import (
	"context"
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, retryAt time.Time) error
}

// JobDeadLettered is called when a job exhausts its attempt budget and
// is moved to the dead letter queue.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Automation hooks
// ──────────────────────────────────────────────────

// RuleMatched is called when an automation rule's conditions pass and
// its actions are about to run.
type RuleMatched interface {
	OnRuleMatched(ctx context.Context, ruleID id.RuleID, ruleName string, ticketID id.TicketID) error
}

// ActionFailed is called when a single automation action fails. The
// engine continues with remaining actions regardless.
type ActionFailed interface {
	OnActionFailed(ctx context.Context, ruleID id.RuleID, actionType string, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a schedule entry fires and enqueues a job.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryName string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
