package queue

import (
	"context"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// Lists is the per-job-type queue primitive: three durable lists (pending,
// processing, failed) holding job IDs, keyed by job type.
//
// All operations MUST be atomic with respect to concurrent workers: two
// concurrent PopPending calls on the same type must never return the same
// job ID. Backends enforce this with whatever primitive they have — a mutex
// for the memory store, atomic LPOP for Redis, FOR UPDATE SKIP LOCKED for
// Postgres.
type Lists interface {
	// PushPending appends a job ID to the tail of the type's pending list.
	PushPending(ctx context.Context, t job.Type, jobID id.JobID) error

	// PopPending removes and returns the job ID at the head of the type's
	// pending list (FIFO). Returns the Nil ID with no error when the list
	// is empty.
	PopPending(ctx context.Context, t job.Type) (id.JobID, error)

	// PushProcessing adds a job ID to the type's processing list.
	PushProcessing(ctx context.Context, t job.Type, jobID id.JobID) error

	// RemoveProcessing removes a job ID from the type's processing list.
	// Removing an absent ID is a no-op.
	RemoveProcessing(ctx context.Context, t job.Type, jobID id.JobID) error

	// PushFailed adds a job ID to the type's failed list. The failed list
	// is an index; the queryable archive is the dlq store.
	PushFailed(ctx context.Context, t job.Type, jobID id.JobID) error

	// PendingLen returns the length of the type's pending list.
	PendingLen(ctx context.Context, t job.Type) (int64, error)

	// ProcessingLen returns the length of the type's processing list.
	ProcessingLen(ctx context.Context, t job.Type) (int64, error)
}
