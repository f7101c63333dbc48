package dlq

import (
	"context"
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// ListOpts filters and pages dead-letter record listings.
type ListOpts struct {
	// Type filters by the failed job's type. Empty matches all types.
	Type job.Type

	// From / To bound FailedAt. Zero values disable the bound; both
	// bounds are inclusive.
	From time.Time
	To   time.Time

	// Limit / Offset page the result. Zero Limit means no limit.
	Limit  int
	Offset int
}

// Store is the persistence interface for dead-letter records.
type Store interface {
	// PushRecord persists a new dead-letter record.
	PushRecord(ctx context.Context, r *Record) error

	// GetRecord retrieves a record by ID. Returns
	// ticketq.ErrRecordNotFound if absent.
	GetRecord(ctx context.Context, recordID id.RecordID) (*Record, error)

	// ListRecords returns records matching opts, ordered by FailedAt
	// ascending.
	ListRecords(ctx context.Context, opts ListOpts) ([]*Record, error)

	// MarkRetried stamps RetriedAt on a record. The record itself is
	// kept for audit.
	MarkRetried(ctx context.Context, recordID id.RecordID, at time.Time) error

	// DeleteRecord removes a single record.
	DeleteRecord(ctx context.Context, recordID id.RecordID) error

	// PurgeRecords removes records with FailedAt before the given time
	// and returns how many were deleted.
	PurgeRecords(ctx context.Context, before time.Time) (int64, error)

	// CountRecords returns the total number of dead-letter records.
	CountRecords(ctx context.Context) (int64, error)
}
