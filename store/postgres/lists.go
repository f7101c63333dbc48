package postgres

import (
	"context"
	"fmt"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// Queue lists live in a single table keyed by (list, job_type) with a
// BIGSERIAL sequence column providing FIFO order.

const (
	listPending    = "pending"
	listProcessing = "processing"
	listFailed     = "failed"
)

// PushPending appends a job ID to the tail of the type's pending list.
func (s *Store) PushPending(ctx context.Context, t job.Type, jobID id.JobID) error {
	return s.pushList(ctx, listPending, t, jobID)
}

// PopPending removes and returns the head of the type's pending list.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming the
// same row; the Nil ID with no error means the list is empty.
func (s *Store) PopPending(ctx context.Context, t job.Type) (id.JobID, error) {
	var rawID string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM ticketq_queue_entries
		WHERE seq = (
			SELECT seq FROM ticketq_queue_entries
			WHERE list = $1 AND job_type = $2
			ORDER BY seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING job_id`,
		listPending, string(t),
	).Scan(&rawID)
	if err != nil {
		if isNoRows(err) {
			return id.Nil, nil
		}
		return id.Nil, fmt.Errorf("ticketq/postgres: pop pending: %w", err)
	}

	jobID, err := id.ParseJobID(rawID)
	if err != nil {
		return id.Nil, fmt.Errorf("ticketq/postgres: pop pending parse %q: %w", rawID, err)
	}
	return jobID, nil
}

// PushProcessing adds a job ID to the type's processing list.
func (s *Store) PushProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	return s.pushList(ctx, listProcessing, t, jobID)
}

// RemoveProcessing removes a job ID from the type's processing list.
// Removing an absent ID is a no-op.
func (s *Store) RemoveProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM ticketq_queue_entries
		WHERE list = $1 AND job_type = $2 AND job_id = $3`,
		listProcessing, string(t), jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: remove processing: %w", err)
	}
	return nil
}

// PushFailed adds a job ID to the type's failed list.
func (s *Store) PushFailed(ctx context.Context, t job.Type, jobID id.JobID) error {
	return s.pushList(ctx, listFailed, t, jobID)
}

// PendingLen returns the length of the type's pending list.
func (s *Store) PendingLen(ctx context.Context, t job.Type) (int64, error) {
	return s.listLen(ctx, listPending, t)
}

// ProcessingLen returns the length of the type's processing list.
func (s *Store) ProcessingLen(ctx context.Context, t job.Type) (int64, error) {
	return s.listLen(ctx, listProcessing, t)
}

func (s *Store) pushList(ctx context.Context, list string, t job.Type, jobID id.JobID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_queue_entries (list, job_type, job_id)
		VALUES ($1, $2, $3)`,
		list, string(t), jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: push %s: %w", list, err)
	}
	return nil
}

func (s *Store) listLen(ctx context.Context, list string, t job.Type) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ticketq_queue_entries
		WHERE list = $1 AND job_type = $2`,
		list, string(t),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ticketq/postgres: %s len: %w", list, err)
	}
	return n, nil
}
