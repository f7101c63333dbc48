package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// PendingPusher pushes a job ID onto its type's pending list. Satisfied
// by queue.Lists; defined here so dlq does not import queue.
type PendingPusher interface {
	PushPending(ctx context.Context, t job.Type, jobID id.JobID) error
}

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store   Store
	jobs    job.Store
	pending PendingPusher
}

// NewService creates a dead-letter service. pending may be nil if retry
// support is not needed (e.g. inspection-only tooling).
func NewService(store Store, jobs job.Store, pending PendingPusher) *Service {
	return &Service{store: store, jobs: jobs, pending: pending}
}

// Record builds a dead-letter record from a terminally failed job and
// persists it. The queue manager calls this when a job's attempt budget
// is exhausted.
func (s *Service) Record(ctx context.Context, j *job.Job, jobErr string) error {
	now := time.Now().UTC()
	r := &Record{
		ID:          id.NewRecordID(),
		JobID:       j.ID,
		JobType:     j.Type,
		Data:        j.Data,
		Error:       jobErr,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		OrgID:       j.OrgID,
		FailedAt:    now,
		CreatedAt:   now,
	}
	if err := s.store.PushRecord(ctx, r); err != nil {
		return fmt.Errorf("ticketq/dlq: record %s: %w", j.ID, err)
	}
	return nil
}

// Retry re-enqueues a dead-letter record as a brand-new pending job with
// the same type and payload and a fresh attempt budget. The record stays
// in the dead letter queue with RetriedAt stamped; the original failed
// job is left untouched.
func (s *Service) Retry(ctx context.Context, recordID id.RecordID) (*job.Job, error) {
	r, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if s.pending == nil {
		return nil, fmt.Errorf("ticketq/dlq: retry %s: %w", recordID, ticketq.ErrNoStore)
	}

	j := &job.Job{
		Entity:      ticketq.NewEntity(),
		ID:          id.NewJobID(),
		Type:        r.JobType,
		Status:      job.StatusPending,
		Data:        r.Data,
		Attempts:    0,
		MaxAttempts: r.MaxAttempts,
		OrgID:       r.OrgID,
	}

	if err := s.jobs.PutJob(ctx, j); err != nil {
		return nil, fmt.Errorf("ticketq/dlq: retry %s: %w", recordID, err)
	}
	if err := s.pending.PushPending(ctx, j.Type, j.ID); err != nil {
		return nil, fmt.Errorf("ticketq/dlq: retry %s push pending: %w", recordID, err)
	}

	if err := s.store.MarkRetried(ctx, recordID, time.Now().UTC()); err != nil {
		// The job is already enqueued. Return it along with the error.
		return j, fmt.Errorf("ticketq/dlq: retry %s mark retried: %w", recordID, err)
	}

	return j, nil
}

// Store returns the underlying dead-letter store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
