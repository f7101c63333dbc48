package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/backoff"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// DeadLetterer archives a permanently failed job. Satisfied by
// *dlq.Service; defined here so queue does not import dlq.
type DeadLetterer interface {
	Record(ctx context.Context, j *job.Job, jobErr string) error
}

// Manager is the job lifecycle core. It orchestrates the job store, the
// queue lists, and the retry policy through four operations: Enqueue,
// Dequeue, Complete, and Fail.
type Manager struct {
	jobs   job.Store
	lists  Lists
	dead   DeadLetterer
	policy backoff.Strategy
	logger *slog.Logger

	defaultMaxAttempts int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the retry backoff policy.
// If not set, backoff.DefaultPolicy() is used.
func WithPolicy(p backoff.Strategy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithDefaultMaxAttempts sets the attempt ceiling applied when the
// enqueue caller does not override it.
func WithDefaultMaxAttempts(n int) ManagerOption {
	return func(m *Manager) { m.defaultMaxAttempts = n }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a lifecycle manager. dead may be nil, in which case
// permanently failed jobs are indexed on the failed list but no archive
// record is written.
func NewManager(jobs job.Store, lists Lists, dead DeadLetterer, opts ...ManagerOption) *Manager {
	m := &Manager{
		jobs:               jobs,
		lists:              lists,
		dead:               dead,
		policy:             backoff.DefaultPolicy(),
		logger:             slog.Default(),
		defaultMaxAttempts: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue persists a new pending job and pushes it onto its type's pending
// list. It returns immediately; no handler runs here.
func (m *Manager) Enqueue(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error) {
	jobOpts := job.DefaultOptions()
	jobOpts.MaxAttempts = m.defaultMaxAttempts
	for _, opt := range opts {
		opt(&jobOpts)
	}

	j := &job.Job{
		Entity:      ticketq.NewEntity(),
		ID:          id.NewJobID(),
		Type:        t,
		Status:      job.StatusPending,
		Data:        data,
		Attempts:    0,
		MaxAttempts: jobOpts.MaxAttempts,
		OrgID:       jobOpts.OrgID,
	}

	if err := m.jobs.PutJob(ctx, j); err != nil {
		return nil, fmt.Errorf("ticketq/queue: enqueue %s: %w", t, err)
	}
	if err := m.lists.PushPending(ctx, t, j.ID); err != nil {
		return nil, fmt.Errorf("ticketq/queue: enqueue push pending %s: %w", t, err)
	}

	return j, nil
}

// Dequeue pops one job from the type's pending list. Returns (nil, nil)
// when the list is empty or when the popped job's retry delay has not yet
// elapsed — in that case the job is re-pended untouched and the pop is a
// no-op for this cycle.
//
// On a hit the job moves to processing and its attempt counter increments.
// This is the only place Attempts changes.
func (m *Manager) Dequeue(ctx context.Context, t job.Type) (*job.Job, error) {
	jobID, err := m.lists.PopPending(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("ticketq/queue: dequeue pop %s: %w", t, err)
	}
	if jobID.IsNil() {
		return nil, nil
	}

	j, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ticketq/queue: dequeue load %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	if !j.RetryDue(now) {
		// Retry delay still pending. Put it back and report empty.
		if pushErr := m.lists.PushPending(ctx, t, jobID); pushErr != nil {
			return nil, fmt.Errorf("ticketq/queue: dequeue re-pend %s: %w", jobID, pushErr)
		}
		return nil, nil
	}

	j.Status = job.StatusProcessing
	j.StartedAt = &now
	j.Attempts++

	if err := m.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("ticketq/queue: dequeue update %s: %w", jobID, err)
	}
	if err := m.lists.PushProcessing(ctx, t, jobID); err != nil {
		return nil, fmt.Errorf("ticketq/queue: dequeue push processing %s: %w", jobID, err)
	}

	return j, nil
}

// Complete marks a job completed, attaches its result for later retrieval,
// and removes it from the processing list. Calling it twice succeeds; the
// second call only overwrites data.
func (m *Manager) Complete(ctx context.Context, jobID id.JobID, t job.Type, result []byte) (*job.Job, error) {
	j, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ticketq/queue: complete load %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	j.Status = job.StatusCompleted
	j.CompletedAt = &now
	j.Result = result

	if err := m.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("ticketq/queue: complete update %s: %w", jobID, err)
	}
	if err := m.lists.RemoveProcessing(ctx, t, jobID); err != nil {
		return nil, fmt.Errorf("ticketq/queue: complete remove processing %s: %w", jobID, err)
	}

	return j, nil
}

// Fail records a handler failure. With attempts remaining the job is
// re-pended with a backoff delay (status pending, RetryAt set); once the
// attempt budget is exhausted it becomes failed, joins the failed list,
// and is archived as a dead-letter record. A job that exhausted its
// attempts never re-enters the pending list.
//
// The returned job reflects the outcome: StatusPending means a retry was
// scheduled, StatusFailed means the job was dead-lettered.
func (m *Manager) Fail(ctx context.Context, jobID id.JobID, t job.Type, jobErr string) (*job.Job, error) {
	j, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ticketq/queue: fail load %s: %w", jobID, err)
	}

	if err := m.lists.RemoveProcessing(ctx, t, jobID); err != nil {
		return nil, fmt.Errorf("ticketq/queue: fail remove processing %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	j.LastError = jobErr

	if j.AttemptsExhausted() {
		j.Status = job.StatusFailed
		j.CompletedAt = &now
		j.RetryAt = nil

		if err := m.jobs.UpdateJob(ctx, j); err != nil {
			return nil, fmt.Errorf("ticketq/queue: fail update %s: %w", jobID, err)
		}
		if err := m.lists.PushFailed(ctx, t, jobID); err != nil {
			return nil, fmt.Errorf("ticketq/queue: fail push failed %s: %w", jobID, err)
		}
		if m.dead != nil {
			if recErr := m.dead.Record(ctx, j, jobErr); recErr != nil {
				m.logger.Error("dead-letter record write failed",
					slog.String("job_id", jobID.String()),
					slog.String("job_type", string(t)),
					slog.String("error", recErr.Error()),
				)
			}
		}

		m.logger.Warn("job dead-lettered",
			slog.String("job_id", jobID.String()),
			slog.String("job_type", string(t)),
			slog.Int("attempts", j.Attempts),
			slog.String("error", jobErr),
		)
		return j, nil
	}

	delay := m.policy.Delay(j.Attempts)
	retryAt := now.Add(delay)
	j.Status = job.StatusPending
	j.RetryAt = &retryAt

	if err := m.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("ticketq/queue: fail update %s: %w", jobID, err)
	}
	if err := m.lists.PushPending(ctx, t, jobID); err != nil {
		return nil, fmt.Errorf("ticketq/queue: fail re-pend %s: %w", jobID, err)
	}

	m.logger.Info("job scheduled for retry",
		slog.String("job_id", jobID.String()),
		slog.String("job_type", string(t)),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)
	return j, nil
}

// Defer returns a dequeued job to the pending list without consuming an
// attempt, delaying it by the given duration. The worker pool uses this
// when a tenant limiter rejects an already-claimed job.
func (m *Manager) Defer(ctx context.Context, j *job.Job, delay time.Duration) error {
	retryAt := time.Now().UTC().Add(delay)
	j.Status = job.StatusPending
	j.RetryAt = &retryAt
	j.Attempts-- // refund the dequeue increment; the job never ran
	j.StartedAt = nil

	if err := m.jobs.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("ticketq/queue: defer update %s: %w", j.ID, err)
	}
	if err := m.lists.RemoveProcessing(ctx, j.Type, j.ID); err != nil {
		return fmt.Errorf("ticketq/queue: defer remove processing %s: %w", j.ID, err)
	}
	if err := m.lists.PushPending(ctx, j.Type, j.ID); err != nil {
		return fmt.Errorf("ticketq/queue: defer re-pend %s: %w", j.ID, err)
	}
	return nil
}

// Get loads a job record by ID.
func (m *Manager) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ticketq.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ticketq/queue: get %s: %w", jobID, err)
	}
	return j, nil
}

// List returns job records matching the given status.
func (m *Manager) List(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	jobs, err := m.jobs.ListJobsByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("ticketq/queue: list %s: %w", status, err)
	}
	return jobs, nil
}

// Count returns the number of job records matching opts.
func (m *Manager) Count(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := m.jobs.CountJobs(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("ticketq/queue: count: %w", err)
	}
	return n, nil
}

// PendingLen returns the depth of the type's pending list.
func (m *Manager) PendingLen(ctx context.Context, t job.Type) (int64, error) {
	return m.lists.PendingLen(ctx, t)
}

// ProcessingLen returns the depth of the type's processing list.
func (m *Manager) ProcessingLen(ctx context.Context, t job.Type) (int64, error) {
	return m.lists.ProcessingLen(ctx, t)
}
