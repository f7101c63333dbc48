package postgres

import (
	"context"
	"fmt"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// PutJob persists a new job record.
func (s *Store) PutJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_jobs (
			id, type, status, data, result, attempts, max_attempts,
			last_error, org_id, started_at, completed_at, retry_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14
		)`,
		j.ID.String(), string(j.Type), string(j.Status), j.Data, j.Result,
		j.Attempts, j.MaxAttempts, j.LastError, j.OrgID.String(),
		j.StartedAt, j.CompletedAt, j.RetryAt,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ticketq.ErrJobAlreadyExists
		}
		return fmt.Errorf("ticketq/postgres: put job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ticketq_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrJobNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_jobs SET
			type = $2, status = $3, data = $4, result = $5,
			attempts = $6, max_attempts = $7, last_error = $8,
			org_id = $9, started_at = $10, completed_at = $11,
			retry_at = $12, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), string(j.Type), string(j.Status), j.Data, j.Result,
		j.Attempts, j.MaxAttempts, j.LastError, j.OrgID.String(),
		j.StartedAt, j.CompletedAt, j.RetryAt,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ticketq_jobs WHERE id = $1`, jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// CreatedAt ascending.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ticketq_jobs WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM ticketq_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ticketq/postgres: count jobs: %w", err)
	}
	return count, nil
}
