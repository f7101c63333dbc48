package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
)

// PushRecord persists a new dead-letter record.
func (s *Store) PushRecord(ctx context.Context, r *dlq.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_deadletter (
			id, job_id, job_type, data, error, attempts, max_attempts,
			org_id, failed_at, retried_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11
		)`,
		r.ID.String(), r.JobID.String(), string(r.JobType), r.Data, r.Error,
		r.Attempts, r.MaxAttempts, r.OrgID.String(),
		r.FailedAt, r.RetriedAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: push record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (s *Store) GetRecord(ctx context.Context, recordID id.RecordID) (*dlq.Record, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM ticketq_deadletter WHERE id = $1`,
		recordID.String(),
	)

	rec, err := scanRecord(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrRecordNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records matching opts, ordered by FailedAt
// ascending. Both time bounds are inclusive.
func (s *Store) ListRecords(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ticketq_deadletter WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if !opts.From.IsZero() {
		query += fmt.Sprintf(" AND failed_at >= $%d", argIdx)
		args = append(args, opts.From)
		argIdx++
	}
	if !opts.To.IsZero() {
		query += fmt.Sprintf(" AND failed_at <= $%d", argIdx)
		args = append(args, opts.To)
		argIdx++
	}

	query += " ORDER BY failed_at ASC"

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
		return nil, fmt.Errorf("ticketq/postgres: list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// MarkRetried stamps RetriedAt on a record.
func (s *Store) MarkRetried(ctx context.Context, recordID id.RecordID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ticketq_deadletter SET retried_at = $2 WHERE id = $1`,
		recordID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: mark retried: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes a single record.
func (s *Store) DeleteRecord(ctx context.Context, recordID id.RecordID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ticketq_deadletter WHERE id = $1`, recordID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrRecordNotFound
	}
	return nil
}

// PurgeRecords removes records that failed before the given time.
func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ticketq_deadletter WHERE failed_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("ticketq/postgres: purge records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountRecords returns the total number of dead-letter records.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ticketq_deadletter`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ticketq/postgres: count records: %w", err)
	}
	return n, nil
}
