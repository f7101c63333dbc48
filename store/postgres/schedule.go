package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/schedule"
)

// RegisterEntry persists a new entry. The UNIQUE constraint on name
// turns a duplicate registration into ErrDuplicateEntry.
func (s *Store) RegisterEntry(ctx context.Context, entry *schedule.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_schedule_entries (
			id, name, schedule, job_type, payload, org_id,
			last_run_at, next_run_at, locked_by, locked_until, enabled,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)`,
		entry.ID.String(), entry.Name, entry.Schedule, string(entry.JobType),
		entry.Payload, entry.OrgID.String(),
		entry.LastRunAt, entry.NextRunAt, entry.LockedBy, entry.LockedUntil,
		entry.Enabled, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ticketq.ErrDuplicateEntry
		}
		return fmt.Errorf("ticketq/postgres: register entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*schedule.Entry, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ticketq_schedule_entries WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanEntry(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrEntryNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns all entries, ordered by name.
func (s *Store) ListEntries(ctx context.Context) ([]*schedule.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ticketq_schedule_entries ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list entries: %w", err)
	}
	defer rows.Close()

	var entries []*schedule.Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AcquireEntryLock claims the firing lock with a single conditional
// UPDATE, so concurrent schedulers race on the row atomically. A holder
// re-acquiring its own lock extends it.
func (s *Store) AcquireEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_schedule_entries
		SET locked_by = $2, locked_until = NOW() + $3::interval
		WHERE id = $1
		  AND (locked_until IS NULL OR locked_until < NOW() OR locked_by = $2)`,
		entryID.String(), workerID.String(), ttl.String(),
	)
	if err != nil {
		return false, fmt.Errorf("ticketq/postgres: acquire entry lock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Lost the race, or the entry is gone. Distinguish for the caller.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ticketq_schedule_entries WHERE id = $1)`,
		entryID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ticketq/postgres: acquire entry lock exists: %w", err)
	}
	if !exists {
		return false, ticketq.ErrEntryNotFound
	}
	return false, nil
}

// ReleaseEntryLock releases the firing lock if held by workerID.
func (s *Store) ReleaseEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ticketq_schedule_entries
		SET locked_by = '', locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: release entry lock: %w", err)
	}
	return nil
}

// UpdateEntryLastRun records when an entry last fired.
func (s *Store) UpdateEntryLastRun(ctx context.Context, entryID id.EntryID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_schedule_entries SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: update entry last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrEntryNotFound
	}
	return nil
}

// UpdateEntry persists changes to an entry.
func (s *Store) UpdateEntry(ctx context.Context, entry *schedule.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_schedule_entries SET
			name = $2, schedule = $3, job_type = $4, payload = $5,
			org_id = $6, last_run_at = $7, next_run_at = $8,
			locked_by = $9, locked_until = $10, enabled = $11,
			updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Schedule, string(entry.JobType),
		entry.Payload, entry.OrgID.String(),
		entry.LastRunAt, entry.NextRunAt,
		entry.LockedBy, entry.LockedUntil, entry.Enabled,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes an entry by ID.
func (s *Store) DeleteEntry(ctx context.Context, entryID id.EntryID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ticketq_schedule_entries WHERE id = $1`, entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrEntryNotFound
	}
	return nil
}
