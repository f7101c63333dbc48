package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
)

// PushRecord persists a dead-letter record.
func (s *Store) PushRecord(ctx context.Context, r *dlq.Record) error {
	rID := r.ID.String()
	if err := s.setEntity(ctx, recordKey(rID), r); err != nil {
		return fmt.Errorf("ticketq/redis: push record: %w", err)
	}
	if err := s.client.SAdd(ctx, recordIDsKey, rID).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: push record index: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (s *Store) GetRecord(ctx context.Context, recordID id.RecordID) (*dlq.Record, error) {
	var r dlq.Record
	if err := s.getEntity(ctx, recordKey(recordID.String()), &r); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrRecordNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get record: %w", err)
	}
	return &r, nil
}

// ListRecords returns records matching opts, ordered by FailedAt ascending.
func (s *Store) ListRecords(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Record, error) {
	ids, err := s.client.SMembers(ctx, recordIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list records smembers: %w", err)
	}

	records := make([]*dlq.Record, 0, len(ids))
	for _, rID := range ids {
		var r dlq.Record
		if getErr := s.getEntity(ctx, recordKey(rID), &r); getErr != nil {
			continue
		}
		if opts.Type != "" && r.JobType != opts.Type {
			continue
		}
		if !opts.From.IsZero() && r.FailedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && r.FailedAt.After(opts.To) {
			continue
		}
		records = append(records, &r)
	}

	sort.SliceStable(records, func(i, k int) bool {
		return records[i].FailedAt.Before(records[k].FailedAt)
	})
	return paginate(records, opts.Limit, opts.Offset), nil
}

// MarkRetried stamps RetriedAt on a record.
func (s *Store) MarkRetried(ctx context.Context, recordID id.RecordID, at time.Time) error {
	key := recordKey(recordID.String())
	var r dlq.Record
	if err := s.getEntity(ctx, key, &r); err != nil {
		if isNotFound(err) {
			return ticketq.ErrRecordNotFound
		}
		return fmt.Errorf("ticketq/redis: mark retried get: %w", err)
	}
	r.RetriedAt = &at
	if err := s.setEntity(ctx, key, &r); err != nil {
		return fmt.Errorf("ticketq/redis: mark retried set: %w", err)
	}
	return nil
}

// DeleteRecord removes a single record.
func (s *Store) DeleteRecord(ctx context.Context, recordID id.RecordID) error {
	rID := recordID.String()
	key := recordKey(rID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: delete record exists: %w", err)
	}
	if !exists {
		return ticketq.ErrRecordNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, recordIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ticketq/redis: delete record: %w", err)
	}
	return nil
}

// PurgeRecords removes records that failed before the given time.
func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, recordIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: purge smembers: %w", err)
	}

	var purged int64
	for _, rID := range ids {
		var r dlq.Record
		if getErr := s.getEntity(ctx, recordKey(rID), &r); getErr != nil {
			continue
		}
		if !r.FailedAt.Before(before) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, recordKey(rID))
		pipe.SRem(ctx, recordIDsKey, rID)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return purged, fmt.Errorf("ticketq/redis: purge record %s: %w", rID, execErr)
		}
		purged++
	}
	return purged, nil
}

// CountRecords returns the total number of dead-letter records.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, recordIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: count records: %w", err)
	}
	return n, nil
}
