package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/schedule"
)

// RegisterEntry persists a new entry. The name is claimed atomically
// through a hash field so two processes registering the same schedule
// cannot both win.
func (s *Store) RegisterEntry(ctx context.Context, entry *schedule.Entry) error {
	eID := entry.ID.String()

	claimed, err := s.client.HSetNX(ctx, entryNamesKey, entry.Name, eID).Result()
	if err != nil {
		return fmt.Errorf("ticketq/redis: register entry name: %w", err)
	}
	if !claimed {
		return ticketq.ErrDuplicateEntry
	}

	if err := s.setEntity(ctx, entryKey(eID), entry); err != nil {
		return fmt.Errorf("ticketq/redis: register entry: %w", err)
	}
	if err := s.client.SAdd(ctx, entryIDsKey, eID).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: register entry index: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*schedule.Entry, error) {
	var e schedule.Entry
	if err := s.getEntity(ctx, entryKey(entryID.String()), &e); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrEntryNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get entry: %w", err)
	}
	return &e, nil
}

// ListEntries returns all entries, ordered by name.
func (s *Store) ListEntries(ctx context.Context) ([]*schedule.Entry, error) {
	ids, err := s.client.SMembers(ctx, entryIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list entries smembers: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(ids))
	for _, eID := range ids {
		var e schedule.Entry
		if getErr := s.getEntity(ctx, entryKey(eID), &e); getErr != nil {
			continue
		}
		entries = append(entries, &e)
	}
	sort.SliceStable(entries, func(i, k int) bool {
		return entries[i].Name < entries[k].Name
	})
	return entries, nil
}

// AcquireEntryLock claims the firing lock for an entry via SET NX with
// a TTL. Redis expires the key on its own, so a crashed holder never
// wedges the schedule. A holder re-acquiring its own lock extends it.
func (s *Store) AcquireEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	exists, err := s.entityExists(ctx, entryKey(entryID.String()))
	if err != nil {
		return false, fmt.Errorf("ticketq/redis: acquire entry lock exists: %w", err)
	}
	if !exists {
		return false, ticketq.ErrEntryNotFound
	}

	lockKey := entryLockKey(entryID.String())
	wID := workerID.String()

	acquired, err := s.client.SetNX(ctx, lockKey, wID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ticketq/redis: acquire entry lock: %w", err)
	}
	if acquired {
		return true, nil
	}

	holder, err := s.client.Get(ctx, lockKey).Result()
	if err != nil {
		if isNotFound(err) {
			// Lock expired between SetNX and Get; let the caller retry
			// on the next pass rather than race here.
			return false, nil
		}
		return false, fmt.Errorf("ticketq/redis: acquire entry lock holder: %w", err)
	}
	if holder != wID {
		return false, nil
	}

	// Already ours, refresh the TTL.
	if err := s.client.Expire(ctx, lockKey, ttl).Err(); err != nil {
		return false, fmt.Errorf("ticketq/redis: extend entry lock: %w", err)
	}
	return true, nil
}

// ReleaseEntryLock releases the firing lock if held by workerID.
func (s *Store) ReleaseEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID) error {
	lockKey := entryLockKey(entryID.String())
	holder, err := s.client.Get(ctx, lockKey).Result()
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("ticketq/redis: release entry lock: %w", err)
	}
	if holder != workerID.String() {
		return nil
	}
	if err := s.client.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: release entry lock del: %w", err)
	}
	return nil
}

// UpdateEntryLastRun records when an entry last fired.
func (s *Store) UpdateEntryLastRun(ctx context.Context, entryID id.EntryID, at time.Time) error {
	key := entryKey(entryID.String())
	var e schedule.Entry
	if err := s.getEntity(ctx, key, &e); err != nil {
		if isNotFound(err) {
			return ticketq.ErrEntryNotFound
		}
		return fmt.Errorf("ticketq/redis: update entry last run get: %w", err)
	}
	last := at
	e.LastRunAt = &last
	if err := s.setEntity(ctx, key, &e); err != nil {
		return fmt.Errorf("ticketq/redis: update entry last run set: %w", err)
	}
	return nil
}

// UpdateEntry replaces an entry, keeping the name index in sync on
// rename.
func (s *Store) UpdateEntry(ctx context.Context, entry *schedule.Entry) error {
	eID := entry.ID.String()
	key := entryKey(eID)

	var old schedule.Entry
	if err := s.getEntity(ctx, key, &old); err != nil {
		if isNotFound(err) {
			return ticketq.ErrEntryNotFound
		}
		return fmt.Errorf("ticketq/redis: update entry get: %w", err)
	}

	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &cp); err != nil {
		return fmt.Errorf("ticketq/redis: update entry: %w", err)
	}

	if old.Name != entry.Name {
		pipe := s.client.TxPipeline()
		pipe.HDel(ctx, entryNamesKey, old.Name)
		pipe.HSet(ctx, entryNamesKey, entry.Name, eID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("ticketq/redis: update entry rename: %w", err)
		}
	}
	return nil
}

// DeleteEntry removes an entry and its name/lock bookkeeping.
func (s *Store) DeleteEntry(ctx context.Context, entryID id.EntryID) error {
	eID := entryID.String()
	key := entryKey(eID)

	var e schedule.Entry
	if err := s.getEntity(ctx, key, &e); err != nil {
		if isNotFound(err) {
			return ticketq.ErrEntryNotFound
		}
		return fmt.Errorf("ticketq/redis: delete entry get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, entryIDsKey, eID)
	pipe.HDel(ctx, entryNamesKey, e.Name)
	pipe.Del(ctx, entryLockKey(eID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ticketq/redis: delete entry: %w", err)
	}
	return nil
}
