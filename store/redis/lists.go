package redis

import (
	"context"
	"fmt"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// PushPending appends a job ID to the tail of the type's pending list.
func (s *Store) PushPending(ctx context.Context, t job.Type, jobID id.JobID) error {
	if err := s.client.RPush(ctx, pendingKey(t), jobID.String()).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: push pending: %w", err)
	}
	return nil
}

// PopPending removes and returns the head of the type's pending list.
// LPOP is atomic, so concurrent workers never receive the same ID.
func (s *Store) PopPending(ctx context.Context, t job.Type) (id.JobID, error) {
	raw, err := s.client.LPop(ctx, pendingKey(t)).Result()
	if err != nil {
		if isNotFound(err) {
			return id.Nil, nil
		}
		return id.Nil, fmt.Errorf("ticketq/redis: pop pending: %w", err)
	}
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.Nil, fmt.Errorf("ticketq/redis: pop pending parse %q: %w", raw, err)
	}
	return jobID, nil
}

// PushProcessing adds a job ID to the type's processing set.
func (s *Store) PushProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	if err := s.client.SAdd(ctx, processingKey(t), jobID.String()).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: push processing: %w", err)
	}
	return nil
}

// RemoveProcessing removes a job ID from the type's processing set.
// Removing an absent ID is a no-op.
func (s *Store) RemoveProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	if err := s.client.SRem(ctx, processingKey(t), jobID.String()).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: remove processing: %w", err)
	}
	return nil
}

// PushFailed adds a job ID to the type's failed index.
func (s *Store) PushFailed(ctx context.Context, t job.Type, jobID id.JobID) error {
	if err := s.client.RPush(ctx, failedKey(t), jobID.String()).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: push failed: %w", err)
	}
	return nil
}

// PendingLen returns the length of the type's pending list.
func (s *Store) PendingLen(ctx context.Context, t job.Type) (int64, error) {
	n, err := s.client.LLen(ctx, pendingKey(t)).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: pending len: %w", err)
	}
	return n, nil
}

// ProcessingLen returns the size of the type's processing set.
func (s *Store) ProcessingLen(ctx context.Context, t job.Type) (int64, error) {
	n, err := s.client.SCard(ctx, processingKey(t)).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: processing len: %w", err)
	}
	return n, nil
}
