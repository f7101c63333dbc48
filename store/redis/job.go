package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// PutJob stores the job as a JSON value and indexes its ID.
func (s *Store) PutJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: put job exists: %w", err)
	}
	if exists {
		return ticketq.ErrJobAlreadyExists
	}

	if err := s.setEntity(ctx, key, j); err != nil {
		return fmt.Errorf("ticketq/redis: put job: %w", err)
	}
	if err := s.client.SAdd(ctx, jobIDsKey, jID).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: put job index: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := s.getEntity(ctx, jobKey(jobID.String()), &j); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrJobNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get job: %w", err)
	}
	return &j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	key := jobKey(j.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: update job exists: %w", err)
	}
	if !exists {
		return ticketq.ErrJobNotFound
	}

	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &cp); err != nil {
		return fmt.Errorf("ticketq/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: delete job exists: %w", err)
	}
	if !exists {
		return ticketq.ErrJobNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ticketq/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// CreatedAt ascending.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		var j job.Job
		if getErr := s.getEntity(ctx, jobKey(jID), &j); getErr != nil {
			continue // skip missing
		}
		if j.Status != status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		jobs = append(jobs, &j)
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return paginate(jobs, opts.Limit, opts.Offset), nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: count jobs smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		var j job.Job
		if getErr := s.getEntity(ctx, jobKey(jID), &j); getErr != nil {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// paginate applies offset/limit slicing.
func paginate[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return nil
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
