package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/queue"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/store"
	"github.com/opsdeck/ticketq/ticket"
)

// Compile-time interface checks.
var (
	_ job.Store        = (*Store)(nil)
	_ queue.Lists      = (*Store)(nil)
	_ dlq.Store        = (*Store)(nil)
	_ ticket.Store     = (*Store)(nil)
	_ automation.Store = (*Store)(nil)
	_ schedule.Store   = (*Store)(nil)
	_ store.Store      = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
// Entities are stored as JSON values; the queue lists map directly onto
// Redis lists, whose single-threaded pops give dequeue exclusivity.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op -- the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ── JSON entity helpers ──

func (s *Store) setEntity(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ticketq/redis: marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *Store) getEntity(ctx context.Context, key string, dst any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("ticketq/redis: unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *Store) entityExists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, goredis.Nil)
}
