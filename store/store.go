package store

import (
	"context"

	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/queue"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/ticket"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (memory, redis, postgres) implements all of them.
type Store interface {
	job.Store
	queue.Lists
	dlq.Store
	ticket.Store
	automation.Store
	schedule.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
