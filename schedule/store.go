package schedule

import (
	"context"
	"time"

	"github.com/opsdeck/ticketq/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// RegisterEntry persists a new entry. Returns
	// ticketq.ErrDuplicateEntry if the name already exists.
	RegisterEntry(ctx context.Context, entry *Entry) error

	// GetEntry retrieves an entry by ID. Returns
	// ticketq.ErrEntryNotFound if absent.
	GetEntry(ctx context.Context, entryID id.EntryID) (*Entry, error)

	// ListEntries returns all entries.
	ListEntries(ctx context.Context) ([]*Entry, error)

	// AcquireEntryLock attempts to acquire the firing lock for an
	// entry. Returns true if acquired. The lock expires after ttl.
	AcquireEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// ReleaseEntryLock releases the firing lock for an entry.
	ReleaseEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID) error

	// UpdateEntryLastRun records when an entry last fired.
	UpdateEntryLastRun(ctx context.Context, entryID id.EntryID, at time.Time) error

	// UpdateEntry updates an entry (Enabled, NextRunAt, etc.).
	UpdateEntry(ctx context.Context, entry *Entry) error

	// DeleteEntry removes an entry by ID.
	DeleteEntry(ctx context.Context, entryID id.EntryID) error
}
