package handlers

import (
	"context"
	"sync"
	"time"
)

// In-memory collaborator implementations for development and tests.
// Production deployments inject real SMTP, object storage, and scanner
// integrations instead.

// MemoryMailer records sent emails.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []EmailPayload
}

func NewMemoryMailer() *MemoryMailer { return &MemoryMailer{} }

func (m *MemoryMailer) Send(_ context.Context, msg EmailPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of every delivered email in order.
func (m *MemoryMailer) Sent() []EmailPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailPayload, len(m.sent))
	copy(out, m.sent)
	return out
}

// MemorySentLog keys delivered emails by dedupe key.
type MemorySentLog struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

func NewMemorySentLog() *MemorySentLog {
	return &MemorySentLog{sent: make(map[string]time.Time)}
}

func (l *MemorySentLog) AlreadySent(_ context.Context, key string, since time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.sent[key]
	return ok && !at.Before(since), nil
}

func (l *MemorySentLog) MarkSent(_ context.Context, key string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[key] = at
	return nil
}

// MemoryBlobStore keeps objects in a map and serves file-scheme URLs.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte)}
}

func (b *MemoryBlobStore) Put(_ context.Context, key string, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[key] = cp
	return "memory://" + key, nil
}

// Get returns the stored object, or nil if absent.
func (b *MemoryBlobStore) Get(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key]
}

// MemoryAttachmentStatuses stores scan statuses in a map. Unknown
// attachments report ScanPending.
type MemoryAttachmentStatuses struct {
	mu       sync.Mutex
	statuses map[string]ScanStatus
}

func NewMemoryAttachmentStatuses() *MemoryAttachmentStatuses {
	return &MemoryAttachmentStatuses{statuses: make(map[string]ScanStatus)}
}

func (s *MemoryAttachmentStatuses) GetScanStatus(_ context.Context, attachmentID string) (ScanStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[attachmentID]; ok {
		return st, nil
	}
	return ScanPending, nil
}

func (s *MemoryAttachmentStatuses) SetScanStatus(_ context.Context, attachmentID string, status ScanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[attachmentID] = status
	return nil
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(ctx context.Context, attachmentID string) (ScanStatus, error)

func (f ScannerFunc) Scan(ctx context.Context, attachmentID string) (ScanStatus, error) {
	return f(ctx, attachmentID)
}

// MemoryAuditLog holds timestamped entries and supports compaction.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []time.Time
}

func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

// Append records one audit entry at the given time.
func (l *MemoryAuditLog) Append(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, at)
}

// Len returns the number of retained entries.
func (l *MemoryAuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryAuditLog) CompactBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kept []time.Time
	var removed int64
	for _, at := range l.entries {
		if at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, at)
	}
	l.entries = kept
	return removed, nil
}
