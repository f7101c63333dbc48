// Package memory provides an in-process implementation of every
// subsystem store. It is the default backend for tests and local
// development; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
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

// Store keeps everything in maps guarded by one RWMutex. Values are
// copied on write and on read so callers can never mutate shared state.
type Store struct {
	mu     sync.RWMutex
	closed bool

	jobs       map[string]*job.Job
	pending    map[job.Type][]id.JobID
	processing map[job.Type][]id.JobID
	failed     map[job.Type][]id.JobID

	records map[string]*dlq.Record

	tickets map[string]*ticket.Ticket
	tags    map[string][]string
	users   map[string]*ticket.User
	// userOrder preserves insertion order so round-robin iteration is
	// deterministic.
	userOrder []string

	rules map[string]*automation.Rule

	entries    map[string]*schedule.Entry
	entryNames map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:       make(map[string]*job.Job),
		pending:    make(map[job.Type][]id.JobID),
		processing: make(map[job.Type][]id.JobID),
		failed:     make(map[job.Type][]id.JobID),
		records:    make(map[string]*dlq.Record),
		tickets:    make(map[string]*ticket.Ticket),
		tags:       make(map[string][]string),
		users:      make(map[string]*ticket.User),
		rules:      make(map[string]*automation.Rule),
		entries:    make(map[string]*schedule.Entry),
		entryNames: make(map[string]string),
	}
}

// Migrate is a no-op for the memory backend.
func (s *Store) Migrate(ctx context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ticketq.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is retained so late reads in
// shutdown paths still work.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// job.Store
// ──────────────────────────────────────────────────

func (s *Store) PutJob(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := j.ID.String()
	if _, ok := s.jobs[key]; ok {
		return ticketq.ErrJobAlreadyExists
	}
	cp := *j
	s.jobs[key] = &cp
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ticketq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := j.ID.String()
	if _, ok := s.jobs[key]; !ok {
		return ticketq.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now()
	s.jobs[key] = &cp
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobID.String()
	if _, ok := s.jobs[key]; !ok {
		return ticketq.ErrJobNotFound
	}
	delete(s.jobs, key)
	return nil
}

func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status != status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, j := range s.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// queue.Lists
// ──────────────────────────────────────────────────

func (s *Store) PushPending(ctx context.Context, t job.Type, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[t] = append(s.pending[t], jobID)
	return nil
}

func (s *Store) PopPending(ctx context.Context, t job.Type) (id.JobID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pending[t]
	if len(list) == 0 {
		return id.Nil, nil
	}
	jobID := list[0]
	s.pending[t] = list[1:]
	return jobID, nil
}

func (s *Store) PushProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing[t] = append(s.processing[t], jobID)
	return nil
}

func (s *Store) RemoveProcessing(ctx context.Context, t job.Type, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing[t] = removeID(s.processing[t], jobID)
	return nil
}

func (s *Store) PushFailed(ctx context.Context, t job.Type, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[t] = append(s.failed[t], jobID)
	return nil
}

func (s *Store) PendingLen(ctx context.Context, t job.Type) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.pending[t])), nil
}

func (s *Store) ProcessingLen(ctx context.Context, t job.Type) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.processing[t])), nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func (s *Store) PushRecord(ctx context.Context, r *dlq.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetRecord(ctx context.Context, recordID id.RecordID) (*dlq.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID.String()]
	if !ok {
		return nil, ticketq.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRecords(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dlq.Record
	for _, r := range s.records {
		if opts.Type != "" && r.JobType != opts.Type {
			continue
		}
		if !opts.From.IsZero() && r.FailedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && r.FailedAt.After(opts.To) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].FailedAt.Before(out[k].FailedAt)
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (s *Store) MarkRetried(ctx context.Context, recordID id.RecordID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID.String()]
	if !ok {
		return ticketq.ErrRecordNotFound
	}
	retried := at
	r.RetriedAt = &retried
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordID.String()
	if _, ok := s.records[key]; !ok {
		return ticketq.ErrRecordNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, r := range s.records {
		if r.FailedAt.Before(before) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// ──────────────────────────────────────────────────
// ticket.Store
// ──────────────────────────────────────────────────

func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tickets[t.ID.String()] = &cp
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return nil, ticketq.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticketID id.TicketID, u ticket.Update) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return nil, ticketq.ErrTicketNotFound
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	switch {
	case u.ClearAssignee:
		t.AssigneeID = nil
	case u.AssigneeID != nil:
		assignee := *u.AssigneeID
		t.AssigneeID = &assignee
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (s *Store) ListTickets(ctx context.Context, opts ticket.ListOpts) ([]*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ticket.Ticket
	for _, t := range s.tickets {
		if !opts.OrgID.IsNil() && t.OrgID != opts.OrgID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (s *Store) AddTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ticketID.String()
	if _, ok := s.tickets[key]; !ok {
		return ticketq.ErrTicketNotFound
	}
	for _, existing := range s.tags[key] {
		if strings.EqualFold(existing, tag) {
			return nil
		}
	}
	s.tags[key] = append(s.tags[key], tag)
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ticketID.String()
	if _, ok := s.tickets[key]; !ok {
		return ticketq.ErrTicketNotFound
	}
	list := s.tags[key]
	for i, existing := range list {
		if strings.EqualFold(existing, tag) {
			s.tags[key] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) ListTags(ctx context.Context, ticketID id.TicketID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tickets[ticketID.String()]; !ok {
		return nil, ticketq.ErrTicketNotFound
	}
	list := s.tags[ticketID.String()]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *Store) ListInternalUsers(ctx context.Context, orgID id.OrgID) ([]*ticket.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ticket.User
	for _, key := range s.userOrder {
		u := s.users[key]
		if u == nil || !u.Internal || u.OrgID != orgID {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CountOpenAssigned(ctx context.Context, orgID id.OrgID, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.tickets {
		if t.OrgID != orgID || !t.Status.Open() {
			continue
		}
		if t.AssigneeID != nil && *t.AssigneeID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetTicketSLA(ctx context.Context, ticketID id.TicketID, responseDue, resolveDue *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return ticketq.ErrTicketNotFound
	}
	t.SLAResponseDue = copyTime(responseDue)
	t.SLAResolveDue = copyTime(resolveDue)
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListApproachingSLA(ctx context.Context, before time.Time) ([]*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ticket.Ticket
	for _, t := range s.tickets {
		if !t.Status.Open() || t.SLAWarnedAt != nil {
			continue
		}
		if t.SLAResolveDue == nil || !t.SLAResolveDue.Before(before) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].SLAResolveDue.Before(*out[k].SLAResolveDue)
	})
	return out, nil
}

func (s *Store) MarkSLAWarned(ctx context.Context, ticketID id.TicketID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID.String()]
	if !ok {
		return ticketq.ErrTicketNotFound
	}
	warned := at
	t.SLAWarnedAt = &warned
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *ticket.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := u.ID.String()
	if _, ok := s.users[key]; !ok {
		s.userOrder = append(s.userOrder, key)
	}
	cp := *u
	s.users[key] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*ticket.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID.String()]
	if !ok {
		return nil, ticketq.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// ──────────────────────────────────────────────────
// automation.Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRule(ctx context.Context, r *automation.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID.String()] = copyRule(r)
	return nil
}

func (s *Store) GetRule(ctx context.Context, ruleID id.RuleID) (*automation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID.String()]
	if !ok {
		return nil, ticketq.ErrRuleNotFound
	}
	return copyRule(r), nil
}

func (s *Store) UpdateRule(ctx context.Context, r *automation.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.ID.String()
	if _, ok := s.rules[key]; !ok {
		return ticketq.ErrRuleNotFound
	}
	cp := copyRule(r)
	cp.UpdatedAt = time.Now()
	s.rules[key] = cp
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleID.String()
	if _, ok := s.rules[key]; !ok {
		return ticketq.ErrRuleNotFound
	}
	delete(s.rules, key)
	return nil
}

func (s *Store) ListRules(ctx context.Context, opts automation.ListOpts) ([]*automation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*automation.Rule
	for _, r := range s.rules {
		if !opts.OrgID.IsNil() && r.OrgID != opts.OrgID {
			continue
		}
		out = append(out, copyRule(r))
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (s *Store) GetEnabledRules(ctx context.Context, orgID id.OrgID, trigger automation.Trigger) ([]*automation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*automation.Rule
	for _, r := range s.rules {
		if !r.Enabled || r.OrgID != orgID || r.TriggerOn != trigger {
			continue
		}
		out = append(out, copyRule(r))
	}
	// Priority descending; ties keep CreatedAt ascending.
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Priority > out[k].Priority
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// schedule.Store
// ──────────────────────────────────────────────────

func (s *Store) RegisterEntry(ctx context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entryNames[entry.Name]; ok {
		return ticketq.ErrDuplicateEntry
	}
	cp := *entry
	key := entry.ID.String()
	s.entries[key] = &cp
	s.entryNames[entry.Name] = key
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID.String()]
	if !ok {
		return nil, ticketq.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schedule.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Name < out[k].Name
	})
	return out, nil
}

func (s *Store) AcquireEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID.String()]
	if !ok {
		return false, ticketq.ErrEntryNotFound
	}
	now := time.Now()
	if e.LockedUntil != nil && e.LockedUntil.After(now) && e.LockedBy != workerID.String() {
		return false, nil
	}
	until := now.Add(ttl)
	e.LockedBy = workerID.String()
	e.LockedUntil = &until
	return true, nil
}

func (s *Store) ReleaseEntryLock(ctx context.Context, entryID id.EntryID, workerID id.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID.String()]
	if !ok {
		return ticketq.ErrEntryNotFound
	}
	if e.LockedBy == workerID.String() {
		e.LockedBy = ""
		e.LockedUntil = nil
	}
	return nil
}

func (s *Store) UpdateEntryLastRun(ctx context.Context, entryID id.EntryID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID.String()]
	if !ok {
		return ticketq.ErrEntryNotFound
	}
	last := at
	e.LastRunAt = &last
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.ID.String()
	old, ok := s.entries[key]
	if !ok {
		return ticketq.ErrEntryNotFound
	}
	if old.Name != entry.Name {
		delete(s.entryNames, old.Name)
		s.entryNames[entry.Name] = key
	}
	cp := *entry
	cp.UpdatedAt = time.Now()
	s.entries[key] = &cp
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID id.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryID.String()
	e, ok := s.entries[key]
	if !ok {
		return ticketq.ErrEntryNotFound
	}
	delete(s.entryNames, e.Name)
	delete(s.entries, key)
	return nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

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

func removeID(list []id.JobID, jobID id.JobID) []id.JobID {
	for i, candidate := range list {
		if candidate == jobID {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// copyRule deep-copies the condition and action slices so callers
// cannot mutate stored rules.
func copyRule(r *automation.Rule) *automation.Rule {
	cp := *r
	cp.Conditions = append([]automation.Condition(nil), r.Conditions...)
	cp.Actions = append([]automation.Action(nil), r.Actions...)
	return &cp
}
