package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/store/memory"
	"github.com/opsdeck/ticketq/ticket"
)

func TestJobCRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	j := &job.Job{
		Entity:      ticketq.NewEntity(),
		ID:          id.NewJobID(),
		Type:        job.TypeSendEmail,
		Status:      job.StatusPending,
		MaxAttempts: 3,
	}
	if err := s.PutJob(ctx, j); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := s.PutJob(ctx, j); !errors.Is(err, ticketq.ErrJobAlreadyExists) {
		t.Fatalf("duplicate PutJob error = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != job.TypeSendEmail || got.Status != job.StatusPending {
		t.Fatalf("GetJob returned %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Status = job.StatusCompleted
	again, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if again.Status != job.StatusPending {
		t.Fatal("store leaked a mutable reference")
	}

	got.Status = job.StatusProcessing
	got.Attempts = 1
	if err := s.UpdateJob(ctx, got); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	updated, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if updated.Attempts != 1 || updated.Status != job.StatusProcessing {
		t.Fatalf("update not persisted: %+v", updated)
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, ticketq.ErrJobNotFound) {
		t.Fatalf("GetJob after delete = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsByStatus(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		j := &job.Job{
			ID:          id.NewJobID(),
			Type:        job.TypeSendEmail,
			Status:      job.StatusPending,
			MaxAttempts: 3,
		}
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.PutJob(ctx, j); err != nil {
			t.Fatalf("PutJob: %v", err)
		}
	}

	all, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatal("jobs not ordered by CreatedAt ascending")
		}
	}

	page, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page len = %d, want 2", len(page))
	}
	if !page[0].CreatedAt.Equal(all[3].CreatedAt) {
		t.Fatal("offset did not skip the first three jobs")
	}

	n, err := s.CountJobs(ctx, job.CountOpts{Status: job.StatusPending})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 5 {
		t.Fatalf("CountJobs = %d, want 5", n)
	}
}

func TestListsFIFO(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first, second := id.NewJobID(), id.NewJobID()
	if err := s.PushPending(ctx, job.TypeSendEmail, first); err != nil {
		t.Fatalf("PushPending: %v", err)
	}
	if err := s.PushPending(ctx, job.TypeSendEmail, second); err != nil {
		t.Fatalf("PushPending: %v", err)
	}

	got, err := s.PopPending(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("PopPending: %v", err)
	}
	if got != first {
		t.Fatalf("PopPending = %s, want first-pushed %s", got, first)
	}
	got, err = s.PopPending(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("PopPending: %v", err)
	}
	if got != second {
		t.Fatalf("PopPending = %s, want %s", got, second)
	}
	got, err = s.PopPending(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("PopPending empty: %v", err)
	}
	if !got.IsNil() {
		t.Fatalf("PopPending on empty list = %s, want nil ID", got)
	}
}

func TestPopPendingConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	const n = 50
	for i := 0; i < n; i++ {
		if err := s.PushPending(ctx, job.TypeGenerateExport, id.NewJobID()); err != nil {
			t.Fatalf("PushPending: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobID, err := s.PopPending(ctx, job.TypeGenerateExport)
				if err != nil {
					t.Errorf("PopPending: %v", err)
					return
				}
				if jobID.IsNil() {
					return
				}
				mu.Lock()
				if seen[jobID.String()] {
					t.Errorf("job %s popped twice", jobID)
				}
				seen[jobID.String()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("popped %d distinct jobs, want %d", len(seen), n)
	}
}

func TestRemoveProcessingAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	jobID := id.NewJobID()
	if err := s.PushProcessing(ctx, job.TypeSendEmail, jobID); err != nil {
		t.Fatalf("PushProcessing: %v", err)
	}
	if err := s.RemoveProcessing(ctx, job.TypeSendEmail, id.NewJobID()); err != nil {
		t.Fatalf("RemoveProcessing absent: %v", err)
	}
	n, err := s.ProcessingLen(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("ProcessingLen: %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessingLen = %d, want 1", n)
	}
	if err := s.RemoveProcessing(ctx, job.TypeSendEmail, jobID); err != nil {
		t.Fatalf("RemoveProcessing: %v", err)
	}
	n, _ = s.ProcessingLen(ctx, job.TypeSendEmail)
	if n != 0 {
		t.Fatalf("ProcessingLen = %d, want 0", n)
	}
}

func TestDeadLetterRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var ids []id.RecordID
	for i := 0; i < 4; i++ {
		r := &dlq.Record{
			ID:        id.NewRecordID(),
			JobID:     id.NewJobID(),
			JobType:   job.TypeSendEmail,
			Error:     "smtp timeout",
			FailedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
			CreatedAt: base,
		}
		if i == 3 {
			r.JobType = job.TypeProcessAttachment
		}
		if err := s.PushRecord(ctx, r); err != nil {
			t.Fatalf("PushRecord: %v", err)
		}
		ids = append(ids, r.ID)
	}

	// Inclusive FailedAt bounds.
	list, err := s.ListRecords(ctx, dlq.ListOpts{
		From: base.Add(24 * time.Hour),
		To:   base.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("bounded list len = %d, want 2", len(list))
	}
	if list[0].FailedAt.After(list[1].FailedAt) {
		t.Fatal("records not ordered by FailedAt ascending")
	}

	byType, err := s.ListRecords(ctx, dlq.ListOpts{Type: job.TypeProcessAttachment})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("type-filtered list len = %d, want 1", len(byType))
	}

	now := time.Now()
	if err := s.MarkRetried(ctx, ids[0], now); err != nil {
		t.Fatalf("MarkRetried: %v", err)
	}
	r, err := s.GetRecord(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if r.RetriedAt == nil || !r.RetriedAt.Equal(now) {
		t.Fatalf("RetriedAt = %v, want %v", r.RetriedAt, now)
	}

	purged, err := s.PurgeRecords(ctx, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("PurgeRecords: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}
	n, _ := s.CountRecords(ctx)
	if n != 2 {
		t.Fatalf("CountRecords = %d, want 2", n)
	}
}

func TestTicketTags(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	tk := &ticket.Ticket{
		Entity: ticketq.NewEntity(),
		ID:     id.NewTicketID(),
		OrgID:  id.NewOrgID(),
		Status: ticket.StatusOpen,
	}
	if err := s.CreateTicket(ctx, tk); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	if err := s.AddTag(ctx, tk.ID, "vip"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	// Duplicate add (case-insensitive) is a no-op.
	if err := s.AddTag(ctx, tk.ID, "VIP"); err != nil {
		t.Fatalf("AddTag duplicate: %v", err)
	}
	tags, err := s.ListTags(ctx, tk.ID)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "vip" {
		t.Fatalf("tags = %v, want [vip]", tags)
	}

	if err := s.RemoveTag(ctx, tk.ID, "absent"); err != nil {
		t.Fatalf("RemoveTag absent: %v", err)
	}
	if err := s.RemoveTag(ctx, tk.ID, "Vip"); err != nil {
		t.Fatalf("RemoveTag: %v", err)
	}
	tags, _ = s.ListTags(ctx, tk.ID)
	if len(tags) != 0 {
		t.Fatalf("tags after remove = %v, want empty", tags)
	}
}

func TestCountOpenAssigned(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	orgID := id.NewOrgID()
	userID := id.NewUserID()

	mk := func(status ticket.Status, assignee *id.UserID) {
		t.Helper()
		tk := &ticket.Ticket{
			Entity:     ticketq.NewEntity(),
			ID:         id.NewTicketID(),
			OrgID:      orgID,
			Status:     status,
			AssigneeID: assignee,
		}
		if err := s.CreateTicket(ctx, tk); err != nil {
			t.Fatalf("CreateTicket: %v", err)
		}
	}

	mk(ticket.StatusOpen, &userID)
	mk(ticket.StatusInProgress, &userID)
	mk(ticket.StatusOnHold, &userID)
	mk(ticket.StatusResolved, &userID) // terminal, not counted
	mk(ticket.StatusClosed, &userID)   // terminal, not counted
	mk(ticket.StatusOpen, nil)         // unassigned

	n, err := s.CountOpenAssigned(ctx, orgID, userID)
	if err != nil {
		t.Fatalf("CountOpenAssigned: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountOpenAssigned = %d, want 3", n)
	}
}

func TestEnabledRuleOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	orgID := id.NewOrgID()
	base := time.Now().Add(-time.Hour)
	mk := func(name string, priority int, offset time.Duration, enabled bool) {
		t.Helper()
		r := &automation.Rule{
			ID:        id.NewRuleID(),
			OrgID:     orgID,
			Name:      name,
			Enabled:   enabled,
			Priority:  priority,
			TriggerOn: automation.TriggerTicketCreated,
		}
		r.CreatedAt = base.Add(offset)
		if err := s.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}

	mk("low", 10, 0, true)
	mk("high", 100, time.Minute, true)
	mk("mid-old", 50, 2*time.Minute, true)
	mk("mid-new", 50, 3*time.Minute, true)
	mk("disabled", 200, 4*time.Minute, false)

	rules, err := s.GetEnabledRules(ctx, orgID, automation.TriggerTicketCreated)
	if err != nil {
		t.Fatalf("GetEnabledRules: %v", err)
	}
	var names []string
	for _, r := range rules {
		names = append(names, r.Name)
	}
	want := []string{"high", "mid-old", "mid-new", "low"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestGetRuleReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	r := &automation.Rule{
		ID:        id.NewRuleID(),
		OrgID:     id.NewOrgID(),
		Name:      "escalate incidents",
		Enabled:   true,
		Priority:  100,
		TriggerOn: automation.TriggerTicketCreated,
		Conditions: []automation.Condition{
			{Type: automation.CondCategoryEquals, Value: "INCIDENT"},
		},
		Actions: []automation.Action{
			{Type: automation.ActionSetPriority, Value: "P1"},
		},
	}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	got.Name = "mutated"
	got.Conditions[0].Value = "CHANGE"
	got.Actions[0].Value = "P4"

	again, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if again.Name != "escalate incidents" {
		t.Errorf("stored name = %q, mutation leaked through", again.Name)
	}
	if again.Conditions[0].Value != "INCIDENT" {
		t.Errorf("stored condition = %q, mutation leaked through", again.Conditions[0].Value)
	}
	if again.Actions[0].Value != "P1" {
		t.Errorf("stored action = %q, mutation leaked through", again.Actions[0].Value)
	}
}

func TestScheduleEntryLock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	entry := &schedule.Entry{
		Entity:   ticketq.NewEntity(),
		ID:       id.NewEntryID(),
		Name:     "nightly-audit-compaction",
		Schedule: "0 3 * * *",
		JobType:  job.TypeAuditCompaction,
		Enabled:  true,
	}
	if err := s.RegisterEntry(ctx, entry); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	dup := *entry
	dup.ID = id.NewEntryID()
	if err := s.RegisterEntry(ctx, &dup); !errors.Is(err, ticketq.ErrDuplicateEntry) {
		t.Fatalf("duplicate RegisterEntry error = %v, want ErrDuplicateEntry", err)
	}

	w1, w2 := id.NewWorkerID(), id.NewWorkerID()
	ok, err := s.AcquireEntryLock(ctx, entry.ID, w1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireEntryLock w1 = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.AcquireEntryLock(ctx, entry.ID, w2, time.Minute)
	if err != nil {
		t.Fatalf("AcquireEntryLock w2: %v", err)
	}
	if ok {
		t.Fatal("second worker acquired a held lock")
	}

	// Releasing with the wrong holder is a no-op.
	if err := s.ReleaseEntryLock(ctx, entry.ID, w2); err != nil {
		t.Fatalf("ReleaseEntryLock w2: %v", err)
	}
	ok, _ = s.AcquireEntryLock(ctx, entry.ID, w2, time.Minute)
	if ok {
		t.Fatal("wrong-holder release freed the lock")
	}

	if err := s.ReleaseEntryLock(ctx, entry.ID, w1); err != nil {
		t.Fatalf("ReleaseEntryLock w1: %v", err)
	}
	ok, err = s.AcquireEntryLock(ctx, entry.ID, w2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireEntryLock after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestStoreClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ticketq.ErrStoreClosed) {
		t.Fatalf("Ping after close = %v, want ErrStoreClosed", err)
	}
}
