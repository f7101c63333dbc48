package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/backoff"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/queue"
	"github.com/opsdeck/ticketq/store/memory"
)

func newManager(t *testing.T, opts ...queue.ManagerOption) (*queue.Manager, *memory.Store, *dlq.Service) {
	t.Helper()
	st := memory.New()
	svc := dlq.NewService(st, st, st)
	return queue.NewManager(st, st, svc, opts...), st, svc
}

func TestEnqueueDefaults(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newManager(t)

	j, err := m.Enqueue(ctx, job.TypeSendEmail, []byte(`{"to":"a@example.com"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", j.Status)
	}
	if j.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", j.Attempts)
	}
	if j.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want default 3", j.MaxAttempts)
	}

	n, err := st.PendingLen(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("PendingLen: %v", err)
	}
	if n != 1 {
		t.Fatalf("pending len = %d, want 1", n)
	}
}

func TestEnqueueOptions(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	orgID := id.NewOrgID()
	j, err := m.Enqueue(ctx, job.TypeGenerateExport, nil,
		job.WithMaxAttempts(5), job.WithOrg(orgID))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d, want 5", j.MaxAttempts)
	}
	if j.OrgID != orgID {
		t.Fatalf("org = %s, want %s", j.OrgID, orgID)
	}
}

func TestDequeueIncrementsAttemptsOnce(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	enq, err := m.Enqueue(ctx, job.TypeSendEmail, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if j == nil || j.ID != enq.ID {
		t.Fatalf("Dequeue returned %v, want job %s", j, enq.ID)
	}
	if j.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 after dequeue", j.Attempts)
	}
	if j.Status != job.StatusProcessing {
		t.Fatalf("status = %s, want processing", j.Status)
	}
	if j.StartedAt == nil {
		t.Fatal("StartedAt not stamped")
	}

	// Attempts only move on dequeue; completing does not touch them.
	done, err := m.Complete(ctx, j.ID, j.Type, []byte(`"ok"`))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Attempts != 1 {
		t.Fatalf("attempts after complete = %d, want 1", done.Attempts)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if j != nil {
		t.Fatalf("Dequeue on empty queue = %+v, want nil", j)
	}
}

// Two concurrent drains must never both receive the same job.
func TestDequeueExclusive(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	const n = 40
	for i := 0; i < n; i++ {
		if _, err := m.Enqueue(ctx, job.TypeSendEmail, nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := m.Dequeue(ctx, job.TypeSendEmail)
				if err != nil {
					t.Errorf("Dequeue: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("dequeued %d distinct jobs, want %d", len(seen), n)
	}
	for jobID, count := range seen {
		if count != 1 {
			t.Fatalf("job %s dequeued %d times", jobID, count)
		}
	}
}

func TestFailSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newManager(t, queue.WithPolicy(backoff.NewExponential(time.Second, 5*time.Minute)))

	if _, err := m.Enqueue(ctx, job.TypeSendEmail, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	before := time.Now()
	failed, err := m.Fail(ctx, j.ID, j.Type, "smtp timeout")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending for retry", failed.Status)
	}
	if failed.LastError != "smtp timeout" {
		t.Fatalf("last error = %q", failed.LastError)
	}
	if failed.RetryAt == nil {
		t.Fatal("RetryAt not set")
	}
	// First retry waits the initial interval.
	delay := failed.RetryAt.Sub(before)
	if delay < 900*time.Millisecond || delay > 1100*time.Millisecond {
		t.Fatalf("retry delay = %v, want ~1s", delay)
	}

	n, _ := st.PendingLen(ctx, job.TypeSendEmail)
	if n != 1 {
		t.Fatalf("pending len = %d, want 1", n)
	}
	n, _ = st.ProcessingLen(ctx, job.TypeSendEmail)
	if n != 0 {
		t.Fatalf("processing len = %d, want 0", n)
	}
}

// A job popped before its RetryAt goes back to pending untouched.
func TestDequeueRespectsRetryAt(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newManager(t)

	if _, err := m.Enqueue(ctx, job.TypeSendEmail, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	first, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if _, err := m.Fail(ctx, first.ID, first.Type, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	// RetryAt is ~1s out, so a prompt dequeue skips the job.
	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if j != nil {
		t.Fatalf("Dequeue before RetryAt = %+v, want nil", j)
	}

	got, err := m.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (skip must not consume an attempt)", got.Attempts)
	}
	if got.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	n, _ := st.PendingLen(ctx, job.TypeSendEmail)
	if n != 1 {
		t.Fatalf("pending len = %d, want 1 (job re-queued)", n)
	}
}

func TestFailExhaustedDeadLetters(t *testing.T) {
	ctx := context.Background()
	m, st, svc := newManager(t)

	if _, err := m.Enqueue(ctx, job.TypeSendEmail, []byte(`{}`), job.WithMaxAttempts(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	failed, err := m.Fail(ctx, j.ID, j.Type, "smtp timeout")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if failed.RetryAt != nil {
		t.Fatal("terminal job must not carry a RetryAt")
	}

	// The job must never re-enter the pending queue.
	n, _ := st.PendingLen(ctx, job.TypeSendEmail)
	if n != 0 {
		t.Fatalf("pending len = %d, want 0", n)
	}

	records, err := svc.Store().ListRecords(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("dead-letter records = %d, want 1", len(records))
	}
	r := records[0]
	if r.JobID != j.ID || r.JobType != job.TypeSendEmail {
		t.Fatalf("record = %+v", r)
	}
	if r.Error != "smtp timeout" {
		t.Fatalf("record error = %q", r.Error)
	}
	if r.Attempts != 1 || r.MaxAttempts != 1 {
		t.Fatalf("record attempts = %d/%d, want 1/1", r.Attempts, r.MaxAttempts)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	if _, err := m.Enqueue(ctx, job.TypeGenerateExport, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := m.Dequeue(ctx, job.TypeGenerateExport)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	result := []byte(`{"url":"https://files.example.com/export.csv"}`)
	done, err := m.Complete(ctx, j.ID, j.Type, result)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped")
	}
	if string(done.Result) != string(result) {
		t.Fatalf("result = %s", done.Result)
	}
}

func TestDeferRefundsAttempt(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newManager(t)

	if _, err := m.Enqueue(ctx, job.TypeSendEmail, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := m.Dequeue(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if j.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", j.Attempts)
	}

	if err := m.Defer(ctx, j, time.Second); err != nil {
		t.Fatalf("Defer: %v", err)
	}
	got, err := m.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0 (deferred job never ran)", got.Attempts)
	}
	if got.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.RetryAt == nil {
		t.Fatal("RetryAt not set on deferred job")
	}
	n, _ := st.PendingLen(ctx, job.TypeSendEmail)
	if n != 1 {
		t.Fatalf("pending len = %d, want 1", n)
	}
	n, _ = st.ProcessingLen(ctx, job.TypeSendEmail)
	if n != 0 {
		t.Fatalf("processing len = %d, want 0", n)
	}
}

func TestGetUnknownJob(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	if _, err := m.Get(ctx, id.NewJobID()); !errors.Is(err, ticketq.ErrJobNotFound) {
		t.Fatalf("Get = %v, want ErrJobNotFound", err)
	}
}
