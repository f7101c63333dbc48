package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/store/memory"
)

func newFailedJob() *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Entity:      ticketq.NewEntity(),
		ID:          id.NewJobID(),
		Type:        job.TypeSendEmail,
		Status:      job.StatusFailed,
		Data:        []byte(`{"to":"a@example.com"}`),
		Attempts:    3,
		MaxAttempts: 3,
		LastError:   "smtp timeout",
		OrgID:       id.NewOrgID(),
		CompletedAt: &now,
	}
}

func TestRecordCapturesJob(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, st, st)

	j := newFailedJob()
	if err := svc.Record(ctx, j, "smtp timeout"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := st.ListRecords(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.JobID != j.ID {
		t.Fatalf("JobID = %s, want %s", r.JobID, j.ID)
	}
	if r.JobType != job.TypeSendEmail {
		t.Fatalf("JobType = %s", r.JobType)
	}
	if string(r.Data) != string(j.Data) {
		t.Fatalf("Data = %s", r.Data)
	}
	if r.Error != "smtp timeout" {
		t.Fatalf("Error = %q", r.Error)
	}
	if r.Attempts != 3 || r.MaxAttempts != 3 {
		t.Fatalf("Attempts = %d/%d", r.Attempts, r.MaxAttempts)
	}
	if r.OrgID != j.OrgID {
		t.Fatalf("OrgID = %s, want %s", r.OrgID, j.OrgID)
	}
	if r.FailedAt.IsZero() {
		t.Fatal("FailedAt not stamped")
	}
	if r.RetriedAt != nil {
		t.Fatal("fresh record must not have RetriedAt")
	}
}

func TestRetryCreatesFreshJob(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, st, st)

	failed := newFailedJob()
	if err := st.PutJob(ctx, failed); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := svc.Record(ctx, failed, failed.LastError); err != nil {
		t.Fatalf("Record: %v", err)
	}
	records, _ := st.ListRecords(ctx, dlq.ListOpts{})
	recordID := records[0].ID

	fresh, err := svc.Retry(ctx, recordID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if fresh.ID == failed.ID {
		t.Fatal("retry must mint a new job ID")
	}
	if fresh.Attempts != 0 {
		t.Fatalf("fresh attempts = %d, want 0", fresh.Attempts)
	}
	if fresh.Status != job.StatusPending {
		t.Fatalf("fresh status = %s, want pending", fresh.Status)
	}
	if fresh.Type != failed.Type {
		t.Fatalf("fresh type = %s, want %s", fresh.Type, failed.Type)
	}
	if string(fresh.Data) != string(failed.Data) {
		t.Fatal("retry must reuse the original payload")
	}
	if fresh.MaxAttempts != failed.MaxAttempts {
		t.Fatalf("fresh max attempts = %d, want %d", fresh.MaxAttempts, failed.MaxAttempts)
	}
	if fresh.OrgID != failed.OrgID {
		t.Fatal("retry must keep the org")
	}

	// The fresh job is persisted and queued.
	if _, err := st.GetJob(ctx, fresh.ID); err != nil {
		t.Fatalf("GetJob fresh: %v", err)
	}
	n, err := st.PendingLen(ctx, job.TypeSendEmail)
	if err != nil {
		t.Fatalf("PendingLen: %v", err)
	}
	if n != 1 {
		t.Fatalf("pending len = %d, want 1", n)
	}

	// The record is kept for audit, stamped rather than deleted.
	r, err := st.GetRecord(ctx, recordID)
	if err != nil {
		t.Fatalf("GetRecord after retry: %v", err)
	}
	if r.RetriedAt == nil {
		t.Fatal("RetriedAt not stamped")
	}

	// The exhausted original stays terminal.
	orig, err := st.GetJob(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetJob original: %v", err)
	}
	if orig.Status != job.StatusFailed {
		t.Fatalf("original status = %s, want failed", orig.Status)
	}
}

func TestRetryUnknownRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := dlq.NewService(st, st, st)

	if _, err := svc.Retry(ctx, id.NewRecordID()); !errors.Is(err, ticketq.ErrRecordNotFound) {
		t.Fatalf("Retry = %v, want ErrRecordNotFound", err)
	}
}
