package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/opsdeck/ticketq/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

type emailResult struct {
	MessageID string `json:"message_id"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition(job.TypeSendEmail, func(_ context.Context, p emailPayload) (any, error) {
		got = p
		return emailResult{MessageID: "msg-1"}, nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get(job.TypeSendEmail)
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	result, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
	if got.Subject != "Hello" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Hello")
	}

	var res emailResult
	if err := json.Unmarshal(result, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res.MessageID != "msg-1" {
		t.Errorf("MessageID = %q, want %q", res.MessageID, "msg-1")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	_, ok := r.Get(job.TypeAuditCompaction)
	if ok {
		t.Fatal("expected no handler for unregistered type")
	}
}

func TestRegistry_Types(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition(job.TypeSendEmail, func(_ context.Context, _ struct{}) (any, error) { return nil, nil }))
	job.RegisterDefinition(r, job.NewDefinition(job.TypeRecalculateSLA, func(_ context.Context, _ struct{}) (any, error) { return nil, nil }))

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	seen := make(map[job.Type]bool, len(types))
	for _, typ := range types {
		seen[typ] = true
	}
	if !seen[job.TypeSendEmail] || !seen[job.TypeRecalculateSLA] {
		t.Errorf("Types() = %v, missing registered types", types)
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition(job.TypeSendEmail, func(_ context.Context, _ emailPayload) (any, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return nil, nil
	}))

	h, _ := r.Get(job.TypeSendEmail)
	_, err := h(context.Background(), []byte(`{invalid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition(job.TypeAuditCompaction, func(_ context.Context, _ struct{}) (any, error) {
		called = true
		return nil, nil
	}))

	h, _ := r.Get(job.TypeAuditCompaction)
	result, err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result for nil handler return, got %q", result)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.RegisterDefinition(r, job.NewDefinition(job.TypeSendEmail, func(_ context.Context, _ struct{}) (any, error) {
		return nil, want
	}))

	h, _ := r.Get(job.TypeSendEmail)
	_, err := h(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition(job.TypeSendEmail, func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition(job.TypeSendEmail, func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("new")
	}))

	h, _ := r.Get(job.TypeSendEmail)
	_, err := h(context.Background(), nil)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}
