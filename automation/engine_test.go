package automation_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/store/memory"
	"github.com/opsdeck/ticketq/ticket"
)

// enqueueRecorder captures jobs the engine enqueues without a real queue.
type enqueueRecorder struct {
	mu   sync.Mutex
	jobs []*job.Job
}

func (r *enqueueRecorder) enqueue(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error) {
	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	j := &job.Job{
		Entity: ticketq.NewEntity(),
		ID:     id.NewJobID(),
		Type:   t,
		Status: job.StatusPending,
		Data:   data,
		OrgID:  o.OrgID,
	}
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
	return j, nil
}

func (r *enqueueRecorder) byType(t job.Type) []*job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.Job
	for _, j := range r.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}

func createTicket(t *testing.T, st *memory.Store, orgID id.OrgID, mut func(*ticket.Ticket)) *ticket.Ticket {
	t.Helper()
	tk := &ticket.Ticket{
		Entity:      ticketq.NewEntity(),
		ID:          id.NewTicketID(),
		OrgID:       orgID,
		Subject:     "Laptop will not boot",
		Description: "Black screen after the vendor logo.",
		Status:      ticket.StatusOpen,
		Priority:    ticket.PriorityP3,
		Category:    ticket.CategoryIncident,
		RequesterID: id.NewUserID(),
	}
	if mut != nil {
		mut(tk)
	}
	if err := st.CreateTicket(context.Background(), tk); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return tk
}

func createRule(t *testing.T, st *memory.Store, r *automation.Rule) *automation.Rule {
	t.Helper()
	if r.ID.IsNil() {
		r.ID = id.NewRuleID()
	}
	if r.CreatedAt.IsZero() {
		r.Entity = ticketq.NewEntity()
	}
	if err := st.CreateRule(context.Background(), r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return r
}

func TestFireEscalatesIncidentPriority(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rec := &enqueueRecorder{}
	eng := automation.NewEngine(st, st, automation.WithEnqueue(rec.enqueue))

	orgID := id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
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
	})
	tk := createTicket(t, st, orgID, nil)

	res, err := eng.TicketCreated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if res.Matched != 1 || res.Executed != 1 {
		t.Fatalf("result = %+v, want 1/1", res)
	}

	got, err := st.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.Priority != ticket.PriorityP1 {
		t.Fatalf("priority = %s, want P1", got.Priority)
	}

	// The priority change queues an SLA recompute for the ticket.
	recalcs := rec.byType(job.TypeRecalculateSLA)
	if len(recalcs) != 1 {
		t.Fatalf("recalc jobs = %d, want 1", len(recalcs))
	}
	var payload struct {
		TicketID id.TicketID `json:"ticket_id"`
	}
	if err := json.Unmarshal(recalcs[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal recalc payload: %v", err)
	}
	if payload.TicketID != tk.ID {
		t.Fatalf("recalc ticket = %s, want %s", payload.TicketID, tk.ID)
	}
	if recalcs[0].OrgID != orgID {
		t.Fatal("recalc job must carry the ticket's org")
	}
}

func TestFireSkipsNonMatchingRules(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	orgID := id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
		Name:      "escalate incidents",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Conditions: []automation.Condition{
			{Type: automation.CondCategoryEquals, Value: "INCIDENT"},
		},
		Actions: []automation.Action{{Type: automation.ActionSetPriority, Value: "P1"}},
	})
	tk := createTicket(t, st, orgID, func(tk *ticket.Ticket) {
		tk.Category = ticket.CategoryQuestion
	})

	res, err := eng.TicketCreated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if res.Matched != 0 || res.Executed != 0 {
		t.Fatalf("result = %+v, want 0/0", res)
	}
	got, _ := st.GetTicket(ctx, tk.ID)
	if got.Priority != ticket.PriorityP3 {
		t.Fatalf("priority = %s, want unchanged P3", got.Priority)
	}
}

func TestFireRuleOrdering(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	orgID := id.NewOrgID()
	base := time.Now().Add(-time.Hour)

	// Two rules both set the status; the lower-priority one runs last
	// and wins, which proves descending-priority execution order.
	first := &automation.Rule{
		OrgID:     orgID,
		Name:      "runs first",
		Enabled:   true,
		Priority:  100,
		TriggerOn: automation.TriggerTicketUpdated,
		Actions:   []automation.Action{{Type: automation.ActionSetStatus, Value: "IN_PROGRESS"}},
	}
	first.CreatedAt = base
	second := &automation.Rule{
		OrgID:     orgID,
		Name:      "runs second",
		Enabled:   true,
		Priority:  10,
		TriggerOn: automation.TriggerTicketUpdated,
		Actions:   []automation.Action{{Type: automation.ActionSetStatus, Value: "ON_HOLD"}},
	}
	second.CreatedAt = base.Add(time.Minute)
	createRule(t, st, second)
	createRule(t, st, first)

	tk := createTicket(t, st, orgID, nil)
	res, err := eng.TicketUpdated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketUpdated: %v", err)
	}
	if res.Matched != 2 || res.Executed != 2 {
		t.Fatalf("result = %+v, want 2/2", res)
	}
	got, _ := st.GetTicket(ctx, tk.ID)
	if got.Status != ticket.StatusOnHold {
		t.Fatalf("status = %s, want ON_HOLD (lower priority runs last)", got.Status)
	}
}

func TestFireContinuesPastFailingAction(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	orgID := id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
		Name:      "tag and assign",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Actions: []automation.Action{
			{Type: automation.ActionAssignUser, Value: "not-a-user-id"},
			{Type: automation.ActionAddTag, Value: "triaged"},
		},
	})
	tk := createTicket(t, st, orgID, nil)

	res, err := eng.TicketCreated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1", res.Executed)
	}

	// The failing assignment did not block the tag action.
	tags, err := st.ListTags(ctx, tk.ID)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "triaged" {
		t.Fatalf("tags = %v, want [triaged]", tags)
	}
	got, _ := st.GetTicket(ctx, tk.ID)
	if got.Assigned() {
		t.Fatal("invalid assignment must not stick")
	}
}

func TestRoundRobinPicksLeastLoaded(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	orgID := id.NewOrgID()
	agents := make([]*ticket.User, 3)
	for i, name := range []string{"ana", "bo", "cal"} {
		u := &ticket.User{
			Entity:   ticketq.NewEntity(),
			ID:       id.NewUserID(),
			OrgID:    orgID,
			Name:     name,
			Internal: true,
		}
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		agents[i] = u
	}
	// Open-ticket load: ana 5, bo 2, cal 2. Bo is the first minimum.
	load := []int{5, 2, 2}
	for i, u := range agents {
		for n := 0; n < load[i]; n++ {
			assignee := u.ID
			createTicket(t, st, orgID, func(tk *ticket.Ticket) {
				tk.AssigneeID = &assignee
			})
		}
	}

	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
		Name:      "auto-assign",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Actions:   []automation.Action{{Type: automation.ActionAssignRoundRobin}},
	})
	tk := createTicket(t, st, orgID, nil)

	if _, err := eng.TicketCreated(ctx, tk.ID); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	got, err := st.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if !got.Assigned() {
		t.Fatal("ticket not assigned")
	}
	if *got.AssigneeID != agents[1].ID {
		t.Fatalf("assignee = %s, want bo (%s)", *got.AssigneeID, agents[1].ID)
	}
}

func TestRoundRobinNoAgents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	orgID := id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
		Name:      "auto-assign",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Actions:   []automation.Action{{Type: automation.ActionAssignRoundRobin}},
	})
	tk := createTicket(t, st, orgID, nil)

	// The action fails but the trigger itself succeeds.
	res, err := eng.TicketCreated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if res.Matched != 1 {
		t.Fatalf("matched = %d, want 1", res.Matched)
	}
	got, _ := st.GetTicket(ctx, tk.ID)
	if got.Assigned() {
		t.Fatal("ticket must stay unassigned without eligible agents")
	}
}

func TestNotifyEnqueuesEmail(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rec := &enqueueRecorder{}
	eng := automation.NewEngine(st, st, automation.WithEnqueue(rec.enqueue))

	orgID := id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     orgID,
		Name:      "page the duty manager",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Conditions: []automation.Condition{
			{Type: automation.CondPriorityEquals, Value: "P1"},
		},
		Actions: []automation.Action{
			{Type: automation.ActionNotify, Value: "duty@example.com"},
		},
	})
	tk := createTicket(t, st, orgID, func(tk *ticket.Ticket) {
		tk.Priority = ticket.PriorityP1
	})

	if _, err := eng.TicketCreated(ctx, tk.ID); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}

	emails := rec.byType(job.TypeSendEmail)
	if len(emails) != 1 {
		t.Fatalf("email jobs = %d, want 1", len(emails))
	}
	var payload struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		HTML    string `json:"html"`
	}
	if err := json.Unmarshal(emails[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal email payload: %v", err)
	}
	if payload.To != "duty@example.com" {
		t.Fatalf("to = %q", payload.To)
	}
	if payload.Subject == "" || payload.HTML == "" {
		t.Fatalf("payload missing content: %+v", payload)
	}
}

func TestFireIsolatesOrgs(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	eng := automation.NewEngine(st, st)

	ruleOrg, ticketOrg := id.NewOrgID(), id.NewOrgID()
	createRule(t, st, &automation.Rule{
		OrgID:     ruleOrg,
		Name:      "escalate everything",
		Enabled:   true,
		TriggerOn: automation.TriggerTicketCreated,
		Actions:   []automation.Action{{Type: automation.ActionSetPriority, Value: "P1"}},
	})
	tk := createTicket(t, st, ticketOrg, nil)

	res, err := eng.TicketCreated(ctx, tk.ID)
	if err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if res.Matched != 0 {
		t.Fatalf("matched = %d, want 0 (rule belongs to another org)", res.Matched)
	}
}
