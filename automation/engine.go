package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opsdeck/ticketq/ext"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/ticket"
)

// EnqueueFunc enqueues a job. Satisfied by queue.Manager.Enqueue;
// defined here so automation does not import queue.
type EnqueueFunc func(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error)

// Result reports one evaluation pass. Matched counts rules whose
// conditions passed; Executed counts rules whose action list ran to the
// end (individual actions inside may still have failed and been skipped
// under the continue-on-error policy).
type Result struct {
	Matched  int `json:"matched"`
	Executed int `json:"executed"`
}

// Engine evaluates automation rules against ticket lifecycle events and
// executes their actions. Failures never propagate to the ticket
// mutation that fired the trigger; automation is fire-and-forget.
type Engine struct {
	rules   Store
	tickets ticket.Store
	enqueue EnqueueFunc
	exts    *ext.Registry
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEnqueue provides the job enqueue callback used by the notify
// action and the SLA recompute that follows a priority change. Without
// it those actions log and skip.
func WithEnqueue(fn EnqueueFunc) EngineOption {
	return func(e *Engine) { e.enqueue = fn }
}

// WithExtensions attaches an extension registry for rule-matched and
// action-failed events.
func WithExtensions(r *ext.Registry) EngineOption {
	return func(e *Engine) { e.exts = r }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a rule engine over the given rule and ticket stores.
func NewEngine(rules Store, tickets ticket.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:   rules,
		tickets: tickets,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TicketCreated runs the TICKET_CREATED rules for the ticket.
func (e *Engine) TicketCreated(ctx context.Context, ticketID id.TicketID) (Result, error) {
	return e.Fire(ctx, TriggerTicketCreated, ticketID)
}

// TicketUpdated runs the TICKET_UPDATED rules for the ticket.
func (e *Engine) TicketUpdated(ctx context.Context, ticketID id.TicketID) (Result, error) {
	return e.Fire(ctx, TriggerTicketUpdated, ticketID)
}

// CommentAdded runs the COMMENT_ADDED rules for the ticket.
func (e *Engine) CommentAdded(ctx context.Context, ticketID id.TicketID) (Result, error) {
	return e.Fire(ctx, TriggerCommentAdded, ticketID)
}

// Fire runs one evaluation pass: loads the ticket and its tags once,
// fetches the enabled rules for the org and trigger (priority
// descending), AND-folds each rule's conditions against the snapshot,
// and executes matching rules' actions in list order.
func (e *Engine) Fire(ctx context.Context, trigger Trigger, ticketID id.TicketID) (Result, error) {
	var res Result

	t, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return res, fmt.Errorf("ticketq/automation: fire %s load ticket %s: %w", trigger, ticketID, err)
	}
	tags, err := e.tickets.ListTags(ctx, ticketID)
	if err != nil {
		return res, fmt.Errorf("ticketq/automation: fire %s list tags %s: %w", trigger, ticketID, err)
	}
	snap := Snapshot{Ticket: t, Tags: tags}

	rules, err := e.rules.GetEnabledRules(ctx, t.OrgID, trigger)
	if err != nil {
		return res, fmt.Errorf("ticketq/automation: fire %s lookup rules: %w", trigger, err)
	}

	for _, r := range rules {
		if !Match(r.Conditions, snap) {
			continue
		}
		res.Matched++

		if e.exts != nil {
			e.exts.EmitRuleMatched(ctx, r.ID, r.Name, ticketID)
		}
		e.logger.Debug("automation rule matched",
			slog.String("rule_id", r.ID.String()),
			slog.String("rule", r.Name),
			slog.String("trigger", string(trigger)),
			slog.String("ticket_id", ticketID.String()),
		)

		e.executeActions(ctx, r, snap)
		res.Executed++
	}

	return res, nil
}

// executeActions runs the rule's actions in list order. A failing action
// is logged and execution continues with the next one; there is no
// rollback.
func (e *Engine) executeActions(ctx context.Context, r *Rule, snap Snapshot) {
	for _, a := range r.Actions {
		if err := e.executeAction(ctx, r, a, snap); err != nil {
			if e.exts != nil {
				e.exts.EmitActionFailed(ctx, r.ID, string(a.Type), err)
			}
			e.logger.Warn("automation action failed",
				slog.String("rule_id", r.ID.String()),
				slog.String("rule", r.Name),
				slog.String("action", string(a.Type)),
				slog.String("ticket_id", snap.Ticket.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) executeAction(ctx context.Context, r *Rule, a Action, snap Snapshot) error {
	ticketID := snap.Ticket.ID

	switch a.Type {
	case ActionSetStatus:
		s := ticket.Status(a.Value)
		_, err := e.tickets.UpdateTicket(ctx, ticketID, ticket.Update{Status: &s})
		return err

	case ActionSetPriority:
		p := ticket.Priority(a.Value)
		if _, err := e.tickets.UpdateTicket(ctx, ticketID, ticket.Update{Priority: &p}); err != nil {
			return err
		}
		// A priority change shifts SLA deadlines; recompute them off
		// the request path.
		e.enqueueSLARecalc(ctx, snap.Ticket)
		return nil

	case ActionSetCategory:
		c := ticket.Category(a.Value)
		_, err := e.tickets.UpdateTicket(ctx, ticketID, ticket.Update{Category: &c})
		return err

	case ActionAssignUser:
		userID, err := id.ParseUserID(a.Value)
		if err != nil {
			return fmt.Errorf("parse assignee %q: %w", a.Value, err)
		}
		_, err = e.tickets.UpdateTicket(ctx, ticketID, ticket.Update{AssigneeID: &userID})
		return err

	case ActionAssignRoundRobin:
		userID, err := pickRoundRobin(ctx, e.tickets, snap.Ticket.OrgID)
		if err != nil {
			return err
		}
		_, err = e.tickets.UpdateTicket(ctx, ticketID, ticket.Update{AssigneeID: &userID})
		return err

	case ActionAddTag:
		return e.tickets.AddTag(ctx, ticketID, a.Value)

	case ActionRemoveTag:
		return e.tickets.RemoveTag(ctx, ticketID, a.Value)

	case ActionNotify:
		return e.enqueueNotify(ctx, r, a.Value, snap.Ticket)

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// enqueueSLARecalc enqueues a RECALCULATE_SLA job for the ticket.
// Best-effort: without an enqueue callback or on enqueue failure it
// only logs.
func (e *Engine) enqueueSLARecalc(ctx context.Context, t *ticket.Ticket) {
	if e.enqueue == nil {
		return
	}
	data, err := json.Marshal(struct {
		TicketID id.TicketID `json:"ticket_id"`
	}{TicketID: t.ID})
	if err != nil {
		e.logger.Warn("marshal sla recalc payload", slog.String("error", err.Error()))
		return
	}
	if _, err := e.enqueue(ctx, job.TypeRecalculateSLA, data, job.WithOrg(t.OrgID)); err != nil {
		e.logger.Warn("enqueue sla recalc",
			slog.String("ticket_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// enqueueNotify enqueues a SEND_EMAIL job. The payload shape matches the
// send_email handler contract: {to, subject, html, text}.
func (e *Engine) enqueueNotify(ctx context.Context, r *Rule, to string, t *ticket.Ticket) error {
	if e.enqueue == nil {
		return fmt.Errorf("notify action: no enqueue callback configured")
	}

	body := fmt.Sprintf("Automation rule %q fired for ticket %s: %s", r.Name, t.ID, t.Subject)
	data, err := json.Marshal(struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Text    string `json:"text,omitempty"`
	}{
		To:      to,
		Subject: fmt.Sprintf("[Ticket] %s", t.Subject),
		HTML:    "<p>" + body + "</p>",
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}

	_, err = e.enqueue(ctx, job.TypeSendEmail, data, job.WithOrg(t.OrgID))
	return err
}
