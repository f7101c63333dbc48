package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/ticket"
)

// defaultWarningWindow is how far ahead of the resolve deadline the
// sweep warns assignees.
const defaultWarningWindow = time.Hour

// SLAWarningPayload is the sla_warning_check job payload. The zero
// payload uses the default window.
type SLAWarningPayload struct {
	// Window overrides how far ahead to look, e.g. "30m". Optional.
	Window string `json:"window,omitempty"`
}

// SLAWarningResult is the sla_warning_check job result.
type SLAWarningResult struct {
	Checked int `json:"checked"`
	Warned  int `json:"warned"`
}

// EnqueueFunc matches queue.Manager.Enqueue; the sweep uses it to queue
// the warning emails instead of sending inline.
type EnqueueFunc func(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error)

// TicketDirectory is the slice of the ticket store the sweep needs.
// ticket.Store satisfies it.
type TicketDirectory interface {
	ListApproachingSLA(ctx context.Context, before time.Time) ([]*ticket.Ticket, error)
	GetUser(ctx context.Context, userID id.UserID) (*ticket.User, error)
	MarkSLAWarned(ctx context.Context, ticketID id.TicketID, at time.Time) error
}

// NewSLAWarningCheck returns the sla_warning_check handler definition.
// For every open ticket whose resolve deadline falls inside the window
// and that has not been warned, it enqueues a send_email job to the
// assignee and stamps the ticket so the next sweep skips it.
func NewSLAWarningCheck(tickets TicketDirectory, enqueue EnqueueFunc) *job.Definition[SLAWarningPayload] {
	return job.NewDefinition(job.TypeSLAWarningCheck, func(ctx context.Context, p SLAWarningPayload) (any, error) {
		window := defaultWarningWindow
		if p.Window != "" {
			d, err := time.ParseDuration(p.Window)
			if err != nil {
				return nil, fmt.Errorf("handlers: sla_warning_check: bad window %q: %w", p.Window, err)
			}
			window = d
		}

		now := time.Now().UTC()
		approaching, err := tickets.ListApproachingSLA(ctx, now.Add(window))
		if err != nil {
			return nil, fmt.Errorf("handlers: sla_warning_check list: %w", err)
		}

		res := SLAWarningResult{Checked: len(approaching)}
		for _, t := range approaching {
			if !t.Assigned() {
				continue
			}
			assignee, err := tickets.GetUser(ctx, *t.AssigneeID)
			if err != nil {
				return res, fmt.Errorf("handlers: sla_warning_check load assignee for %s: %w", t.ID, err)
			}

			body := fmt.Sprintf("Ticket %s (%s) breaches its SLA at %s.",
				t.ID, t.Subject, t.SLAResolveDue.UTC().Format(time.RFC3339))
			data, err := json.Marshal(EmailPayload{
				To:      assignee.Email,
				Subject: fmt.Sprintf("[SLA warning] %s", t.Subject),
				HTML:    "<p>" + body + "</p>",
				Text:    body,
			})
			if err != nil {
				return res, fmt.Errorf("handlers: sla_warning_check marshal email: %w", err)
			}
			if _, err := enqueue(ctx, job.TypeSendEmail, data, job.WithOrg(t.OrgID)); err != nil {
				return res, fmt.Errorf("handlers: sla_warning_check enqueue email for %s: %w", t.ID, err)
			}

			// The stamp keeps later sweeps from re-warning; the email
			// job's own dedupe covers a redelivery of this sweep.
			if err := tickets.MarkSLAWarned(ctx, t.ID, now); err != nil {
				return res, fmt.Errorf("handlers: sla_warning_check mark warned %s: %w", t.ID, err)
			}
			res.Warned++
		}
		return res, nil
	})
}
