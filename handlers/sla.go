package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/ticket"
)

// slaTarget holds the response/resolve deadlines for one priority,
// measured from ticket creation.
type slaTarget struct {
	response time.Duration
	resolve  time.Duration
}

// slaMatrix maps ticket priority to its deadlines.
var slaMatrix = map[ticket.Priority]slaTarget{
	ticket.PriorityP1: {response: 1 * time.Hour, resolve: 4 * time.Hour},
	ticket.PriorityP2: {response: 4 * time.Hour, resolve: 24 * time.Hour},
	ticket.PriorityP3: {response: 8 * time.Hour, resolve: 72 * time.Hour},
	ticket.PriorityP4: {response: 24 * time.Hour, resolve: 7 * 24 * time.Hour},
}

// SLAPayload is the recalculate_sla job payload.
type SLAPayload struct {
	TicketID id.TicketID `json:"ticket_id"`
}

// SLAResult is the recalculate_sla job result.
type SLAResult struct {
	TicketID    id.TicketID `json:"ticket_id"`
	ResponseDue time.Time   `json:"response_due"`
	ResolveDue  time.Time   `json:"resolve_due"`
}

// NewRecalculateSLA returns the recalculate_sla handler definition.
// Deadlines are a pure function of creation time and current priority,
// so re-running the job converges on the same values.
func NewRecalculateSLA(tickets ticket.Store) *job.Definition[SLAPayload] {
	return job.NewDefinition(job.TypeRecalculateSLA, func(ctx context.Context, p SLAPayload) (any, error) {
		if p.TicketID.IsNil() {
			return nil, fmt.Errorf("handlers: recalculate_sla: empty ticket id")
		}

		t, err := tickets.GetTicket(ctx, p.TicketID)
		if err != nil {
			return nil, fmt.Errorf("handlers: recalculate_sla load %s: %w", p.TicketID, err)
		}

		target, ok := slaMatrix[t.Priority]
		if !ok {
			return nil, fmt.Errorf("handlers: recalculate_sla: no target for priority %q", t.Priority)
		}
		responseDue := t.CreatedAt.UTC().Add(target.response)
		resolveDue := t.CreatedAt.UTC().Add(target.resolve)

		if err := tickets.SetTicketSLA(ctx, p.TicketID, &responseDue, &resolveDue); err != nil {
			return nil, fmt.Errorf("handlers: recalculate_sla persist %s: %w", p.TicketID, err)
		}
		return SLAResult{TicketID: p.TicketID, ResponseDue: responseDue, ResolveDue: resolveDue}, nil
	})
}
