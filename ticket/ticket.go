package ticket

import (
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
)

// Status is the ticket workflow state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// Open reports whether the status counts toward a user's open-assigned
// load for round-robin assignment.
func (s Status) Open() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusOnHold
}

// Priority is the ticket urgency level, P1 highest.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Category classifies the ticket.
type Category string

const (
	CategoryIncident       Category = "INCIDENT"
	CategoryServiceRequest Category = "SERVICE_REQUEST"
	CategoryProblem        Category = "PROBLEM"
	CategoryChange         Category = "CHANGE"
	CategoryQuestion       Category = "QUESTION"
)

// Ticket is the read/write surface the automation engine and SLA jobs
// operate on. The full ticketing schema lives with the storage backend;
// this struct carries only the fields this subsystem reads or mutates.
type Ticket struct {
	ticketq.Entity

	ID          id.TicketID  `json:"id"`
	OrgID       id.OrgID     `json:"org_id"`
	Subject     string       `json:"subject"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	Category    Category     `json:"category"`
	AssigneeID  *id.UserID   `json:"assignee_id,omitempty"`
	RequesterID id.UserID    `json:"requester_id"`

	// SLA deadlines, recomputed by the RECALCULATE_SLA job whenever
	// priority changes.
	SLAResponseDue *time.Time `json:"sla_response_due,omitempty"`
	SLAResolveDue  *time.Time `json:"sla_resolve_due,omitempty"`
	SLAWarnedAt    *time.Time `json:"sla_warned_at,omitempty"`
}

// Assigned reports whether the ticket has an assignee.
func (t *Ticket) Assigned() bool {
	return t.AssigneeID != nil && !t.AssigneeID.IsNil()
}

// User is a helpdesk account. Internal users (agents) are eligible for
// round-robin assignment; requesters are not.
type User struct {
	ticketq.Entity

	ID       id.UserID `json:"id"`
	OrgID    id.OrgID  `json:"org_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Internal bool      `json:"internal"`
}
