package ticket

import (
	"context"
	"time"

	"github.com/opsdeck/ticketq/id"
)

// Update carries the mutable ticket fields the automation engine writes.
// Nil fields are left unchanged.
type Update struct {
	Status     *Status
	Priority   *Priority
	Category   *Category
	AssigneeID *id.UserID

	// ClearAssignee removes the current assignee. Takes precedence over
	// AssigneeID when both are set.
	ClearAssignee bool
}

// ListOpts pages ticket listings.
type ListOpts struct {
	OrgID  id.OrgID
	Status Status
	Limit  int
	Offset int
}

// Store is the ticket storage contract this subsystem consumes. The
// owning application provides the implementation; the bundled backends
// implement enough of it for the automation engine, SLA jobs, and tests.
type Store interface {
	// CreateTicket persists a new ticket.
	CreateTicket(ctx context.Context, t *Ticket) error

	// GetTicket retrieves a ticket by ID. Returns
	// ticketq.ErrTicketNotFound if absent.
	GetTicket(ctx context.Context, ticketID id.TicketID) (*Ticket, error)

	// UpdateTicket applies the non-nil fields of u to the ticket.
	UpdateTicket(ctx context.Context, ticketID id.TicketID, u Update) (*Ticket, error)

	// ListTickets returns tickets matching opts, ordered by CreatedAt
	// ascending.
	ListTickets(ctx context.Context, opts ListOpts) ([]*Ticket, error)

	// AddTag attaches a tag to a ticket. Adding a tag that is already
	// present is a no-op.
	AddTag(ctx context.Context, ticketID id.TicketID, tag string) error

	// RemoveTag detaches a tag. Removing an absent tag is a no-op.
	RemoveTag(ctx context.Context, ticketID id.TicketID, tag string) error

	// ListTags returns the ticket's tag names.
	ListTags(ctx context.Context, ticketID id.TicketID) ([]string, error)

	// ListInternalUsers returns the org's internal (agent) users in a
	// stable iteration order.
	ListInternalUsers(ctx context.Context, orgID id.OrgID) ([]*User, error)

	// CountOpenAssigned returns the number of open tickets currently
	// assigned to the user within the org.
	CountOpenAssigned(ctx context.Context, orgID id.OrgID, userID id.UserID) (int64, error)

	// SetTicketSLA writes recomputed SLA deadlines.
	SetTicketSLA(ctx context.Context, ticketID id.TicketID, responseDue, resolveDue *time.Time) error

	// ListApproachingSLA returns open tickets whose resolve deadline
	// falls before the given time and that have not been warned yet.
	ListApproachingSLA(ctx context.Context, before time.Time) ([]*Ticket, error)

	// MarkSLAWarned stamps SLAWarnedAt so a ticket is warned once.
	MarkSLAWarned(ctx context.Context, ticketID id.TicketID, at time.Time) error

	// CreateUser persists a user account.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by ID. Returns ticketq.ErrUserNotFound
	// if absent.
	GetUser(ctx context.Context, userID id.UserID) (*User, error)
}
