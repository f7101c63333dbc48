package automation

import (
	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
)

// Trigger is the ticket lifecycle event that activates rule evaluation.
type Trigger string

const (
	TriggerTicketCreated   Trigger = "TICKET_CREATED"
	TriggerTicketUpdated   Trigger = "TICKET_UPDATED"
	TriggerCommentAdded    Trigger = "COMMENT_ADDED"
	TriggerStatusChanged   Trigger = "STATUS_CHANGED"
	TriggerPriorityChanged Trigger = "PRIORITY_CHANGED"
	TriggerAssigned        Trigger = "ASSIGNED"
	TriggerUnassigned      Trigger = "UNASSIGNED"
)

// Triggers returns every trigger in a stable order.
func Triggers() []Trigger {
	return []Trigger{
		TriggerTicketCreated,
		TriggerTicketUpdated,
		TriggerCommentAdded,
		TriggerStatusChanged,
		TriggerPriorityChanged,
		TriggerAssigned,
		TriggerUnassigned,
	}
}

// Rule is a tenant-scoped condition→action binding evaluated against
// ticket lifecycle events. Conditions AND together; actions run in list
// order, best-effort.
type Rule struct {
	ticketq.Entity

	ID        id.RuleID   `json:"id"`
	OrgID     id.OrgID    `json:"org_id"`
	Name      string      `json:"name"`
	Enabled   bool        `json:"enabled"`
	Priority  int         `json:"priority"`
	TriggerOn Trigger     `json:"trigger_on"`

	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`

	CreatedBy *id.UserID `json:"created_by,omitempty"`
}
