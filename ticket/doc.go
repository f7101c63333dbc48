// Package ticket defines the ticket and user models this subsystem reads
// and mutates, plus the storage contract it consumes.
//
// The full helpdesk schema (comments, attachments, knowledge base) is
// owned by the embedding application. This package carries only the
// slice the automation engine and the SLA jobs need: workflow status,
// priority, category, assignee, subject/description for condition
// matching, tags, and SLA deadlines.
package ticket
