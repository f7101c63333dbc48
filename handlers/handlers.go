package handlers

import (
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/ticket"
)

// Deps bundles the collaborators the built-in handlers need. A nil
// collaborator leaves the corresponding job type unregistered so the
// owning application can bring its own handler.
type Deps struct {
	Mailer  Mailer
	SentLog SentLog

	Tickets ticket.Store
	Blobs   BlobStore

	AttachmentStatuses AttachmentStatuses
	Scanner            Scanner

	AuditLog AuditLog

	// Enqueue feeds follow-up jobs (the SLA warning emails) back into
	// the queue.
	Enqueue EnqueueFunc
}

// RegisterAll wires every handler whose collaborators are present into
// the registry.
func RegisterAll(r *job.Registry, deps Deps) {
	if deps.Mailer != nil && deps.SentLog != nil {
		job.RegisterDefinition(r, NewSendEmail(deps.Mailer, deps.SentLog))
	}
	if deps.Tickets != nil && deps.Blobs != nil {
		job.RegisterDefinition(r, NewGenerateExport(deps.Tickets, deps.Blobs))
		job.RegisterDefinition(r, NewGenerateOrgExport(deps.Tickets, deps.Blobs))
	}
	if deps.Tickets != nil {
		job.RegisterDefinition(r, NewRecalculateSLA(deps.Tickets))
	}
	if deps.AttachmentStatuses != nil && deps.Scanner != nil {
		job.RegisterDefinition(r, NewProcessAttachment(deps.AttachmentStatuses, deps.Scanner))
	}
	if deps.AuditLog != nil {
		job.RegisterDefinition(r, NewAuditCompaction(deps.AuditLog))
	}
	if deps.Tickets != nil && deps.Enqueue != nil {
		job.RegisterDefinition(r, NewSLAWarningCheck(deps.Tickets, deps.Enqueue))
	}
}
