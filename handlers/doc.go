// Package handlers provides the built-in handler for each job type.
//
// Every handler is constructed against narrow collaborator interfaces
// (Mailer, BlobStore, Scanner, AuditLog, the ticket store) so the heavy
// integrations stay outside the queue. The queue delivers at least
// once; each handler carries its own idempotency discipline:
//
//   - send_email          content-keyed dedupe within a one-hour window
//   - generate_export     deterministic blob key, rerun overwrites
//   - generate_org_export deterministic blob key, rerun overwrites
//   - recalculate_sla     pure function of creation time and priority
//   - process_attachment  terminal scan statuses are never rescanned
//   - audit_compaction    cutoff-based delete, naturally convergent
//   - sla_warning_check   warned tickets are stamped and skipped
//
// # Registration
//
// Wire everything at once:
//
//	handlers.RegisterAll(registry, handlers.Deps{
//		Mailer:  smtpMailer,
//		SentLog: sentLog,
//		Tickets: store,
//		Blobs:   s3Blobs,
//		Enqueue: manager.Enqueue,
//	})
//
// or register individual definitions with job.RegisterDefinition. A nil
// collaborator leaves its job type unregistered.
//
// The Memory* types implement every collaborator for development and
// tests.
package handlers
