// Package dlq provides the dead letter queue for jobs that have
// exhausted their attempt budget. It supports inspection, retry, and
// purging.
//
// When a job fails and MaxAttempts has been reached, the queue manager
// calls [Service.Record] to archive it. The original payload, error
// message, and attempt counts are preserved for debugging.
//
// # Record
//
// A [Record] captures:
//   - JobID / JobType: original job identity
//   - Data: the raw payload at time of failure
//   - Error: the final error message
//   - Attempts / MaxAttempts: the exhausted budget
//   - FailedAt: when the terminal failure occurred
//   - RetriedAt: set when the record is retried (nil if not yet)
//
// # Retry
//
// [Service.Retry] re-enqueues the payload as a brand-new job with a
// fresh attempt budget. The record is never deleted by a retry; it keeps
// its place in the queue with RetriedAt stamped, so the failure history
// survives even if the retried job fails again (which produces a second
// record).
//
// # Admin API
//
// The dead letter queue is exposed via the HTTP admin API:
//   - GET  /v1/deadletter                 — list records
//   - GET  /v1/deadletter/{recordID}      — get a single record
//   - POST /v1/deadletter/{recordID}/retry — retry one record
//   - POST /v1/deadletter/purge           — purge old records
package dlq
