// Package schedule provides recurring job registration on cron
// expressions: nightly audit compaction, periodic SLA warning sweeps,
// and any other maintenance job the deployment needs.
//
// # Entry
//
// An [Entry] represents a recurring job schedule:
//   - Schedule: standard cron expression (e.g. "0 3 * * *") or a
//     descriptor like "@every 15m"
//   - JobType: the job type to enqueue when fired
//   - Payload: static JSON payload passed to every triggered job
//   - OrgID: optional tenant scoping for per-org maintenance
//   - Enabled: whether the entry fires
//   - LockedBy / LockedUntil: firing-lock fields (managed internally)
//
// # Registering a Schedule
//
// Use engine.RegisterSchedule to add an entry at startup:
//
//	engine.RegisterSchedule(ctx, eng, "nightly-audit-compaction",
//	    "0 3 * * *", job.TypeAuditCompaction, CompactionInput{KeepDays: 90})
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, acquires the
// entry's firing lock, enqueues the corresponding job, and updates
// LastRunAt and NextRunAt. The lock is what keeps an entry from
// double-firing when several scheduler processes share one store. The
// [ext.ScheduleFired] extension hook fires after each enqueue.
package schedule
