package redis

import "github.com/opsdeck/ticketq/job"

// Redis key naming conventions. All keys are prefixed with "ticketq:"
// to avoid collisions.

const keyPrefix = "ticketq:"

// ── Job keys ──

// jobKey returns the key for a job entity: ticketq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Queue list keys ──

// pendingKey returns the List key for a type's pending queue.
func pendingKey(t job.Type) string { return keyPrefix + "pending:" + string(t) }

// processingKey returns the Set key for a type's processing list.
func processingKey(t job.Type) string { return keyPrefix + "processing:" + string(t) }

// failedKey returns the List key for a type's failed index.
func failedKey(t job.Type) string { return keyPrefix + "failed:" + string(t) }

// ── Dead-letter keys ──

// recordKey returns the key for a dead-letter record: ticketq:dlq:{id}
func recordKey(id string) string { return keyPrefix + "dlq:" + id }

// recordIDsKey is the Set tracking all record IDs for enumeration.
const recordIDsKey = keyPrefix + "dlq_ids"

// ── Ticket keys ──

// ticketKey returns the key for a ticket entity: ticketq:ticket:{id}
func ticketKey(id string) string { return keyPrefix + "ticket:" + id }

// ticketIDsKey is the Set tracking all ticket IDs for enumeration.
const ticketIDsKey = keyPrefix + "ticket_ids"

// ticketTagsKey returns the List key holding a ticket's tags in
// insertion order.
func ticketTagsKey(id string) string { return keyPrefix + "ticket_tags:" + id }

// userKey returns the key for a user entity: ticketq:user:{id}
func userKey(id string) string { return keyPrefix + "user:" + id }

// userOrderKey is the List preserving user insertion order, so
// round-robin iteration is deterministic.
const userOrderKey = keyPrefix + "user_order"

// ── Automation keys ──

// ruleKey returns the key for a rule entity: ticketq:rule:{id}
func ruleKey(id string) string { return keyPrefix + "rule:" + id }

// ruleIDsKey is the Set tracking all rule IDs for enumeration.
const ruleIDsKey = keyPrefix + "rule_ids"

// ── Schedule keys ──

// entryKey returns the key for a schedule entry: ticketq:entry:{id}
func entryKey(id string) string { return keyPrefix + "entry:" + id }

// entryIDsKey is the Set tracking all entry IDs for enumeration.
const entryIDsKey = keyPrefix + "entry_ids"

// entryNamesKey maps entry names to IDs for duplicate detection.
const entryNamesKey = keyPrefix + "entry_names"

// entryLockKey returns the firing-lock key for a schedule entry.
func entryLockKey(id string) string { return keyPrefix + "entry_lock:" + id }
