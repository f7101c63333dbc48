// Package job defines the job model, the closed type enum, the typed
// definition/registry pair, and the keyed persistence contract.
//
// A [Job] is one unit of deferred work: an opaque JSON payload interpreted
// only by the handler registered for its [Type]. The queue guarantees
// at-least-once delivery; handlers guarantee effectively-once side effects
// through their own idempotency checks (see [Definition]).
//
// # Lifecycle
//
//	pending → processing → completed
//	                     ↘ failed (dead-lettered)
//	processing → pending   (retry scheduled with backoff)
//
// Attempts increment exactly once per dequeue, in queue.Manager.Dequeue.
package job
