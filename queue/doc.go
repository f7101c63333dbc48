// Package queue implements the job lifecycle core: per-type FIFO lists,
// the state machine that moves jobs between them, and per-type /
// per-tenant rate limiting.
//
// # Lists
//
// [Lists] is the minimal queue primitive a storage backend must provide:
// a pending list, a processing list, and a failed index per job type.
// The memory backend implements it with mutex-guarded slices, the redis
// backend with Redis lists, and the postgres backend with status-indexed
// rows. Each Lists operation is atomic with respect to concurrent
// callers, which is what guarantees a job is handed to at most one
// worker.
//
// # Manager
//
// [Manager] is the only component that mutates job status. Its four
// operations map onto the job lifecycle:
//
//	Enqueue  -> pending (persisted, pushed, returns immediately)
//	Dequeue  -> processing (attempt counter +1, start time stamped)
//	Complete -> completed (result attached, removed from processing)
//	Fail     -> pending with a backoff delay, or failed + dead-lettered
//	            once the attempt budget is spent
//
// Dequeue respects retry delays by polling: a popped job whose RetryAt
// is still in the future goes back to the pending tail untouched and the
// pop reports empty. Workers simply poll again later; no timer wheel is
// needed.
//
// # Limiter
//
// [Limiter] enforces per-type and per-tenant limits at pickup time. It
// uses a token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits.
//
//	l := queue.NewLimiter(configs...)
//	if l.Acquire(jobType, orgID) {
//	    defer l.Release(jobType, orgID)
//	    // process the job
//	}
//
// Types without a [TypeConfig] have no limits beyond the pool-wide
// concurrency.
package queue
