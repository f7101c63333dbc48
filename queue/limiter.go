package queue

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// TypeConfig defines per-job-type behaviour such as rate limiting and
// concurrency.
type TypeConfig struct {
	// Type is the job type this config applies to.
	Type job.Type

	// MaxConcurrency limits how many jobs of this type may run
	// simultaneously across the local worker pool. Zero means no
	// type-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second that may be
	// dequeued for this type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// OrgConfig defines rate limits and concurrency for a specific tenant on
// a specific job type, identified by the job's OrgID.
type OrgConfig struct {
	// Type is the job type this config applies to.
	Type job.Type

	// OrgID is the tenant identifier.
	OrgID id.OrgID

	// RateLimit is the sustained jobs per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this tenant on this
	// type. Zero means no tenant-specific concurrency limit.
	MaxConcurrency int
}

type typeState struct {
	config  TypeConfig
	limiter *rate.Limiter
	active  int
}

type orgState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func orgKey(t job.Type, orgID id.OrgID) string {
	return fmt.Sprintf("%s:%s", t, orgID)
}

// Limiter controls per-type and per-tenant rate limiting and concurrency
// for the worker pool. It is safe for concurrent use.
type Limiter struct {
	mu    sync.Mutex
	types map[job.Type]*typeState
	orgs  map[string]*orgState
}

// NewLimiter creates a Limiter with the given type configurations. Types
// not listed here have no limits.
func NewLimiter(configs ...TypeConfig) *Limiter {
	l := &Limiter{
		types: make(map[job.Type]*typeState, len(configs)),
		orgs:  make(map[string]*orgState),
	}
	for _, cfg := range configs {
		l.types[cfg.Type] = newTypeState(cfg)
	}
	return l
}

func newTypeState(cfg TypeConfig) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks rate limits and concurrency for the given type and
// tenant. If the job may proceed it increments the active counters and
// returns true. The caller MUST call Release when the job completes.
func (l *Limiter) Acquire(t job.Type, orgID id.OrgID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.types[t]
	if ts != nil {
		if ts.limiter != nil && !ts.limiter.Allow() {
			return false
		}
		if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
			return false
		}
	}

	if !orgID.IsNil() {
		os := l.orgs[orgKey(t, orgID)]
		if os != nil {
			if os.limiter != nil && !os.limiter.Allow() {
				return false
			}
			if os.maxConcurrency > 0 && os.active >= os.maxConcurrency {
				return false
			}
			os.active++
		}
	}

	if ts != nil {
		ts.active++
	}

	return true
}

// Release decrements the active job counters for the type and tenant.
func (l *Limiter) Release(t job.Type, orgID id.OrgID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts := l.types[t]; ts != nil && ts.active > 0 {
		ts.active--
	}

	if !orgID.IsNil() {
		if os := l.orgs[orgKey(t, orgID)]; os != nil && os.active > 0 {
			os.active--
		}
	}
}

// SetTypeConfig dynamically updates (or creates) a type configuration.
func (l *Limiter) SetTypeConfig(cfg TypeConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.types[cfg.Type]
	ts := newTypeState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	l.types[cfg.Type] = ts
}

// SetOrgConfig configures rate limits and concurrency for a specific
// tenant on a specific job type. Calling this multiple times for the
// same type+tenant replaces the previous configuration.
func (l *Limiter) SetOrgConfig(cfg OrgConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := orgKey(cfg.Type, cfg.OrgID)
	existing := l.orgs[key]

	os := &orgState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		os.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if existing != nil {
		os.active = existing.active
	}
	l.orgs[key] = os
}

// ActiveCount returns the current number of active jobs for a type.
func (l *Limiter) ActiveCount(t job.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts := l.types[t]; ts != nil {
		return ts.active
	}
	return 0
}

// OrgActiveCount returns the current number of active jobs for a
// type+tenant pair.
func (l *Limiter) OrgActiveCount(t job.Type, orgID id.OrgID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if os := l.orgs[orgKey(t, orgID)]; os != nil {
		return os.active
	}
	return 0
}
