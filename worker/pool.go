package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsdeck/ticketq/ext"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/queue"
)

// Limiter controls per-type and per-tenant rate limiting and
// concurrency. The pool calls Acquire after claiming a job and Release
// when execution completes; a rejected job is deferred back to pending
// without consuming an attempt.
type Limiter interface {
	Acquire(t job.Type, orgID id.OrgID) bool
	Release(t job.Type, orgID id.OrgID)
}

// Pool drains the per-type queues: it polls the lifecycle manager for
// jobs and executes them through the Executor. Independent pools may
// drain the same store concurrently; exclusivity comes from the queue
// lists' atomic pop, not from the pool.
type Pool struct {
	manager    *queue.Manager
	executor   *Executor
	extensions *ext.Registry
	types      []job.Type
	logger     *slog.Logger

	batchSize    int
	pollInterval time.Duration
	workerID     id.WorkerID
	limiter      Limiter

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithBatchSize sets the per-type job budget for each drain cycle.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) { p.batchSize = n }
}

// WithPollInterval sets how often the pool polls for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithTypes sets the job types the pool drains. Defaults to all
// registered types.
func WithTypes(types []job.Type) PoolOption {
	return func(p *Pool) { p.types = types }
}

// WithLimiter sets the rate limiter consulted before each execution.
func WithLimiter(l Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a worker pool.
func NewPool(
	manager *queue.Manager,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		manager:      manager,
		executor:     executor,
		extensions:   extensions,
		types:        job.Types(),
		logger:       logger,
		batchSize:    25,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the poll loop. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("batch_size", p.batchSize),
		slog.Int("types", len(p.types)),
	)

	p.wg.Add(1)
	go p.pollLoop()
	return nil
}

// Stop signals the pool to stop and waits for the current drain cycle
// to finish or the context to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// pollLoop drains all types once per poll interval.
func (p *Pool) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err := p.DrainAll(context.Background(), p.batchSize); err != nil {
			p.logger.Error("drain cycle error", slog.String("error", err.Error()))
		}

		select {
		case <-time.After(p.pollInterval):
		case <-p.stopCh:
			return
		}
	}
}

// Drain dequeues and executes up to maxJobs jobs of one type, stopping
// early when the pending list runs dry. Each job runs synchronously; a
// handler failure routes through the lifecycle manager and never aborts
// the rest of the batch. Returns the number of jobs executed.
func (p *Pool) Drain(ctx context.Context, t job.Type, maxJobs int) (int, error) {
	processed := 0
	for processed < maxJobs {
		j, err := p.manager.Dequeue(ctx, t)
		if err != nil {
			return processed, err
		}
		if j == nil {
			break
		}

		if p.limiter != nil && !p.limiter.Acquire(t, j.OrgID) {
			// Rate limited. Defer refunds the dequeue's attempt
			// increment; the job stays effectively pending.
			if defErr := p.manager.Defer(ctx, j, p.pollInterval); defErr != nil {
				p.logger.Error("failed to defer rate-limited job",
					slog.String("job_id", j.ID.String()),
					slog.String("error", defErr.Error()),
				)
			}
			break
		}

		p.extensions.EmitJobStarted(ctx, j)

		if execErr := p.executor.Execute(ctx, j); execErr != nil {
			p.logger.Debug("job execution bookkeeping error",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(t)),
				slog.String("error", execErr.Error()),
			)
		}

		if p.limiter != nil {
			p.limiter.Release(t, j.OrgID)
		}
		processed++
	}
	return processed, nil
}

// DrainAll runs Drain concurrently across all of the pool's types.
// Queues are independent; there is no cross-type ordering guarantee.
func (p *Pool) DrainAll(ctx context.Context, maxJobsPerType int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range p.types {
		g.Go(func() error {
			_, err := p.Drain(ctx, t, maxJobsPerType)
			return err
		})
	}
	return g.Wait()
}
