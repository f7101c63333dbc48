// Package engine wires all ticketq subsystems together. It builds the
// store-backed queue manager, dead-letter service, rule engine,
// scheduler, middleware chain, and worker pool, and provides the typed
// Register/Enqueue operations.
//
// This package exists to break the import cycle: the root ticketq
// package defines Entity (imported by job, ticket, etc.) and so cannot
// import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/backoff"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/ext"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	mw "github.com/opsdeck/ticketq/middleware"
	"github.com/opsdeck/ticketq/queue"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/ticket"
	"github.com/opsdeck/ticketq/worker"
)

// defaultJobTimeout bounds a single handler execution.
const defaultJobTimeout = 2 * time.Minute

// Engine wraps a Pipeline with typed subsystem access.
// Use Build() to create one from a Pipeline.
type Engine struct {
	p          *ticketq.Pipeline
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	manager    *queue.Manager
	dlqService *dlq.Service
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	jobTimeout time.Duration
	logger     *slog.Logger

	// Automation subsystem.
	ruleStore   automation.Store
	ticketStore ticket.Store
	rules       *automation.Engine

	// Schedule subsystem.
	scheduleStore schedule.Store
	scheduler     *schedule.Scheduler
	schedulerOpts []schedule.SchedulerOption

	// Queue limiting.
	typeConfigs []queue.TypeConfig
	limiter     *queue.Limiter

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultPolicy() (exponential, 1s initial, 5m cap)
// is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithJobTimeout bounds a single handler execution. Zero disables the
// timeout middleware.
func WithJobTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.jobTimeout = d
	}
}

// WithTypeConfig registers per-job-type rate limiting and concurrency
// configurations. Types not listed have no limits.
func WithTypeConfig(configs ...queue.TypeConfig) Option {
	return func(eng *Engine) {
		eng.typeConfigs = append(eng.typeConfigs, configs...)
	}
}

// WithSchedulerOptions forwards options to the schedule.Scheduler, such
// as schedule.WithTickInterval and schedule.WithLockTTL.
func WithSchedulerOptions(opts ...schedule.SchedulerOption) Option {
	return func(eng *Engine) {
		eng.schedulerOpts = append(eng.schedulerOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Pipeline. The Pipeline's
// store must implement every subsystem store interface; the bundled
// memory, redis, and postgres backends all do.
func Build(p *ticketq.Pipeline, opts ...Option) (*Engine, error) {
	logger := p.Logger()
	st := p.Store()

	if st == nil {
		return nil, ticketq.ErrNoStore
	}

	js, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement job.Store")
	}
	ls, ok := st.(queue.Lists)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement queue.Lists")
	}
	ds, ok := st.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement dlq.Store")
	}
	ts, ok := st.(ticket.Store)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement ticket.Store")
	}
	as, ok := st.(automation.Store)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement automation.Store")
	}
	ss, ok := st.(schedule.Store)
	if !ok {
		return nil, fmt.Errorf("ticketq: store does not implement schedule.Store")
	}

	eng := &Engine{
		p:             p,
		extensions:    ext.NewRegistry(logger),
		registry:      job.NewRegistry(),
		jobStore:      js,
		ruleStore:     as,
		ticketStore:   ts,
		scheduleStore: ss,
		jobTimeout:    defaultJobTimeout,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultPolicy()
	}

	config := p.Config()

	// Dead-letter service first: the queue manager routes exhausted jobs
	// through it.
	eng.dlqService = dlq.NewService(ds, js, ls)

	eng.manager = queue.NewManager(js, ls, eng.dlqService,
		queue.WithPolicy(eng.bo),
		queue.WithDefaultMaxAttempts(config.DefaultMaxAttempts),
		queue.WithLogger(logger),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/opsdeck/ticketq")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/opsdeck/ticketq")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging →
	// tenant → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Tenant(),
	}
	if eng.jobTimeout > 0 {
		defaultMws = append(defaultMws, mw.Timeout(eng.jobTimeout))
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.manager, eng.extensions, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithBatchSize(config.BatchSize),
		worker.WithPollInterval(config.PollInterval),
	}
	if len(eng.typeConfigs) > 0 {
		eng.limiter = queue.NewLimiter(eng.typeConfigs...)
		poolOpts = append(poolOpts, worker.WithLimiter(eng.limiter))
	}

	eng.pool = worker.NewPool(
		eng.manager,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Pipeline.
	p.SetPool(eng.pool)
	p.SetExtensions(eng.extensions)

	// Rule engine over the same store, enqueueing follow-up jobs through
	// the manager.
	eng.rules = automation.NewEngine(as, ts,
		automation.WithEnqueue(eng.manager.Enqueue),
		automation.WithExtensions(eng.extensions),
		automation.WithEngineLogger(logger),
	)

	eng.scheduler = schedule.NewScheduler(
		ss,
		schedule.EnqueueFunc(eng.manager.Enqueue),
		eng.extensions,
		eng.pool.WorkerID(),
		logger,
		eng.schedulerOpts...,
	)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue creates and enqueues a job with a typed payload.
func Enqueue[T any](ctx context.Context, eng *Engine, t job.Type, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", t, err)
	}
	return eng.EnqueueRaw(ctx, t, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload.
func (eng *Engine) EnqueueRaw(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error) {
	j, err := eng.manager.Enqueue(ctx, t, data, opts...)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// RegisterSchedule registers a typed schedule definition with the
// engine. It validates the cron expression, computes the initial
// NextRunAt, and persists the entry. Re-registration of the same name
// is idempotent.
func RegisterSchedule[T any](ctx context.Context, eng *Engine, def *schedule.Definition[T]) error {
	sched, err := schedule.ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", def.Schedule, err)
	}

	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("marshal schedule payload: %w", err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)

	entry := &schedule.Entry{
		Entity:    ticketq.NewEntity(),
		ID:        id.NewEntryID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		JobType:   def.JobType,
		Payload:   payload,
		NextRunAt: &next,
		Enabled:   true,
	}

	if err := eng.scheduleStore.RegisterEntry(ctx, entry); err != nil {
		if errors.Is(err, ticketq.ErrDuplicateEntry) {
			return nil
		}
		return fmt.Errorf("register schedule %q: %w", def.Name, err)
	}

	eng.logger.Info("schedule registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("job_type", string(def.JobType)),
		slog.Time("next_run_at", next),
	)

	return nil
}

// Start begins job processing by starting the scheduler and the worker
// pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return eng.p.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	return eng.p.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Pipeline returns the underlying Pipeline.
func (eng *Engine) Pipeline() *ticketq.Pipeline { return eng.p }

// Manager returns the queue lifecycle manager.
func (eng *Engine) Manager() *queue.Manager { return eng.manager }

// DLQService returns the engine's dead-letter service for replay and
// inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Rules returns the automation rule engine.
func (eng *Engine) Rules() *automation.Engine { return eng.rules }

// RuleStore returns the automation rule store.
func (eng *Engine) RuleStore() automation.Store { return eng.ruleStore }

// TicketStore returns the ticket store.
func (eng *Engine) TicketStore() ticket.Store { return eng.ticketStore }

// ScheduleStore returns the schedule entry store.
func (eng *Engine) ScheduleStore() schedule.Store { return eng.scheduleStore }

// Scheduler returns the schedule scheduler.
func (eng *Engine) Scheduler() *schedule.Scheduler { return eng.scheduler }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Limiter returns the queue limiter, or nil if no type configs were
// provided.
func (eng *Engine) Limiter() *queue.Limiter { return eng.limiter }
