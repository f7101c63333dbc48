package ticketq

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// Storer is the minimal store interface held by the Pipeline.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Pipeline is the central coordinator for job processing, automation rule
// evaluation, and periodic maintenance scheduling.
//
// Create one with New() and functional options. The Pipeline holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Pipeline struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger { return p.logger }

// Store returns the pipeline's store.
func (p *Pipeline) Store() Storer { return p.store }

// Config returns a copy of the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.config }

// SetPool sets the worker pool (called by the engine package).
func (p *Pipeline) SetPool(r poolRunner) { p.pool = r }

// SetExtensions sets the extension emitter (called by the engine package).
func (p *Pipeline) SetExtensions(e extensionEmitter) { p.extensions = e }

// Start begins job processing.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.pool == nil {
		return ErrNoStore
	}
	if err := p.pool.Start(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Stop gracefully shuts down the pipeline.
func (p *Pipeline) Stop(ctx context.Context) error {
	if p.pool != nil && p.started {
		if err := p.pool.Stop(ctx); err != nil {
			p.logger.Error("pool stop error", "error", err)
		}
	}
	if p.extensions != nil {
		p.extensions.EmitShutdown(ctx)
	}
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// WithBatchSize sets the maximum number of jobs pulled per drain pass.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		p.config.BatchSize = n
		return nil
	}
}

// WithPollInterval sets how often the worker pool polls for new jobs.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.PollInterval = d
		return nil
	}
}

// WithDefaultMaxAttempts sets the attempt ceiling for jobs enqueued
// without an explicit override.
func WithDefaultMaxAttempts(n int) Option {
	return func(p *Pipeline) error {
		p.config.DefaultMaxAttempts = n
		return nil
	}
}

// WithLogger sets the structured logger for the pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the pipeline.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(p *Pipeline) error {
		p.store = s
		return nil
	}
}
