// Package worker provides the job execution engine — an Executor that
// invokes registered handlers through middleware and routes the outcome
// to the lifecycle manager, and a Pool that drains the queues.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdeck/ticketq/ext"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/middleware"
	"github.com/opsdeck/ticketq/queue"
)

// Executor runs a single dequeued job through middleware and the
// registered handler, then routes the result to the lifecycle manager's
// Complete or Fail and emits lifecycle events.
type Executor struct {
	registry   *job.Registry
	manager    *queue.Manager
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	manager *queue.Manager,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		manager:    manager,
		extensions: extensions,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job through the middleware chain and handler.
// On success: completes the job with its result, emits JobCompleted.
// On failure: fails the job; the manager decides between a backoff retry
// (JobRetrying) and the dead letter queue (JobDeadLettered).
//
// A handler panic is caught by the Recover middleware when configured;
// an uncaught panic would otherwise escape, so pools should always
// include it. Execute itself never lets a handler error propagate as
// its own return — only bookkeeping failures do.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		// No handler is a fail like any other: it consumes an attempt
		// and eventually dead-letters for triage.
		return e.routeFailure(ctx, j, fmt.Errorf("no handler registered for job type %q", j.Type))
	}

	start := time.Now()

	var result []byte
	terminal := func(ctx context.Context) error {
		var handlerErr error
		result, handlerErr = handler(ctx, j.Data)
		return handlerErr
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.routeFailure(ctx, j, err)
	}

	completed, err := e.manager.Complete(ctx, j.ID, j.Type, result)
	if err != nil {
		e.logger.Error("failed to complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.extensions.EmitJobCompleted(ctx, completed, elapsed)
	return nil
}

// routeFailure records the handler error with the manager and emits the
// matching lifecycle event based on the job's resulting status.
func (e *Executor) routeFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	failed, err := e.manager.Fail(ctx, j.ID, j.Type, handlerErr.Error())
	if err != nil {
		e.logger.Error("failed to record job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", err.Error()),
		)
		return errors.Join(handlerErr, err)
	}

	switch failed.Status {
	case job.StatusPending:
		if failed.RetryAt != nil {
			e.extensions.EmitJobRetrying(ctx, failed, failed.Attempts, *failed.RetryAt)
		}
	case job.StatusFailed:
		e.extensions.EmitJobDeadLettered(ctx, failed, handlerErr)
	}

	return nil
}
