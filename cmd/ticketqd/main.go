// Command ticketqd runs the helpdesk job pipeline as a standalone
// daemon: the worker pool, the scheduler, and the operator HTTP API in
// one process. State lives in memory, Redis, or Postgres depending on
// TICKETQ_STORE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/api"
	"github.com/opsdeck/ticketq/engine"
	"github.com/opsdeck/ticketq/handlers"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/observability"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/store/memory"
	"github.com/opsdeck/ticketq/store/postgres"
	"github.com/opsdeck/ticketq/store/redis"
	"github.com/opsdeck/ticketq/ticket"
)

type config struct {
	Addr  string `env:"TICKETQ_ADDR" envDefault:":8080"`
	Store string `env:"TICKETQ_STORE" envDefault:"memory"`

	RedisAddr     string `env:"TICKETQ_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TICKETQ_REDIS_PASSWORD"`

	PostgresDSN string `env:"TICKETQ_POSTGRES_DSN"`

	BatchSize    int           `env:"TICKETQ_BATCH_SIZE" envDefault:"25"`
	PollInterval time.Duration `env:"TICKETQ_POLL_INTERVAL" envDefault:"1s"`
	LogLevel     slog.Level    `env:"TICKETQ_LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ticketqd:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, tickets, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := ticketq.New(
		ticketq.WithStore(st),
		ticketq.WithLogger(logger),
		ticketq.WithBatchSize(cfg.BatchSize),
		ticketq.WithPollInterval(cfg.PollInterval),
	)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	eng, err := engine.Build(p,
		engine.WithExtension(observability.NewMetricsExtension()),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// The daemon ships with in-memory collaborators for the side-effect
	// handlers; production deployments swap these for real ones by
	// embedding the engine instead of running ticketqd.
	handlers.RegisterAll(eng.Registry(), handlers.Deps{
		Mailer:             handlers.NewMemoryMailer(),
		SentLog:            handlers.NewMemorySentLog(),
		Tickets:            tickets,
		Blobs:              handlers.NewMemoryBlobStore(),
		AttachmentStatuses: handlers.NewMemoryAttachmentStatuses(),
		Scanner: handlers.ScannerFunc(func(context.Context, string) (handlers.ScanStatus, error) {
			return handlers.ScanClean, nil
		}),
		AuditLog:           handlers.NewMemoryAuditLog(),
		Enqueue:            eng.Manager().Enqueue,
	})

	if err := registerSchedules(ctx, eng); err != nil {
		return fmt.Errorf("register schedules: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.New(eng, api.WithLogger(logger)).Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("ticketqd listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.Config().ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop engine: %w", err)
	}
	logger.Info("ticketqd exited")
	return nil
}

// openStore builds the configured backend. The returned cleanup closes
// whatever connection the backend owns.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (ticketq.Storer, ticket.Store, func(), error) {
	switch cfg.Store {
	case "memory":
		st := memory.New()
		return st, st, func() {}, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		st := redis.New(client, redis.WithLogger(logger))
		return st, st, func() { client.Close() }, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, nil, errors.New("TICKETQ_POSTGRES_DSN is required for the postgres store")
		}
		st, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return st, st, func() { st.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

// registerSchedules installs the daemon's recurring maintenance jobs.
// Registration is idempotent, so restarts are safe.
func registerSchedules(ctx context.Context, eng *engine.Engine) error {
	if err := engine.RegisterSchedule(ctx, eng, &schedule.Definition[handlers.SLAWarningPayload]{
		Name:     "sla-warning-sweep",
		Schedule: "*/5 * * * *",
		JobType:  job.TypeSLAWarningCheck,
	}); err != nil {
		return err
	}
	return engine.RegisterSchedule(ctx, eng, &schedule.Definition[handlers.AuditCompactionPayload]{
		Name:     "nightly-audit-compaction",
		Schedule: "0 3 * * *",
		JobType:  job.TypeAuditCompaction,
	})
}
