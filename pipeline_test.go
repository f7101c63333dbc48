package ticketq_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/store/memory"
)

func TestNewDefaults(t *testing.T) {
	p, err := ticketq.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := p.Config()
	want := ticketq.DefaultConfig()
	if cfg != want {
		t.Errorf("Config() = %+v, want defaults %+v", cfg, want)
	}
	if p.Logger() == nil {
		t.Error("Logger() = nil, want default logger")
	}
}

func TestNewAppliesOptions(t *testing.T) {
	st := memory.New()
	logger := slog.Default()

	p, err := ticketq.New(
		ticketq.WithStore(st),
		ticketq.WithLogger(logger),
		ticketq.WithBatchSize(7),
		ticketq.WithPollInterval(250*time.Millisecond),
		ticketq.WithDefaultMaxAttempts(5),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := p.Config()
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", cfg.BatchSize)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %s, want 250ms", cfg.PollInterval)
	}
	if cfg.DefaultMaxAttempts != 5 {
		t.Errorf("DefaultMaxAttempts = %d, want 5", cfg.DefaultMaxAttempts)
	}
	if p.Store() != ticketq.Storer(st) {
		t.Error("Store() did not return the configured store")
	}
}

func TestStartWithoutEngineWiring(t *testing.T) {
	p, err := ticketq.New(ticketq.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ticketq.ErrNoStore) {
		t.Errorf("Start before engine.Build = %v, want ErrNoStore", err)
	}
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	p, err := ticketq.New(ticketq.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop without Start = %v, want nil", err)
	}
}
