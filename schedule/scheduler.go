package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// Satisfied by queue.Manager.Enqueue; the engine wires it.
type EnqueueFunc func(ctx context.Context, t job.Type, data []byte, opts ...job.Option) (*job.Job, error)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, entryName string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry firing locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by engine.RegisterSchedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires due schedule entries on a tick loop. Multiple
// scheduler processes may share a store; the per-entry firing lock
// keeps an entry from double-firing.
type Scheduler struct {
	store    Store
	enqueue  EnqueueFunc
	emitter  Emitter
	workerID id.WorkerID
	logger   *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	enqueue EnqueueFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		enqueue:      enqueue,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop to
// finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		s.logger.Error("list schedule entries error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	acquired, err := s.store.AcquireEntryLock(ctx, entry.ID, s.workerID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire entry lock error",
			slog.String("entry_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another scheduler got it.
	}

	// Re-read under the lock: another scheduler may have fired the entry
	// between our listing and the acquire.
	entry, err = s.store.GetEntry(ctx, entry.ID)
	if err != nil {
		s.logger.Error("reload schedule entry error",
			slog.String("error", err.Error()),
		)
		return
	}
	if !entry.Enabled || entry.NextRunAt == nil || entry.NextRunAt.After(now) {
		s.releaseLock(ctx, entry)
		return
	}

	var enqOpts []job.Option
	if !entry.OrgID.IsNil() {
		enqOpts = append(enqOpts, job.WithOrg(entry.OrgID))
	}
	j, enqErr := s.enqueue(ctx, entry.JobType, entry.Payload, enqOpts...)
	if enqErr != nil {
		s.logger.Error("schedule enqueue error",
			slog.String("entry", entry.Name),
			slog.String("job_type", string(entry.JobType)),
			slog.String("error", enqErr.Error()),
		)
		s.releaseLock(ctx, entry)
		return
	}

	if updateErr := s.store.UpdateEntryLastRun(ctx, entry.ID, now); updateErr != nil {
		s.logger.Error("update entry last run error",
			slog.String("entry_id", entry.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextRunAt.
	sched, parseErr := s.getOrParseSchedule(entry.Schedule)
	if parseErr != nil {
		s.logger.Error("parse schedule error",
			slog.String("entry", entry.Name),
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if updateErr := s.store.UpdateEntry(ctx, entry); updateErr != nil {
			s.logger.Error("update entry next run error",
				slog.String("entry_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	s.releaseLock(ctx, entry)

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, entry.Name, j.ID)
	}

	s.logger.Info("schedule fired",
		slog.String("entry", entry.Name),
		slog.String("job_type", string(entry.JobType)),
		slog.String("job_id", j.ID.String()),
	)
}

func (s *Scheduler) releaseLock(ctx context.Context, entry *Entry) {
	if err := s.store.ReleaseEntryLock(ctx, entry.ID, s.workerID); err != nil {
		s.logger.Error("release entry lock error",
			slog.String("entry_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
