package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/observability"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name != name {
				continue
			}
			sum, ok := sm.Metrics[i].Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data type", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:   id.NewJobID(),
		Type: job.TypeSendEmail,
	}
}

func TestMetricsExtensionCountsJobLifecycle(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	ctx := context.Background()
	j := newTestJob()

	if err := m.OnJobEnqueued(ctx, j); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := m.OnJobEnqueued(ctx, j); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := m.OnJobCompleted(ctx, j, 50*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if err := m.OnJobRetrying(ctx, j, 1, time.Now()); err != nil {
		t.Fatalf("OnJobRetrying: %v", err)
	}
	if err := m.OnJobDeadLettered(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("OnJobDeadLettered: %v", err)
	}

	if got := counterValue(t, reader, "ticketq.job.enqueued"); got != 2 {
		t.Errorf("enqueued = %d, want 2", got)
	}
	if got := counterValue(t, reader, "ticketq.job.completed"); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if got := counterValue(t, reader, "ticketq.job.retried"); got != 1 {
		t.Errorf("retried = %d, want 1", got)
	}
	if got := counterValue(t, reader, "ticketq.job.dead_lettered"); got != 1 {
		t.Errorf("dead_lettered = %d, want 1", got)
	}
}

func TestMetricsExtensionCountsRuleAndSchedule(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	ctx := context.Background()

	if err := m.OnRuleMatched(ctx, id.NewRuleID(), "escalate incidents", id.NewTicketID()); err != nil {
		t.Fatalf("OnRuleMatched: %v", err)
	}
	if err := m.OnScheduleFired(ctx, "sla-warning-sweep", id.NewJobID()); err != nil {
		t.Fatalf("OnScheduleFired: %v", err)
	}

	if got := counterValue(t, reader, "ticketq.rule.matched"); got != 1 {
		t.Errorf("rule.matched = %d, want 1", got)
	}
	if got := counterValue(t, reader, "ticketq.schedule.fired"); got != 1 {
		t.Errorf("schedule.fired = %d, want 1", got)
	}
}

func TestMetricsExtensionDefaultNoopSafe(t *testing.T) {
	// Without a global provider the hooks must not panic or error.
	m := observability.NewMetricsExtension()
	if err := m.OnJobEnqueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "observability-metrics" {
		t.Errorf("Name() = %q", m.Name())
	}
}
