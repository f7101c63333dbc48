package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsdeck/ticketq/ext"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/opsdeck/ticketq/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.RuleMatched     = (*MetricsExtension)(nil)
	_ ext.ScheduleFired   = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// to track enqueue rates, completions, retries, dead-letter entries,
// rule matches, and schedule firings. Where the middleware metrics see
// only handler executions, these hooks see the whole lifecycle.
type MetricsExtension struct {
	enqueued     metric.Int64Counter
	completed    metric.Int64Counter
	retried      metric.Int64Counter
	deadLettered metric.Int64Counter
	ruleMatched  metric.Int64Counter
	fired        metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global OTel
// MeterProvider. With no provider configured the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the API returns noop instruments, so the extension
	// degrades gracefully.
	m.enqueued, _ = meter.Int64Counter("ticketq.job.enqueued",
		metric.WithDescription("Total jobs enqueued"), metric.WithUnit("{job}"))
	m.completed, _ = meter.Int64Counter("ticketq.job.completed",
		metric.WithDescription("Total jobs completed"), metric.WithUnit("{job}"))
	m.retried, _ = meter.Int64Counter("ticketq.job.retried",
		metric.WithDescription("Total job retries scheduled"), metric.WithUnit("{job}"))
	m.deadLettered, _ = meter.Int64Counter("ticketq.job.dead_lettered",
		metric.WithDescription("Total jobs moved to the dead letter queue"), metric.WithUnit("{job}"))
	m.ruleMatched, _ = meter.Int64Counter("ticketq.rule.matched",
		metric.WithDescription("Total automation rule matches"), metric.WithUnit("{match}"))
	m.fired, _ = meter.Int64Counter("ticketq.schedule.fired",
		metric.WithDescription("Total schedule entry firings"), metric.WithUnit("{firing}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", string(j.Type)))
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.enqueued.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, _ error) error {
	m.deadLettered.Add(ctx, 1, typeAttr(j))
	return nil
}

// ──────────────────────────────────────────────────
// Automation and schedule hooks
// ──────────────────────────────────────────────────

// OnRuleMatched implements ext.RuleMatched.
func (m *MetricsExtension) OnRuleMatched(ctx context.Context, _ id.RuleID, ruleName string, _ id.TicketID) error {
	m.ruleMatched.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", ruleName)))
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, entryName string, _ id.JobID) error {
	m.fired.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entryName)))
	return nil
}
