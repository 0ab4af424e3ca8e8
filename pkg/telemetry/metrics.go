package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-proxy/warden/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	validationCounter    metric.Int64Counter
	rejectionCounter     metric.Int64Counter
	flaggedHeaderCounter metric.Int64Counter
	validationLatency    metric.Float64Histogram
)

// ValidationMetrics captures the fields recorded for one validated request.
type ValidationMetrics struct {
	Method   string
	Verdict  domain.Verdict
	Flagged  int
	Duration time.Duration
}

// RecordValidation emits counters and histograms describing one validation run.
func RecordValidation(ctx context.Context, m ValidationMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "allow"
	if !m.Verdict.Allowed {
		outcome = "reject"
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", m.Method),
		attribute.String("validation.outcome", outcome),
	}

	validationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		validationLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if !m.Verdict.Allowed {
		rejectionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("validation.category", string(m.Verdict.Category)),
			attribute.String("validation.scope", string(m.Verdict.Scope)),
		))
	}

	if m.Flagged > 0 {
		flaggedHeaderCounter.Add(ctx, int64(m.Flagged), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("warden.validation")

		validationCounter, metricsInitErr = meter.Int64Counter(
			"warden.validation.requests_total",
			metric.WithDescription("Validated requests partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		rejectionCounter, metricsInitErr = meter.Int64Counter(
			"warden.validation.rejections_total",
			metric.WithDescription("Rejected requests partitioned by category and scope"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		flaggedHeaderCounter, metricsInitErr = meter.Int64Counter(
			"warden.validation.flagged_headers_total",
			metric.WithDescription("Spoofable forwarding headers seen on allowed requests"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		validationLatency, metricsInitErr = meter.Float64Histogram(
			"warden.validation.duration_ms",
			metric.WithDescription("Observed validation latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordSecurityEvent attaches a coarse-grained security event to the provided
// span without leaking sensitive data: categories and field names only, never
// matched text.
func RecordSecurityEvent(span trace.Span, verdict domain.Verdict, flagged int) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("security.blocked", !verdict.Allowed),
		attribute.Int("security.flagged.count", flagged),
	}

	if !verdict.Allowed {
		attrs = append(attrs,
			attribute.String("security.category", string(verdict.Category)),
			attribute.String("security.scope", string(verdict.Scope)),
		)
	}

	span.AddEvent("security.validation", trace.WithAttributes(attrs...))
}
