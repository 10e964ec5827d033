// Package observe carries the metrics, tracing, and request logging of the
// pricing engine.
//
// Instruments are created through the OpenTelemetry API. [InitProvider]
// installs an SDK that exports them in Prometheus format. Code that runs
// without an installed SDK uses [DefaultMetrics], which records into the
// global (by default no-op) meter provider. Tests build their own [Metrics]
// over a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every instrument the engine records into.
type Metrics struct {
	// ── Search ──
	SearchDuration    metric.Float64Histogram // tier, status
	SearchRequests    metric.Int64Counter     // tier, status
	TierOutcomes      metric.Int64Counter     // tier, outcome
	EmbeddingDuration metric.Float64Histogram
	EmbeddingErrors   metric.Int64Counter // kind

	// ── Quotes ──
	QuoteDuration   metric.Float64Histogram // project_type, user_type
	QuotesGenerated metric.Int64Counter     // project_type, user_type
	QuoteConfidence metric.Float64Histogram // project_type, user_type
	QuoteTotal      metric.Float64Histogram // project_type, user_type; VAT-exclusive EUR

	// ── Feedback ──
	FeedbackRecorded metric.Int64Counter // verdict, user_type
	PublishErrors    metric.Int64Counter

	// ── Infrastructure ──
	BreakerTransitions  metric.Int64Counter     // breaker, to
	HTTPRequestDuration metric.Float64Histogram // method, path, status
}

var (
	secondsBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	euroBuckets       = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(scope)
	met := &Metrics{}

	histogram := func(dst *metric.Float64Histogram, name, unit, desc string, bounds []float64) error {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithExplicitBucketBoundaries(bounds...),
		)
		*dst = h
		return err
	}
	counter := func(dst *metric.Int64Counter, name, desc string) error {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		*dst = c
		return err
	}

	err := errors.Join(
		histogram(&met.SearchDuration, "renoquote.search.duration", "s", "Latency of material searches.", secondsBuckets),
		counter(&met.SearchRequests, "renoquote.search.requests", "Material searches by answering tier."),
		counter(&met.TierOutcomes, "renoquote.search.tier_outcomes", "Per-tier search attempts by outcome."),
		histogram(&met.EmbeddingDuration, "renoquote.embedding.duration", "s", "Latency of query embedding calls.", secondsBuckets),
		counter(&met.EmbeddingErrors, "renoquote.embedding.errors", "Failed query embedding calls."),

		histogram(&met.QuoteDuration, "renoquote.quote.duration", "s", "Latency of quote assembly.", secondsBuckets),
		counter(&met.QuotesGenerated, "renoquote.quotes.generated", "Quotes generated."),
		histogram(&met.QuoteConfidence, "renoquote.quote.confidence", "1", "Overall confidence of generated quotes.", confidenceBuckets),
		histogram(&met.QuoteTotal, "renoquote.quote.total", "EUR", "VAT-exclusive total of generated quotes.", euroBuckets),

		counter(&met.FeedbackRecorded, "renoquote.feedback.recorded", "Feedback entries recorded."),
		counter(&met.PublishErrors, "renoquote.feedback.publish_errors", "Feedback events that could not be published."),

		counter(&met.BreakerTransitions, "renoquote.circuit_breaker.transitions", "Circuit breaker state transitions."),
		histogram(&met.HTTPRequestDuration, "renoquote.http.request.duration", "s", "HTTP request processing time.", secondsBuckets),
	)
	if err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments on the global meter provider, created
// on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSearch records a finished search answered by tier.
func (m *Metrics) RecordSearch(ctx context.Context, tier, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("tier", tier), attribute.String("status", status))
	m.SearchDuration.Record(ctx, seconds, attrs)
	m.SearchRequests.Add(ctx, 1, attrs)
}

// RecordTierOutcome records one tier attempt: "hit", "declined" or "failed".
func (m *Metrics) RecordTierOutcome(ctx context.Context, tier, outcome string) {
	m.TierOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier), attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordEmbeddingError(ctx context.Context, kind string) {
	m.EmbeddingErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordQuote records a generated quote with its VAT-exclusive total.
func (m *Metrics) RecordQuote(ctx context.Context, projectType, userType string, total, confidence, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("project_type", projectType), attribute.String("user_type", userType))
	m.QuotesGenerated.Add(ctx, 1, attrs)
	m.QuoteTotal.Record(ctx, total, attrs)
	m.QuoteConfidence.Record(ctx, confidence, attrs)
	m.QuoteDuration.Record(ctx, seconds, attrs)
}

func (m *Metrics) RecordFeedback(ctx context.Context, verdict, userType string) {
	m.FeedbackRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict), attribute.String("user_type", userType)))
}

// RecordBreakerTransition records breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", breaker), attribute.String("to", to)))
}
