package chatbot

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/denguex/internal/chatbot"

// Metrics holds engine metrics.
type Metrics struct {
	meter             metric.Meter
	logger            *zap.Logger
	answers           metric.Int64Counter
	confidence        metric.Float64Histogram
	duration          metric.Float64Histogram
	retrievalFailures metric.Int64Counter
	reloads           metric.Int64Counter
}

// NewMetrics creates engine metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.answers, err = m.meter.Int64Counter(
		"denguex.answer.total",
		metric.WithDescription("Answers produced, labeled by outcome (urgent, no_results, out_of_scope, not_confident, accepted)"),
		metric.WithUnit("{answer}"),
	)
	if err != nil {
		m.logger.Warn("failed to create answers counter", zap.Error(err))
	}

	m.confidence, err = m.meter.Float64Histogram(
		"denguex.answer.confidence",
		metric.WithDescription("Confidence reported with each answer, labeled by outcome"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.65, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		m.logger.Warn("failed to create confidence histogram", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"denguex.answer.duration_seconds",
		metric.WithDescription("Time to produce an answer, including embedding and search"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.retrievalFailures, err = m.meter.Int64Counter(
		"denguex.retrieval.failures_total",
		metric.WithDescription("Embedding or index failures that were answered with the no-results decline"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		m.logger.Warn("failed to create retrieval failures counter", zap.Error(err))
	}

	m.reloads, err = m.meter.Int64Counter(
		"denguex.engine.reloads_total",
		metric.WithDescription("Engine reload attempts from a rebuilt index bundle, labeled by result"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		m.logger.Warn("failed to create reloads counter", zap.Error(err))
	}
}

// RecordAnswer records the outcome, confidence and latency of one answer.
func (m *Metrics) RecordAnswer(ctx context.Context, res QueryResult, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(res.Outcome)))
	if m.answers != nil {
		m.answers.Add(ctx, 1, attrs)
	}
	if m.confidence != nil {
		m.confidence.Record(ctx, res.Confidence, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordRetrievalFailure counts a recovered retrieval failure.
func (m *Metrics) RecordRetrievalFailure(ctx context.Context) {
	if m.retrievalFailures != nil {
		m.retrievalFailures.Add(ctx, 1)
	}
}

// RecordReload counts an engine reload attempt.
func (m *Metrics) RecordReload(ctx context.Context, err error) {
	if m.reloads == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
