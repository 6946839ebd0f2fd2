package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/denguex/internal/embeddings"

// Metrics records embedding latency, batch sizes and failures on the
// global OTEL meter provider. Instruments that fail to register are
// skipped.
type Metrics struct {
	duration metric.Float64Histogram
	texts    metric.Int64Histogram
	failures metric.Int64Counter
}

// NewMetrics registers the embedding instruments. A nil logger is
// replaced with a no-op one.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(meterName)
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("embedding instrument unavailable", zap.String("instrument", name), zap.Error(err))
		}
	}

	var m Metrics
	var err error
	m.duration, err = meter.Float64Histogram("denguex.embedding.duration",
		metric.WithDescription("Time spent embedding one call's texts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10),
	)
	warn("duration", err)
	m.texts, err = meter.Int64Histogram("denguex.embedding.texts",
		metric.WithDescription("Texts embedded per call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 64, 256, 1024),
	)
	warn("texts", err)
	m.failures, err = meter.Int64Counter("denguex.embedding.failures",
		metric.WithDescription("Embedding calls that returned an error"),
		metric.WithUnit("{call}"),
	)
	warn("failures", err)
	return &m
}

// RecordGeneration records one embed call. operation is "embed_query" or
// "embed_documents".
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, d time.Duration, batchSize int, err error) {
	if m == nil {
		return
	}
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("model", model),
		attribute.String("operation", operation),
	))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), set)
	}
	if m.texts != nil && batchSize > 0 {
		m.texts.Record(ctx, int64(batchSize), set)
	}
	if m.failures != nil && err != nil {
		m.failures.Add(ctx, 1, set)
	}
}
