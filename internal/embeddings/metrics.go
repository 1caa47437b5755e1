package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/embeddings"

// Metrics records embedding generation metrics.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	generations metric.Int64Counter
	duration    metric.Float64Histogram
	textCount   metric.Int64Histogram
}

// NewMetrics creates a new Metrics instance.
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

	m.generations, err = m.meter.Int64Counter(
		"recalld.embeddings.generations_total",
		metric.WithDescription("Total embedding API calls labeled by model, purpose, and status."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create generations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"recalld.embeddings.generation_duration_seconds",
		metric.WithDescription("Embedding API call duration in seconds, labeled by model and purpose."),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.textCount, err = m.meter.Int64Histogram(
		"recalld.embeddings.texts_per_call",
		metric.WithDescription("Number of texts embedded per API call."),
		metric.WithUnit("{text}"),
	)
	if err != nil {
		m.logger.Warn("failed to create text count histogram", zap.Error(err))
	}
}

// RecordGeneration records one embedding API call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, purpose string, dur time.Duration, texts int, genErr error) {
	status := "ok"
	if genErr != nil {
		status = "error"
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("purpose", purpose),
		attribute.String("status", status),
	}

	if m.generations != nil {
		m.generations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.textCount != nil {
		m.textCount.Record(ctx, int64(texts), metric.WithAttributes(attrs...))
	}
}
