package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// provider is what the trace and meter SDK providers have in common.
type provider interface {
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type namedProvider struct {
	name string
	provider
}

// Telemetry installs the OTLP trace and meter providers as the process
// globals and owns their shutdown. Engine, index and embedder
// instrumentation reach them through otel.Tracer and otel.Meter.
type Telemetry struct {
	config    *Config
	logger    *zap.Logger
	providers []namedProvider

	running  atomic.Bool
	degraded atomic.Bool
}

// New starts telemetry. Disabled telemetry leaves the global no-op
// providers in place. A provider that fails to start is skipped and the
// instance is marked degraded; the service runs on without it.
func New(ctx context.Context, cfg *Config, logger *zap.Logger, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telemetry{config: cfg, logger: logger}
	if !cfg.Enabled {
		return t, nil
	}
	t.running.Store(true)

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res, o.spanExporter); err != nil {
		t.setDegraded("traces", err)
	} else {
		otel.SetTracerProvider(tp)
		t.providers = append(t.providers, namedProvider{"traces", tp})
	}

	if mp, err := newMeterProvider(ctx, cfg, res, o.metricReader); err != nil {
		t.setDegraded("metrics", err)
	} else if mp != nil {
		otel.SetMeterProvider(mp)
		t.providers = append(t.providers, namedProvider{"metrics", mp})
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Float64("sampling_rate", cfg.SamplingRate),
		zap.Bool("degraded", t.degraded.Load()),
	)
	return t, nil
}

// LoggerProvider returns the provider for the zap OTEL bridge, or nil when
// telemetry is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if !t.IsEnabled() {
		return nil
	}
	return global.GetLoggerProvider()
}

// IsEnabled reports whether telemetry was started and not yet shut down.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.running.Load()
}

// Degraded reports whether any provider failed to start.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// ForceFlush exports everything pending.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	return t.each(func(p namedProvider) error { return p.ForceFlush(ctx) })
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTime)
		defer cancel()
	}
	t.running.Store(false)
	return t.each(func(p namedProvider) error { return p.Shutdown(ctx) })
}

func (t *Telemetry) each(fn func(namedProvider) error) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, p := range t.providers {
		if err := fn(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) setDegraded(what string, err error) {
	t.degraded.Store(true)
	t.logger.Warn("telemetry degraded", zap.String("signal", what), zap.Error(err))
}
