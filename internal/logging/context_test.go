package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	provider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithSyncer(tracetest.NewInMemoryExporter()),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "answer")
	defer span.End()

	keys := map[string]bool{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = true
	}
	assert.True(t, keys["trace_id"])
	assert.True(t, keys["span_id"])
	assert.True(t, keys["trace_sampled"])
}

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"uuid", "0b6f1d7e-5b7a-4c1e-9d8a-2f3e4a5b6c7d", "0b6f1d7e-5b7a-4c1e-9d8a-2f3e4a5b6c7d"},
		{"empty", "", ""},
		{"injection", "abc\n{\"level\":\"error\"}", ""},
		{"too long", strings.Repeat("a", 129), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithRequestID(context.Background(), tt.id)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestCtx(t *testing.T) {
	tl := NewTestLogger()

	Ctx(WithRequestID(context.Background(), "req-7"), tl.Underlying()).Info("answered")
	Ctx(context.Background(), tl.Underlying()).Info("no request")

	tl.AssertLogged(t, zapcore.InfoLevel, "answered")
	tl.AssertField(t, "answered", "request.id", "req-7")
	assert.Empty(t, tl.FilterMessage("no request").All()[0].Context)
}
