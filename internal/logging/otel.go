package logging

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the redacted stderr encoder with the otelzap bridge,
// depending on which outputs cfg enables.
func newCore(cfg *Config, provider log.LoggerProvider, w zapcore.WriteSyncer) (zapcore.Core, error) {
	var cores []zapcore.Core
	if cfg.Output.Stderr {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("building log encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, w, cfg.Level))
	}
	if cfg.Output.OTEL && provider != nil {
		bridge := otelzap.NewCore("github.com/fyrsmithlabs/denguex", otelzap.WithLoggerProvider(provider))
		cores = append(cores, minLevelCore{Core: bridge, min: cfg.Level})
	}
	if len(cores) == 0 {
		return nil, errors.New("no usable log output")
	}
	return zapcore.NewTee(cores...), nil
}

// minLevelCore applies the configured level to the otelzap core, which
// otherwise leaves filtering to the provider.
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c minLevelCore) Enabled(l zapcore.Level) bool {
	return l >= c.min && c.Core.Enabled(l)
}

func (c minLevelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return c.Core.Check(e, ce)
	}
	return ce
}

func (c minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return minLevelCore{Core: c.Core.With(fields), min: c.min}
}
