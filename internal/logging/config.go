package logging

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/denguex/internal/config"
	"go.uber.org/zap/zapcore"
)

const maxPatternLen = 200

// Config describes the process logger.
type Config struct {
	Level     zapcore.Level
	Format    string // "json" or "console"
	Output    OutputConfig
	Caller    bool
	Fields    map[string]string // added to every entry
	Redaction RedactionConfig
}

// OutputConfig selects sinks. Logs never go to stdout, which belongs to
// command output such as `denguex ask`.
type OutputConfig struct {
	Stderr bool
	OTEL   bool
}

// RedactionConfig masks values of the listed field keys and any string
// matching one of Patterns.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig logs JSON at info level to stderr with redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stderr: true},
		Caller: true,
		Fields: map[string]string{"service": "denguex"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields:  []string{"authorization", "cookie", "api_key", "token", "password"},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// FromConfig builds a logging config from the application config section.
// otel enables the OpenTelemetry output alongside stderr.
func FromConfig(c config.LoggingConfig, otel bool) (*Config, error) {
	level, err := LevelFromString(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	cfg := NewDefaultConfig()
	cfg.Level = level
	if c.Format != "" {
		cfg.Format = c.Format
	}
	cfg.Output.OTEL = otel
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format %q: want json or console", c.Format)
	}
	if !c.Output.Stderr && !c.Output.OTEL {
		return errors.New("no log output enabled; set stderr or otel")
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > maxPatternLen {
				return fmt.Errorf("redaction pattern longer than %d chars: %q", maxPatternLen, p)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}
	for k, v := range c.Fields {
		switch {
		case k == "":
			return errors.New("static log field with empty key")
		case v == "":
			return fmt.Errorf("static log field %q has empty value", k)
		}
	}
	return nil
}
