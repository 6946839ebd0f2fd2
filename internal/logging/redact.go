package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedKey   = "[REDACTED]"
	redactedValue = "[REDACTED:pattern]"
)

// redactor decides what to hide: whole fields by key, and string values
// matching a credential pattern.
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	r := &redactor{keys: make(map[string]struct{}, len(cfg.Fields))}
	if !cfg.Enabled {
		return r, nil
	}
	for _, k := range cfg.Fields {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) empty() bool {
	return len(r.keys) == 0 && len(r.patterns) == 0
}

func (r *redactor) hidesKey(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// value returns the replacement for val under key, if any.
func (r *redactor) value(key, val string) (string, bool) {
	if r.hidesKey(key) {
		return redactedKey, true
	}
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return redactedValue, true
		}
	}
	return "", false
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.hidesKey(f.Key) {
		return zap.String(f.Key, redactedKey)
	}
	if f.Type == zapcore.StringType {
		if v, ok := r.value(f.Key, f.String); ok {
			return zap.String(f.Key, v)
		}
	}
	return f
}

// RedactingEncoder wraps an encoder so credentials never reach the output,
// whether they arrive as logger context (With) or as per-call fields.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, r: r}, nil
}

// EncodeEntry redacts per-call fields, which the wrapped encoder writes on
// its own clone without going through the Add methods below.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.r.empty() {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.r.field(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) AddString(key, val string) {
	if v, ok := e.r.value(key, val); ok {
		val = v
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}
