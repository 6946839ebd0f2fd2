package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry at TraceLevel and above for assertions.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger. Pass Underlying() to the code under
// test.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: &Config{Level: TraceLevel, Format: "json"}},
		logs:   logs,
	}
}

// All returns the recorded entries in order.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

// FilterMessage returns entries whose message is exactly msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessage(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, msgContains string) bool {
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msgContains) {
			return true
		}
	}
	return false
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if !t.find(level, msgContains) {
		tb.Errorf("no %v entry containing %q in %d entries", level, msgContains, t.logs.Len())
	}
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if t.find(level, msgContains) {
		tb.Errorf("unexpected %v entry containing %q", level, msgContains)
	}
}

// AssertField fails tb unless an entry with message msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, expected) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, expected)
}

// AssertNoFieldAbove fails tb if key was logged at any level above max.
// Question text, for one, belongs at debug only.
func (t *TestLogger) AssertNoFieldAbove(tb testing.TB, key string, max zapcore.Level) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if e.Level <= max {
			continue
		}
		if _, ok := e.ContextMap()[key]; ok {
			tb.Errorf("%q logged at %v in %q", key, e.Level, e.Message)
		}
	}
}
