package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below debug. Retrieval hits are logged here.
const TraceLevel zapcore.Level = zapcore.DebugLevel - 1

// LevelFromString parses a level name, case-insensitively. "trace" maps to
// TraceLevel and an empty name to info.
func LevelFromString(name string) (zapcore.Level, error) {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "trace":
		return TraceLevel, nil
	case "":
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(name)
}
