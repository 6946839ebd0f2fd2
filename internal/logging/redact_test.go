package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func jsonEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
}

func TestRedactingEncoder_ContextFields(t *testing.T) {
	enc, err := NewRedactingEncoder(jsonEncoder(), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone := enc.Clone()
	clone.AddString("Token", "secret-value")
	clone.AddByteString("cookie", []byte("session=abc"))
	clone.AddString("note", "ok")

	buf, err := clone.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "secret-value")
	assert.NotContains(t, out, "session=abc")
	assert.Contains(t, out, `"note":"ok"`)
}

func TestRedactingEncoder_CallFields(t *testing.T) {
	enc, err := NewRedactingEncoder(jsonEncoder(), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{
		zap.String("upstream", "Authorization: Bearer abc.def"),
		zap.Any("password", map[string]string{"v": "hunter2"}),
		zap.Int("entries", 42),
	})
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"upstream":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"entries":42`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(jsonEncoder(), RedactionConfig{Fields: []string{"token"}})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{zap.String("token", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(jsonEncoder(), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[unclosed"},
	})
	assert.Error(t, err)
}
