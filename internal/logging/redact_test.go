package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeWithRedaction(t *testing.T, fields ...zap.Field) string {
	t.Helper()
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Now(), Message: "m"}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder_SensitiveKeys(t *testing.T) {
	out := encodeWithRedaction(t,
		zap.String("api_key", "abc123"),
		zap.String("Token", "xyz"),
		zap.String("model", "llama3.2:latest"),
	)

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "xyz")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, "llama3.2:latest")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	out := encodeWithRedaction(t,
		zap.String("header", "Bearer eyJhbGciOi"),
		zap.String("note", "key sk-abcdefghijklmnopqrstu"),
	)

	assert.NotContains(t, out, "eyJhbGciOi")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstu")
	assert.Equal(t, 2, strings.Count(out, "[REDACTED:pattern]"))
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zap.Field{zap.String("api_key", "abc123")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "abc123")
}

func TestRedactingEncoder_RejectsLongPattern(t *testing.T) {
	_, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled:  true,
		Patterns: []string{strings.Repeat("a", maxPatternLen+1)},
	})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-123456"))
	assert.Equal(t, "[REDACTED:9]", f.String)
}
