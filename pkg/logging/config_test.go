package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{raw: "", want: zerolog.InfoLevel, wantOK: false},
		{raw: "debug", want: zerolog.DebugLevel, wantOK: true},
		{raw: " WARNING ", want: zerolog.WarnLevel, wantOK: true},
		{raw: "off", want: zerolog.Disabled, wantOK: true},
		{raw: "loud", want: zerolog.InfoLevel, wantOK: false},
	}

	for _, tt := range tests {
		got, ok := parseLevel(tt.raw)
		assert.Equal(t, tt.want, got, "level for %q", tt.raw)
		assert.Equal(t, tt.wantOK, ok, "ok for %q", tt.raw)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogJSON, "1")
	t.Setenv(EnvLogTimestamp, "not-a-bool")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)

	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.JSON)
	assert.True(t, cfg.Timestamp, "invalid bool must keep the profile default")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, JSON: true, Out: &buf}, "chuck")

	logger.Debug().Msg("hidden")
	logger.Info().Str("topic", "content-locator").Msg("dispatched")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"app":"chuck"`)
	assert.Contains(t, out, `"topic":"content-locator"`)
}

func TestTestProfileDefaults(t *testing.T) {
	cfg := defaultConfig(ProfileTest)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
}
