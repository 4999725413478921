package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := InitWriter(&buf, "info", "json")
	l.Debug().Msg("hidden")
	l.Info().Str("component", "test").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "test", entry["component"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("bogus"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel(""))
	assert.Equal(t, zerolog.TraceLevel, parseLogLevel(" trace "))
}

func TestInitWriter_Console(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := InitWriter(&buf, "", "console")
	l.Info().Msg("hidden")
	l.Warn().Str("index", "content").Msg("Recovery query failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Recovery query failed")
	assert.Contains(t, out, "index=")
	assert.Equal(t, l, Logger)
}
