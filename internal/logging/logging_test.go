package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestJSONLoggerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, LogConfig{Level: "warn", Format: "json"})

	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "warn", entry["level"])
}

func TestFileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "chainpulse.log")
	log := NewLoggerTo(&buf, LogConfig{Level: "info", Format: "json", File: true, FilePath: path, MaxSize: 1})
	log.Info().Msg("to both")

	assert.Contains(t, buf.String(), "to both")
	assert.FileExists(t, path)
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := WithSymbol(NewLoggerTo(&buf, LogConfig{Format: "json"}), "nifty_50")

	ctx := WithLogger(context.Background(), log)
	got := FromContext(ctx)
	got.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"symbol":"nifty_50"`)

	// no logger in context: must not panic
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, LogConfig{Format: "json"})

	LogRequest(log, "GET", "/api/v1/pcr/nifty_50", 404, 10, time.Millisecond)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status":404`)

	buf.Reset()
	LogIngest(log, "nifty_50", "id-1", "9:16:20 AM", 12)
	assert.Contains(t, buf.String(), `"event":"ingest"`)
	assert.Contains(t, buf.String(), `"rows":12`)
}
