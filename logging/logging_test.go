package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"  debug ", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.WarnLevel, Output: &buf})
	logger.Info().Msg("hidden")
	logger.Warn().Str("session_id", "s1").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"session_id":"s1"`)
}

func TestSessionLogPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenSessionLog(dir, "sess-1")
	require.NoError(t, err)

	l.Init("sess-1", "/work")
	l.TurnStart(2)
	l.UpstreamSession("up-9")
	l.TurnEnd("end_turn", nil)
	require.NoError(t, l.Close())

	// writes after close are dropped, not panics
	l.TurnStart(1)
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "sess-1.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		kinds = append(kinds, rec["record"].(string))
	}
	assert.Equal(t, []string{RecordSessionInit, RecordTurnStart, RecordUpstreamSession, RecordTurnEnd}, kinds)
}

func TestNilSessionLogIsNoop(t *testing.T) {
	var l *SessionLog
	l.Init("s", "/")
	l.TurnEnd("cancelled", nil)
	assert.NoError(t, l.Close())
}
