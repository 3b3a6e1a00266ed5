package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	log.Info("hidden")
	log.Warn("shown", "service", "api")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "api", rec["service"])
}

func TestColorHandlerKeepsColorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Config{Format: "color"}, &buf)
	require.NoError(t, err)

	log.With("service", "db").Error("boom")
	out := buf.String()
	assert.Contains(t, out, "\033[31mERROR\033[0m")
	assert.Contains(t, out, "service=db")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "svcwatch.log")
	var buf bytes.Buffer
	log, closer, err := New(Config{File: FileConfig{Path: path}}, &buf)
	require.NoError(t, err)

	log.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"to file\"")
	assert.NotContains(t, string(data), "\033[")
	assert.Empty(t, buf.String())
}

func TestUnknownFormat(t *testing.T) {
	_, _, err := New(Config{Format: "xml"}, nil)
	assert.Error(t, err)
}
