package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.With(String("symbol", "NVDA")).Info("decision",
		String("action", "buy"),
		Float64("size", 0.95),
		Int("bar", 61),
		Error(errors.New("boom")),
	)
	l.Debug("filtered out")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "decision", m["message"])
	assert.Equal(t, "NVDA", m["symbol"])
	assert.Equal(t, "buy", m["action"])
	assert.InDelta(t, 0.95, m["size"], 1e-9)
	assert.EqualValues(t, 61, m["bar"])
	assert.Equal(t, "boom", m["error"])
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() { l.Error("ignored", Bool("x", true)) })
}
