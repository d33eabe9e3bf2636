package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TeesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "application.log")

	logger, cleanup, err := New(Config{Level: "info", File: path, Console: &console})
	require.NoError(t, err)

	logger.Named("ledger").Info("appended entry")
	logger.Debug("hidden")
	cleanup()

	assert.Contains(t, console.String(), "appended entry")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "appended entry", entry["msg"])
	assert.Equal(t, "ledger", entry["logger"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, cleanup, err := New(Config{Level: "debug", Console: &console})
	require.NoError(t, err)
	logger.Debug("visible")
	cleanup()
	assert.Contains(t, console.String(), "visible")
}
