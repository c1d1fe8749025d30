package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deepscan.log")

	log := New(path, false)
	log.Info("scan finished", zap.String("analysis_id", "a-1"))
	log.Debug("dropped at info level")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "scan finished", entry["msg"])
	assert.Equal(t, "a-1", entry["analysis_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deepscan.log")

	log := New(path, true)
	log.Debug("skipped stream line")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "skipped stream line")
}
