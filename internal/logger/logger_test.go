package logger_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/config"
	"github.com/hazz-dev/shipcheck/internal/logger"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestNew_RunLogAppends(t *testing.T) {
	runLog := filepath.Join(t.TempDir(), "evidence", logger.RunLogName)
	cfg := config.Log{Level: "info", Format: "console"}

	l, err := logger.New(cfg, runLog)
	require.NoError(t, err)
	l.Info("first run", zap.String("run_id", "20260101_000000"))
	l.Debug("filtered")
	_ = l.Sync()

	l, err = logger.New(cfg, runLog)
	require.NoError(t, err)
	l.Info("second run")
	_ = l.Sync()

	lines := readLines(t, runLog)
	require.Len(t, lines, 2)
	assert.Equal(t, "first run", lines[0]["message"])
	assert.Equal(t, "20260101_000000", lines[0]["run_id"])
	assert.Equal(t, "second run", lines[1]["message"])
}

func TestNew_RunLogKeepsInfoWhenConsoleIsQuiet(t *testing.T) {
	runLog := filepath.Join(t.TempDir(), logger.RunLogName)
	l, err := logger.New(config.Log{Level: "error", Format: "json"}, runLog)
	require.NoError(t, err)
	l.Info("step")
	_ = l.Sync()

	assert.Len(t, readLines(t, runLog), 1)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(config.Log{Level: "loud"}, "")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, logger.OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, logger.OrNop(l))
}
