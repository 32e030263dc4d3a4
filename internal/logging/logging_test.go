package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sosinternet/internal/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(config.LogSettings{Level: "debug", Format: "json", Path: dir, RetentionDays: 7})
	require.NoError(t, err)

	logger.Named("watchdog").Info("test message", zap.String("key", "value"))
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
	assert.Contains(t, string(data), `"logger":"watchdog"`)
}

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	logger, err := New(config.LogSettings{Level: "verbose", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
