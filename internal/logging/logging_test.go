package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestSetup_WritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "retreva.log")

	logger, cleanup, err := Setup(Config{
		Level:    "debug",
		FilePath: logPath,
	})
	require.NoError(t, err)

	logger.Info("index_built", slog.Int("chunks", 42))
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index_built")
	assert.Contains(t, string(data), `"chunks":42`)
}

func TestSetup_StderrOnlyWhenNoFile(t *testing.T) {
	logger, cleanup, err := Setup(DefaultConfig())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, logger)
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "retreva.log")

	logger, cleanup, err := Setup(Config{
		Level:    "warn",
		FilePath: logPath,
	})
	require.NoError(t, err)

	logger.Debug("should_be_filtered")
	logger.Warn("should_be_written")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should_be_filtered")
	assert.Contains(t, string(data), "should_be_written")
}
