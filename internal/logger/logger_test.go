package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("writes JSON at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newWithStdout(Config{Level: "warn"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		log.Info("dropped")
		log.Warn("kept", zap.String("account_id", "acc-1"))
		require.NoError(t, log.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "kept", entry["message"])
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "acc-1", entry["account_id"])
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newWithStdout(Config{Level: "chatty"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		log.Debug("dropped")
		log.Info("kept")
		require.NoError(t, log.Sync())

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("also writes to the log file", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "nested", "threadsync.log")
		log, err := newWithStdout(Config{Level: "info", LogFile: path}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		log.Info("hello file")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello file")
		assert.Contains(t, buf.String(), "hello file")
	})
}
