// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/suture/internal/config"
)

// lockedBuffer is a WriteSyncer backed by memory, safe for concurrent writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitialize(t *testing.T) {
	t.Run("console format colors the level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "suture",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)
		GetLogger().Info("campaign started")
		Sync()

		got := out.String()
		assert.Contains(t, got, "campaign started")
		assert.Contains(t, got, ansiColors["green"]+"INFO"+colorReset)
		assert.Contains(t, got, "suture.")
	})

	t.Run("json format emits one object per entry", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "suture"}, out)
		GetLogger().Warn("budget nearly spent", zap.Int("failures", 5))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "suture", entry["logger"])
		assert.Equal(t, "budget nearly spent", entry["msg"])
		assert.EqualValues(t, 5, entry["failures"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out)
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, out)
		GetLogger().Debug("debug entry")
		GetLogger().Info("info entry")
		Sync()

		assert.NotContains(t, out.String(), "debug entry")
		assert.Contains(t, out.String(), "info entry")
	})

	t.Run("log file receives json entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logFile := filepath.Join(t.TempDir(), "suture.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&lockedBuffer{}))
		GetLogger().Error("report write failed")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"report write failed"`)
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "second"}, out)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("ping")
		Sync()
		assert.Contains(t, out.String(), "first")
		assert.NotContains(t, out.String(), "second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info"}, &lockedBuffer{})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestIsBenignSyncError(t *testing.T) {
	assert.True(t, isBenignSyncError(os.NewSyscallError("sync /dev/stdout", os.ErrInvalid)))
	assert.False(t, isBenignSyncError(os.ErrPermission))
}
