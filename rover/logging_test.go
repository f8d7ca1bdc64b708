package rover

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLoggerBeforeInitIsNop(t *testing.T) {
	ResetLoggerForTest()
	t.Cleanup(ResetLoggerForTest)

	assert.NotNil(t, L())
	assert.NotPanics(t, func() {
		L().Info("dropped")
		SyncLogger()
	})
}

func TestInitLoggerJSON(t *testing.T) {
	ResetLoggerForTest()
	t.Cleanup(ResetLoggerForTest)

	var buf bytes.Buffer
	InitLogger(LogConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	L().Info("filtered")
	L().Warn("latched", zap.Float64("radius", 150))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "rover", entry["logger"])
	assert.Equal(t, "latched", entry["msg"])
	assert.Equal(t, 150.0, entry["radius"])

	// Later calls are ignored.
	InitLogger(LogConfig{Level: "debug", Format: "json"}, zapcore.AddSync(&bytes.Buffer{}))
	L().Warn("second")
	assert.Contains(t, buf.String(), "second")
}

func TestInitLoggerFile(t *testing.T) {
	ResetLoggerForTest()
	t.Cleanup(ResetLoggerForTest)

	path := filepath.Join(t.TempDir(), "rover.log")
	var console bytes.Buffer
	InitLogger(LogConfig{Level: "bogus", Format: "console", File: path, MaxSize: 1}, zapcore.AddSync(&console))
	L().Debug("hidden")
	L().Info("mode changed", zap.Stringer("mode", ModeAuto))
	SyncLogger()

	assert.Contains(t, console.String(), "mode changed")
	assert.NotContains(t, console.String(), "hidden", "unknown levels fall back to info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"AUTO"`)
}
