package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNew(t *testing.T) {
	t.Run("stdout and stderr", func(t *testing.T) {
		for _, out := range []string{"stdout", "stderr"} {
			logger, err := New(Config{Level: LevelDebug, Format: FormatText, Output: out})
			require.NoError(t, err)
			assert.NotNil(t, logger)
		}
	})

	t.Run("file output creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "netrecon.log")
		logger, err := New(Config{Level: LevelInfo, Format: FormatJSON, Output: path})
		require.NoError(t, err)

		logger.Info("hello")

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(logFilePerm), info.Mode().Perm())
	})
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level   LogLevel
		debug   bool
		warn    bool
		errored bool
	}{
		{LevelDebug, true, true, true},
		{LevelInfo, false, true, true},
		{LevelWarn, false, true, true},
		{LevelError, false, false, true},
		{"bogus", false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, Config{Level: tt.level})

			logger.Debug("debug-line")
			logger.Warn("warn-line")
			logger.Error("error-line")

			out := buf.String()
			assert.Equal(t, tt.debug, strings.Contains(out, "debug-line"))
			assert.Equal(t, tt.warn, strings.Contains(out, "warn-line"))
			assert.Equal(t, tt.errored, strings.Contains(out, "error-line"))
		})
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatJSON}).
		WithComponent("discovery").
		WithScanID("scan-1")

	logger.InfoDiscovery("found hosts", "192.168.1.0/24", "count", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "found hosts", entry["msg"])
	assert.Equal(t, "discovery", entry["component"])
	assert.Equal(t, "scan-1", entry["scan_id"])
	assert.Equal(t, "192.168.1.0/24", entry["network"])
	assert.EqualValues(t, 3, entry["count"])
}

func TestWithTarget(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatJSON}).
		WithComponent("discovery")

	logger.WithTarget("printer.lan").Warn("Hostname target did not resolve")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "printer.lan", entry["target"])
	assert.Equal(t, "discovery", entry["component"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatJSON})

	logger.WarnStrategy("arp table unavailable", "arp", errors.New("not found"))
	logger.InfoTopology("gateway detected", "gateway", "192.168.1.1")
	logger.ErrorScan("scan failed", "10.0.0.1", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"strategy":"arp"`)
	assert.Contains(t, lines[1], `"component":"topology"`)
	assert.Contains(t, lines[2], `"target":"10.0.0.1"`)
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Format: FormatJSON})

	logger.WithContext(context.Background()).Info("no id")
	logger.WithContext(ContextWithScanID(context.Background(), "abc")).Info("with id")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "scan_id")
	assert.Contains(t, lines[1], `"scan_id":"abc"`)
}

func TestSetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(&buf, Config{Level: LevelDebug}))

	Info("global info", "k", "v")
	WithComponent("portscan").Debug("scoped")

	out := buf.String()
	assert.Contains(t, out, "global info")
	assert.Contains(t, out, "component=portscan")
}
