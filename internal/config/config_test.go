package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/scanning"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netrecon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.APIAddress())
	assert.Equal(t, scanning.DefaultThreads, cfg.Scanning.Threads)
	assert.Equal(t, 8, cfg.Topology.MaxHops)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
scanning:
  scan_type: full
  technique: syn
  ports: "22,80,8000-8002"
  threads: 16
  timeout_ms: 750
topology:
  trace_target: 1.1.1.1
  max_hops: 4
  skip_external: true
logging:
  level: debug
  format: json
api:
  port: 9090
database:
  database: netrecon
  username: scanner
schedules:
  - name: nightly
    cron: "0 2 * * *"
    target: 192.168.1.0/24
    scan_type: ping
    enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Scanning.ScanType)
	assert.Equal(t, 16, cfg.Scanning.Threads)
	assert.True(t, cfg.Scanning.DetectOS, "unset fields keep their defaults")
	assert.Equal(t, "1.1.1.1", cfg.Topology.TraceTarget)
	assert.Equal(t, 3*time.Second, cfg.Topology.ExternalIPTimeout)
	assert.Equal(t, "127.0.0.1:9090", cfg.APIAddress())
	assert.True(t, cfg.Database.Enabled())
	require.Len(t, cfg.Schedules, 1)

	scan := cfg.ScanConfig("10.0.0.1")
	assert.Equal(t, scanning.FullScan, scan.ScanType)
	assert.Equal(t, portscan.TCPSYN, scan.Technique)
	assert.Equal(t, []int{22, 80, 8000, 8001, 8002}, scan.Ports)
	assert.Equal(t, 750, scan.TimeoutMS)

	scheduled := cfg.ScheduledScan(cfg.Schedules[0])
	assert.Equal(t, "192.168.1.0/24", scheduled.Target)
	assert.Equal(t, scanning.PingSweep, scheduled.ScanType)

	topo := cfg.TopologyDetector()
	assert.Equal(t, 4, topo.MaxHops)
	assert.True(t, topo.SkipExternal)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "scanning: [unclosed"},
		{"scan type", "scanning:\n  scan_type: deep\n"},
		{"technique", "scanning:\n  technique: xmas\n"},
		{"threads", "scanning:\n  threads: 0\n"},
		{"ports", "scanning:\n  ports: \"80-22\"\n"},
		{"max hops", "topology:\n  max_hops: 30\n"},
		{"trace target", "topology:\n  trace_target: not-an-ip\n"},
		{"log level", "logging:\n  level: verbose\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"api port", "api:\n  port: 70000\n"},
		{"ssl mode", "database:\n  ssl_mode: sometimes\n"},
		{"schedule without cron", "schedules:\n  - name: a\n    target: 10.0.0.1\n"},
		{"duplicate schedule", "schedules:\n  - {name: a, cron: '@daily', target: 10.0.0.1}\n  - {name: a, cron: '@hourly', target: 10.0.0.2}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			code := errors.GetCode(err)
			assert.Contains(t, []errors.ErrorCode{errors.CodeValidation, errors.CodeConfiguration}, code)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scanning.Threads = 7
	cfg.Schedules = []Schedule{{Name: "hourly", Cron: "@hourly", Target: "10.1.0.0/24", Enabled: true}}

	path := filepath.Join(t.TempDir(), "nested", "netrecon.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Scanning.Threads)
	assert.Equal(t, cfg.Schedules, loaded.Schedules)
}
