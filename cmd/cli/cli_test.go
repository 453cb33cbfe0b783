package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/discovery"
	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/scheduler"
	"github.com/anstrom/netrecon/internal/topology"
)

// resetFlags restores cmd's flags and their package variables after the test.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

func TestBuildScanConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, cfg scanning.Config)
	}{
		{
			name: "no flags keeps configured defaults",
			args: nil,
			check: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, config.Default().ScanConfig("10.0.0.0/30"), cfg)
			},
		},
		{
			name: "overrides",
			args: []string{"--type", "full", "--ports", "22,80", "--threads", "8", "--no-os", "--banners"},
			check: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, scanning.FullScan, cfg.ScanType)
				assert.Equal(t, []int{22, 80}, cfg.Ports)
				assert.Equal(t, 8, cfg.Threads)
				assert.False(t, cfg.DetectOS)
				assert.True(t, cfg.GrabBanners)
				assert.Equal(t, scanning.DefaultTimeoutMS, cfg.TimeoutMS)
			},
		},
		{
			name: "technique alias",
			args: []string{"--technique", "connect", "--timeout", "250"},
			check: func(t *testing.T, cfg scanning.Config) {
				assert.Equal(t, "tcp", string(cfg.Technique))
				assert.Equal(t, 250, cfg.TimeoutMS)
			},
		},
		{
			name:    "invalid scan type",
			args:    []string{"--type", "stealthy"},
			wantErr: true,
		},
		{
			name:    "invalid technique",
			args:    []string{"--technique", "xmas"},
			wantErr: true,
		},
		{
			name:    "invalid ports",
			args:    []string{"--ports", "80-70000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t, scanCmd)
			require.NoError(t, scanCmd.ParseFlags(tt.args))

			cfg, err := buildScanConfig(scanCmd, config.Default(), "10.0.0.0/30")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"table", false},
		{"csv", false},
		{"JSON", false},
		{"xml", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			err := validateFormat(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func sampleResult() *scanning.Result {
	h := hosts.New("192.168.1.10")
	h.Alive = true
	h.Hostname = "nas.local"
	h.AddPorts(22, 80)
	down := hosts.New("192.168.1.11")
	return &scanning.Result{
		ID:       "scan-1",
		State:    scanning.Completed,
		Hosts:    []hosts.Host{h, down},
		Duration: 1500 * time.Millisecond,
	}
}

func TestWriteResult(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, formatTable, sampleResult()))
		out := buf.String()
		assert.Contains(t, out, "192.168.1.10")
		assert.Contains(t, out, "nas.local")
		assert.Contains(t, out, "1 of 2 hosts alive, scan completed in 1.5s")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, formatCSV, sampleResult()))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "IP,Hostname"))
		assert.True(t, strings.HasPrefix(lines[1], "192.168.1.10,nas.local"))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, formatJSON, sampleResult()))
		var decoded scanning.Result
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "scan-1", decoded.ID)
		require.Len(t, decoded.Hosts, 2)
		assert.Equal(t, []int{22, 80}, decoded.Hosts[0].OpenPorts)
	})
}

func TestWriteGateway(t *testing.T) {
	var buf bytes.Buffer
	err := writeGateway(&buf, topology.Info{
		ExternalIP: topology.UnknownExternalIP,
		Routes:     []topology.Route{{Destination: "10.0.0.0/24", Interface: "eth0"}},
		Path:       []string{"10.0.0.1", "203.0.113.1"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Default gateway: not found")
	assert.Contains(t, out, "External IP:     "+topology.UnknownExternalIP)
	assert.Contains(t, out, "10.0.0.1 -> 203.0.113.1")
	assert.Contains(t, out, "10.0.0.0/24")
	assert.Contains(t, out, "eth0")
}

func TestNewPinger(t *testing.T) {
	p := newPinger(config.DiscoveryConfig{UseICMP: false, ReachabilityPorts: []int{22}})
	tcp, ok := p.(*discovery.TCPPinger)
	require.True(t, ok, "ICMP disabled yields the TCP check alone")
	assert.Equal(t, []int{22}, tcp.Ports)

	p = newPinger(config.DiscoveryConfig{})
	tcp, ok = p.(*discovery.TCPPinger)
	require.True(t, ok)
	assert.Equal(t, discovery.DefaultReachabilityPorts, tcp.Ports)
}

func TestScanDependencies(t *testing.T) {
	cfg := config.Default()
	cfg.Discovery.UseICMP = false
	cfg.Scanning.RateLimit = 25
	cfg.Topology.MaxHops = 5

	deps := scanDependencies(cfg, metrics.Nop{})
	assert.Equal(t, 25, deps.RateLimit)
	assert.Equal(t, 5, deps.Topology.MaxHops)
	assert.NotNil(t, deps.Pinger)
	assert.Equal(t, metrics.Nop{}, deps.Metrics)
}

func TestApplyEnvOverrides(t *testing.T) {
	configureEnv(viper.GetViper())
	t.Setenv("NETRECON_API_PORT", "9191")
	t.Setenv("NETRECON_DATABASE_PASSWORD", "s3cret")
	t.Setenv("NETRECON_DATABASE_NAME", "recon")
	t.Setenv("NETRECON_LOGGING_LEVEL", "debug")

	cfg := config.Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, 9191, cfg.API.Port)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "recon", cfg.Database.Database)
	assert.Equal(t, "debug", string(cfg.Logging.Level))
	assert.Equal(t, "localhost", cfg.Database.Host, "unset variables leave the file value")
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "NETRECON_DATABASE_SSL_MODE", envName("database.ssl_mode"))
	assert.Equal(t, "NETRECON_API_PORT", envName("api.port"))
}

func TestBindFlags(t *testing.T) {
	t.Run("environment sets unset flag", func(t *testing.T) {
		resetFlags(t, discoverCmd)
		t.Setenv("NETRECON_DISCOVER_THREADS", "7")
		t.Setenv("NETRECON_DISCOVER_NO_RESOLVE", "true")

		require.NoError(t, bindFlags(discoverCmd))
		assert.Equal(t, 7, discoverThreads)
		assert.True(t, discoverNoResolve)
		assert.True(t, discoverCmd.Flags().Changed("threads"))
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		resetFlags(t, discoverCmd)
		require.NoError(t, discoverCmd.ParseFlags([]string{"--threads", "3"}))
		t.Setenv("NETRECON_DISCOVER_THREADS", "7")

		require.NoError(t, bindFlags(discoverCmd))
		assert.Equal(t, 3, discoverThreads)
	})

	t.Run("invalid value", func(t *testing.T) {
		resetFlags(t, discoverCmd)
		t.Setenv("NETRECON_DISCOVER_TIMEOUT", "soon")

		err := bindFlags(discoverCmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NETRECON_DISCOVER_TIMEOUT")
	})
}

func TestRunAndReportInvalidTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Discovery.UseICMP = false

	err := runAndReport(cfg, cfg.ScanConfig("10.0.0.0/8"), formatTable, "", true)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))

	err = runAndReport(cfg, cfg.ScanConfig("10.0.0.1"), "xml", "", true)
	assert.Error(t, err)
}

type nopLauncher struct{}

func (nopLauncher) Start(context.Context, scanning.Config) (string, error) { return "scan-1", nil }

func TestAddSchedules(t *testing.T) {
	cfg := config.Default()
	cfg.Schedules = []config.Schedule{
		{Name: "nightly", Cron: "0 2 * * *", Target: "192.168.1.0/24", Enabled: true},
		{Name: "weekly", Cron: "@weekly", Target: "10.0.0.1", ScanType: "full", Ports: "22,443"},
	}

	s := scheduler.New(nopLauncher{})
	require.NoError(t, addSchedules(s, cfg))

	jobs := map[string]scheduler.Job{}
	for _, j := range s.Jobs() {
		jobs[j.Name] = j
	}
	require.Len(t, jobs, 2)
	assert.True(t, jobs["nightly"].Enabled)
	assert.False(t, jobs["weekly"].Enabled)
	assert.Equal(t, scanning.FullScan, jobs["weekly"].Config.ScanType)
	assert.Equal(t, []int{22, 443}, jobs["weekly"].Config.Ports)

	cfg.Schedules = []config.Schedule{{Name: "broken", Cron: "every tuesday", Target: "10.0.0.1"}}
	err := addSchedules(scheduler.New(nopLauncher{}), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "broken"`)
}

func TestSetupServerWithoutDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Discovery.UseICMP = false
	cfg.Topology.SkipExternal = true
	cfg.Schedules = []config.Schedule{
		{Name: "hourly", Cron: "@hourly", Target: "192.168.1.1", Enabled: true},
	}

	rt, err := setupServer(context.Background(), cfg, metrics.NewPrometheusMetrics())
	require.NoError(t, err)
	defer rt.close()

	assert.Nil(t, rt.store)
	require.NotNil(t, rt.api)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/schedules", http.StatusOK},
		{"/api/v1/scans?history=true", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rt.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "netrecon.yaml")

	require.NoError(t, writeDefaultConfig(path, false))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.NoError(t, loaded.Validate())
	assert.Equal(t, config.Default().API.Port, loaded.API.Port)

	assert.Error(t, writeDefaultConfig(path, false), "existing file needs --force")
	assert.NoError(t, writeDefaultConfig(path, true))
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"scan", "discover", "ports", "gateway", "server", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "netrecon 1.2.3")
	assert.Contains(t, buf.String(), "abc123")
	assert.Contains(t, rootCmd.Version, "1.2.3 (commit: abc123")
}
