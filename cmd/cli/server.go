package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/netrecon/internal/api"
	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/scheduler"
	"github.com/anstrom/netrecon/internal/store"
	"github.com/anstrom/netrecon/internal/topology"
)

var (
	serverHost string
	serverPort int
)

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the API server",
	Long: `Start the HTTP API. Scans started over the API run in the background,
report progress over a WebSocket and, when a database is configured, are
stored for later retrieval. Schedules from the config file start scans on
their cron expressions.

The server runs in the foreground until interrupted.`,
	Example: `  netrecon server
  netrecon server --config /etc/netrecon/netrecon.yaml --port 9090`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "Listen address (overrides config)")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides config)")
}

// serverRuntime holds everything the server command starts.
type serverRuntime struct {
	api       *api.Server
	manager   *scanning.Manager
	scheduler *scheduler.Scheduler
	store     *store.Store
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.API.ListenAddr = serverHost
	}
	if serverPort > 0 {
		cfg.API.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger := logging.WithComponent("server")
	ctx, stop := signalContext()
	defer stop()

	rt, err := setupServer(ctx, cfg, metrics.NewPrometheusMetrics())
	if err != nil {
		return err
	}
	defer rt.close()

	logger.Info("Starting netrecon API server",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
		"address", cfg.APIAddress())
	fmt.Printf("API server listening on %s\n", cfg.APIAddress())
	fmt.Printf("Health check: http://%s/api/v1/health\n", cfg.APIAddress())

	if err := rt.api.Start(ctx); err != nil {
		logger.Error("API server error", "error", err)
		return err
	}
	fmt.Println("Server stopped successfully")
	return nil
}

// setupServer connects the store when one is configured and builds the
// scan manager, the scheduler and the API server. The scheduler is running
// when it returns.
func setupServer(ctx context.Context, cfg *config.Config, pm *metrics.PrometheusMetrics) (*serverRuntime, error) {
	logger := logging.WithComponent("server")
	rt := &serverRuntime{}

	var recorder metrics.Recorder
	if pm != nil {
		recorder = pm
	}
	rt.manager = scanning.NewManager(scanDependencies(cfg, recorder), cfg.API.MaxConcurrentScans)

	opts := api.Options{
		Config:  cfg,
		Scans:   rt.manager,
		Gateway: topology.NewDetector(cfg.TopologyDetector(), nil, ""),
		Metrics: pm,
		Version: version,
	}

	if cfg.Database.Enabled() {
		logger.Info("Connecting to database...", "host", cfg.Database.Host, "database", cfg.Database.Database)
		st, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.store = st
		applied, err := st.Migrate(ctx)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		logger.Info("Database ready", "migrations_applied", len(applied))

		rt.manager.SetSink(st)
		opts.Results = st
		opts.Database = st
	} else {
		logger.Info("No database configured, scan results are kept in memory only")
	}

	rt.scheduler = scheduler.New(rt.manager)
	if err := addSchedules(rt.scheduler, cfg); err != nil {
		rt.close()
		return nil, err
	}
	if err := rt.scheduler.Start(); err != nil {
		rt.close()
		return nil, err
	}
	opts.Schedules = rt.scheduler

	server, err := api.New(opts)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	rt.api = server
	return rt, nil
}

// addSchedules registers every configured schedule. Disabled schedules are
// registered but do not fire until enabled over the API.
func addSchedules(s *scheduler.Scheduler, cfg *config.Config) error {
	for _, sch := range cfg.Schedules {
		id, err := s.AddJob(sch.Name, sch.Cron, cfg.ScheduledScan(sch))
		if err != nil {
			return fmt.Errorf("schedule %q: %w", sch.Name, err)
		}
		if !sch.Enabled {
			if err := s.DisableJob(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// close stops the scheduler before the manager so no scan starts on a
// closed manager.
func (rt *serverRuntime) close() {
	if rt.scheduler != nil {
		rt.scheduler.Stop()
	}
	if rt.manager != nil {
		rt.manager.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logging.Warn("Failed to close database", "error", err)
		}
	}
}
