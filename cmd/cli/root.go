// Package cli provides the command-line interface of the netrecon engine.
// It implements the Cobra command tree: one-shot scans, discovery, port
// scans and gateway detection, plus the long-running API server.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/logging"
)

const envPrefix = "NETRECON"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netrecon",
	Short: "Network reconnaissance engine",
	Long: `netrecon discovers live hosts on a network range, scans their ports,
identifies services and operating systems, rates their risk and maps the
path from this machine to the internet.

Run one-shot scans from the command line or start the API server to drive
scans over HTTP, persist results and run scheduled scans.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./netrecon.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig locates the config file and enables NETRECON_ environment
// overrides such as NETRECON_DATABASE_PASSWORD.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/netrecon")
		viper.SetConfigType("yaml")
		viper.SetConfigName("netrecon")
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig reads the config file found by initConfig and applies
// environment overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides copies NETRECON_<SECTION>_<KEY> variables over the
// file configuration, e.g. NETRECON_DATABASE_PASSWORD.
func applyEnvOverrides(cfg *config.Config) {
	v := viper.GetViper()
	set := func(key string) bool {
		_, ok := os.LookupEnv(envName(key))
		return ok
	}

	if set("logging.level") {
		cfg.Logging.Level = logging.LogLevel(v.GetString("logging.level"))
	}
	if set("logging.format") {
		cfg.Logging.Format = logging.LogFormat(v.GetString("logging.format"))
	}
	if set("api.listen_addr") {
		cfg.API.ListenAddr = v.GetString("api.listen_addr")
	}
	if set("api.port") {
		cfg.API.Port = v.GetInt("api.port")
	}
	if set("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if set("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if set("database.name") {
		cfg.Database.Database = v.GetString("database.name")
	}
	if set("database.username") {
		cfg.Database.Username = v.GetString("database.username")
	}
	if set("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if set("database.ssl_mode") {
		cfg.Database.SSLMode = v.GetString("database.ssl_mode")
	}
	if set("scanning.rate_limit") {
		cfg.Scanning.RateLimit = v.GetInt("scanning.rate_limit")
	}
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindFlags lets NETRECON_<COMMAND>_<FLAG> set any flag the user did not
// pass explicitly.
func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		name := envPrefix + "_" + strings.ToUpper(cmd.Name()+"_"+strings.ReplaceAll(f.Name, "-", "_"))
		if value, ok := os.LookupEnv(name); ok {
			if err := cmd.Flags().Set(f.Name, value); err != nil {
				bindErr = fmt.Errorf("invalid value %q in %s: %w", value, name, err)
			}
		}
	})
	return bindErr
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return
	}

	logConfig := cfg.Logging
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logConfig.AddSource = logConfig.Level == logging.LevelDebug
	// stdout carries reports.
	if logConfig.Output == "stdout" {
		logConfig.Output = "stderr"
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}
