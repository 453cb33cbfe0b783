// Package config loads the netrecon configuration file.
//
// The file is YAML. Every section has defaults, so an absent file or an
// absent section yields a working configuration for one-shot CLI scans;
// the database and API sections only matter to the server command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/store"
	"github.com/anstrom/netrecon/internal/topology"
)

// Config is the complete configuration.
type Config struct {
	Scanning  ScanningConfig  `yaml:"scanning" json:"scanning"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Topology  TopologyConfig  `yaml:"topology" json:"topology"`
	Logging   logging.Config  `yaml:"logging" json:"logging"`
	API       APIConfig       `yaml:"api" json:"api"`
	Database  store.Config    `yaml:"database" json:"database"`
	Schedules []Schedule      `yaml:"schedules" json:"schedules" validate:"dive"`
}

// ScanningConfig holds the defaults applied to every scan request.
type ScanningConfig struct {
	ScanType      string `yaml:"scan_type" json:"scan_type" validate:"oneof=ping port full custom"`
	Technique     string `yaml:"technique" json:"technique" validate:"oneof=tcp syn udp comprehensive"`
	Ports         string `yaml:"ports" json:"ports"`
	ExtendedPorts bool   `yaml:"extended_ports" json:"extended_ports"`
	TimeoutMS     int    `yaml:"timeout_ms" json:"timeout_ms" validate:"min=1,max=60000"`
	Threads       int    `yaml:"threads" json:"threads" validate:"min=1,max=1000"`
	// RateLimit caps probe starts per second; 0 disables the limit.
	RateLimit int `yaml:"rate_limit" json:"rate_limit" validate:"min=0"`

	ResolveHostnames bool `yaml:"resolve_hostnames" json:"resolve_hostnames"`
	DetectServices   bool `yaml:"detect_services" json:"detect_services"`
	GrabBanners      bool `yaml:"grab_banners" json:"grab_banners"`
	DetectOS         bool `yaml:"detect_os" json:"detect_os"`
	AssessVulns      bool `yaml:"assess_vulns" json:"assess_vulns"`
	Traceroute       bool `yaml:"traceroute" json:"traceroute"`
}

// DiscoveryConfig tunes host discovery.
type DiscoveryConfig struct {
	// UseICMP enables the raw ICMP echo pinger when the process may open it.
	UseICMP bool `yaml:"use_icmp" json:"use_icmp"`
	// ReachabilityPorts are dialled when ICMP is unavailable.
	ReachabilityPorts []int `yaml:"reachability_ports" json:"reachability_ports" validate:"dive,min=1,max=65535"`
}

// TopologyConfig tunes gateway and path detection.
type TopologyConfig struct {
	ExternalIPURL     string        `yaml:"external_ip_url" json:"external_ip_url" validate:"omitempty,url"`
	ExternalIPTimeout time.Duration `yaml:"external_ip_timeout" json:"external_ip_timeout"`
	TraceTarget       string        `yaml:"trace_target" json:"trace_target" validate:"omitempty,ip"`
	MaxHops           int           `yaml:"max_hops" json:"max_hops" validate:"min=1,max=8"`
	HopTimeout        time.Duration `yaml:"hop_timeout" json:"hop_timeout"`
	SkipExternal      bool          `yaml:"skip_external" json:"skip_external"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	ListenAddr         string        `yaml:"listen_addr" json:"listen_addr"`
	Port               int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins     []string      `yaml:"allowed_origins" json:"allowed_origins"`
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRequestSize     int64         `yaml:"max_request_size" json:"max_request_size" validate:"min=0"`
	MaxConcurrentScans int           `yaml:"max_concurrent_scans" json:"max_concurrent_scans" validate:"min=1,max=64"`
}

// Schedule runs a scan on a cron expression.
type Schedule struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Cron     string `yaml:"cron" json:"cron" validate:"required"`
	Target   string `yaml:"target" json:"target" validate:"required"`
	ScanType string `yaml:"scan_type" json:"scan_type" validate:"omitempty,oneof=ping port full custom"`
	Ports    string `yaml:"ports" json:"ports"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	topo := topology.DefaultConfig()
	return &Config{
		Scanning: ScanningConfig{
			ScanType:         string(scanning.PortScan),
			Technique:        string(portscan.TCPConnect),
			TimeoutMS:        scanning.DefaultTimeoutMS,
			Threads:          scanning.DefaultThreads,
			ResolveHostnames: true,
			DetectServices:   true,
			DetectOS:         true,
			AssessVulns:      true,
		},
		Discovery: DiscoveryConfig{
			UseICMP:           true,
			ReachabilityPorts: []int{80, 443, 22, 445, 139},
		},
		Topology: TopologyConfig{
			ExternalIPURL:     topo.ExternalIPURL,
			ExternalIPTimeout: topo.ExternalIPTimeout,
			TraceTarget:       topo.TraceTarget,
			MaxHops:           topo.MaxHops,
			HopTimeout:        topo.HopTimeout,
		},
		Logging: logging.DefaultConfig(),
		API: APIConfig{
			ListenAddr:         "127.0.0.1",
			Port:               8080,
			AllowedOrigins:     []string{"*"},
			RequestTimeout:     30 * time.Second,
			MaxRequestSize:     1 << 20,
			MaxConcurrentScans: scanning.DefaultCapacity,
		},
		Database: store.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config file %s", filepath.Base(path)), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration: "+describe(err), err)
	}

	switch c.Logging.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	if c.Scanning.Ports != "" {
		if _, err := portscan.ParsePorts(c.Scanning.Ports); err != nil {
			return errors.ErrConfigInvalid("scanning.ports", c.Scanning.Ports)
		}
	}

	names := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if names[s.Name] {
			return errors.ErrConfigInvalid("schedules.name", s.Name)
		}
		names[s.Name] = true
		if s.Ports != "" {
			if _, err := portscan.ParsePorts(s.Ports); err != nil {
				return errors.ErrConfigInvalid("schedules.ports", s.Ports)
			}
		}
	}
	return nil
}

// describe flattens validator errors into "Field: tag" pairs.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// ScanConfig builds a scan of target from the scanning defaults.
func (c *Config) ScanConfig(target string) scanning.Config {
	s := c.Scanning
	cfg := scanning.Config{
		Target:           target,
		ScanType:         scanning.ScanType(s.ScanType),
		Technique:        portscan.Technique(s.Technique),
		ExtendedPorts:    s.ExtendedPorts,
		TimeoutMS:        s.TimeoutMS,
		Threads:          s.Threads,
		ResolveHostnames: s.ResolveHostnames,
		DetectServices:   s.DetectServices,
		GrabBanners:      s.GrabBanners,
		DetectOS:         s.DetectOS,
		AssessVulns:      s.AssessVulns,
		Traceroute:       s.Traceroute,
	}
	if s.Ports != "" {
		cfg.Ports, _ = portscan.ParsePorts(s.Ports)
	}
	return cfg
}

// ScheduledScan builds the scan a schedule runs.
func (c *Config) ScheduledScan(s Schedule) scanning.Config {
	cfg := c.ScanConfig(s.Target)
	if s.ScanType != "" {
		cfg.ScanType = scanning.ScanType(s.ScanType)
	}
	if s.Ports != "" {
		cfg.Ports, _ = portscan.ParsePorts(s.Ports)
	}
	return cfg
}

// TopologyDetector returns the detector settings.
func (c *Config) TopologyDetector() topology.Config {
	t := c.Topology
	return topology.Config{
		ExternalIPURL:     t.ExternalIPURL,
		ExternalIPTimeout: t.ExternalIPTimeout,
		TraceTarget:       t.TraceTarget,
		MaxHops:           t.MaxHops,
		HopTimeout:        t.HopTimeout,
		SkipExternal:      t.SkipExternal,
	}
}

// APIAddress returns host:port for the HTTP listener.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}
