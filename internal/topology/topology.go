// Package topology detects how the local network reaches the internet: the
// default gateway, the routing table, the public address and a short
// traceroute. Each probe is independent; only the gateway lookup reports an
// error, everything else degrades to an empty or "Unknown" value.
package topology

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/sysexec"
)

// UnknownExternalIP is reported when the public address cannot be learned.
const UnknownExternalIP = "Unknown"

// Defaults.
const (
	DefaultExternalIPURL     = "https://api.ipify.org"
	DefaultExternalIPTimeout = 3 * time.Second
	DefaultTraceTarget       = "8.8.8.8"
	DefaultMaxHops           = 8
	DefaultHopTimeout        = time.Second
	DefaultTraceTimeout      = 6 * time.Second
)

// Config tunes the detector.
type Config struct {
	ExternalIPURL     string
	ExternalIPTimeout time.Duration
	TraceTarget       string
	MaxHops           int
	HopTimeout        time.Duration
	TraceTimeout      time.Duration
	// SkipExternal disables the outbound HTTP and traceroute probes.
	SkipExternal bool
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		ExternalIPURL:     DefaultExternalIPURL,
		ExternalIPTimeout: DefaultExternalIPTimeout,
		TraceTarget:       DefaultTraceTarget,
		MaxHops:           DefaultMaxHops,
		HopTimeout:        DefaultHopTimeout,
		TraceTimeout:      DefaultTraceTimeout,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ExternalIPURL == "" {
		c.ExternalIPURL = d.ExternalIPURL
	}
	if c.ExternalIPTimeout <= 0 {
		c.ExternalIPTimeout = d.ExternalIPTimeout
	}
	if c.TraceTarget == "" {
		c.TraceTarget = d.TraceTarget
	}
	if c.MaxHops <= 0 || c.MaxHops > DefaultMaxHops {
		c.MaxHops = d.MaxHops
	}
	if c.HopTimeout <= 0 {
		c.HopTimeout = d.HopTimeout
	}
	if c.TraceTimeout <= 0 {
		c.TraceTimeout = d.TraceTimeout
	}
}

// Info is the gateway and path information for the scanning machine.
type Info struct {
	Gateway    string   `json:"gateway,omitempty"`
	ExternalIP string   `json:"external_ip"`
	Routes     []Route  `json:"routes"`
	Path       []string `json:"path"`
}

// Detector runs the topology probes.
type Detector struct {
	config   Config
	runner   sysexec.Runner
	platform sysexec.Platform
	client   *http.Client
	logger   *logging.Logger
}

// NewDetector creates a detector. A nil runner executes real commands.
func NewDetector(config Config, runner sysexec.Runner, platform sysexec.Platform) *Detector {
	config.applyDefaults()
	if runner == nil {
		runner = sysexec.NewExecRunner(config.TraceTimeout)
	}
	if platform == "" {
		platform = sysexec.CurrentPlatform()
	}
	return &Detector{
		config:   config,
		runner:   runner,
		platform: platform,
		client:   &http.Client{Timeout: config.ExternalIPTimeout},
		logger:   logging.WithComponent("topology"),
	}
}

// DefaultGateway returns the default gateway or a GATEWAY_UNDETECTABLE error.
func (d *Detector) DefaultGateway(ctx context.Context) (string, error) {
	name, args := d.gatewayCommand()
	out, err := d.runner.Run(ctx, name, args...)
	if err != nil {
		return "", errors.ErrGatewayUndetectable(name, err)
	}
	gw, ok := ParseDefaultGateway(d.platform, string(out))
	if !ok {
		return "", errors.ErrGatewayUndetectable(name, nil)
	}
	return gw, nil
}

func (d *Detector) gatewayCommand() (string, []string) {
	switch d.platform {
	case sysexec.Windows:
		return "route", []string{"print", "0.0.0.0"}
	case sysexec.Darwin:
		return "route", []string{"-n", "get", "default"}
	default:
		return "ip", []string{"route", "show", "default"}
	}
}

// Routes returns the routing table, or nil when it cannot be read.
func (d *Detector) Routes(ctx context.Context) []Route {
	var (
		out []byte
		err error
	)
	switch d.platform {
	case sysexec.Windows:
		out, err = d.runner.Run(ctx, "route", "print", "-4")
	case sysexec.Darwin:
		out, err = d.runner.Run(ctx, "netstat", "-rn", "-f", "inet")
	default:
		out, err = d.runner.Run(ctx, "ip", "route", "show")
	}
	if err != nil {
		d.logger.Debug("Routing table unavailable", "error", err)
		return nil
	}
	return ParseRoutes(d.platform, string(out))
}

// ExternalIP asks the echo service for this network's public address.
func (d *Detector) ExternalIP(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, d.config.ExternalIPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.ExternalIPURL, http.NoBody)
	if err != nil {
		return UnknownExternalIP
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("External address lookup failed", "error", err)
		return UnknownExternalIP
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UnknownExternalIP
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return UnknownExternalIP
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return UnknownExternalIP
	}
	return ip
}

// Traceroute returns up to MaxHops intermediate addresses towards
// TraceTarget. Failures and timeouts yield an empty path.
func (d *Detector) Traceroute(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, d.config.TraceTimeout)
	defer cancel()

	hops := strconv.Itoa(d.config.MaxHops)
	var (
		name string
		out  []byte
		err  error
	)
	if d.platform == sysexec.Windows {
		name = "tracert"
		wait := strconv.FormatInt(d.config.HopTimeout.Milliseconds(), 10)
		out, err = d.runner.Run(ctx, name, "-d", "-h", hops, "-w", wait, d.config.TraceTarget)
	} else {
		name = "traceroute"
		wait := strconv.Itoa(max(int(d.config.HopTimeout.Seconds()), 1))
		out, err = d.runner.Run(ctx, name, "-n", "-m", hops, "-w", wait, d.config.TraceTarget)
	}
	if err != nil {
		d.logger.Debug("Traceroute failed", "error", errors.ErrCommandFailed(name, err))
		return []string{}
	}
	return ParseTraceroute(string(out), d.config.TraceTarget, d.config.MaxHops)
}

// Detect runs every probe concurrently. A missing gateway is logged and
// leaves Info.Gateway empty.
func (d *Detector) Detect(ctx context.Context) Info {
	info := Info{ExternalIP: UnknownExternalIP, Path: []string{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gw, err := d.DefaultGateway(gctx)
		if err != nil {
			d.logger.WarnStrategy("Default gateway not found", "gateway", err)
			return nil
		}
		info.Gateway = gw
		return nil
	})
	g.Go(func() error {
		info.Routes = d.Routes(gctx)
		return nil
	})
	if !d.config.SkipExternal {
		g.Go(func() error {
			info.ExternalIP = d.ExternalIP(gctx)
			return nil
		})
		g.Go(func() error {
			info.Path = d.Traceroute(gctx)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.InfoTopology("Topology detected",
		"gateway", info.Gateway,
		"external_ip", info.ExternalIP,
		"routes", len(info.Routes),
		"hops", len(info.Path))
	return info
}
