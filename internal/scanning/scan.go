// Package scanning runs a reconnaissance scan from a target range to a list
// of annotated hosts.
//
// A Scan moves through fixed phases: range parsing, host discovery, port
// scanning, service detection, OS inference, vulnerability heuristics and
// topology mapping. Phases switched off by the configuration are skipped but
// still advance the progress fraction. Topology detection starts alongside
// discovery and is joined in the last phase.
//
// Every Scan owns its own worker pool and host map, so two scans never share
// state. Cancelling the context stops the pipeline between phases and inside
// each per-host and per-port loop; the partial result is still returned.
package scanning

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/netrecon/internal/discovery"
	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/fingerprint"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/osdetect"
	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/sysexec"
	"github.com/anstrom/netrecon/internal/targets"
	"github.com/anstrom/netrecon/internal/topology"
	"github.com/anstrom/netrecon/internal/vuln"
	"github.com/anstrom/netrecon/internal/workers"
)

// Progress is one status update from a running scan.
type Progress struct {
	ScanID      string    `json:"scan_id"`
	State       State     `json:"state"`
	Phase       int       `json:"phase"`
	TotalPhases int       `json:"total_phases"`
	Fraction    float64   `json:"fraction"`
	Message     string    `json:"message"`
	Time        time.Time `json:"time"`
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running the scan and from worker goroutines, one call at a time.
type ProgressFunc func(Progress)

// Result is everything a scan learned.
type Result struct {
	ID         string            `json:"id"`
	Config     Config            `json:"config"`
	State      State             `json:"state"`
	Hosts      []hosts.Host      `json:"hosts"`
	Ports      []portscan.Result `json:"ports,omitempty"`
	Topology   *topology.Info    `json:"topology,omitempty"`
	Notes      []string          `json:"notes,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
}

// AliveCount returns the number of live hosts.
func (r *Result) AliveCount() int {
	n := 0
	for i := range r.Hosts {
		if r.Hosts[i].Alive {
			n++
		}
	}
	return n
}

// Dependencies are the collaborators a scan is built from. Zero values
// select the real system implementations.
type Dependencies struct {
	Runner     sysexec.Runner
	Platform   sysexec.Platform
	Pinger     discovery.Pinger
	Resolver   discovery.Resolver
	Interfaces discovery.InterfaceSource
	Catalog    *fingerprint.Catalog
	Probes     portscan.Options
	Topology   topology.Config
	RateLimit  int
	Metrics    metrics.Recorder
}

// Scan is one run of the pipeline.
type Scan struct {
	id      string
	config  Config
	deps    Dependencies
	metrics metrics.Recorder
	logger  *logging.Logger

	mu       sync.Mutex
	state    State
	phase    int
	progress ProgressFunc

	emitMu sync.Mutex
}

// New creates a scan with a fresh ID. config is normalized.
func New(config Config, deps Dependencies) *Scan {
	if deps.Catalog == nil {
		deps.Catalog = fingerprint.Default()
	}
	if deps.Runner == nil {
		deps.Runner = sysexec.NewExecRunner(sysexec.DefaultTimeout)
	}
	id := uuid.NewString()
	return &Scan{
		id:      id,
		config:  config.Normalize(),
		deps:    deps,
		metrics: metrics.OrNop(deps.Metrics),
		logger:  logging.WithComponent("scanning").WithScanID(id),
		state:   Idle,
	}
}

// ID returns the scan's unique identifier.
func (s *Scan) ID() string { return s.id }

// Config returns the normalized configuration.
func (s *Scan) Config() Config { return s.config }

// State returns the current state.
func (s *Scan) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the pipeline. A bad target fails with state Failed before
// any probing; cancellation yields state Cancelled with partial hosts.
// The returned result is never nil.
func (s *Scan) Run(ctx context.Context, progress ProgressFunc) (*Result, error) {
	s.mu.Lock()
	s.progress = progress
	s.mu.Unlock()

	ctx = logging.ContextWithScanID(ctx, s.id)
	cfg := s.config
	found := hosts.NewMap()
	result := &Result{ID: s.id, Config: cfg, StartedAt: time.Now()}

	s.logger.InfoScan("Scan started", cfg.Target, "scan_type", cfg.ScanType, "technique", cfg.Technique)

	// Phase 1: parsing.
	s.enter(Parsing, "Parsing target "+cfg.Target)
	addrs, err := targets.Parse(cfg.Target)
	if err != nil {
		return s.finish(result, found, Failed, err)
	}
	s.emit(fmt.Sprintf("Target expands to %d addresses", len(addrs)))

	pool, err := workers.New(workers.Config{Size: cfg.Threads, RateLimit: s.deps.RateLimit}, s.metrics)
	if err != nil {
		return s.finish(result, found, Failed,
			errors.WrapScanError(errors.CodeConfiguration, "create worker pool", err))
	}
	defer pool.Stop()

	var topo topology.Info
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Traceroute {
		detector := topology.NewDetector(s.deps.Topology, s.deps.Runner, s.deps.Platform)
		g.Go(func() error {
			topo = detector.Detect(gctx)
			return nil
		})
	}
	defer func() { _ = g.Wait() }()

	steps := []struct {
		state   State
		enabled bool
		run     func(context.Context) error
	}{
		{Discovering, true, func(ctx context.Context) error {
			return s.discover(ctx, pool, found)
		}},
		{PortScanning, cfg.ScansPorts(), func(ctx context.Context) error {
			return s.scanPorts(ctx, pool, found, result)
		}},
		{ServiceDetecting, cfg.ScansPorts() && cfg.DetectServices, func(ctx context.Context) error {
			return s.detectServices(ctx, pool, found)
		}},
		{OSDetecting, cfg.ScansPorts() && cfg.DetectOS, func(ctx context.Context) error {
			return s.eachHost(ctx, found, func(h *hosts.Host) {
				h.OS = osdetect.Infer(h.OpenPorts)
			})
		}},
		{VulnScanning, cfg.ScansPorts() && cfg.AssessVulns, func(ctx context.Context) error {
			return s.eachHost(ctx, found, func(h *hosts.Host) {
				a := vuln.Apply(h)
				s.metrics.RiskAssessed(a.Tier.String())
			})
		}},
		{TopologyMapping, cfg.Traceroute, func(context.Context) error {
			_ = g.Wait()
			result.Topology = &topo
			applyTopology(found, topo)
			return nil
		}},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return s.finish(result, found, Cancelled, errors.ErrScanCanceled(cfg.Target))
		}
		if !step.enabled {
			s.skip(step.state)
			continue
		}

		s.enter(step.state, phaseMessage(step.state))
		start := time.Now()
		err := step.run(ctx)
		s.metrics.PhaseFinished(string(step.state), time.Since(start))

		if ctx.Err() != nil {
			return s.finish(result, found, Cancelled, errors.ErrScanCanceled(cfg.Target))
		}
		if err != nil {
			if errors.IsFatal(err) {
				return s.finish(result, found, Failed, err)
			}
			s.logger.Warn("Phase degraded", "phase", step.state, "error", err)
			result.Notes = append(result.Notes, fmt.Sprintf("%s incomplete: %v", step.state, err))
		}
	}

	return s.finish(result, found, Completed, nil)
}

func (s *Scan) discover(ctx context.Context, pool *workers.Pool, found *hosts.Map) error {
	engine := discovery.NewEngine(discovery.Options{
		Runner:       s.deps.Runner,
		Pinger:       s.deps.Pinger,
		Resolver:     s.deps.Resolver,
		Interfaces:   s.deps.Interfaces,
		Catalog:      s.deps.Catalog,
		Pool:         pool,
		Timeout:      s.config.Timeout(),
		ResolveNames: s.config.ResolveHostnames,
		Metrics:      s.metrics,
	})
	err := engine.Discover(ctx, discovery.Config{
		Network:   s.config.Target,
		FullSweep: s.config.ScanType == FullScan,
	}, found, s.emit)
	s.emit(fmt.Sprintf("Discovered %d hosts", found.Len()))
	return err
}

func (s *Scan) scanPorts(ctx context.Context, pool *workers.Pool, found *hosts.Map, result *Result) error {
	scanner := portscan.NewScanner(portscan.Config{
		Technique: s.config.Technique,
		Ports:     s.config.Ports,
		Timeout:   s.config.Timeout(),
	}, pool, s.metrics, s.deps.Probes)

	results, err := scanner.Scan(ctx, found.IPs(), found, func(msg string) {
		if portscan.IsSYNFallback(msg) {
			result.Notes = append(result.Notes, msg)
		}
		s.emit(msg)
	})
	result.Ports = results
	if s.config.Technique == portscan.UDP || s.config.Technique == portscan.Comprehensive {
		result.Notes = append(result.Notes, portscan.UDPCaveat)
	}
	return err
}

func (s *Scan) detectServices(ctx context.Context, pool *workers.Pool, found *hosts.Map) error {
	var grabber *fingerprint.Grabber
	if s.config.GrabBanners {
		grabber = fingerprint.NewGrabber(s.config.Timeout())
	}
	engine := fingerprint.NewEngine(s.deps.Catalog, grabber)

	for _, h := range found.Sorted() {
		if len(h.OpenPorts) == 0 {
			continue
		}
		ip, ports := h.IP, h.OpenPorts
		err := pool.Go(ctx, ip, "fingerprint", func(ctx context.Context) error {
			labels := engine.Identify(ctx, ip, ports)
			found.Update(ip, func(h *hosts.Host) { h.AddServices(labels...) })
			return ctx.Err()
		})
		if err != nil {
			break
		}
	}
	pool.Wait()
	return nil
}

// eachHost applies fn to every host, checking for cancellation between hosts.
func (s *Scan) eachHost(ctx context.Context, found *hosts.Map, fn func(h *hosts.Host)) error {
	for _, ip := range found.IPs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		found.Update(ip, fn)
	}
	return nil
}

// applyTopology attaches the internet path to the gateway's record and lays
// hosts out on a circle around it.
func applyTopology(found *hosts.Map, info topology.Info) {
	if info.Gateway != "" {
		found.Update(info.Gateway, func(h *hosts.Host) {
			h.Traceroute = append([]string(nil), info.Path...)
		})
	}

	ips := found.IPs()
	var ring []string
	for _, ip := range ips {
		if ip != info.Gateway {
			ring = append(ring, ip)
		}
	}
	const radius = 200.0
	for i, ip := range ring {
		angle := 2 * math.Pi * float64(i) / float64(len(ring))
		found.Update(ip, func(h *hosts.Host) {
			h.X = math.Round(radius*math.Cos(angle)*100) / 100
			h.Y = math.Round(radius*math.Sin(angle)*100) / 100
		})
	}
}

func phaseMessage(state State) string {
	switch state {
	case Discovering:
		return "Discovering hosts"
	case PortScanning:
		return "Scanning ports"
	case ServiceDetecting:
		return "Identifying services"
	case OSDetecting:
		return "Inferring operating systems"
	case VulnScanning:
		return "Assessing vulnerabilities"
	case TopologyMapping:
		return "Mapping network topology"
	}
	return string(state)
}

func (s *Scan) enter(state State, msg string) {
	s.mu.Lock()
	if s.state.CanTransition(state) {
		s.state = state
	}
	s.phase = state.Phase()
	s.mu.Unlock()
	s.logger.Debug("Phase started", "phase", state)
	s.emit(msg)
}

func (s *Scan) skip(state State) {
	s.mu.Lock()
	s.phase = state.Phase()
	s.mu.Unlock()
	s.emitFraction("Skipped "+string(state), float64(state.Phase())/float64(TotalPhases))
}

func (s *Scan) emit(msg string) {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	fraction := 0.0
	if phase > 0 {
		fraction = float64(phase-1) / float64(TotalPhases)
	}
	s.emitFraction(msg, fraction)
}

func (s *Scan) emitFraction(msg string, fraction float64) {
	s.mu.Lock()
	progress := s.progress
	p := Progress{
		ScanID:      s.id,
		State:       s.state,
		Phase:       s.phase,
		TotalPhases: TotalPhases,
		Fraction:    fraction,
		Message:     msg,
		Time:        time.Now(),
	}
	s.mu.Unlock()
	if progress == nil {
		return
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	progress(p)
}

func (s *Scan) finish(result *Result, found *hosts.Map, state State, err error) (*Result, error) {
	s.mu.Lock()
	if s.state.CanTransition(state) {
		s.state = state
	}
	s.mu.Unlock()

	result.State = state
	result.Hosts = found.Sorted()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	if err != nil {
		result.Error = err.Error()
	}
	s.metrics.ScanFinished(string(s.config.ScanType), string(state), result.Duration)

	switch state {
	case Completed:
		s.emitFraction(fmt.Sprintf("Scan complete: %d hosts", len(result.Hosts)), 1)
		s.logger.InfoScan("Scan completed", s.config.Target,
			"hosts", len(result.Hosts), "duration", result.Duration)
	case Cancelled:
		s.emit(fmt.Sprintf("Scan cancelled with %d hosts", len(result.Hosts)))
		s.logger.InfoScan("Scan cancelled", s.config.Target, "hosts", len(result.Hosts))
	default:
		s.emit("Scan failed: " + result.Error)
		s.logger.ErrorScan("Scan failed", s.config.Target, err)
	}
	return result, err
}

// Run builds and runs a scan in one call.
func Run(ctx context.Context, config Config, deps Dependencies, progress ProgressFunc) (*Result, error) {
	return New(config, deps).Run(ctx, progress)
}
