// Package portscan probes ports on discovered hosts. TCP connect is the
// baseline technique; UDP sends protocol-aware stimuli and can only prove a
// port open (see UDPCaveat); SYN scans run through nmap when the process is
// privileged and otherwise fall back to TCP connect.
package portscan

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/workers"
)

// DefaultTimeout bounds one port probe.
const DefaultTimeout = 3 * time.Second

// ProgressFunc receives human-readable status lines.
type ProgressFunc func(msg string)

// Config controls a port scan.
type Config struct {
	Technique Technique
	Ports     []int
	Timeout   time.Duration
}

// Options overrides the probes used by a Scanner. Nil fields select the
// network implementations.
type Options struct {
	TCP ProbeFunc
	UDP ProbeFunc
	SYN SYNHelper
}

// Result lists the open ports found on one host.
type Result struct {
	IP  string `json:"ip"`
	TCP []int  `json:"tcp,omitempty"`
	UDP []int  `json:"udp,omitempty"`
}

// Open returns the union of TCP and UDP ports.
func (r Result) Open() []int {
	out := slices.Concat(r.TCP, r.UDP)
	slices.Sort(out)
	return slices.Compact(out)
}

// Scanner runs one host per worker-pool job.
type Scanner struct {
	config  Config
	pool    *workers.Pool
	tcp     ProbeFunc
	udp     ProbeFunc
	syn     SYNHelper
	metrics metrics.Recorder
	logger  *logging.Logger
}

// NewScanner creates a scanner. An empty port list selects CommonPorts.
func NewScanner(config Config, pool *workers.Pool, recorder metrics.Recorder, opts Options) *Scanner {
	if len(config.Ports) == 0 {
		config.Ports = CommonPorts
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Technique == "" {
		config.Technique = TCPConnect
	}

	s := &Scanner{
		config:  config,
		pool:    pool,
		tcp:     opts.TCP,
		udp:     opts.UDP,
		syn:     opts.SYN,
		metrics: metrics.OrNop(recorder),
		logger:  logging.WithComponent("portscan"),
	}
	if s.tcp == nil {
		s.tcp = ProbeTCP
	}
	if s.udp == nil {
		s.udp = ProbeUDP
	}
	if s.syn == nil && config.Technique == TCPSYN {
		if helper := NewNmapSYN(); helper != nil {
			s.syn = helper
		}
	}
	return s
}

// plan returns the TCP and UDP port lists for the configured technique.
func (s *Scanner) plan() (tcp, udp []int) {
	switch s.config.Technique {
	case UDP:
		return nil, s.config.Ports
	case Comprehensive:
		return s.config.Ports, ComprehensiveUDPPorts
	default:
		return s.config.Ports, nil
	}
}

// Scan probes every address in ips, records open ports in into and returns
// one Result per address, sorted. On cancellation the hosts finished so far
// are returned with the cancellation error.
func (s *Scanner) Scan(ctx context.Context, ips []string, into *hosts.Map, progress ProgressFunc) ([]Result, error) {
	report := func(msg string) {
		if progress != nil {
			progress(msg)
		}
	}
	if len(ips) == 0 {
		return nil, nil
	}

	if s.config.Technique == TCPSYN {
		var synErr error
		if s.syn != nil {
			results, err := s.scanSYN(ctx, ips, into)
			if err == nil {
				return results, nil
			}
			if ctx.Err() != nil {
				return nil, errors.ErrScanCanceled("")
			}
			s.logger.Warn("SYN helper failed", "error", err)
			synErr = err
		}
		report(SYNFallbackReason(Privileged(), s.syn != nil, synErr))
	}

	tcpPorts, udpPorts := s.plan()
	if len(udpPorts) > 0 {
		s.logger.Debug(UDPCaveat)
	}

	var (
		mu       sync.Mutex
		results  []Result
		finished int
	)
	for _, ip := range ips {
		err := s.pool.Go(ctx, ip, "portscan", func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, complete := s.scanHost(ctx, ip, tcpPorts, udpPorts)
			s.record(into, r)

			mu.Lock()
			results = append(results, r)
			finished++
			n := finished
			mu.Unlock()

			if !complete {
				return ctx.Err()
			}
			report(fmt.Sprintf("Scanned %s: %d open ports (%d/%d hosts)", ip, len(r.Open()), n, len(ips)))
			return nil
		})
		if err != nil {
			break
		}
	}
	s.pool.Wait()

	slices.SortFunc(results, func(a, b Result) int { return hosts.CompareAddr(a.IP, b.IP) })
	if ctx.Err() != nil {
		return results, errors.ErrScanCanceled("")
	}
	return results, nil
}

// scanHost probes ports sequentially; complete is false when ctx ended first.
func (s *Scanner) scanHost(ctx context.Context, ip string, tcpPorts, udpPorts []int) (Result, bool) {
	r := Result{IP: ip}
	var closed int
	for _, port := range tcpPorts {
		if ctx.Err() != nil {
			return r, false
		}
		if s.tcp(ctx, ip, port, s.config.Timeout) {
			r.TCP = append(r.TCP, port)
		} else {
			closed++
		}
	}
	s.metrics.PortsProbed("tcp", "open", len(r.TCP))
	s.metrics.PortsProbed("tcp", "closed", closed)

	closed = 0
	for _, port := range udpPorts {
		if ctx.Err() != nil {
			return r, false
		}
		if s.udp(ctx, ip, port, s.config.Timeout) {
			r.UDP = append(r.UDP, port)
		} else {
			closed++
		}
	}
	if len(udpPorts) > 0 {
		s.metrics.PortsProbed("udp", "open", len(r.UDP))
		s.metrics.PortsProbed("udp", "silent", closed)
	}
	return r, true
}

func (s *Scanner) scanSYN(ctx context.Context, ips []string, into *hosts.Map) ([]Result, error) {
	open, err := s.syn.ScanSYN(ctx, ips, s.config.Ports)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(ips))
	for _, ip := range ips {
		ports := open[ip]
		slices.Sort(ports)
		r := Result{IP: ip, TCP: ports}
		s.record(into, r)
		results = append(results, r)
		s.metrics.PortsProbed("tcp", "open", len(ports))
	}
	return results, nil
}

func (s *Scanner) record(into *hosts.Map, r Result) {
	if into == nil {
		return
	}
	open := r.Open()
	h := hosts.New(r.IP)
	h.AddPorts(open...)
	h.Alive = len(open) > 0
	into.Upsert(h)
}
