package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/workers"
)

// DefaultProbeTimeout bounds one liveness probe.
const DefaultProbeTimeout = time.Second

// Resolver is the subset of *net.Resolver used for name lookups.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ProgressFunc receives human-readable status lines.
type ProgressFunc func(msg string)

func (f ProgressFunc) report(msg string) {
	if f != nil {
		f(msg)
	}
}

// Prober checks target liveness concurrently on a worker pool.
type Prober struct {
	pinger       Pinger
	resolver     Resolver
	pool         *workers.Pool
	timeout      time.Duration
	resolveNames bool
	arp          *ARPReader
	logger       *logging.Logger
}

// NewProber creates a prober. A nil resolver uses net.DefaultResolver.
func NewProber(pinger Pinger, resolver Resolver, pool *workers.Pool) *Prober {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Prober{
		pinger:       pinger,
		resolver:     resolver,
		pool:         pool,
		timeout:      DefaultProbeTimeout,
		resolveNames: true,
		logger:       logging.WithComponent("prober"),
	}
}

// SetTimeout sets the per-probe timeout.
func (p *Prober) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.timeout = timeout
	}
}

// SetResolveNames toggles reverse DNS lookups for live hosts.
func (p *Prober) SetResolveNames(enabled bool) {
	p.resolveNames = enabled
}

// SetARPReader enables re-reading the address table after each batch to
// backfill hardware addresses of hosts that answered.
func (p *Prober) SetARPReader(r *ARPReader) {
	p.arp = r
}

// Probe pings every target once and returns the hosts that answered,
// sorted by address. On cancellation the hosts found so far are returned
// together with the context error.
func (p *Prober) Probe(ctx context.Context, targets []string, progress ProgressFunc) ([]hosts.Host, error) {
	found := hosts.NewMap()
	var done atomic.Int64
	var progressMu sync.Mutex
	total := len(targets)

	var submitErr error
	for _, target := range targets {
		err := p.pool.Go(ctx, target, "probe", func(ctx context.Context) error {
			defer func() {
				if n := done.Add(1); n%50 == 0 || int(n) == total {
					progressMu.Lock()
					progress.report(probeProgress(int(n), total))
					progressMu.Unlock()
				}
			}()
			h, err := p.probeOne(ctx, target)
			if err != nil {
				return err
			}
			found.Upsert(h)
			return nil
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	p.pool.Wait()

	if p.arp != nil && found.Len() > 0 && ctx.Err() == nil {
		p.backfill(ctx, found)
	}

	if err := ctx.Err(); err != nil {
		return found.Sorted(), err
	}
	if submitErr != nil {
		return found.Sorted(), submitErr
	}
	return found.Sorted(), nil
}

func (p *Prober) backfill(ctx context.Context, found *hosts.Map) {
	filled := 0
	for _, entry := range p.arp.Read(ctx) {
		found.Update(entry.IP, func(h *hosts.Host) {
			if h.MAC == "" {
				h.MAC = entry.MAC
				h.Vendor = entry.Vendor
				filled++
			}
		})
	}
	if filled > 0 {
		p.logger.Debug("Backfilled hardware addresses", "count", filled)
	}
}

func probeProgress(done, total int) string {
	return fmt.Sprintf("Probed %d/%d addresses", done, total)
}

func (p *Prober) probeOne(ctx context.Context, target string) (hosts.Host, error) {
	ip, name := target, ""
	if net.ParseIP(target) == nil {
		resolved, err := p.lookupIPv4(ctx, target)
		if err != nil {
			return hosts.Host{}, err
		}
		ip, name = resolved, target
	}

	rtt, err := p.pinger.Ping(ctx, ip, p.timeout)
	if err != nil {
		return hosts.Host{}, err
	}

	h := hosts.New(ip)
	h.Alive = true
	h.ResponseTime = max(rtt.Milliseconds(), 1)
	h.Hostname = name
	if h.Hostname == "" && p.resolveNames {
		h.Hostname = p.reverse(ctx, ip)
	}
	return h, nil
}

func (p *Prober) lookupIPv4(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	addrs, err := p.resolver.LookupHost(ctx, name)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return "", errors.New("no IPv4 address for " + name)
}

func (p *Prober) reverse(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	names, err := p.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
