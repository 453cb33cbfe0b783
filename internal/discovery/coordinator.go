// Package discovery finds live hosts in a target range. It combines the
// operating system's address table, an active liveness probe and the local
// machine's own interfaces, and falls back to a plain ping sweep when the
// address-table path cannot run. Every strategy writes into one shared
// hosts.Map so partial records for the same address are merged.
package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/fingerprint"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/sysexec"
	"github.com/anstrom/netrecon/internal/targets"
	"github.com/anstrom/netrecon/internal/workers"
)

// Discovery methods, used in logs and metrics.
const (
	MethodARP       = "arp"
	MethodProbe     = "probe"
	MethodPingSweep = "ping_sweep"
	MethodLocal     = "local"
)

// Options wires an Engine. Zero values select system defaults.
type Options struct {
	Runner       sysexec.Runner
	Pinger       Pinger
	Resolver     Resolver
	Interfaces   InterfaceSource
	Catalog      *fingerprint.Catalog
	Pool         *workers.Pool
	Timeout      time.Duration
	ResolveNames bool
	Metrics      metrics.Recorder
}

// Config describes one discovery run.
type Config struct {
	Network string
	// FullSweep adds a ping sweep after the primary strategy.
	FullSweep bool
}

// Engine coordinates the discovery strategies for one scan.
type Engine struct {
	arp        *ARPReader
	prober     *Prober
	sweeper    *Prober
	interfaces InterfaceSource
	catalog    *fingerprint.Catalog
	metrics    metrics.Recorder
	logger     *logging.Logger
}

// NewEngine creates a discovery engine. Options.Pool is required.
func NewEngine(opts Options) *Engine {
	if opts.Runner == nil {
		opts.Runner = sysexec.NewExecRunner(sysexec.DefaultTimeout)
	}
	if opts.Pinger == nil {
		opts.Pinger = SystemPinger()
	}
	if opts.Interfaces == nil {
		opts.Interfaces = SystemInterfaces
	}
	if opts.Catalog == nil {
		opts.Catalog = fingerprint.Default()
	}

	arp := NewARPReader(opts.Runner, opts.Catalog)

	prober := NewProber(opts.Pinger, opts.Resolver, opts.Pool)
	prober.SetTimeout(opts.Timeout)
	prober.SetResolveNames(opts.ResolveNames)
	prober.SetARPReader(arp)

	sweeper := NewProber(opts.Pinger, opts.Resolver, opts.Pool)
	sweeper.SetTimeout(opts.Timeout)
	sweeper.SetResolveNames(opts.ResolveNames)

	return &Engine{
		arp:        arp,
		prober:     prober,
		sweeper:    sweeper,
		interfaces: opts.Interfaces,
		catalog:    opts.Catalog,
		metrics:    metrics.OrNop(opts.Metrics),
		logger:     logging.WithComponent("discovery"),
	}
}

// Discover merges every host found in cfg.Network into into. It fails only
// for an invalid range or cancellation; strategy failures degrade.
func (e *Engine) Discover(ctx context.Context, cfg Config, into *hosts.Map, progress ProgressFunc) error {
	sweepTargets, err := targets.Parse(cfg.Network)
	if err != nil {
		return err
	}
	inRange, addrOf := e.scope(ctx, cfg.Network, sweepTargets)

	e.logger.InfoDiscovery("Starting host discovery", cfg.Network,
		"targets", len(sweepTargets), "full_sweep", cfg.FullSweep)

	if err := e.primary(ctx, cfg, into, inRange, progress); err != nil {
		if ctx.Err() != nil {
			return errors.ErrScanCanceled(cfg.Network)
		}
		e.logger.WarnStrategy("Primary discovery failed, falling back to ping sweep", MethodARP, err,
			"network", cfg.Network)
		progress.report("Address table unavailable, falling back to ping sweep")
		if err := e.sweep(ctx, sweepTargets, into, progress); err != nil {
			if ctx.Err() != nil {
				return errors.ErrScanCanceled(cfg.Network)
			}
			e.logger.ErrorDiscovery("Ping sweep failed", cfg.Network, err)
		}
	}

	e.local(ctx, into, inRange, progress)

	if cfg.FullSweep {
		var missing []string
		for _, t := range sweepTargets {
			if !into.Contains(addrOf(t)) {
				missing = append(missing, t)
			}
		}
		if err := e.sweep(ctx, missing, into, progress); err != nil && ctx.Err() != nil {
			return errors.ErrScanCanceled(cfg.Network)
		}
	}

	if ctx.Err() != nil {
		return errors.ErrScanCanceled(cfg.Network)
	}
	e.logger.InfoDiscovery("Host discovery finished", cfg.Network, "hosts", into.Len())
	return nil
}

// primary reads the address table and then actively probes the ARP-capped
// target list.
func (e *Engine) primary(ctx context.Context, cfg Config, into *hosts.Map, inRange func(string) bool, progress ProgressFunc) error {
	entries, err := e.arp.ReadTable(ctx)
	if err != nil {
		return errors.ErrDiscoveryFailed(cfg.Network, MethodARP, err)
	}
	var local []hosts.Host
	for _, h := range entries {
		if inRange(h.IP) {
			local = append(local, h)
		}
	}
	added := into.UpsertAll(local)
	e.metrics.HostsDiscovered(MethodARP, added)
	progress.report(fmt.Sprintf("Found %d devices via address table", len(local)))

	probeTargets, err := targets.ParseARP(cfg.Network)
	if err != nil {
		return err
	}
	found, err := e.prober.Probe(ctx, probeTargets, progress)
	added = into.UpsertAll(found)
	e.metrics.HostsDiscovered(MethodProbe, added)
	progress.report(fmt.Sprintf("Found %d responsive hosts via active probe", len(found)))
	if err != nil {
		return errors.ErrDiscoveryFailed(cfg.Network, MethodProbe, err)
	}
	return nil
}

func (e *Engine) sweep(ctx context.Context, list []string, into *hosts.Map, progress ProgressFunc) error {
	if len(list) == 0 {
		return nil
	}
	found, err := e.sweeper.Probe(ctx, list, progress)
	added := into.UpsertAll(found)
	e.metrics.HostsDiscovered(MethodPingSweep, added)
	progress.report(fmt.Sprintf("Ping sweep found %d additional hosts", added))
	return err
}

func (e *Engine) local(ctx context.Context, into *hosts.Map, inRange func(string) bool, progress ProgressFunc) {
	stats, err := e.interfaces(ctx)
	if err != nil {
		e.logger.WarnStrategy("Interface enumeration failed", MethodLocal, err)
		return
	}
	added := 0
	for _, h := range LocalHosts(stats, e.catalog) {
		if !inRange(h.IP) {
			continue
		}
		if !into.Contains(h.IP) {
			added++
		}
		into.Upsert(h)
	}
	e.metrics.HostsDiscovered(MethodLocal, added)
	if added > 0 {
		progress.report(fmt.Sprintf("Added %d local interface addresses", added))
	}
}

// scope returns the filter that keeps discovered addresses inside the
// target, and a function mapping each sweep target to the address it is
// recorded under. A hostname target is resolved once and matches only its
// IPv4 address; if it does not resolve, nothing matches.
func (e *Engine) scope(ctx context.Context, network string, sweepTargets []string) (func(string) bool, func(string) string) {
	identity := func(t string) string { return t }
	if r, err := targets.Range(network); err == nil {
		return func(ip string) bool {
			addr, err := netip.ParseAddr(ip)
			return err == nil && r.Contains(addr)
		}, identity
	}

	// targets.Parse keeps a hostname as its only entry.
	name := sweepTargets[0]
	ip, err := e.prober.lookupIPv4(ctx, name)
	if err != nil {
		e.logger.WithTarget(name).Warn("Hostname target did not resolve", "error", err)
		return func(string) bool { return false }, identity
	}
	e.logger.WithTarget(name).Debug("Hostname target resolved", "ip", ip)
	return func(a string) bool { return a == ip }, func(t string) string {
		if t == name {
			return ip
		}
		return t
	}
}
