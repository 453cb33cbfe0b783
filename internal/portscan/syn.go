package portscan

import (
	"context"
	"fmt"
	"os"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/sysexec"
)

// Messages reported when a SYN scan degrades to TCP connect.
const (
	SYNPrivilegeMessage     = "SYN scan requires raw-socket privilege; falling back to TCP connect"
	SYNHelperMissingMessage = "SYN scan needs the nmap helper, which is unavailable; falling back to TCP connect"
	SYNHelperFailedMessage  = "SYN scan via nmap failed; falling back to TCP connect"
)

// SYNFallbackReason picks the fallback message for the actual cause.
func SYNFallbackReason(privileged, haveHelper bool, helperErr error) string {
	switch {
	case haveHelper && helperErr != nil:
		return SYNHelperFailedMessage
	case !haveHelper && !privileged:
		return SYNPrivilegeMessage
	default:
		return SYNHelperMissingMessage
	}
}

// IsSYNFallback reports whether msg is one of the SYN fallback messages.
func IsSYNFallback(msg string) bool {
	return msg == SYNPrivilegeMessage || msg == SYNHelperMissingMessage || msg == SYNHelperFailedMessage
}

// SYNHelper performs half-open scans and returns open TCP ports per address.
type SYNHelper interface {
	ScanSYN(ctx context.Context, ips []string, ports []int) (map[string][]int, error)
}

// Privileged reports whether the process may open raw sockets.
func Privileged() bool {
	return os.Geteuid() == 0
}

// NmapSYN delegates SYN scans to the nmap binary.
type NmapSYN struct {
	logger *logging.Logger
}

// NewNmapSYN returns a helper when the process is privileged and nmap is on
// PATH, or nil otherwise.
func NewNmapSYN() *NmapSYN {
	if !Privileged() || !sysexec.Available("nmap") {
		return nil
	}
	return &NmapSYN{logger: logging.WithComponent("nmap")}
}

// ScanSYN implements SYNHelper.
func (n *NmapSYN) ScanSYN(ctx context.Context, ips []string, ports []int) (map[string][]int, error) {
	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(ips...),
		nmap.WithPorts(FormatPorts(ports)),
		nmap.WithSYNScan(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("run nmap syn scan: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Warn("nmap reported warnings", "warnings", *warnings)
	}

	open := make(map[string][]int)
	for _, h := range result.Hosts {
		if len(h.Addresses) == 0 {
			continue
		}
		ip := h.Addresses[0].Addr
		for _, p := range h.Ports {
			if p.State.State == "open" {
				open[ip] = append(open[ip], int(p.ID))
			}
		}
	}
	return open, nil
}
