package scanning

import (
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/portscan"
)

// ScanType selects which phases a scan runs.
type ScanType string

const (
	PingSweep ScanType = "ping"
	PortScan  ScanType = "port"
	FullScan  ScanType = "full"
	Custom    ScanType = "custom"
)

// ParseScanType accepts the scan type names and their long forms.
func ParseScanType(s string) (ScanType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ping", "ping-sweep", "discovery":
		return PingSweep, nil
	case "", "port", "port-scan":
		return PortScan, nil
	case "full", "full-scan":
		return FullScan, nil
	case "custom":
		return Custom, nil
	}
	return "", errors.ErrConfigInvalid("scan_type", s)
}

// Fallbacks used when numeric input does not parse.
const (
	DefaultTimeoutMS = 3000
	DefaultThreads   = 50
)

// ParseTimeout parses a millisecond timeout, falling back to DefaultTimeoutMS.
func ParseTimeout(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return DefaultTimeoutMS
	}
	return v
}

// ParseThreads parses a worker count, falling back to DefaultThreads.
func ParseThreads(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return DefaultThreads
	}
	return v
}

// Config describes one scan. Build it once and do not modify it while the
// scan runs.
type Config struct {
	Target        string             `json:"target" validate:"required"`
	ScanType      ScanType           `json:"scan_type" validate:"omitempty,oneof=ping port full custom"`
	Technique     portscan.Technique `json:"technique" validate:"omitempty,oneof=tcp syn udp comprehensive"`
	Ports         []int              `json:"ports,omitempty" validate:"omitempty,dive,min=1,max=65535"`
	ExtendedPorts bool               `json:"extended_ports"`
	TimeoutMS     int                `json:"timeout_ms" validate:"omitempty,min=1"`
	Threads       int                `json:"threads" validate:"omitempty,min=1,max=1000"`

	ResolveHostnames bool `json:"resolve_hostnames"`
	DetectServices   bool `json:"detect_services"`
	GrabBanners      bool `json:"grab_banners"`
	DetectOS         bool `json:"detect_os"`
	AssessVulns      bool `json:"assess_vulns"`
	Traceroute       bool `json:"traceroute"`
}

// DefaultConfig returns a port scan of target with service and OS detection.
func DefaultConfig(target string) Config {
	return Config{
		Target:           target,
		ScanType:         PortScan,
		Technique:        portscan.TCPConnect,
		TimeoutMS:        DefaultTimeoutMS,
		Threads:          DefaultThreads,
		ResolveHostnames: true,
		DetectServices:   true,
		DetectOS:         true,
		AssessVulns:      true,
	}
}

// Normalize fills defaults. A full scan turns every optional phase on.
func (c Config) Normalize() Config {
	c.Target = strings.TrimSpace(c.Target)
	if c.ScanType == "" {
		c.ScanType = PortScan
	}
	if c.Technique == "" {
		c.Technique = portscan.TCPConnect
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.ScanType == FullScan {
		c.ResolveHostnames = true
		c.DetectServices = true
		c.DetectOS = true
		c.AssessVulns = true
		c.Traceroute = true
	}
	if c.ScansPorts() && len(c.Ports) == 0 {
		if c.ExtendedPorts {
			c.Ports = portscan.ExtendedPorts
		} else {
			c.Ports = portscan.CommonPorts
		}
	}
	return c
}

// ScansPorts reports whether the port scanning phase runs.
func (c Config) ScansPorts() bool {
	return c.ScanType != PingSweep
}

// Timeout returns TimeoutMS as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
