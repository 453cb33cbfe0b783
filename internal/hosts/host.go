// Package hosts defines the host record shared by every scan phase, the
// additive merge rule used when several strategies report the same address,
// and a concurrency-safe host map keyed by address.
package hosts

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// UnknownOS is the label used when no OS rule matched.
const UnknownOS = "Unknown"

// NotMeasured marks a response time that was never measured.
const NotMeasured int64 = -1

// RiskTier is an ordered exposure classification.
type RiskTier int

const (
	RiskMinimal RiskTier = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"MINIMAL", "LOW", "MEDIUM", "HIGH", "CRITICAL"}

// String returns the upper-case tier name.
func (r RiskTier) String() string {
	if r < RiskMinimal || r > RiskCritical {
		return fmt.Sprintf("RiskTier(%d)", int(r))
	}
	return riskNames[r]
}

// MarshalText encodes the tier by name.
func (r RiskTier) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a tier name.
func (r *RiskTier) UnmarshalText(text []byte) error {
	tier, err := ParseRiskTier(string(text))
	if err != nil {
		return err
	}
	*r = tier
	return nil
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	for i, name := range riskNames {
		if strings.EqualFold(s, name) {
			return RiskTier(i), nil
		}
	}
	return RiskMinimal, fmt.Errorf("unknown risk tier %q", s)
}

// Host is everything learned about one network address during a scan.
type Host struct {
	IP              string   `json:"ip"`
	Hostname        string   `json:"hostname,omitempty"`
	MAC             string   `json:"mac,omitempty"`
	Vendor          string   `json:"vendor,omitempty"`
	Alive           bool     `json:"alive"`
	ResponseTime    int64    `json:"response_time_ms"`
	OpenPorts       []int    `json:"open_ports,omitempty"`
	Services        []string `json:"services,omitempty"`
	OS              string   `json:"os"`
	Traceroute      []string `json:"traceroute,omitempty"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty"`
	Risk            RiskTier `json:"risk"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
}

// New returns an empty record for ip.
func New(ip string) Host {
	return Host{IP: ip, ResponseTime: NotMeasured, OS: UnknownOS}
}

// AddPorts records open ports, keeping the set sorted and unique.
func (h *Host) AddPorts(ports ...int) {
	h.OpenPorts = unionInts(h.OpenPorts, ports)
}

// AddServices records service labels, keeping the set sorted and unique.
func (h *Host) AddServices(services ...string) {
	h.Services = unionStrings(h.Services, services)
}

// AddVulnerabilities records vulnerability descriptions, skipping duplicates
// and keeping the order in which they were first reported.
func (h *Host) AddVulnerabilities(descs ...string) {
	for _, d := range descs {
		if d != "" && !slices.Contains(h.Vulnerabilities, d) {
			h.Vulnerabilities = append(h.Vulnerabilities, d)
		}
	}
}

// HasPort reports whether port is recorded open.
func (h *Host) HasPort(port int) bool {
	_, found := slices.BinarySearch(h.OpenPorts, port)
	return found
}

// Clone returns a deep copy.
func (h Host) Clone() Host {
	c := h
	c.OpenPorts = slices.Clone(h.OpenPorts)
	c.Services = slices.Clone(h.Services)
	c.Traceroute = slices.Clone(h.Traceroute)
	c.Vulnerabilities = slices.Clone(h.Vulnerabilities)
	return c
}

// Merge combines two partial records for the same address. It is additive:
// liveness is OR-ed, the smaller positive response time wins, sets are unioned,
// the higher risk tier wins, and scalar fields are filled when absent. When both
// sides carry different non-empty scalars the choice is made by a symmetric
// rule, so Merge(a, b) and Merge(b, a) are equal.
func Merge(a, b Host) Host {
	out := Host{
		IP:           pickString(a.IP, b.IP),
		Hostname:     pickString(placeholder(a.Hostname, "localhost"), placeholder(b.Hostname, "localhost")),
		MAC:          pickString(a.MAC, b.MAC),
		Vendor:       pickString(a.Vendor, b.Vendor),
		Alive:        a.Alive || b.Alive,
		ResponseTime: mergeResponseTime(a.ResponseTime, b.ResponseTime),
		OS:           pickString(placeholder(a.OS, UnknownOS), placeholder(b.OS, UnknownOS)),
		Risk:         max(a.Risk, b.Risk),
		X:            max(a.X, b.X),
		Y:            max(a.Y, b.Y),
	}
	if out.Hostname == "" && (a.Hostname == "localhost" || b.Hostname == "localhost") {
		out.Hostname = "localhost"
	}
	if out.OS == "" {
		out.OS = UnknownOS
	}

	out.OpenPorts = unionInts(a.OpenPorts, b.OpenPorts)
	out.Services = unionStrings(a.Services, b.Services)
	out.Traceroute = pickPath(a.Traceroute, b.Traceroute)

	// Vulnerabilities keep report order when only one side has them; a true
	// union is sorted so the result does not depend on argument order.
	switch {
	case len(b.Vulnerabilities) == 0 || slices.Equal(a.Vulnerabilities, b.Vulnerabilities):
		out.Vulnerabilities = slices.Clone(a.Vulnerabilities)
	case len(a.Vulnerabilities) == 0:
		out.Vulnerabilities = slices.Clone(b.Vulnerabilities)
	default:
		out.Vulnerabilities = unionStrings(a.Vulnerabilities, b.Vulnerabilities)
	}
	return out
}

func mergeResponseTime(a, b int64) int64 {
	switch {
	case a > 0 && b > 0:
		return min(a, b)
	case a > 0:
		return a
	case b > 0:
		return b
	default:
		return max(a, b)
	}
}

// placeholder blanks out a value that carries no information.
func placeholder(v, filler string) string {
	if v == filler {
		return ""
	}
	return v
}

// pickString fills an absent value; two different values resolve to the
// longer one, then the lexicographically smaller.
func pickString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	case len(a) != len(b):
		if len(a) > len(b) {
			return a
		}
		return b
	default:
		return min(a, b)
	}
}

func pickPath(a, b []string) []string {
	switch {
	case len(a) == 0:
		return slices.Clone(b)
	case len(b) == 0 || len(a) > len(b):
		return slices.Clone(a)
	case len(b) > len(a):
		return slices.Clone(b)
	case slices.Compare(a, b) <= 0:
		return slices.Clone(a)
	default:
		return slices.Clone(b)
	}
}

func unionInts(a, b []int) []int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, s := range slices.Concat(a, b) {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CompareAddr orders addresses numerically; names that are not addresses sort
// after all addresses, alphabetically.
func CompareAddr(a, b string) int {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return pa.Compare(pb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
