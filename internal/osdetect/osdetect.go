// Package osdetect guesses a host's operating system from its open ports.
//
// The guess is a heuristic: rules are evaluated in a fixed priority order and
// the first match wins.
package osdetect

import "github.com/anstrom/netrecon/internal/hosts"

// Labels returned by Infer.
const (
	WindowsSMB    = "Windows (SMB/RPC)"
	WindowsRDP    = "Windows (RDP)"
	LinuxSSH      = "Linux/Unix (SSH)"
	MacOS         = "macOS"
	NetworkDevice = "Network device"
	Unknown       = hosts.UnknownOS
)

type portSet map[int]struct{}

func (s portSet) has(ports ...int) bool {
	for _, p := range ports {
		if _, ok := s[p]; !ok {
			return false
		}
	}
	return true
}

// Rule maps a port pattern to an OS label.
type Rule struct {
	Label string
	match func(open portSet) bool
}

// Rules is the ordered rule table.
var Rules = []Rule{
	{WindowsSMB, func(s portSet) bool { return s.has(135, 139, 445) }},
	{WindowsRDP, func(s portSet) bool { return s.has(3389) }},
	{LinuxSSH, func(s portSet) bool { return s.has(22) && !s.has(135) }},
	{MacOS, func(s portSet) bool { return s.has(548) || s.has(5900) }},
	{NetworkDevice, func(s portSet) bool { return s.has(23, 80) && len(s) < 5 }},
}

// Infer returns the label of the first rule matching ports, or Unknown.
func Infer(ports []int) string {
	open := make(portSet, len(ports))
	for _, p := range ports {
		open[p] = struct{}{}
	}
	for _, r := range Rules {
		if r.match(open) {
			return r.Label
		}
	}
	return Unknown
}
