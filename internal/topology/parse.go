package topology

import (
	"bufio"
	"net"
	"regexp"
	"strings"

	"github.com/anstrom/netrecon/internal/sysexec"
)

var (
	linuxDefault   = regexp.MustCompile(`(?m)^default\s+via\s+(\d{1,3}(?:\.\d{1,3}){3})`)
	darwinGateway  = regexp.MustCompile(`(?m)^\s*gateway:\s*(\d{1,3}(?:\.\d{1,3}){3})`)
	windowsDefault = regexp.MustCompile(`(?m)^\s*0\.0\.0\.0\s+0\.0\.0\.0\s+(\d{1,3}(?:\.\d{1,3}){3})`)
	ipv4Pattern    = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
)

// Route is one routing-table entry. Gateway is empty for on-link routes.
type Route struct {
	Destination string `json:"destination"`
	Gateway     string `json:"gateway,omitempty"`
	Interface   string `json:"interface,omitempty"`
}

// ParseDefaultGateway extracts the default gateway from the output of the
// platform's default-route query.
func ParseDefaultGateway(platform sysexec.Platform, output string) (string, bool) {
	var re *regexp.Regexp
	switch platform {
	case sysexec.Windows:
		re = windowsDefault
	case sysexec.Darwin:
		re = darwinGateway
	default:
		re = linuxDefault
	}
	m := re.FindStringSubmatch(output)
	if m == nil || net.ParseIP(m[1]) == nil {
		return "", false
	}
	return m[1], true
}

// ParseRoutes parses a routing table listing.
func ParseRoutes(platform sysexec.Platform, output string) []Route {
	switch platform {
	case sysexec.Windows:
		return parseWindowsRoutes(output)
	case sysexec.Darwin:
		return parseNetstatRoutes(output)
	default:
		return parseIPRoutes(output)
	}
}

// "default via 192.168.1.1 dev eth0 proto dhcp metric 100"
// "192.168.1.0/24 dev eth0 proto kernel scope link src 192.168.1.5"
func parseIPRoutes(output string) []Route {
	var routes []Route
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		r := Route{Destination: fields[0]}
		for i := 1; i+1 < len(fields); i++ {
			switch fields[i] {
			case "via":
				r.Gateway = fields[i+1]
			case "dev":
				r.Interface = fields[i+1]
			}
		}
		routes = append(routes, r)
	}
	return routes
}

// netstat -rn -f inet: rows after the "Destination Gateway Flags Netif" header.
func parseNetstatRoutes(output string) []Route {
	var routes []Route
	inTable := false
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Destination" {
			inTable = true
			continue
		}
		if !inTable || len(fields) < 4 {
			continue
		}
		r := Route{Destination: fields[0], Interface: fields[3]}
		if gw := fields[1]; net.ParseIP(gw) != nil {
			r.Gateway = gw
		}
		routes = append(routes, r)
	}
	return routes
}

// route print -4: rows of "Network Destination, Netmask, Gateway, Interface, Metric"
// under "Active Routes:" up to "Persistent Routes:".
func parseWindowsRoutes(output string) []Route {
	var routes []Route
	active := false
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Active Routes:"):
			active = true
			continue
		case strings.HasPrefix(line, "Persistent Routes:"):
			active = false
			continue
		}
		if !active {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}
		dst, mask := net.ParseIP(fields[0]).To4(), net.ParseIP(fields[1]).To4()
		if dst == nil || mask == nil {
			continue
		}
		ones, _ := net.IPMask(mask).Size()
		r := Route{
			Destination: (&net.IPNet{IP: dst, Mask: net.CIDRMask(ones, 32)}).String(),
			Interface:   fields[3],
		}
		if net.ParseIP(fields[2]) != nil {
			r.Gateway = fields[2]
		}
		routes = append(routes, r)
	}
	return routes
}

// ParseTraceroute extracts the hop addresses from traceroute or tracert
// output. Header lines and the destination itself are dropped and at most
// maxHops addresses are returned.
func ParseTraceroute(output, target string, maxHops int) []string {
	hops := []string{}
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "traceroute to") || strings.HasPrefix(lower, "tracing route") ||
			strings.HasPrefix(lower, "over a maximum") {
			continue
		}
		for _, ip := range ipv4Pattern.FindAllString(line, -1) {
			if ip == target || net.ParseIP(ip) == nil {
				continue
			}
			hops = append(hops, ip)
			break
		}
		if maxHops > 0 && len(hops) >= maxHops {
			break
		}
	}
	return hops
}
