package discovery

import (
	"bufio"
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/anstrom/netrecon/internal/fingerprint"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/sysexec"
)

const broadcastMAC = "ff:ff:ff:ff:ff:ff"

var (
	// Unix-like: "router.lan (192.168.1.1) at 0:1b:2c:3d:4e:5f on en0 ifscope [ethernet]"
	unixARPLine = regexp.MustCompile(
		`^\s*(\S+)?\s*\((\d{1,3}(?:\.\d{1,3}){3})\)\s+at\s+([0-9A-Fa-f]{1,2}(?::[0-9A-Fa-f]{1,2}){5})\b`)

	// Windows: "  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic"
	windowsARPLine = regexp.MustCompile(
		`^\s*(\d{1,3}(?:\.\d{1,3}){3})\s+([0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5})\s+\w+`)
)

// ARPReader reads the operating system's neighbor table with `arp -a`.
type ARPReader struct {
	runner  sysexec.Runner
	catalog *fingerprint.Catalog
	logger  *logging.Logger
}

// NewARPReader creates a reader. A nil catalog uses fingerprint.Default.
func NewARPReader(runner sysexec.Runner, catalog *fingerprint.Catalog) *ARPReader {
	if catalog == nil {
		catalog = fingerprint.Default()
	}
	return &ARPReader{
		runner:  runner,
		catalog: catalog,
		logger:  logging.WithComponent("arp"),
	}
}

// ReadTable runs the neighbor-table command and parses its output.
func (r *ARPReader) ReadTable(ctx context.Context) ([]hosts.Host, error) {
	out, err := r.runner.Run(ctx, "arp", "-a")
	if err != nil {
		return nil, err
	}
	return ParseARPTable(string(out), r.catalog), nil
}

// Read is ReadTable with failures degraded to an empty result.
func (r *ARPReader) Read(ctx context.Context) []hosts.Host {
	entries, err := r.ReadTable(ctx)
	if err != nil {
		r.logger.WarnStrategy("Address table unavailable", "arp", err)
		return nil
	}
	return entries
}

// ParseARPTable extracts live hosts from `arp -a` output in either the
// Windows or the Unix layout. Broadcast, multicast and incomplete entries
// are skipped.
func ParseARPTable(output string, catalog *fingerprint.Catalog) []hosts.Host {
	seen := make(map[string]int)
	var out []hosts.Host

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()

		var ip, rawMAC, name string
		if m := windowsARPLine.FindStringSubmatch(line); m != nil {
			ip, rawMAC = m[1], m[2]
		} else if m := unixARPLine.FindStringSubmatch(line); m != nil {
			name, ip, rawMAC = m[1], m[2], m[3]
		} else {
			continue
		}

		if net.ParseIP(ip) == nil {
			continue
		}
		mac, ok := NormalizeMAC(rawMAC)
		if !ok || mac == broadcastMAC || isMulticastMAC(mac) {
			continue
		}

		h := hosts.New(ip)
		h.Alive = true
		h.MAC = mac
		if catalog != nil {
			h.Vendor = catalog.Vendor(mac)
		}
		if name != "" && name != "?" {
			h.Hostname = strings.TrimSuffix(name, ".")
		}

		if i, dup := seen[ip]; dup {
			out[i] = hosts.Merge(out[i], h)
			continue
		}
		seen[ip] = len(out)
		out = append(out, h)
	}
	return out
}

// NormalizeMAC converts a hyphen or colon separated hardware address, with
// or without zero padding, to lower-case colon form.
func NormalizeMAC(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return "", false
	}
	for i, p := range parts {
		switch len(p) {
		case 1:
			parts[i] = "0" + p
		case 2:
		default:
			return "", false
		}
		for _, c := range parts[i] {
			if !strings.ContainsRune("0123456789abcdef", c) {
				return "", false
			}
		}
	}
	return strings.Join(parts, ":"), true
}

func isMulticastMAC(mac string) bool {
	hw, err := net.ParseMAC(mac)
	return err == nil && hw[0]&0x01 == 1
}
