// Package targets expands a target specification into the ordered list of
// addresses a scan will visit.
//
// Three forms are accepted:
//
//	192.168.1.10 or host.example   a single address or hostname
//	192.168.1.10-50                a last-octet range (192.168.1.10-192.168.1.50 also works)
//	192.168.1.0/24                 an IPv4 CIDR block with prefix length 16..30
//
// CIDR blocks exclude the network and broadcast addresses. Every expansion is
// capped; addresses beyond the cap are dropped without error.
package targets

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"go4.org/netipx"

	"github.com/anstrom/netrecon/internal/errors"
)

const (
	// GeneralCap bounds the addresses produced for port and ping scans.
	GeneralCap = 1000
	// ARPCap bounds the addresses produced for the address-table variant.
	ARPCap = 254

	MinPrefix = 16
	MaxPrefix = 30
)

var (
	numericSpec = regexp.MustCompile(`^[0-9.]+$`)
	hostnameRE  = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*\.?$`)
)

// Parse expands spec with GeneralCap.
func Parse(spec string) ([]string, error) {
	return ParseWithCap(spec, GeneralCap)
}

// ParseARP expands spec with ARPCap.
func ParseARP(spec string) ([]string, error) {
	return ParseWithCap(spec, ARPCap)
}

// ParseWithCap expands spec, keeping at most limit addresses. A non-positive
// limit means GeneralCap.
func ParseWithCap(spec string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = GeneralCap
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.ErrInvalidTarget(spec)
	}

	r, err := Range(spec)
	if err != nil {
		if strings.Contains(spec, "/") || isAddrRange(spec) || numericSpec.MatchString(spec) || !hostnameRE.MatchString(spec) {
			return nil, err
		}
		// A hostname is kept verbatim; probers resolve it.
		return []string{spec}, nil
	}
	return enumerate(r, limit), nil
}

// Range parses spec into the contiguous address range it covers. CIDR ranges
// already exclude the network and broadcast addresses.
func Range(spec string) (netipx.IPRange, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.Contains(spec, "/"):
		return cidrRange(spec)
	case isAddrRange(spec):
		return octetRange(spec)
	}

	addr, err := netip.ParseAddr(spec)
	if err != nil {
		return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
	}
	return netipx.IPRangeFrom(addr, addr), nil
}

// Count returns how many addresses spec expands to before any cap.
func Count(spec string) (int, error) {
	r, err := Range(spec)
	if err != nil {
		return 0, err
	}
	if !r.From().Is4() {
		return 1, nil
	}
	from, to := r.From().As4(), r.To().As4()
	return int(be32(to)-be32(from)) + 1, nil
}

func be32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// isAddrRange reports whether spec looks like "address-something" rather than
// a hyphenated hostname.
func isAddrRange(spec string) bool {
	left, _, found := strings.Cut(spec, "-")
	if !found {
		return false
	}
	_, err := netip.ParseAddr(strings.TrimSpace(left))
	return err == nil
}

func cidrRange(spec string) (netipx.IPRange, error) {
	prefix, err := netip.ParsePrefix(spec)
	if err != nil || !prefix.Addr().Is4() {
		return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
	}
	if prefix.Bits() < MinPrefix || prefix.Bits() > MaxPrefix {
		return netipx.IPRange{}, errors.ErrInvalidTarget(spec).
			WithContext("prefix", prefix.Bits())
	}

	block := netipx.RangeOfPrefix(prefix.Masked())
	return netipx.IPRangeFrom(block.From().Next(), block.To().Prev()), nil
}

func octetRange(spec string) (netipx.IPRange, error) {
	left, right, _ := strings.Cut(spec, "-")
	start, err := netip.ParseAddr(strings.TrimSpace(left))
	if err != nil || !start.Is4() {
		return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
	}

	right = strings.TrimSpace(right)
	var last int
	if strings.Contains(right, ".") {
		end, err := netip.ParseAddr(right)
		if err != nil || !end.Is4() {
			return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
		}
		s, e := start.As4(), end.As4()
		if s[0] != e[0] || s[1] != e[1] || s[2] != e[2] {
			return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
		}
		last = int(e[3])
	} else {
		last, err = strconv.Atoi(right)
		if err != nil || last < 0 || last > 255 {
			return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
		}
	}

	b := start.As4()
	if last < int(b[3]) {
		return netipx.IPRange{}, errors.ErrInvalidTarget(spec)
	}
	b[3] = byte(last)
	return netipx.IPRangeFrom(start, netip.AddrFrom4(b)), nil
}

func enumerate(r netipx.IPRange, limit int) []string {
	out := make([]string, 0, min(limit, 256))
	for a := r.From(); len(out) < limit; a = a.Next() {
		out = append(out, a.String())
		if a == r.To() {
			break
		}
	}
	return out
}
