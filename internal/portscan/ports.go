package portscan

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/anstrom/netrecon/internal/errors"
)

// Technique selects how ports are probed.
type Technique string

const (
	TCPConnect    Technique = "tcp"
	TCPSYN        Technique = "syn"
	UDP           Technique = "udp"
	Comprehensive Technique = "comprehensive"
)

// ParseTechnique accepts the technique names and a few aliases.
func ParseTechnique(s string) (Technique, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp", "connect", "tcp-connect":
		return TCPConnect, nil
	case "syn", "tcp-syn", "stealth":
		return TCPSYN, nil
	case "udp":
		return UDP, nil
	case "comprehensive", "all":
		return Comprehensive, nil
	}
	return "", errors.ErrConfigInvalid("technique", s)
}

// CommonPorts is the default port list.
var CommonPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 135, 139, 143,
	443, 445, 993, 995, 1433, 3306, 3389, 5432, 5900, 8080,
}

// ExtendedPorts is the larger list used on request.
var ExtendedPorts = []int{
	7, 9, 13, 20, 21, 22, 23, 25, 26, 37,
	53, 67, 68, 69, 79, 80, 81, 88, 106, 110,
	111, 113, 119, 123, 135, 137, 138, 139, 143, 161,
	162, 179, 199, 389, 427, 443, 444, 445, 465, 513,
	514, 515, 543, 544, 548, 554, 587, 631, 636, 646,
	873, 990, 993, 995, 1025, 1026, 1027, 1080, 1110, 1433,
	1521, 1720, 1723, 1755, 1900, 2000, 2001, 2049, 2121, 2717,
	3000, 3128, 3306, 3389, 3986, 4899, 5000, 5009, 5051, 5060,
	5101, 5190, 5357, 5432, 5631, 5666, 5800, 5900, 6000, 6001,
	6379, 6646, 7070, 8000, 8008, 8009, 8080, 8081, 8443, 8888,
	9100, 9999, 10000, 27017, 32768, 49152, 49153, 49154, 49155, 49156,
}

// ComprehensiveUDPPorts are probed over UDP by the comprehensive technique
// regardless of the configured list.
var ComprehensiveUDPPorts = []int{53, 67, 68, 69, 123, 161, 162}

// ParsePorts parses "22", "22,80,443", "8000-8010" or any comma-separated mix
// into a sorted, de-duplicated list.
func ParsePorts(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.ErrConfigInvalid("ports", spec)
	}

	var ports []int
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, errors.ErrConfigInvalid("ports", spec)
		}

		lo, hi, isRange := strings.Cut(tok, "-")
		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parsePort(hi); err != nil {
				return nil, err
			}
			if start > end {
				return nil, errors.NewConfigFieldError(errors.CodeValidation,
					fmt.Sprintf("range start greater than end: %s", tok), "ports", spec)
			}
		}
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
	}

	slices.Sort(ports)
	return slices.Compact(ports), nil
}

func parsePort(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 || v > 65535 {
		return 0, errors.NewConfigFieldError(errors.CodeValidation,
			"port numbers must be in 1..65535", "ports", s)
	}
	return v, nil
}

// FormatPorts renders ports as a comma-separated list.
func FormatPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
