// Package vuln flags hosts whose open ports match known-risky patterns and
// assigns a risk tier. It is a coarse port heuristic, not a vulnerability
// scanner: the result depends only on the set of open ports.
package vuln

import (
	"fmt"
	"slices"

	"github.com/anstrom/netrecon/internal/hosts"
)

// Score weights.
const (
	TelnetScore        = 40
	FTPScore           = 30
	HTTPScore          = 20
	SMTPScore          = 15
	ManyPortsScore     = 25
	DangerousPortScore = 20

	// ManyPortsThreshold is exceeded when a host has more open ports than this.
	ManyPortsThreshold = 15
)

// DangerousPorts each add DangerousPortScore when open.
var DangerousPorts = []int{23, 135, 139, 445, 1433, 3389, 5900}

type annotation struct {
	score       int
	description string
}

// annotations is keyed by port. Scores here are the plaintext-service weights;
// the dangerous-port weight is added separately.
var annotations = map[int]annotation{
	21:    {FTPScore, "FTP exposed (21/tcp): credentials and files travel in plaintext"},
	23:    {TelnetScore, "Telnet exposed (23/tcp): unencrypted remote login"},
	25:    {SMTPScore, "SMTP exposed (25/tcp): plaintext mail transfer, check for open relay"},
	80:    {HTTPScore, "HTTP exposed (80/tcp): unencrypted web traffic"},
	135:   {0, "MS-RPC exposed (135/tcp): endpoint mapper reachable from the network"},
	139:   {0, "NetBIOS exposed (139/tcp): legacy file and printer sharing"},
	445:   {0, "SMB exposed (445/tcp): file sharing with a history of wormable exploits"},
	1433:  {0, "Database exposed (1433/tcp MSSQL): database listener reachable from the network"},
	3306:  {0, "Database exposed (3306/tcp MySQL): database listener reachable from the network"},
	3389:  {0, "RDP exposed (3389/tcp): remote desktop open to brute force"},
	5432:  {0, "Database exposed (5432/tcp PostgreSQL): database listener reachable from the network"},
	5900:  {0, "VNC exposed (5900/tcp): remote desktop often weakly authenticated"},
	6379:  {0, "Database exposed (6379/tcp Redis): often runs without authentication"},
	27017: {0, "Database exposed (27017/tcp MongoDB): often runs without authentication"},
}

// Assessment is the outcome for one host.
type Assessment struct {
	Score           int            `json:"score"`
	Tier            hosts.RiskTier `json:"tier"`
	Vulnerabilities []string       `json:"vulnerabilities"`
}

// Assess scores a set of open ports. Ports may be unsorted or repeated.
// Descriptions come out in ascending port order, with the open-port count
// finding last.
func Assess(ports []int) Assessment {
	open := slices.Clone(ports)
	slices.Sort(open)
	open = slices.Compact(open)

	var a Assessment
	for _, port := range open {
		note, annotated := annotations[port]
		if annotated {
			a.Score += note.score
			a.Vulnerabilities = append(a.Vulnerabilities, note.description)
		}
		if slices.Contains(DangerousPorts, port) {
			a.Score += DangerousPortScore
			if !annotated {
				a.Vulnerabilities = append(a.Vulnerabilities,
					fmt.Sprintf("Dangerous port exposed (%d/tcp)", port))
			}
		}
	}

	if len(open) > ManyPortsThreshold {
		a.Score += ManyPortsScore
		a.Vulnerabilities = append(a.Vulnerabilities,
			fmt.Sprintf("Large attack surface: %d open ports", len(open)))
	}

	a.Tier = TierForScore(a.Score)
	return a
}

// TierForScore maps a score onto a risk tier.
func TierForScore(score int) hosts.RiskTier {
	switch {
	case score >= 60:
		return hosts.RiskCritical
	case score >= 40:
		return hosts.RiskHigh
	case score >= 20:
		return hosts.RiskMedium
	case score >= 10:
		return hosts.RiskLow
	default:
		return hosts.RiskMinimal
	}
}

// Apply assesses h and records the tier and descriptions on it.
func Apply(h *hosts.Host) Assessment {
	a := Assess(h.OpenPorts)
	h.Risk = a.Tier
	h.AddVulnerabilities(a.Vulnerabilities...)
	return a
}
