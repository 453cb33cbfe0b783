package vuln

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netrecon/internal/hosts"
)

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int
		want  hosts.RiskTier
	}{
		{0, hosts.RiskMinimal},
		{9, hosts.RiskMinimal},
		{10, hosts.RiskLow},
		{19, hosts.RiskLow},
		{20, hosts.RiskMedium},
		{39, hosts.RiskMedium},
		{40, hosts.RiskHigh},
		{59, hosts.RiskHigh},
		{60, hosts.RiskCritical},
		{200, hosts.RiskCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, TierForScore(tt.score))
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name  string
		ports []int
		score int
		tier  hosts.RiskTier
		count int
	}{
		{"nothing open", nil, 0, hosts.RiskMinimal, 0},
		{"ssh only", []int{22}, 0, hosts.RiskMinimal, 0},
		{"https only", []int{443}, 0, hosts.RiskMinimal, 0},
		{"smtp", []int{25}, 15, hosts.RiskLow, 1},
		{"http", []int{80}, 20, hosts.RiskMedium, 1},
		{"ftp", []int{21}, 30, hosts.RiskMedium, 1},
		{"ftp and smtp", []int{21, 25}, 45, hosts.RiskHigh, 2},
		{"telnet alone", []int{23}, 60, hosts.RiskCritical, 1},
		{"mysql annotated only", []int{3306}, 0, hosts.RiskMinimal, 1},
		{"smb", []int{445}, 20, hosts.RiskMedium, 1},
		{"windows triple", []int{135, 139, 445}, 60, hosts.RiskCritical, 3},
		{"telnet smb rdp", []int{23, 445, 3389}, 100, hosts.RiskCritical, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.ports)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.tier, a.Tier)
			assert.Len(t, a.Vulnerabilities, tt.count)
		})
	}
}

func TestAssessTelnetSMBRDP(t *testing.T) {
	a := Assess([]int{3389, 23, 445})
	require.GreaterOrEqual(t, a.Score, 80)
	assert.Equal(t, hosts.RiskCritical, a.Tier)
	require.Len(t, a.Vulnerabilities, 3)
	assert.Contains(t, a.Vulnerabilities[0], "Telnet")
	assert.Contains(t, a.Vulnerabilities[1], "SMB")
	assert.Contains(t, a.Vulnerabilities[2], "RDP")
}

func TestAssessManyPorts(t *testing.T) {
	ports := make([]int, 0, 16)
	for p := 10000; p < 10016; p++ {
		ports = append(ports, p)
	}
	a := Assess(ports)
	assert.Equal(t, ManyPortsScore, a.Score)
	assert.Equal(t, hosts.RiskMedium, a.Tier)
	assert.Equal(t, []string{"Large attack surface: 16 open ports"}, a.Vulnerabilities)

	// Fifteen ports do not trigger the rule; duplicates do not count.
	a = Assess(append(ports[:15:15], ports[0]))
	assert.Equal(t, 0, a.Score)
}

func TestAssessIsPure(t *testing.T) {
	sets := [][]int{
		{22}, {23, 445, 3389}, {21, 25, 80, 135, 139, 445, 1433, 3306, 3389, 5432, 5900},
		{80, 80, 80}, {5900, 1433},
	}
	for _, ports := range sets {
		first := Assess(ports)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Assess(ports))
		}
	}
}

func TestApply(t *testing.T) {
	h := hosts.New("10.0.0.1")
	h.AddPorts(22)
	a := Apply(&h)
	assert.Equal(t, hosts.RiskMinimal, h.Risk)
	assert.Empty(t, h.Vulnerabilities)
	assert.Equal(t, 0, a.Score)

	h.AddPorts(23, 445, 3389)
	Apply(&h)
	Apply(&h)
	assert.Equal(t, hosts.RiskCritical, h.Risk)
	assert.Len(t, h.Vulnerabilities, 3, "reapplying must not duplicate descriptions")
}
