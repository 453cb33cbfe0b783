// Package metrics provides interfaces for metrics collection and monitoring.
package metrics

//go:generate mockgen -source=interface.go -destination=mocks/mock_recorder.go -package=mocks

import "time"

// Recorder is the set of measurements the engine reports. Components take a
// Recorder so tests can pass Nop or a mock instead of a live registry.
type Recorder interface {
	// ScanFinished counts a scan by type and terminal state and records its duration.
	ScanFinished(scanType, state string, duration time.Duration)

	// PhaseFinished records the time spent in one orchestrator phase.
	PhaseFinished(phase string, duration time.Duration)

	// HostsDiscovered counts hosts reported by a discovery method.
	HostsDiscovered(method string, count int)

	// PortsProbed counts probed ports by protocol and verdict.
	PortsProbed(protocol, verdict string, count int)

	// RiskAssessed counts a host assigned to a risk tier.
	RiskAssessed(tier string)

	// JobFinished records a worker pool job by type and status.
	JobFinished(jobType, status string, duration time.Duration)

	// HTTPRequest records an API request.
	HTTPRequest(method, path string, status int, duration time.Duration)
}

// Ensure that the implementations satisfy Recorder.
var (
	_ Recorder = (*PrometheusMetrics)(nil)
	_ Recorder = Nop{}
)

// Nop discards every measurement.
type Nop struct{}

func (Nop) ScanFinished(string, string, time.Duration)     {}
func (Nop) PhaseFinished(string, time.Duration)            {}
func (Nop) HostsDiscovered(string, int)                    {}
func (Nop) PortsProbed(string, string, int)                {}
func (Nop) RiskAssessed(string)                            {}
func (Nop) JobFinished(string, string, time.Duration)      {}
func (Nop) HTTPRequest(string, string, int, time.Duration) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
