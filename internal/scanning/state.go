package scanning

// State is a scan's position in the pipeline.
type State string

const (
	Idle             State = "idle"
	Parsing          State = "parsing"
	Discovering      State = "discovering"
	PortScanning     State = "port_scanning"
	ServiceDetecting State = "service_detecting"
	OSDetecting      State = "os_detecting"
	VulnScanning     State = "vuln_scanning"
	TopologyMapping  State = "topology_mapping"
	Completed        State = "completed"
	Cancelled        State = "cancelled"
	Failed           State = "failed"
)

// phases lists the in-progress states in pipeline order.
var phases = []State{
	Parsing, Discovering, PortScanning, ServiceDetecting,
	OSDetecting, VulnScanning, TopologyMapping,
}

// TotalPhases is the denominator of the progress fraction.
var TotalPhases = len(phases)

// Phase returns the 1-based pipeline position of s, or 0 for Idle and
// terminal states.
func (s State) Phase() int {
	for i, p := range phases {
		if p == s {
			return i + 1
		}
	}
	return 0
}

// Terminal reports whether s ends a scan.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// InProgress reports whether s is one of the pipeline phases.
func (s State) InProgress() bool {
	return s.Phase() > 0
}

// CanTransition reports whether a scan in state s may move to next. Phases
// only move forward, skipping is allowed, and Cancelled, Failed and
// Completed are reachable from any in-progress phase.
func (s State) CanTransition(next State) bool {
	switch {
	case s == Idle:
		return next == Parsing
	case !s.InProgress():
		return false
	case next.Terminal():
		return true
	default:
		return next.Phase() > s.Phase()
	}
}
