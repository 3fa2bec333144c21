package mcp

// State is the lifecycle position of the tool server process.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateDegraded
	StateRestarting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// transitional reports whether a launch is in progress.
func (s State) transitional() bool {
	return s == StateStarting || s == StateRestarting
}
