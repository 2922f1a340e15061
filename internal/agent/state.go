package agent

// State is the agent's coarse lifecycle phase, readable from any
// goroutine via Agent.State.
type State int32

const (
	// StateAwaitingCredential means the agent is registering with the
	// dashboard and has not yet obtained (or loaded) a credential.
	StateAwaitingCredential State = iota

	// StateRunning means the collection loops are active.
	StateRunning

	// StateShuttingDown means cancellation was observed and the loops are
	// draining.
	StateShuttingDown

	// StateStopped means Run has returned.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAwaitingCredential:
		return "awaiting_credential"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
