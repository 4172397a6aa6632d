package bus

// State is the lifecycle state of a Bus.
type State int32

const (
	// StateCreated is the state of a bus that has never been started.
	StateCreated State = iota

	// StateRunning accepts publishes and consumes events.
	StateRunning

	// StateStopped has drained and halted its consumers. It can be started
	// again.
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
