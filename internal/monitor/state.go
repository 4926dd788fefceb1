package monitor

// State is the phase of the pass currently running.
type State int32

// Pass phases, in order.
const (
	StateIdle State = iota
	StateLoading
	StateDispatching
	StateAwaiting
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDispatching:
		return "dispatching"
	case StateAwaiting:
		return "awaiting"
	case StateSettling:
		return "settling"
	default:
		return "unknown"
	}
}
