package viewer

// State is the render loop's lifecycle position. Transitions:
//
//	Idle → Connecting → Streaming → Disconnected | Stopped
//
// Disconnected is terminal for the session (the caller may start a new
// one); Stopped is the user-initiated terminal state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateDisconnected
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateConnecting:   "connecting",
	StateStreaming:    "streaming",
	StateDisconnected: "disconnected",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText serializes the state by name for the status API.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the loop has ended for this session.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateStopped
}
