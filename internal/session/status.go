package session

// Status is the externally-observable lifecycle state of a [Controller].
// A single status value is always sufficient to know whether capture and
// playback are active — there is no partially-alive state.
type Status int

const (
	// StatusIdle means no session is active and resources are released.
	StatusIdle Status = iota

	// StatusConnecting means transport connect and microphone acquisition
	// are in flight.
	StatusConnecting

	// StatusConnected means the session is live: capture, transport, and
	// playback are all wired.
	StatusConnected

	// StatusError means the session ended abnormally. Terminal until Stop
	// resets the controller to StatusIdle.
	StatusError
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
