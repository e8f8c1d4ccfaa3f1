// Package connection manages the single shared WebSocket channel and the
// per-session subscriptions made over it.
package connection

// ReadyState is the lifecycle state of the channel.
type ReadyState int32

const (
	StateUninstantiated ReadyState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Uninstantiated"
	}
}

// Label is the status text shown next to the connection indicator.
func (s ReadyState) Label() string {
	if s == StateOpen {
		return "Connected"
	}
	return s.String()
}

// MarshalText encodes the state by name.
func (s ReadyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventType identifies a channel event.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventFrame
)

// Event is delivered in channel order on Manager.Events.
type Event struct {
	Type EventType
	// Data is the raw frame for EventFrame.
	Data []byte
	// Err is set on EventClosed when the channel failed rather than closed cleanly.
	Err error
}
