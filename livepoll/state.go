package livepoll

// ConnectionState represents the current state of the hub connection.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the client is establishing a connection.
	StateConnecting

	// StateConnected means the client is connected and ready.
	StateConnected

	// StateReconnecting means the client is attempting to reconnect after a
	// dropped connection.
	StateReconnecting

	// StateClosed means the client has been explicitly disconnected and
	// cannot be reused.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a connection-state change.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // cause of the change, if any
}
