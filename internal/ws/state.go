package ws

// ConnectionState tracks the lifecycle of the managed socket. Only the
// Manager transitions it.
type ConnectionState int

const (
	// StateIdle means no connection has been attempted yet.
	StateIdle ConnectionState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means the connection is established and usable.
	StateOpen

	// StateClosed means the connection was shut down intentionally.
	// Terminal: no reconnection follows.
	StateClosed

	// StateReconnecting means the connection dropped and a retry timer
	// is armed.
	StateReconnecting

	// StateFailed means the reconnection budget is exhausted.
	// Terminal: manual action required.
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
