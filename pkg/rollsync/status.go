package rollsync

// Status is the driver lifecycle state. A tick moves Idle through Collecting,
// Syncing, and Executing and back to Idle; the terminal states are only left
// through Restart or Close.
type Status int

const (
	// StatusIdle means the driver is between ticks.
	StatusIdle Status = iota

	// StatusCollecting means the driver is gathering local inputs.
	StatusCollecting

	// StatusSyncing means the driver is inside the session's Advance call.
	StatusSyncing

	// StatusExecuting means the driver is executing an action batch.
	StatusExecuting

	// StatusDisconnected means a peer was lost or a tick failed terminally.
	StatusDisconnected

	// StatusDesynced means a state checksum mismatch was detected.
	StatusDesynced

	// StatusClosed means Close was called.
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCollecting:
		return "collecting"
	case StatusSyncing:
		return "syncing"
	case StatusExecuting:
		return "executing"
	case StatusDisconnected:
		return "disconnected"
	case StatusDesynced:
		return "desynced"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can only be left through Restart or
// Close.
func (s Status) Terminal() bool {
	switch s {
	case StatusDisconnected, StatusDesynced, StatusClosed:
		return true
	default:
		return false
	}
}
