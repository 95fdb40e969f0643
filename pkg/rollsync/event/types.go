package event

// Event types published by the driver.
const (
	// TypeSynchronized fires once when every remote peer has completed
	// the handshake and the session starts running.
	TypeSynchronized = "session.synchronized"

	// TypeRollback fires after a rollback batch executed.
	TypeRollback = "session.rollback"

	// TypeStall fires when a tick produced no actions because the
	// prediction window is exhausted.
	TypeStall = "session.stall"

	// TypeDesync fires when a checksum comparison failed. The session is
	// unrecoverable after this.
	TypeDesync = "session.desync"

	// TypePeerDisconnected fires when a remote peer or feed is gone.
	TypePeerDisconnected = "peer.disconnected"

	// TypeClosed fires once when the driver shuts the session down.
	TypeClosed = "session.closed"
)

// SynchronizedData is the payload of TypeSynchronized.
type SynchronizedData struct {
	Players int `json:"players"`
}

// RollbackData is the payload of TypeRollback.
type RollbackData struct {
	// ResimFrom is the first frame that was resimulated.
	ResimFrom int64 `json:"resim_from"`

	// Target is the frame the session landed on after resimulation.
	Target int64 `json:"target"`

	// Depth is the number of resimulated frames.
	Depth int `json:"depth"`
}

// StallData is the payload of TypeStall.
type StallData struct {
	// Confirmed is the newest frame confirmed by every remote peer.
	Confirmed int64 `json:"confirmed"`
}

// DesyncData is the payload of TypeDesync.
type DesyncData struct {
	Player         int    `json:"player"`
	LocalChecksum  uint64 `json:"local_checksum"`
	RemoteChecksum uint64 `json:"remote_checksum"`
}

// PeerDisconnectedData is the payload of TypePeerDisconnected.
type PeerDisconnectedData struct {
	Player int    `json:"player"`
	Reason string `json:"reason,omitempty"`
}

// ClosedData is the payload of TypeClosed.
type ClosedData struct {
	// Frame is the last frame the session reached.
	Frame int64 `json:"frame"`

	// Reason describes why the session ended, empty for a normal close.
	Reason string `json:"reason,omitempty"`
}
