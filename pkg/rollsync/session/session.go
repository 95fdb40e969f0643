package session

import (
	"fmt"
	"sort"
)

// Frame identifies one discrete simulation step. Frames are monotonically
// increasing; frame 0 is the initial-state pseudo-frame that exists before any
// step has run, and the first simulated frame is 1.
type Frame int64

// NullFrame is the sentinel for "no frame" (no snapshot yet, no rollback
// pending, and so on).
const NullFrame Frame = -1

// PlayerHandle identifies one participant, local or remote, in the range
// [0, NumPlayers).
type PlayerHandle int

// NullHandle is the sentinel for "no player" on events that do not concern a
// specific participant.
const NullHandle PlayerHandle = -1

// Input is one player's encoded action for one frame. The encoding is owned by
// the host; the session layer only requires that it has the fixed size the
// session was configured with and that the same logical action produces the
// same bytes on every peer.
type Input []byte

// ZeroInput returns the all-zero input of the given size. It is the value used
// for frames before the first real input arrives and for the delay-window
// frames at session start, so every peer must agree on its meaning.
func ZeroInput(size int) Input {
	return make(Input, size)
}

// cloneInput copies an input so queue internals are never aliased by callers.
func cloneInput(in Input) Input {
	if in == nil {
		return nil
	}
	out := make(Input, len(in))
	copy(out, in)
	return out
}

func cloneVector(vec []Input) []Input {
	out := make([]Input, len(vec))
	for i, in := range vec {
		out[i] = cloneInput(in)
	}
	return out
}

// Status describes the session lifecycle.
type Status int

const (
	// StatusSynchronizing means the session is still establishing contact
	// with its peers (or, for a spectator, waiting for the first confirmed
	// frame). Advance returns empty action lists while synchronizing.
	StatusSynchronizing Status = iota

	// StatusRunning means the session is live and producing actions.
	StatusRunning

	// StatusDisconnected means a peer or the feed was lost. Terminal.
	StatusDisconnected

	// StatusClosed means Close was called. Terminal.
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusSynchronizing:
		return "synchronizing"
	case StatusRunning:
		return "running"
	case StatusDisconnected:
		return "disconnected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags session events.
type EventKind int

const (
	// EventSynchronized fires once when the session becomes live.
	EventSynchronized EventKind = iota

	// EventPeerDisconnected fires when a remote peer or the spectator feed
	// is lost. The session is StatusDisconnected afterwards.
	EventPeerDisconnected

	// EventDesync fires when a checksum comparison fails: against a remote
	// peer for P2P sessions, against the host's broadcast for spectators,
	// or against the first simulation pass for synctest sessions.
	EventDesync
)

// String returns the lowercase event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSynchronized:
		return "synchronized"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventDesync:
		return "desync"
	default:
		return "unknown"
	}
}

// Event is a session-level occurrence surfaced to the driver between action
// batches. Fields beyond Kind are populated where they apply: Player is
// NullHandle and Frame is NullFrame when not meaningful for the event.
type Event struct {
	Kind   EventKind
	Player PlayerHandle
	Frame  Frame

	// LocalChecksum and RemoteChecksum carry the two sides of a failed
	// comparison for EventDesync. For synctest sessions RemoteChecksum is
	// the checksum recorded on the first simulation pass.
	LocalChecksum  uint64
	RemoteChecksum uint64

	// Err carries the underlying transport error for EventPeerDisconnected
	// when one exists.
	Err error
}

// Stats is a point-in-time view of session progress.
type Stats struct {
	// CurrentFrame is the last simulated frame (0 before the first step).
	CurrentFrame Frame

	// ConfirmedFrame is the newest frame for which every player's actual
	// input is known. Frames above it were simulated with predictions.
	ConfirmedFrame Frame

	// Rollbacks counts rewind-and-resimulate episodes.
	Rollbacks uint64

	// LastRollbackDepth is the number of frames resimulated by the most
	// recent rollback.
	LastRollbackDepth int

	// Stalls counts advances skipped because the prediction window was
	// exhausted.
	Stalls uint64
}

// Session is the contract every variant exposes to the rollback driver.
//
// Advance hands over the local inputs for the next target frame and returns
// the ordered batch of actions the driver must execute. The call is
// synchronous and non-blocking: any network traffic is resolved by polling
// the transport inside the call, and an empty batch is a valid result (still
// synchronizing, or the prediction window is exhausted). When the prediction
// window is exhausted the offered local inputs are not consumed; the caller
// collects fresh inputs for the same target frame on its next tick.
//
// ReportChecksum feeds back the state checksum the driver computed for a
// frame it just saved. Sessions use it for desync cross-checking only; it
// never influences the actions a session emits.
//
// Events drains occurrences (synchronized, peer lost, desync) accumulated
// since the previous call.
type Session interface {
	Advance(local map[PlayerHandle]Input) ([]Action, error)
	ReportChecksum(frame Frame, sum uint64)
	Events() []Event

	// LocalHandles returns the handles whose inputs Advance expects, in
	// ascending order. Empty for spectators.
	LocalHandles() []PlayerHandle

	// NumPlayers returns the total participant count across all peers.
	NumPlayers() int

	// InputBytes returns the fixed per-player input size.
	InputBytes() int

	// PredictionWindow returns the maximum number of frames the session
	// simulates ahead of confirmation. It bounds how far back a Load can
	// reach and therefore sizes the snapshot store.
	PredictionWindow() int

	Status() Status
	Stats() Stats

	// Close tears the session down and releases its transports. Terminal.
	Close() error
}

func sortedHandles(handles []PlayerHandle) []PlayerHandle {
	out := make([]PlayerHandle, len(handles))
	copy(out, handles)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// localInput validates and copies the offered input for one local handle.
func localInput(local map[PlayerHandle]Input, h PlayerHandle, inputBytes int) (Input, error) {
	in, ok := local[h]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", h, ErrMissingInput)
	}
	if len(in) != inputBytes {
		return nil, fmt.Errorf("player %d: got %d bytes, want %d: %w", h, len(in), inputBytes, ErrInputSize)
	}
	return cloneInput(in), nil
}

// fullVector builds the complete input vector for sessions whose players are
// all local.
func fullVector(local map[PlayerHandle]Input, numPlayers, inputBytes int) ([]Input, error) {
	vec := make([]Input, numPlayers)
	for h := 0; h < numPlayers; h++ {
		in, err := localInput(local, PlayerHandle(h), inputBytes)
		if err != nil {
			return nil, err
		}
		vec[h] = in
	}
	return vec, nil
}
