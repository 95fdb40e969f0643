// Package replay records confirmed input streams for desync post-mortems
// and match playback.
//
// A Record holds the final input vector of one confirmed frame. Frames are
// recorded as they are simulated, so a rollback re-records its frames; stores
// upsert on (run ID, frame) and keep only the confirmed values. A stored run
// can be played back as a spectator feed via Source.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// Sentinel errors for replay stores.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("replay store closed")

	// ErrRunNotFound indicates a run has no recorded frames.
	ErrRunNotFound = errors.New("replay run not found")
)

// Record is one confirmed frame of a recorded run.
type Record struct {
	// RunID groups the frames of one driver run.
	RunID string

	// Frame is the simulated frame the inputs belong to.
	Frame session.Frame

	// Inputs is the full input vector, indexed by player handle.
	Inputs []session.Input

	// Checksum is the state checksum after Frame, when HasChecksum is set.
	Checksum uint64

	// HasChecksum marks frames whose snapshot was checksummed.
	HasChecksum bool

	// RecordedAt is when the frame was recorded.
	RecordedAt time.Time
}

// clone returns a Record with its own copy of the input vector.
func (r Record) clone() Record {
	out := r
	out.Inputs = make([]session.Input, len(r.Inputs))
	for i, in := range r.Inputs {
		out.Inputs[i] = append(session.Input(nil), in...)
	}
	return out
}

// validate checks the fields every store requires.
func (r Record) validate() error {
	if r.RunID == "" {
		return fmt.Errorf("record needs a run ID")
	}
	if r.Frame < 0 {
		return fmt.Errorf("record frame must not be negative, got %d", r.Frame)
	}
	return nil
}

// Store persists recorded frames.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores one frame, replacing any previous record of the same
	// (run ID, frame) pair.
	Append(rec Record) error

	// List returns a run's frames in frame order.
	// Returns an empty slice (not an error) for an unknown run.
	List(runID string) ([]Record, error)

	// Runs returns the recorded run IDs in lexical order.
	Runs() ([]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// encodeInputs flattens an input vector into one blob. Each input is framed
// with a little-endian length prefix so empty and variable inputs survive the
// round trip.
func encodeInputs(inputs []session.Input) []byte {
	size := 0
	for _, in := range inputs {
		size += 8 + len(in)
	}
	buf := make([]byte, 0, size)

	var frame [8]byte
	for _, in := range inputs {
		binary.LittleEndian.PutUint64(frame[:], uint64(len(in)))
		buf = append(buf, frame[:]...)
		buf = append(buf, in...)
	}
	return buf
}

// decodeInputs reverses encodeInputs.
func decodeInputs(blob []byte) ([]session.Input, error) {
	var inputs []session.Input
	for len(blob) > 0 {
		if len(blob) < 8 {
			return nil, fmt.Errorf("decode inputs: truncated length prefix")
		}
		n := binary.LittleEndian.Uint64(blob[:8])
		blob = blob[8:]
		if uint64(len(blob)) < n {
			return nil, fmt.Errorf("decode inputs: truncated input of %d bytes", n)
		}
		inputs = append(inputs, append(session.Input(nil), blob[:n]...))
		blob = blob[n:]
	}
	return inputs, nil
}
