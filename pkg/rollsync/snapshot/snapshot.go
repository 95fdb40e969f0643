// Package snapshot provides the frame-keyed ring buffer of serialized game
// state that rollbacks restore from.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// ErrMissing is returned by Load when no snapshot is stored for the frame,
// either because it was never saved or because newer saves evicted it.
var ErrMissing = errors.New("snapshot missing")

// Snapshot is the serialized game state captured after simulating a frame.
// Blobs holds one opaque byte slice per registered state category, in
// registration order.
type Snapshot struct {
	Frame      session.Frame
	Blobs      [][]byte
	Checksum   uint64
	CapturedAt time.Time
}

// Size returns the total payload size in bytes.
func (s Snapshot) Size() int {
	n := 0
	for _, b := range s.Blobs {
		n += len(b)
	}
	return n
}

// Clone deep-copies the snapshot so the caller can hold it across later saves.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Blobs = cloneBlobs(s.Blobs)
	return out
}

func cloneBlobs(blobs [][]byte) [][]byte {
	if blobs == nil {
		return nil
	}
	out := make([][]byte, len(blobs))
	for i, b := range blobs {
		c := make([]byte, len(b))
		copy(c, b)
		out[i] = c
	}
	return out
}

// Store is a fixed-capacity ring of snapshots keyed by frame. Saving a frame
// reuses the slot of the frame capacity saves ago, so the store always holds
// the most recent saves and never allocates per save beyond the payload
// copies. The zero frame's seed snapshot is evicted like any other once
// enough newer frames are saved.
//
// Store is owned by the driver goroutine and is not safe for concurrent use.
type Store struct {
	slots []Snapshot
	used  []bool
}

// NewStore creates a store holding up to capacity snapshots.
func NewStore(capacity int) (*Store, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("snapshot: capacity must be at least 1, got %d", capacity)
	}
	return &Store{
		slots: make([]Snapshot, capacity),
		used:  make([]bool, capacity),
	}, nil
}

// Save stores a snapshot under its frame, evicting whatever occupied the
// slot. The snapshot's blobs are copied in; the caller may reuse its buffers.
func (st *Store) Save(snap Snapshot) error {
	if snap.Frame < 0 {
		return fmt.Errorf("snapshot: cannot save frame %d", snap.Frame)
	}
	idx := st.slot(snap.Frame)
	st.slots[idx] = snap.Clone()
	st.used[idx] = true
	return nil
}

// Load returns a copy of the snapshot stored for the frame.
func (st *Store) Load(frame session.Frame) (Snapshot, error) {
	if frame < 0 {
		return Snapshot{}, fmt.Errorf("frame %d: %w", frame, ErrMissing)
	}
	idx := st.slot(frame)
	if !st.used[idx] || st.slots[idx].Frame != frame {
		return Snapshot{}, fmt.Errorf("frame %d: %w", frame, ErrMissing)
	}
	return st.slots[idx].Clone(), nil
}

// Contains reports whether a snapshot for the frame is currently retained.
func (st *Store) Contains(frame session.Frame) bool {
	if frame < 0 {
		return false
	}
	idx := st.slot(frame)
	return st.used[idx] && st.slots[idx].Frame == frame
}

// Latest returns the newest retained frame.
func (st *Store) Latest() (session.Frame, bool) {
	latest, found := session.NullFrame, false
	for i, used := range st.used {
		if used && (!found || st.slots[i].Frame > latest) {
			latest = st.slots[i].Frame
			found = true
		}
	}
	return latest, found
}

// Oldest returns the oldest retained frame, the deepest rollback currently
// possible.
func (st *Store) Oldest() (session.Frame, bool) {
	oldest, found := session.NullFrame, false
	for i, used := range st.used {
		if used && (!found || st.slots[i].Frame < oldest) {
			oldest = st.slots[i].Frame
			found = true
		}
	}
	return oldest, found
}

// Len returns the number of retained snapshots.
func (st *Store) Len() int {
	n := 0
	for _, used := range st.used {
		if used {
			n++
		}
	}
	return n
}

// Capacity returns the slot count.
func (st *Store) Capacity() int { return len(st.slots) }

// Clear drops every retained snapshot, for session restarts.
func (st *Store) Clear() {
	for i := range st.slots {
		st.slots[i] = Snapshot{}
		st.used[i] = false
	}
}

func (st *Store) slot(frame session.Frame) int {
	return int(frame) % len(st.slots)
}
