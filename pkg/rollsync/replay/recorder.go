package replay

import (
	"time"

	"github.com/google/uuid"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// Recorder writes one run's frames to a store as they are simulated.
// It does not own the store; closing the store is the caller's job.
type Recorder struct {
	store Store
	runID string
}

// NewRecorder creates a recorder for one run. An empty runID gets a
// generated UUID.
func NewRecorder(store Store, runID string) *Recorder {
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Recorder{store: store, runID: runID}
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record stores one simulated frame. Re-recording a frame after a rollback
// replaces the earlier values.
func (r *Recorder) Record(frame session.Frame, inputs []session.Input, checksum uint64, hasChecksum bool) error {
	return r.store.Append(Record{
		RunID:       r.runID,
		Frame:       frame,
		Inputs:      inputs,
		Checksum:    checksum,
		HasChecksum: hasChecksum,
		RecordedAt:  time.Now().UTC(),
	})
}
