package session

import "bytes"

// inputQueue tracks one player's inputs across the retained frame window.
// Confirmed inputs are held in a fixed ring; predictions handed out for
// not-yet-confirmed frames are remembered so the arrival of the actual input
// can report whether the simulation ran with a wrong guess.
type inputQueue struct {
	window     int
	inputBytes int
	slots      []Input
	frames     []Frame

	// confirmed is the highest frame with an actual input. Inputs must be
	// added contiguously, so every frame in (confirmed-window, confirmed]
	// is retained.
	confirmed Frame

	predictions map[Frame]Input
}

func newInputQueue(window, inputBytes int) *inputQueue {
	q := &inputQueue{
		window:      window,
		inputBytes:  inputBytes,
		slots:       make([]Input, window),
		frames:      make([]Frame, window),
		predictions: make(map[Frame]Input),
	}
	for i := range q.frames {
		q.frames[i] = NullFrame
	}
	return q
}

// add records the actual input for a frame. It reports whether a prediction
// previously handed out for that frame disagrees with the actual value, which
// is the trigger for a rollback. Frames at or below the confirmed frame are
// ignored as duplicates; skipping ahead violates the transport ordering
// contract and fails with ErrInputGap.
func (q *inputQueue) add(frame Frame, in Input) (mispredicted bool, err error) {
	if frame <= q.confirmed {
		return false, nil
	}
	if frame != q.confirmed+1 {
		return false, ErrInputGap
	}
	idx := int(frame) % q.window
	q.slots[idx] = cloneInput(in)
	q.frames[idx] = frame
	q.confirmed = frame

	if p, ok := q.predictions[frame]; ok {
		mispredicted = !bytes.Equal(p, in)
		delete(q.predictions, frame)
	}
	return mispredicted, nil
}

// confirmedAt returns the actual input stored for a frame at or below the
// confirmed frame. ok is false when the frame has been evicted from the
// window, which callers treat as an internal invariant violation.
func (q *inputQueue) confirmedAt(frame Frame) (Input, bool) {
	idx := int(frame) % q.window
	if q.frames[idx] != frame {
		return nil, false
	}
	return cloneInput(q.slots[idx]), true
}

// predict returns the input guess for an unconfirmed frame: the most recent
// actual input, or the zero input before any has arrived.
func (q *inputQueue) predict() Input {
	if q.confirmed <= 0 {
		return ZeroInput(q.inputBytes)
	}
	in, ok := q.confirmedAt(q.confirmed)
	if !ok {
		return ZeroInput(q.inputBytes)
	}
	return in
}

// recordPrediction remembers the guess fed to the simulation for a frame, so
// add can compare it against the actual input later. Re-recording after a
// rollback overwrites the previous guess: only the value most recently
// simulated with matters.
func (q *inputQueue) recordPrediction(frame Frame, in Input) {
	q.predictions[frame] = cloneInput(in)
}

// sumRing retains recently reported state checksums keyed by frame.
type sumRing struct {
	frames []Frame
	sums   []uint64
}

func newSumRing(size int) *sumRing {
	r := &sumRing{
		frames: make([]Frame, size),
		sums:   make([]uint64, size),
	}
	for i := range r.frames {
		r.frames[i] = NullFrame
	}
	return r
}

// put stores the checksum for a frame, overwriting both an earlier checksum
// for the same frame (resimulation produces the corrected value) and whatever
// older frame occupied the slot.
func (r *sumRing) put(frame Frame, sum uint64) {
	idx := int(frame) % len(r.frames)
	r.frames[idx] = frame
	r.sums[idx] = sum
}

// putFirst stores the checksum only if the frame has none yet, returning the
// already-stored value otherwise. Synctest sessions use it to pin the
// first-pass checksum that resimulated passes are compared against.
func (r *sumRing) putFirst(frame Frame, sum uint64) (existing uint64, present bool) {
	idx := int(frame) % len(r.frames)
	if r.frames[idx] == frame {
		return r.sums[idx], true
	}
	r.frames[idx] = frame
	r.sums[idx] = sum
	return 0, false
}

func (r *sumRing) get(frame Frame) (uint64, bool) {
	idx := int(frame) % len(r.frames)
	if r.frames[idx] != frame {
		return 0, false
	}
	return r.sums[idx], true
}

// take returns and clears the checksum stored for a frame.
func (r *sumRing) take(frame Frame) (uint64, bool) {
	idx := int(frame) % len(r.frames)
	if r.frames[idx] != frame {
		return 0, false
	}
	r.frames[idx] = NullFrame
	return r.sums[idx], true
}
