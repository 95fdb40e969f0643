package session

// DefaultCheckDistance is the rollback depth used when SyncTestConfig leaves
// CheckDistance zero.
const DefaultCheckDistance = 2

// SyncTestConfig configures a SyncTest session.
type SyncTestConfig struct {
	// NumPlayers is the participant count. Every player is local.
	NumPlayers int

	// InputBytes is the fixed per-player input size.
	InputBytes int

	// CheckDistance is how many frames behind the head each advance rolls
	// back to. Frames are simulated once normally and once more after the
	// forced rollback; diverging checksums between the two runs expose
	// state outside the registry. Zero means DefaultCheckDistance.
	CheckDistance int
}

type vecRing struct {
	frames []Frame
	vecs   [][]Input
}

func newVecRing(size int) *vecRing {
	r := &vecRing{frames: make([]Frame, size), vecs: make([][]Input, size)}
	for i := range r.frames {
		r.frames[i] = NullFrame
	}
	return r
}

func (r *vecRing) put(frame Frame, vec []Input) {
	i := int(frame) % len(r.frames)
	r.frames[i] = frame
	r.vecs[i] = vec
}

func (r *vecRing) get(frame Frame) ([]Input, bool) {
	i := int(frame) % len(r.frames)
	if r.frames[i] != frame {
		return nil, false
	}
	return r.vecs[i], true
}

// SyncTest is a self-validation session: every advance first rolls back
// CheckDistance frames and resimulates them from recorded inputs, then
// simulates the new frame. Each frame is therefore checksummed twice, and a
// mismatch between the runs is reported as a desync. Use it to flush out
// game state that escapes the snapshot registry.
type SyncTest struct {
	cfg      SyncTestConfig
	distance int

	current  Frame
	seeded   bool
	recorded *vecRing
	sums     *sumRing

	status Status
	events []Event
	stats  Stats
}

// NewSyncTest creates a SyncTest session.
func NewSyncTest(cfg SyncTestConfig) (*SyncTest, error) {
	if cfg.NumPlayers < 1 {
		return nil, configErrorf("NumPlayers", "must be at least 1, got %d", cfg.NumPlayers)
	}
	if cfg.InputBytes < 1 {
		return nil, configErrorf("InputBytes", "must be at least 1, got %d", cfg.InputBytes)
	}
	if cfg.CheckDistance < 0 {
		return nil, configErrorf("CheckDistance", "must not be negative, got %d", cfg.CheckDistance)
	}
	distance := cfg.CheckDistance
	if distance == 0 {
		distance = DefaultCheckDistance
	}
	return &SyncTest{
		cfg:      cfg,
		distance: distance,
		recorded: newVecRing(distance + 2),
		sums:     newSumRing(distance + 4),
		status:   StatusSynchronizing,
	}, nil
}

// Advance records the new frame's inputs, replays the last CheckDistance
// frames from a rollback, and then simulates the new frame. Every emitted
// simulation step saves, so the driver checksums each frame on both runs.
func (s *SyncTest) Advance(local map[PlayerHandle]Input) ([]Action, error) {
	if s.status == StatusClosed {
		return nil, ErrClosed
	}
	vec, err := fullVector(local, s.cfg.NumPlayers, s.cfg.InputBytes)
	if err != nil {
		return nil, err
	}
	if s.status == StatusSynchronizing {
		s.status = StatusRunning
		s.events = append(s.events, Event{Kind: EventSynchronized, Player: NullHandle, Frame: NullFrame})
	}

	var actions []Action
	if !s.seeded {
		actions = append(actions, saveAction(0))
		s.seeded = true
	}

	target := s.current + 1
	s.recorded.put(target, vec)

	if target > Frame(s.distance) {
		resimFrom := target - Frame(s.distance)
		actions = append(actions, loadAction(resimFrom-1))
		for f := resimFrom; f < target; f++ {
			rec, ok := s.recorded.get(f)
			if !ok {
				return nil, &ConfigError{Field: "CheckDistance", Reason: "recorded inputs evicted before replay"}
			}
			actions = append(actions, advanceAction(f, rec, true))
		}
		s.stats.Rollbacks++
		s.stats.LastRollbackDepth = s.distance
	}

	actions = append(actions, advanceAction(target, vec, true))
	s.current = target
	return actions, nil
}

// ReportChecksum pins the first checksum seen for a frame and compares every
// later report against it. The driver reports once on the initial run and
// once per replay, so any divergence surfaces here.
func (s *SyncTest) ReportChecksum(frame Frame, sum uint64) {
	first, present := s.sums.putFirst(frame, sum)
	if present && first != sum {
		s.events = append(s.events, Event{
			Kind:           EventDesync,
			Player:         NullHandle,
			Frame:          frame,
			LocalChecksum:  sum,
			RemoteChecksum: first,
		})
	}
}

// Events drains pending session events.
func (s *SyncTest) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

// LocalHandles returns every player: a sync test has no remotes.
func (s *SyncTest) LocalHandles() []PlayerHandle {
	handles := make([]PlayerHandle, s.cfg.NumPlayers)
	for i := range handles {
		handles[i] = PlayerHandle(i)
	}
	return handles
}

// NumPlayers returns the configured participant count.
func (s *SyncTest) NumPlayers() int { return s.cfg.NumPlayers }

// InputBytes returns the fixed per-player input size.
func (s *SyncTest) InputBytes() int { return s.cfg.InputBytes }

// PredictionWindow returns the check distance; the driver must retain at
// least that many snapshots for the forced rollbacks.
func (s *SyncTest) PredictionWindow() int { return s.distance }

// Status returns the session lifecycle state.
func (s *SyncTest) Status() Status { return s.status }

// Stats reports progress including the forced rollbacks.
func (s *SyncTest) Stats() Stats {
	st := s.stats
	st.CurrentFrame = s.current
	st.ConfirmedFrame = s.current
	return st
}

// Close shuts the session down.
func (s *SyncTest) Close() error {
	if s.status == StatusClosed {
		return ErrClosed
	}
	s.status = StatusClosed
	return nil
}
