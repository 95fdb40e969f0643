package session

// LocalConfig configures a Local session.
type LocalConfig struct {
	// NumPlayers is the participant count; every player is local.
	NumPlayers int

	// InputBytes is the fixed per-player input size.
	InputBytes int

	// ChecksumInterval, when positive, makes every interval-th frame an
	// AdvanceAndSave so the driver snapshots and checksums it. Zero keeps
	// every frame a plain Advance.
	ChecksumInterval int
}

// Local is the no-networking session: every player sits on this machine,
// nothing is predicted, nothing is ever rolled back. It exists for
// single-machine play and for exercising a host integration without peers.
type Local struct {
	cfg       LocalConfig
	handles   []PlayerHandle
	current   Frame
	status    Status
	events    []Event
	announced bool
}

// NewLocal creates a Local session.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.NumPlayers < 1 {
		return nil, configErrorf("NumPlayers", "must be at least 1, got %d", cfg.NumPlayers)
	}
	if cfg.InputBytes < 1 {
		return nil, configErrorf("InputBytes", "must be at least 1, got %d", cfg.InputBytes)
	}
	if cfg.ChecksumInterval < 0 {
		return nil, configErrorf("ChecksumInterval", "must not be negative, got %d", cfg.ChecksumInterval)
	}
	handles := make([]PlayerHandle, cfg.NumPlayers)
	for i := range handles {
		handles[i] = PlayerHandle(i)
	}
	return &Local{cfg: cfg, handles: handles, status: StatusRunning}, nil
}

// Advance consumes one input per player and emits a single step for the next
// frame.
func (s *Local) Advance(local map[PlayerHandle]Input) ([]Action, error) {
	switch s.status {
	case StatusClosed:
		return nil, ErrClosed
	case StatusDisconnected:
		return nil, ErrDisconnected
	}

	vec, err := fullVector(local, s.cfg.NumPlayers, s.cfg.InputBytes)
	if err != nil {
		return nil, err
	}

	if !s.announced {
		s.announced = true
		s.events = append(s.events, Event{Kind: EventSynchronized, Player: NullHandle, Frame: NullFrame})
	}

	target := s.current + 1
	save := s.cfg.ChecksumInterval > 0 && target%Frame(s.cfg.ChecksumInterval) == 0
	s.current = target
	return []Action{advanceAction(target, vec, save)}, nil
}

// ReportChecksum is a no-op: a Local session has no peer to cross-check with.
func (s *Local) ReportChecksum(Frame, uint64) {}

// Events drains pending session events.
func (s *Local) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

// LocalHandles returns every player handle.
func (s *Local) LocalHandles() []PlayerHandle {
	return sortedHandles(s.handles)
}

// NumPlayers returns the participant count.
func (s *Local) NumPlayers() int { return s.cfg.NumPlayers }

// InputBytes returns the fixed per-player input size.
func (s *Local) InputBytes() int { return s.cfg.InputBytes }

// PredictionWindow returns 0: a Local session never predicts.
func (s *Local) PredictionWindow() int { return 0 }

// Status returns the session lifecycle state.
func (s *Local) Status() Status { return s.status }

// Stats reports progress. Every frame is confirmed as soon as it is simulated.
func (s *Local) Stats() Stats {
	return Stats{CurrentFrame: s.current, ConfirmedFrame: s.current}
}

// Close shuts the session down.
func (s *Local) Close() error {
	if s.status == StatusClosed {
		return ErrClosed
	}
	s.status = StatusClosed
	return nil
}
