package session

import "fmt"

// DefaultCatchupLimit is the most confirmed frames a spectator emits per
// advance when SpectatorConfig leaves CatchupLimit zero.
const DefaultCatchupLimit = 8

// DefaultSpectatorBuffer is the buffered-frame cap used when SpectatorConfig
// leaves BufferLimit zero.
const DefaultSpectatorBuffer = 256

// SpectatorConfig configures a Spectator session.
type SpectatorConfig struct {
	// NumPlayers is the participant count of the session being watched.
	NumPlayers int

	// InputBytes is the fixed per-player input size.
	InputBytes int

	// Feed delivers the host's confirmed frames. The session owns it and
	// closes it on Close.
	Feed Transport

	// CatchupLimit caps how many buffered frames one advance may emit,
	// bounding the work of a tick while the spectator catches up. Zero
	// means DefaultCatchupLimit.
	CatchupLimit int

	// BufferLimit caps frames buffered ahead of simulation. A host
	// outrunning the spectator beyond this is surfaced as a disconnect.
	// Zero means DefaultSpectatorBuffer.
	BufferLimit int

	// ChecksumInterval, when positive, makes every interval-th frame an
	// AdvanceAndSave so the driver checksums it; the value is then
	// compared against the host's checksum for the same frame when the
	// feed delivers one. Match the host's interval.
	ChecksumInterval int
}

type confirmedEntry struct {
	vec    []Input
	sum    uint64
	hasSum bool
}

// Spectator replays a session it does not participate in: it receives
// confirmed input vectors from the host, simulates them in order, and never
// predicts, loads, or saves beyond checksum frames.
type Spectator struct {
	cfg         SpectatorConfig
	catchup     int
	bufferLimit int
	feed        Transport

	buffered map[Frame]confirmedEntry
	current  Frame

	// A frame's checksums can settle in either order: the host's value may
	// arrive before the driver reports ours, or after. Whichever side
	// arrives second takes the stashed first value and compares, so each
	// frame is compared exactly once.
	hostSums *peerSumRing
	ownSums  *sumRing

	status Status
	events []Event
	stats  Stats
}

// NewSpectator creates a Spectator session attached to a feed.
func NewSpectator(cfg SpectatorConfig) (*Spectator, error) {
	if cfg.NumPlayers < 1 {
		return nil, configErrorf("NumPlayers", "must be at least 1, got %d", cfg.NumPlayers)
	}
	if cfg.InputBytes < 1 {
		return nil, configErrorf("InputBytes", "must be at least 1, got %d", cfg.InputBytes)
	}
	if cfg.Feed == nil {
		return nil, configErrorf("Feed", "a feed transport is required")
	}
	if cfg.CatchupLimit < 0 {
		return nil, configErrorf("CatchupLimit", "must not be negative, got %d", cfg.CatchupLimit)
	}
	if cfg.BufferLimit < 0 {
		return nil, configErrorf("BufferLimit", "must not be negative, got %d", cfg.BufferLimit)
	}
	if cfg.ChecksumInterval < 0 {
		return nil, configErrorf("ChecksumInterval", "must not be negative, got %d", cfg.ChecksumInterval)
	}
	catchup := cfg.CatchupLimit
	if catchup == 0 {
		catchup = DefaultCatchupLimit
	}
	bufferLimit := cfg.BufferLimit
	if bufferLimit == 0 {
		bufferLimit = DefaultSpectatorBuffer
	}
	return &Spectator{
		cfg:         cfg,
		catchup:     catchup,
		bufferLimit: bufferLimit,
		feed:        cfg.Feed,
		buffered:    make(map[Frame]confirmedEntry),
		hostSums:    newPeerSumRing(bufferLimit + 64),
		ownSums:     newSumRing(128),
		status:      StatusSynchronizing,
	}, nil
}

// Advance drains the feed and emits plain Advance actions for buffered
// confirmed frames, in order, up to the catch-up limit. Local inputs are
// ignored: a spectator has none.
func (s *Spectator) Advance(map[PlayerHandle]Input) ([]Action, error) {
	switch s.status {
	case StatusClosed:
		return nil, ErrClosed
	case StatusDisconnected:
		return nil, ErrDisconnected
	}

	msgs, pollErr := s.feed.Poll()
	for _, m := range msgs {
		s.handleMessage(m)
		if s.status == StatusDisconnected {
			return nil, nil
		}
	}
	if pollErr != nil {
		s.feedGone(pollErr)
		return nil, nil
	}

	var actions []Action
	for i := 0; i < s.catchup; i++ {
		next := s.current + 1
		e, ok := s.buffered[next]
		if !ok {
			break
		}
		delete(s.buffered, next)
		if e.hasSum {
			s.hostSums.put(next, NullHandle, e.sum)
		}
		save := s.cfg.ChecksumInterval > 0 && next%Frame(s.cfg.ChecksumInterval) == 0
		actions = append(actions, advanceAction(next, e.vec, save))
		s.current = next
	}
	return actions, nil
}

func (s *Spectator) handleMessage(m Message) {
	switch m.Kind {
	case MsgConfirmed:
		if len(m.Inputs) != s.cfg.NumPlayers {
			s.feedGone(fmt.Errorf("frame %d: vector holds %d players, want %d", m.Frame, len(m.Inputs), s.cfg.NumPlayers))
			return
		}
		for h, in := range m.Inputs {
			if len(in) != s.cfg.InputBytes {
				s.feedGone(fmt.Errorf("frame %d player %d: %w", m.Frame, h, ErrInputSize))
				return
			}
		}
		if m.Frame <= s.current {
			return
		}
		if s.status == StatusSynchronizing {
			s.status = StatusRunning
			s.events = append(s.events, Event{Kind: EventSynchronized, Player: NullHandle, Frame: NullFrame})
		}
		if len(s.buffered) >= s.bufferLimit {
			s.feedGone(fmt.Errorf("%d frames buffered: %w", len(s.buffered), ErrFeedOverflow))
			return
		}
		s.buffered[m.Frame] = confirmedEntry{vec: m.Inputs, sum: m.Checksum, hasSum: m.HasChecksum}
	case MsgChecksum:
		if own, ok := s.ownSums.take(m.Frame); ok {
			s.compareSums(m.Frame, own, m.Checksum)
			return
		}
		s.hostSums.put(m.Frame, NullHandle, m.Checksum)
	case MsgBye:
		s.feedGone(nil)
	}
}

// ReportChecksum settles the comparison for a frame the host has already
// checksummed, or stashes our value until the host's arrives.
func (s *Spectator) ReportChecksum(frame Frame, sum uint64) {
	if _, host, ok := s.hostSums.take(frame); ok {
		s.compareSums(frame, sum, host)
		return
	}
	s.ownSums.put(frame, sum)
}

func (s *Spectator) compareSums(frame Frame, local, remote uint64) {
	if local != remote {
		s.events = append(s.events, Event{
			Kind:           EventDesync,
			Player:         NullHandle,
			Frame:          frame,
			LocalChecksum:  local,
			RemoteChecksum: remote,
		})
	}
}

func (s *Spectator) feedGone(err error) {
	if s.status == StatusDisconnected || s.status == StatusClosed {
		return
	}
	s.status = StatusDisconnected
	s.events = append(s.events, Event{
		Kind:   EventPeerDisconnected,
		Player: NullHandle,
		Frame:  s.current,
		Err:    err,
	})
}

// Events drains pending session events.
func (s *Spectator) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

// LocalHandles returns nil: a spectator supplies no inputs.
func (s *Spectator) LocalHandles() []PlayerHandle { return nil }

// NumPlayers returns the watched session's participant count.
func (s *Spectator) NumPlayers() int { return s.cfg.NumPlayers }

// InputBytes returns the fixed per-player input size.
func (s *Spectator) InputBytes() int { return s.cfg.InputBytes }

// PredictionWindow returns 0: a spectator never predicts or rolls back.
func (s *Spectator) PredictionWindow() int { return 0 }

// Status returns the session lifecycle state.
func (s *Spectator) Status() Status { return s.status }

// Stats reports progress; every emitted frame was confirmed by the host.
func (s *Spectator) Stats() Stats {
	st := s.stats
	st.CurrentFrame = s.current
	st.ConfirmedFrame = s.current
	return st
}

// Close detaches from the feed.
func (s *Spectator) Close() error {
	if s.status == StatusClosed {
		return ErrClosed
	}
	_ = s.feed.Close()
	s.status = StatusClosed
	return nil
}
