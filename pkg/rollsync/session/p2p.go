package session

import "fmt"

// DefaultMaxPrediction is the prediction window used when P2PConfig leaves
// MaxPrediction zero.
const DefaultMaxPrediction = 8

// MaxInputDelay bounds the configurable local input delay. The bound lets
// every peer size its input windows without knowing the others' delay.
const MaxInputDelay = 64

// P2PConfig configures a P2P session.
type P2PConfig struct {
	// NumPlayers is the total participant count across all peers.
	NumPlayers int

	// InputBytes is the fixed per-player input size.
	InputBytes int

	// LocalPlayers lists the handles owned by this machine.
	LocalPlayers []PlayerHandle

	// Remotes maps every non-local handle to the transport reaching the
	// peer that owns it. Handles owned by the same peer share a transport.
	Remotes map[PlayerHandle]Transport

	// Spectators lists feeds that receive every confirmed frame's full
	// input vector. Optional.
	Spectators []Transport

	// InputDelay schedules local inputs that many frames ahead, trading
	// local latency for fewer rollbacks. Frames inside the initial delay
	// window play the zero input. At most MaxInputDelay.
	InputDelay int

	// MaxPrediction is how many frames the session may run ahead of full
	// confirmation before stalling. Zero means DefaultMaxPrediction.
	MaxPrediction int

	// ChecksumInterval, when positive, exchanges state checksums with
	// peers for every interval-th confirmed frame and raises a desync
	// event on mismatch. Zero disables the exchange.
	ChecksumInterval int
}

// p2pLink groups the remote handles reachable over one transport.
type p2pLink struct {
	transport Transport
	handles   []PlayerHandle
	synced    bool
}

// peerSumRing retains peer checksums that arrived before our own value for
// the frame was reported.
type peerSumRing struct {
	frames  []Frame
	players []PlayerHandle
	sums    []uint64
}

func newPeerSumRing(size int) *peerSumRing {
	r := &peerSumRing{
		frames:  make([]Frame, size),
		players: make([]PlayerHandle, size),
		sums:    make([]uint64, size),
	}
	for i := range r.frames {
		r.frames[i] = NullFrame
	}
	return r
}

func (r *peerSumRing) put(frame Frame, player PlayerHandle, sum uint64) {
	idx := int(frame) % len(r.frames)
	r.frames[idx] = frame
	r.players[idx] = player
	r.sums[idx] = sum
}

func (r *peerSumRing) take(frame Frame) (PlayerHandle, uint64, bool) {
	idx := int(frame) % len(r.frames)
	if r.frames[idx] != frame {
		return NullHandle, 0, false
	}
	r.frames[idx] = NullFrame
	return r.players[idx], r.sums[idx], true
}

// P2P is the full rollback session: local inputs are scheduled, sent to every
// peer, and simulated immediately; remote inputs are predicted until the
// actual values arrive; a wrong prediction triggers a load-and-resimulate
// batch. Peers optionally exchange state checksums over confirmed frames.
type P2P struct {
	cfg           P2PConfig
	maxPrediction int
	locals        []PlayerHandle
	localSet      map[PlayerHandle]bool
	links         []p2pLink
	spectators    []Transport
	queues        []*inputQueue

	current      Frame
	seeded       bool
	pendingResim Frame

	status Status
	events []Event
	stats  Stats

	sums          *sumRing
	peerSums      *peerSumRing
	sumsSentUpTo  Frame
	broadcastUpTo Frame
}

// NewP2P creates a P2P session and announces it to every peer. The session
// owns the supplied transports and closes them on Close.
func NewP2P(cfg P2PConfig) (*P2P, error) {
	if cfg.NumPlayers < 2 {
		return nil, configErrorf("NumPlayers", "must be at least 2, got %d", cfg.NumPlayers)
	}
	if cfg.InputBytes < 1 {
		return nil, configErrorf("InputBytes", "must be at least 1, got %d", cfg.InputBytes)
	}
	if len(cfg.LocalPlayers) < 1 {
		return nil, configErrorf("LocalPlayers", "at least one local player is required")
	}
	if cfg.InputDelay < 0 || cfg.InputDelay > MaxInputDelay {
		return nil, configErrorf("InputDelay", "must be in [0, %d], got %d", MaxInputDelay, cfg.InputDelay)
	}
	if cfg.MaxPrediction < 0 {
		return nil, configErrorf("MaxPrediction", "must not be negative, got %d", cfg.MaxPrediction)
	}
	if cfg.ChecksumInterval < 0 {
		return nil, configErrorf("ChecksumInterval", "must not be negative, got %d", cfg.ChecksumInterval)
	}

	seen := make(map[PlayerHandle]bool, cfg.NumPlayers)
	localSet := make(map[PlayerHandle]bool, len(cfg.LocalPlayers))
	for _, h := range cfg.LocalPlayers {
		if h < 0 || int(h) >= cfg.NumPlayers {
			return nil, configErrorf("LocalPlayers", "handle %d out of range [0, %d)", h, cfg.NumPlayers)
		}
		if seen[h] {
			return nil, configErrorf("LocalPlayers", "handle %d listed twice", h)
		}
		seen[h] = true
		localSet[h] = true
	}
	for h, t := range cfg.Remotes {
		if h < 0 || int(h) >= cfg.NumPlayers {
			return nil, configErrorf("Remotes", "handle %d out of range [0, %d)", h, cfg.NumPlayers)
		}
		if seen[h] {
			return nil, configErrorf("Remotes", "handle %d is already local", h)
		}
		if t == nil {
			return nil, configErrorf("Remotes", "handle %d has a nil transport", h)
		}
		seen[h] = true
	}
	if len(seen) != cfg.NumPlayers {
		return nil, configErrorf("Remotes", "local and remote handles cover %d of %d players", len(seen), cfg.NumPlayers)
	}
	for i, t := range cfg.Spectators {
		if t == nil {
			return nil, configErrorf("Spectators", "feed %d is nil", i)
		}
	}

	maxPrediction := cfg.MaxPrediction
	if maxPrediction == 0 {
		maxPrediction = DefaultMaxPrediction
	}

	s := &P2P{
		cfg:           cfg,
		maxPrediction: maxPrediction,
		locals:        sortedHandles(cfg.LocalPlayers),
		localSet:      localSet,
		spectators:    append([]Transport(nil), cfg.Spectators...),
		queues:        make([]*inputQueue, cfg.NumPlayers),
		pendingResim:  NullFrame,
		status:        StatusSynchronizing,
		sums:          newSumRing(sumWindow(maxPrediction, cfg.InputDelay)),
		peerSums:      newPeerSumRing(sumWindow(maxPrediction, cfg.InputDelay)),
	}

	window := 2*(maxPrediction+MaxInputDelay) + 2
	for h := range s.queues {
		s.queues[h] = newInputQueue(window, cfg.InputBytes)
	}

	s.links = buildLinks(cfg.Remotes)

	// Announce ourselves, then pre-commit the delay window: the first
	// InputDelay frames of every local player are the zero input, and the
	// peers need those as actual values to keep their queues contiguous.
	zero := ZeroInput(cfg.InputBytes)
	for _, h := range s.locals {
		for f := Frame(1); f <= Frame(cfg.InputDelay); f++ {
			if _, err := s.queues[h].add(f, zero); err != nil {
				return nil, fmt.Errorf("session: pre-fill delay window: %w", err)
			}
		}
	}
	for i := range s.links {
		l := &s.links[i]
		if err := l.transport.Send(Message{Kind: MsgHello, Player: s.locals[0]}); err != nil {
			return nil, fmt.Errorf("session: hello: %w", err)
		}
		for _, h := range s.locals {
			for f := Frame(1); f <= Frame(cfg.InputDelay); f++ {
				if err := l.transport.Send(Message{Kind: MsgInput, Player: h, Frame: f, Input: zero}); err != nil {
					return nil, fmt.Errorf("session: pre-fill delay window: %w", err)
				}
			}
		}
	}
	return s, nil
}

func sumWindow(maxPrediction, inputDelay int) int {
	w := maxPrediction + inputDelay + 64
	if w < 64 {
		w = 64
	}
	return w
}

// buildLinks groups remote handles by transport, ordered by lowest handle so
// iteration stays deterministic.
func buildLinks(remotes map[PlayerHandle]Transport) []p2pLink {
	var links []p2pLink
	for _, h := range sortedHandles(handleKeys(remotes)) {
		t := remotes[h]
		found := false
		for i := range links {
			if links[i].transport == t {
				links[i].handles = append(links[i].handles, h)
				found = true
				break
			}
		}
		if !found {
			links = append(links, p2pLink{transport: t, handles: []PlayerHandle{h}})
		}
	}
	return links
}

func handleKeys(m map[PlayerHandle]Transport) []PlayerHandle {
	out := make([]PlayerHandle, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	return out
}

// Advance ingests everything the transports delivered, then decides the tick's
// batch: an initial Save(0) seed, a Load plus resimulation when a prediction
// turned out wrong, and one AdvanceAndSave for the next target frame unless
// the prediction window is exhausted.
func (s *P2P) Advance(local map[PlayerHandle]Input) ([]Action, error) {
	switch s.status {
	case StatusClosed:
		return nil, ErrClosed
	case StatusDisconnected:
		return nil, ErrDisconnected
	}

	s.poll()
	if s.status == StatusDisconnected {
		// The disconnect event is pending for this tick's drain; further
		// advances fail with ErrDisconnected.
		return nil, nil
	}
	if s.status == StatusSynchronizing {
		return nil, nil
	}

	// Validate the offered inputs before anything is committed, so a bad
	// tick leaves the pending rollback intact for the next one.
	offered := make(map[PlayerHandle]Input, len(s.locals))
	for _, h := range s.locals {
		in, err := localInput(local, h, s.cfg.InputBytes)
		if err != nil {
			return nil, err
		}
		offered[h] = in
	}

	target := s.current + 1
	var actions []Action
	if !s.seeded {
		s.seeded = true
		actions = append(actions, saveAction(0))
	}

	resimFrom := s.pendingResim
	if resimFrom != NullFrame {
		s.pendingResim = NullFrame
		actions = append(actions, loadAction(resimFrom-1))
		for f := resimFrom; f < target; f++ {
			vec, err := s.vectorFor(f)
			if err != nil {
				return nil, err
			}
			actions = append(actions, advanceAction(f, vec, true))
		}
		s.stats.Rollbacks++
		s.stats.LastRollbackDepth = int(target - resimFrom)
	}

	if target-s.confirmedFrame() > Frame(s.maxPrediction) {
		// Window exhausted: the offered inputs are not consumed and the
		// caller re-collects for the same target next tick.
		s.stats.Stalls++
		s.flushConfirmed(resimFrom)
		return actions, nil
	}

	for _, h := range s.locals {
		in := offered[h]
		sched := target + Frame(s.cfg.InputDelay)
		if _, err := s.queues[h].add(sched, in); err != nil {
			return nil, fmt.Errorf("schedule local input: %w", err)
		}
		s.sendToPeers(Message{Kind: MsgInput, Player: h, Frame: sched, Input: in})
	}
	if s.status == StatusDisconnected {
		// A send failed mid-schedule; the rollback portion of the batch is
		// still valid and keeps local state healed.
		return actions, nil
	}

	vec, err := s.vectorFor(target)
	if err != nil {
		return nil, err
	}
	actions = append(actions, advanceAction(target, vec, true))
	s.current = target

	s.flushConfirmed(resimFrom)
	return actions, nil
}

// poll drains every link and applies the messages in arrival order.
func (s *P2P) poll() {
	for i := range s.links {
		l := &s.links[i]
		msgs, err := l.transport.Poll()
		for _, m := range msgs {
			s.handleMessage(l, m)
			if s.status == StatusDisconnected {
				return
			}
		}
		if err != nil {
			s.peerGone(l, err)
			return
		}
	}
	if s.status == StatusSynchronizing && s.allSynced() {
		s.status = StatusRunning
		s.events = append(s.events, Event{Kind: EventSynchronized, Player: NullHandle, Frame: NullFrame})
	}
}

func (s *P2P) handleMessage(l *p2pLink, m Message) {
	switch m.Kind {
	case MsgHello:
		l.synced = true
	case MsgInput:
		if int(m.Player) < 0 || int(m.Player) >= s.cfg.NumPlayers || s.localSet[m.Player] {
			s.peerGone(l, fmt.Errorf("input for unexpected player %d", m.Player))
			return
		}
		if len(m.Input) != s.cfg.InputBytes {
			s.peerGone(l, fmt.Errorf("player %d frame %d: %w", m.Player, m.Frame, ErrInputSize))
			return
		}
		mispredicted, err := s.queues[m.Player].add(m.Frame, m.Input)
		if err != nil {
			s.peerGone(l, fmt.Errorf("player %d frame %d: %w", m.Player, m.Frame, err))
			return
		}
		if mispredicted && (s.pendingResim == NullFrame || m.Frame < s.pendingResim) {
			s.pendingResim = m.Frame
		}
	case MsgChecksum:
		s.handlePeerSum(l, m)
	case MsgBye:
		s.peerGone(l, nil)
	}
}

// handlePeerSum compares a peer's checksum against our own for the same
// frame. If our value is not available yet, or a pending resimulation is
// about to rewrite it, the peer value waits until ReportChecksum delivers the
// settled local sum.
func (s *P2P) handlePeerSum(l *p2pLink, m Message) {
	player := l.handles[0]
	if s.pendingResim != NullFrame && m.Frame >= s.pendingResim {
		s.peerSums.put(m.Frame, player, m.Checksum)
		return
	}
	own, ok := s.sums.get(m.Frame)
	if !ok {
		s.peerSums.put(m.Frame, player, m.Checksum)
		return
	}
	if own != m.Checksum {
		s.events = append(s.events, Event{
			Kind:           EventDesync,
			Player:         player,
			Frame:          m.Frame,
			LocalChecksum:  own,
			RemoteChecksum: m.Checksum,
		})
	}
}

// ReportChecksum records the driver's checksum for a saved frame and settles
// any peer comparison that was waiting for it.
func (s *P2P) ReportChecksum(frame Frame, sum uint64) {
	s.sums.put(frame, sum)
	if player, peer, ok := s.peerSums.take(frame); ok {
		if s.pendingResim != NullFrame && frame >= s.pendingResim {
			// Still settling; put the peer value back for the re-report.
			s.peerSums.put(frame, player, peer)
			return
		}
		if peer != sum {
			s.events = append(s.events, Event{
				Kind:           EventDesync,
				Player:         player,
				Frame:          frame,
				LocalChecksum:  sum,
				RemoteChecksum: peer,
			})
		}
	}
}

// vectorFor assembles the full input vector for a frame: actual inputs where
// confirmed, recorded predictions elsewhere.
func (s *P2P) vectorFor(frame Frame) ([]Input, error) {
	vec := make([]Input, s.cfg.NumPlayers)
	for h := 0; h < s.cfg.NumPlayers; h++ {
		q := s.queues[h]
		if frame <= q.confirmed {
			in, ok := q.confirmedAt(frame)
			if !ok {
				return nil, fmt.Errorf("input for player %d frame %d evicted from window", h, frame)
			}
			vec[h] = in
			continue
		}
		p := q.predict()
		q.recordPrediction(frame, p)
		vec[h] = p
	}
	return vec, nil
}

// confirmedVector assembles a frame's vector from actual inputs only.
func (s *P2P) confirmedVector(frame Frame) ([]Input, error) {
	vec := make([]Input, s.cfg.NumPlayers)
	for h := 0; h < s.cfg.NumPlayers; h++ {
		in, ok := s.queues[h].confirmedAt(frame)
		if !ok {
			return nil, fmt.Errorf("confirmed input for player %d frame %d evicted from window", h, frame)
		}
		vec[h] = in
	}
	return vec, nil
}

func (s *P2P) confirmedFrame() Frame {
	conf := s.queues[0].confirmed
	for _, q := range s.queues[1:] {
		if q.confirmed < conf {
			conf = q.confirmed
		}
	}
	return conf
}

// flushConfirmed pushes newly confirmed frames outward: full vectors to the
// spectator feeds and, at the configured interval, checksums to the peers.
// Frames covered by a resimulation issued this tick keep their checksums back
// until the re-report settles them.
func (s *P2P) flushConfirmed(resimFrom Frame) {
	conf := s.confirmedFrame()

	for f := s.broadcastUpTo + 1; f <= conf; f++ {
		vec, err := s.confirmedVector(f)
		if err != nil {
			break
		}
		msg := Message{Kind: MsgConfirmed, Frame: f, Inputs: vec}
		if sum, ok := s.sums.get(f); ok && (resimFrom == NullFrame || f < resimFrom) {
			msg.Checksum = sum
			msg.HasChecksum = true
		}
		for _, t := range s.spectators {
			// Spectator loss never disturbs the match.
			_ = t.Send(msg)
		}
		s.broadcastUpTo = f
	}

	if s.cfg.ChecksumInterval <= 0 {
		return
	}
	step := Frame(s.cfg.ChecksumInterval)
	for f := s.sumsSentUpTo + step; f <= conf; f += step {
		if resimFrom != NullFrame && f >= resimFrom {
			break
		}
		sum, ok := s.sums.get(f)
		if !ok {
			break
		}
		msg := Message{Kind: MsgChecksum, Frame: f, Checksum: sum}
		s.sendToPeers(msg)
		for _, t := range s.spectators {
			_ = t.Send(msg)
		}
		s.sumsSentUpTo = f
	}
}

func (s *P2P) sendToPeers(msg Message) {
	for i := range s.links {
		l := &s.links[i]
		if err := l.transport.Send(msg); err != nil {
			s.peerGone(l, err)
			return
		}
	}
}

func (s *P2P) peerGone(l *p2pLink, err error) {
	if s.status == StatusDisconnected || s.status == StatusClosed {
		return
	}
	s.status = StatusDisconnected
	s.events = append(s.events, Event{
		Kind:   EventPeerDisconnected,
		Player: l.handles[0],
		Frame:  s.current,
		Err:    err,
	})
}

func (s *P2P) allSynced() bool {
	for i := range s.links {
		if !s.links[i].synced {
			return false
		}
	}
	return true
}

// Events drains pending session events.
func (s *P2P) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

// LocalHandles returns this machine's handles in ascending order.
func (s *P2P) LocalHandles() []PlayerHandle {
	return sortedHandles(s.locals)
}

// NumPlayers returns the total participant count.
func (s *P2P) NumPlayers() int { return s.cfg.NumPlayers }

// InputBytes returns the fixed per-player input size.
func (s *P2P) InputBytes() int { return s.cfg.InputBytes }

// PredictionWindow returns the configured maximum prediction depth.
func (s *P2P) PredictionWindow() int { return s.maxPrediction }

// Status returns the session lifecycle state.
func (s *P2P) Status() Status { return s.status }

// Stats reports rollback and confirmation progress.
func (s *P2P) Stats() Stats {
	st := s.stats
	st.CurrentFrame = s.current
	st.ConfirmedFrame = s.confirmedFrame()
	return st
}

// Close says goodbye to every peer and closes the transports.
func (s *P2P) Close() error {
	if s.status == StatusClosed {
		return ErrClosed
	}
	bye := Message{Kind: MsgBye}
	if len(s.locals) > 0 {
		bye.Player = s.locals[0]
	}
	for i := range s.links {
		_ = s.links[i].transport.Send(bye)
		_ = s.links[i].transport.Close()
	}
	for _, t := range s.spectators {
		_ = t.Send(bye)
		_ = t.Close()
	}
	s.status = StatusClosed
	return nil
}
