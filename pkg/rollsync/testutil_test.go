package rollsync

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/outrunlabs/rollsync/pkg/rollsync/event"
	"github.com/outrunlabs/rollsync/pkg/rollsync/registry"
	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// testGame is a deterministic toy simulation: a single uint64 accumulator
// folded from each frame number and input byte. It registers as one state
// category, so saving and restoring it exercises the whole snapshot path.
type testGame struct {
	value   uint64
	history []session.Frame
	valueAt map[session.Frame]uint64

	advanceErr error
	captureErr error
	restoreErr error

	// leak mixes an unregistered counter into the state, modeling game
	// state that escaped the snapshot registry.
	leak    bool
	counter uint64
}

func newTestGame() *testGame {
	return &testGame{valueAt: make(map[session.Frame]uint64)}
}

func (g *testGame) category(name string) registry.Category {
	return registry.Category{
		Name: name,
		Capture: func() ([]byte, error) {
			if g.captureErr != nil {
				return nil, g.captureErr
			}
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, g.value)
			return b, nil
		},
		Restore: func(b []byte) error {
			if g.restoreErr != nil {
				return g.restoreErr
			}
			g.value = binary.LittleEndian.Uint64(b)
			return nil
		},
	}
}

func (g *testGame) newRegistry() *registry.Registry {
	reg := registry.New()
	if err := reg.Register(g.category("accumulator")); err != nil {
		panic(err)
	}
	return reg
}

func (g *testGame) advance(frame session.Frame, inputs []session.Input) error {
	if g.advanceErr != nil {
		return g.advanceErr
	}
	g.value = g.value*31 + uint64(frame)
	for _, in := range inputs {
		for _, b := range in {
			g.value = g.value*31 + uint64(b)
		}
	}
	if g.leak {
		g.value += g.counter
		g.counter++
	}
	g.history = append(g.history, frame)
	g.valueAt[frame] = g.value
	return nil
}

// fixedCollector returns the same one-byte input every tick, varied per
// player so vectors are distinguishable.
func fixedCollector(b byte) InputCollector {
	return func(p session.PlayerHandle) (session.Input, error) {
		return session.Input{b + byte(p)}, nil
	}
}

// tickCollector returns a fresh one-byte input per call, so consecutive
// frames carry different values.
func tickCollector(seed byte) InputCollector {
	n := seed
	return func(p session.PlayerHandle) (session.Input, error) {
		n++
		return session.Input{n + byte(p)*64}, nil
	}
}

// stubSession scripts Advance batches so driver behavior can be tested
// action by action.
type stubSession struct {
	batches    [][]session.Action
	advErr     error
	onAdvance  func()
	pending    []session.Event
	locals     []session.PlayerHandle
	players    int
	inputBytes int
	window     int
	stats      session.Stats
	status     session.Status

	reported map[session.Frame]uint64
	received []map[session.PlayerHandle]session.Input
	closed   bool
	closeErr error
}

func newStubSession() *stubSession {
	return &stubSession{
		locals:     []session.PlayerHandle{0},
		players:    2,
		inputBytes: 1,
		window:     4,
		status:     session.StatusRunning,
		reported:   make(map[session.Frame]uint64),
	}
}

func (s *stubSession) Advance(local map[session.PlayerHandle]session.Input) ([]session.Action, error) {
	cp := make(map[session.PlayerHandle]session.Input, len(local))
	for k, v := range local {
		cp[k] = v
	}
	s.received = append(s.received, cp)
	if s.onAdvance != nil {
		s.onAdvance()
	}
	if s.advErr != nil {
		return nil, s.advErr
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *stubSession) ReportChecksum(frame session.Frame, sum uint64) {
	s.reported[frame] = sum
}

func (s *stubSession) Events() []session.Event {
	out := s.pending
	s.pending = nil
	return out
}

func (s *stubSession) LocalHandles() []session.PlayerHandle { return s.locals }
func (s *stubSession) NumPlayers() int                      { return s.players }
func (s *stubSession) InputBytes() int                      { return s.inputBytes }
func (s *stubSession) PredictionWindow() int                { return s.window }
func (s *stubSession) Status() session.Status               { return s.status }
func (s *stubSession) Stats() session.Stats                 { return s.stats }

func (s *stubSession) Close() error {
	if s.closed {
		return session.ErrClosed
	}
	s.closed = true
	return s.closeErr
}

// stubBus collects published events synchronously.
type stubBus struct {
	events []event.Event
	err    error
}

func (b *stubBus) Publish(_ context.Context, evt event.Event) error {
	b.events = append(b.events, evt)
	return b.err
}

func (b *stubBus) Subscribe(string, event.Handler) event.Subscription { return nil }
func (b *stubBus) SubscribeAll(event.Handler) event.Subscription      { return nil }
func (b *stubBus) Close() error                                       { return nil }

func (b *stubBus) ofType(eventType string) []event.Event {
	var out []event.Event
	for _, evt := range b.events {
		if evt.Type() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// stubMetrics counts recorder calls.
type stubMetrics struct {
	ticks      int
	tickErrs   int
	kinds      []string
	advanced   int
	rollbacks  []int
	stalls     int
	snapshots  map[string]int
	totalBytes int64
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{snapshots: make(map[string]int)}
}

func (m *stubMetrics) RecordTick(_ context.Context, kind string, _ time.Duration, err error) {
	m.ticks++
	m.kinds = append(m.kinds, kind)
	if err != nil {
		m.tickErrs++
	}
}

func (m *stubMetrics) RecordAdvance(_ context.Context, frames int) {
	m.advanced += frames
}

func (m *stubMetrics) RecordRollback(_ context.Context, depth int) {
	m.rollbacks = append(m.rollbacks, depth)
}

func (m *stubMetrics) RecordStall(_ context.Context) {
	m.stalls++
}

func (m *stubMetrics) RecordSnapshot(_ context.Context, op string, sizeBytes int64) {
	m.snapshots[op]++
	m.totalBytes += sizeBytes
}

func save(frame session.Frame) session.Action {
	return session.Action{Kind: session.ActionSave, Frame: frame}
}

func load(frame session.Frame) session.Action {
	return session.Action{Kind: session.ActionLoad, Frame: frame}
}

func aas(frame session.Frame, inputs ...byte) session.Action {
	return session.Action{Kind: session.ActionAdvanceAndSave, Frame: frame, Inputs: vec(inputs...)}
}

func adv(frame session.Frame, inputs ...byte) session.Action {
	return session.Action{Kind: session.ActionAdvance, Frame: frame, Inputs: vec(inputs...)}
}

func vec(bs ...byte) []session.Input {
	out := make([]session.Input, len(bs))
	for i, b := range bs {
		out[i] = session.Input{b}
	}
	return out
}
