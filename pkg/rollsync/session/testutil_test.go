package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// simHarness applies action batches to a small deterministic simulation and
// reports checksums back to the session, standing in for the driver.
type simHarness struct {
	t    *testing.T
	sess session.Session

	frame session.Frame
	value uint64
	saves map[session.Frame]uint64

	events []session.Event

	// sumSkew offsets every reported checksum, modeling a peer whose state
	// diverged.
	sumSkew uint64

	// leak mixes a counter that Load does not restore into the state,
	// modeling game state that escaped the snapshot path.
	leak    bool
	counter uint64
}

func newSimHarness(t *testing.T, sess session.Session) *simHarness {
	return &simHarness{t: t, sess: sess, saves: make(map[session.Frame]uint64)}
}

// step advances the session one tick, applies the batch, and drains events.
func (h *simHarness) step(inputs map[session.PlayerHandle]session.Input) []session.Action {
	h.t.Helper()
	acts, err := h.sess.Advance(inputs)
	require.NoError(h.t, err)
	h.apply(acts)
	h.events = append(h.events, h.sess.Events()...)
	return acts
}

func (h *simHarness) apply(acts []session.Action) {
	h.t.Helper()
	for _, a := range acts {
		switch a.Kind {
		case session.ActionSave:
			h.saves[a.Frame] = h.value
			h.report(a.Frame)
		case session.ActionLoad:
			v, ok := h.saves[a.Frame]
			require.True(h.t, ok, "load of frame %d with no snapshot", a.Frame)
			h.value = v
			h.frame = a.Frame
		case session.ActionAdvance, session.ActionAdvanceAndSave:
			require.Equal(h.t, h.frame+1, a.Frame, "advance skipped a frame")
			h.advance(a)
			if a.Kind == session.ActionAdvanceAndSave {
				h.saves[a.Frame] = h.value
				h.report(a.Frame)
			}
		}
	}
}

func (h *simHarness) advance(a session.Action) {
	h.value = h.value*31 + uint64(a.Frame)
	for _, in := range a.Inputs {
		for _, b := range in {
			h.value = h.value*31 + uint64(b)
		}
	}
	if h.leak {
		h.value += h.counter
		h.counter++
	}
	h.frame = a.Frame
}

func (h *simHarness) report(frame session.Frame) {
	h.sess.ReportChecksum(frame, h.value+h.sumSkew)
}

func (h *simHarness) eventsOf(kind session.EventKind) []session.Event {
	var out []session.Event
	for _, e := range h.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func in(b byte) session.Input { return session.Input{b} }
