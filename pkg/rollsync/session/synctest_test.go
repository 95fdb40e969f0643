package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

func TestNewSyncTest_Validation(t *testing.T) {
	cases := []struct {
		name  string
		cfg   session.SyncTestConfig
		field string
	}{
		{"no_players", session.SyncTestConfig{InputBytes: 1}, "NumPlayers"},
		{"no_input_bytes", session.SyncTestConfig{NumPlayers: 1}, "InputBytes"},
		{"negative_distance", session.SyncTestConfig{NumPlayers: 1, InputBytes: 1, CheckDistance: -1}, "CheckDistance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := session.NewSyncTest(tc.cfg)
			var ce *session.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}

	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 1, InputBytes: 1})
	require.NoError(t, err)
	assert.Equal(t, session.DefaultCheckDistance, s.PredictionWindow())
}

func TestSyncTest_BatchShape(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 1, InputBytes: 1, CheckDistance: 2})
	require.NoError(t, err)
	h := newSimHarness(t, s)

	acts := h.step(map[session.PlayerHandle]session.Input{0: in(1)})
	require.Len(t, acts, 2)
	assert.Equal(t, session.ActionSave, acts[0].Kind)
	assert.Equal(t, session.Frame(0), acts[0].Frame)
	assert.Equal(t, session.ActionAdvanceAndSave, acts[1].Kind)
	assert.Equal(t, session.Frame(1), acts[1].Frame)

	acts = h.step(map[session.PlayerHandle]session.Input{0: in(2)})
	require.Len(t, acts, 1)
	assert.Equal(t, session.Frame(2), acts[0].Frame)

	acts = h.step(map[session.PlayerHandle]session.Input{0: in(3)})
	require.Len(t, acts, 4, "past the check distance every tick replays")
	assert.Equal(t, session.ActionLoad, acts[0].Kind)
	assert.Equal(t, session.Frame(0), acts[0].Frame)
	assert.Equal(t, session.Frame(1), acts[1].Frame)
	assert.Equal(t, []session.Input{in(1)}, acts[1].Inputs, "replay feeds the recorded inputs")
	assert.Equal(t, session.Frame(2), acts[2].Frame)
	assert.Equal(t, session.Frame(3), acts[3].Frame)

	acts = h.step(map[session.PlayerHandle]session.Input{0: in(4)})
	require.Len(t, acts, 4)
	assert.Equal(t, session.ActionLoad, acts[0].Kind)
	assert.Equal(t, session.Frame(1), acts[0].Frame)
	assert.Equal(t, session.Frame(4), acts[3].Frame)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Rollbacks)
	assert.Equal(t, 2, st.LastRollbackDepth)
	assert.Equal(t, session.Frame(4), st.CurrentFrame)
}

func TestSyncTest_DeterministicSimStaysQuiet(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 2, InputBytes: 1, CheckDistance: 2})
	require.NoError(t, err)
	h := newSimHarness(t, s)

	const ticks = 12
	for i := 0; i < ticks; i++ {
		h.step(map[session.PlayerHandle]session.Input{0: in(byte(i)), 1: in(byte(i * 5))})
	}

	assert.Empty(t, h.eventsOf(session.EventDesync))
	assert.Len(t, h.eventsOf(session.EventSynchronized), 1)

	st := s.Stats()
	assert.Equal(t, session.Frame(ticks), st.CurrentFrame)
	assert.Equal(t, uint64(ticks-2), st.Rollbacks)
}

func TestSyncTest_LeakedStateDetected(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 1, InputBytes: 1, CheckDistance: 2})
	require.NoError(t, err)
	h := newSimHarness(t, s)
	h.leak = true

	for i := 0; i < 5; i++ {
		h.step(map[session.PlayerHandle]session.Input{0: in(byte(i))})
	}

	desyncs := h.eventsOf(session.EventDesync)
	require.NotEmpty(t, desyncs)
	e := desyncs[0]
	assert.Equal(t, session.Frame(1), e.Frame, "the first replayed frame already diverges")
	assert.Equal(t, session.NullHandle, e.Player)
	assert.NotEqual(t, e.LocalChecksum, e.RemoteChecksum)
}

func TestSyncTest_InputErrorsDoNotAdvance(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 2, InputBytes: 1})
	require.NoError(t, err)

	_, err = s.Advance(map[session.PlayerHandle]session.Input{0: in(1)})
	assert.ErrorIs(t, err, session.ErrMissingInput)
	assert.Equal(t, session.Frame(0), s.Stats().CurrentFrame)

	acts, err := s.Advance(map[session.PlayerHandle]session.Input{0: in(1), 1: in(2)})
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, session.ActionSave, acts[0].Kind, "the seed save waits for the first good tick")
}

func TestSyncTest_Close(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 1, InputBytes: 1})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = s.Advance(map[session.PlayerHandle]session.Input{0: in(1)})
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.ErrorIs(t, s.Close(), session.ErrClosed)
}

func TestSyncTest_Shape(t *testing.T) {
	s, err := session.NewSyncTest(session.SyncTestConfig{NumPlayers: 2, InputBytes: 1, CheckDistance: 3})
	require.NoError(t, err)

	assert.Equal(t, []session.PlayerHandle{0, 1}, s.LocalHandles())
	assert.Equal(t, 2, s.NumPlayers())
	assert.Equal(t, 3, s.PredictionWindow())
}
