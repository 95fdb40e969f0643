// Package session provides rollback session state machines that turn player
// inputs into ordered simulation directives.
//
// # Overview
//
// A Session owns input collection, prediction, and peer agreement for one
// networked simulation. It never touches game state itself: each call to
// Advance returns a batch of Actions (save, load, advance) that the caller
// applies to its own simulation in order. Four variants share the interface:
//
//   - Local: every player is local, no prediction, no rollbacks
//   - P2P: remote players over transports, with prediction and rollbacks
//   - Spectator: replays confirmed inputs from a host feed, never predicts
//   - SyncTest: all-local self check that rolls back every frame on purpose
//
// # Frames
//
// Frames count simulation steps starting at 1. Frame 0 is the initial state
// before any step has run; sessions that can roll back emit a Save for frame
// 0 on their first advance so there is always a restore point.
//
// # Actions
//
// The Action contract keeps sessions deterministic and single-threaded:
//
//	acts, err := sess.Advance(map[session.PlayerHandle]session.Input{0: in})
//	if err != nil { ... }
//	for _, a := range acts {
//	    switch a.Kind {
//	    case session.ActionSave:
//	        // snapshot current state as a.Frame
//	    case session.ActionLoad:
//	        // restore state to a.Frame
//	    case session.ActionAdvance, session.ActionAdvanceAndSave:
//	        // step the simulation with a.Inputs, then save if asked
//	    }
//	}
//
// An empty batch is valid: the session is either still synchronizing with
// peers or stalling because a remote player's inputs are too far behind. The
// caller's inputs are not consumed in that case and should be offered again.
//
// # Transports
//
// P2P and Spectator sessions exchange Messages over the Transport interface.
// Transports never block and deliver messages per peer in order. Pair returns
// two in-process connected ends, used by tests and same-process sessions; real
// network transports implement the same three methods.
//
// # Events
//
// Sessions surface lifecycle changes (synchronized, peer disconnected,
// desync detected) as Events drained via Events. Drain them every tick;
// pending events are how a session explains an empty batch or a status
// change.
package session
