package session

import "fmt"

// ActionKind tags the operations a session can require of the driver.
type ActionKind int

const (
	// ActionAdvance runs one simulation step with the supplied input
	// vector, without persisting the result.
	ActionAdvance ActionKind = iota

	// ActionAdvanceAndSave runs one simulation step and then snapshots the
	// resulting state under the stepped frame.
	ActionAdvanceAndSave

	// ActionLoad restores the snapshot stored for the frame, discarding
	// the live state. A Load always precedes any Advance in the same batch.
	ActionLoad

	// ActionSave snapshots the current state under the frame without
	// stepping. Rollback-capable sessions emit it once at start, for frame
	// 0, to seed the window; it is also valid whenever a re-capture is
	// wanted without simulating.
	ActionSave
)

// String returns the lowercase action kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionAdvance:
		return "advance"
	case ActionAdvanceAndSave:
		return "advance_and_save"
	case ActionLoad:
		return "load"
	case ActionSave:
		return "save"
	default:
		return "unknown"
	}
}

// Action is one step of a batch returned by Session.Advance. Batches execute
// strictly in order on the simulation goroutine and are never abandoned
// part-way.
type Action struct {
	Kind  ActionKind
	Frame Frame

	// Inputs is the full per-player input vector, indexed by PlayerHandle.
	// Populated for ActionAdvance and ActionAdvanceAndSave; nil otherwise.
	Inputs []Input
}

// String renders the action for logs and test failures.
func (a Action) String() string {
	if a.Inputs == nil {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Frame)
	}
	return fmt.Sprintf("%s(%d, %d players)", a.Kind, a.Frame, len(a.Inputs))
}

func advanceAction(frame Frame, inputs []Input, save bool) Action {
	kind := ActionAdvance
	if save {
		kind = ActionAdvanceAndSave
	}
	return Action{Kind: kind, Frame: frame, Inputs: inputs}
}

func loadAction(frame Frame) Action {
	return Action{Kind: ActionLoad, Frame: frame}
}

func saveAction(frame Frame) Action {
	return Action{Kind: ActionSave, Frame: frame}
}
