// Package rollsync provides the rollback-netcode driver that runs a game
// simulation against a session's action stream.
package rollsync

import (
	"errors"
	"fmt"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// Sentinel errors for driver construction.
var (
	// ErrNilSession indicates NewDriver was called without a session.
	ErrNilSession = errors.New("session is required")

	// ErrNilRegistry indicates NewDriver was called without a state registry.
	ErrNilRegistry = errors.New("state registry is required")

	// ErrNilCollector indicates NewDriver was called without an input collector.
	ErrNilCollector = errors.New("input collector is required")

	// ErrNilAdvance indicates NewDriver was called without an advance function.
	ErrNilAdvance = errors.New("advance function is required")
)

// Sentinel errors for terminal driver states.
var (
	// ErrDriverClosed indicates the driver was closed. RunTick and Restart
	// reject all further calls.
	ErrDriverClosed = errors.New("driver closed")

	// ErrDisconnected indicates a peer or feed was lost, or a terminal tick
	// error occurred. Only Restart or Close are useful afterwards.
	ErrDisconnected = errors.New("driver disconnected")

	// ErrDesynced indicates a state checksum mismatch was detected. The
	// simulation has diverged and cannot be trusted; only Restart or Close
	// are useful afterwards.
	ErrDesynced = errors.New("simulation desynced")
)

// InputError wraps a failure to collect a local player's input. It fails the
// current tick only: the driver returns to idle and the next tick collects
// again for the same frame.
type InputError struct {
	// Player is the local handle whose collection failed.
	Player session.PlayerHandle
	// Err is the underlying error from the collector.
	Err error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("collect input for player %d: %v", e.Player, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InputError) Unwrap() error {
	return e.Err
}

// SnapshotError wraps a snapshot store failure. It is terminal: a frame the
// session asked for is gone, so no future rollback can be honored.
type SnapshotError struct {
	// Frame is the frame being saved or loaded.
	Frame session.Frame
	// Op is the operation that failed ("save", "load").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s at frame %d: %v", e.Op, e.Frame, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// StateError wraps a capture or restore failure from the host's registered
// state categories. It is terminal: after a partial restore the live state is
// undefined, and a failed capture means no trustworthy snapshot exists.
type StateError struct {
	// Category is the registered category that failed, when known.
	Category string
	// Op is the operation that failed ("capture", "restore").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StateError) Unwrap() error {
	return e.Err
}

// AdvanceError wraps a failure of the host's advance function. It is
// terminal: the frame was not simulated, so the session's view of progress no
// longer matches the host's.
type AdvanceError struct {
	// Frame is the frame that failed to simulate.
	Frame session.Frame
	// Err is the underlying error from the host.
	Err error
}

// Error implements the error interface.
func (e *AdvanceError) Error() string {
	return fmt.Sprintf("advance frame %d: %v", e.Frame, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AdvanceError) Unwrap() error {
	return e.Err
}

// SessionError wraps an error returned by the session layer itself. It is
// terminal: the session's internal state can no longer be advanced.
type SessionError struct {
	// Op is the session operation that failed ("advance", "close").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SessionError) Unwrap() error {
	return e.Err
}
