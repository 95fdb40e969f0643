package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by sessions and transports.
var (
	// ErrClosed is returned by operations on a closed session or transport.
	ErrClosed = errors.New("session closed")

	// ErrDisconnected is returned by Advance after a peer or feed loss has
	// already been surfaced through an EventPeerDisconnected event.
	ErrDisconnected = errors.New("session disconnected")

	// ErrBacklog is returned by a transport Send when the receiving queue
	// is full.
	ErrBacklog = errors.New("transport backlog full")

	// ErrMissingInput is returned by Advance when the local input map lacks
	// an entry for one of the session's local handles.
	ErrMissingInput = errors.New("missing local input")

	// ErrInputSize is returned when an input does not match the session's
	// configured input size.
	ErrInputSize = errors.New("input size mismatch")

	// ErrInputGap indicates a peer delivered inputs out of order, violating
	// the transport ordering contract. The session disconnects.
	ErrInputGap = errors.New("non-contiguous input frame")

	// ErrFeedOverflow indicates a spectator's buffer limit was exceeded by
	// a host running too far ahead. The session disconnects.
	ErrFeedOverflow = errors.New("spectator feed overflow")
)

// ConfigError reports an invalid session configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("session config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
