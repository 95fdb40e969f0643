// Package event provides pub/sub distribution of rollback session lifecycle
// events: synchronization, rollbacks, stalls, desyncs, and disconnects.
//
// Events decouple the driver from everything that wants to observe a match
// (UIs, recorders, alerting) without putting any of those on the tick path.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the interface every published event implements. Events are
// immutable once created.
type Event interface {
	// ID returns the unique event identifier.
	ID() string

	// Type returns the event type, e.g. "session.rollback".
	Type() string

	// Source names the component that emitted the event.
	Source() string

	// RunID groups every event of one driver run.
	RunID() string

	// Frame is the simulation frame the event concerns, -1 when the event
	// is not tied to a frame.
	Frame() int64

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// Data returns the payload.
	Data() any

	// DataBytes returns the serialized payload for transport.
	DataBytes() []byte
}

// Metadata carries the common event fields.
type Metadata struct {
	EventID     string    `json:"id"`
	EventType   string    `json:"type"`
	EventSource string    `json:"source"`
	RunID       string    `json:"run_id"`
	Frame       int64     `json:"frame"`
	Timestamp   time.Time `json:"timestamp"`
}

// BaseEvent is the generic event implementation. T is the payload type.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`

	cachedBytes []byte
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// Source returns the emitting component.
func (e *BaseEvent[T]) Source() string { return e.Meta.EventSource }

// RunID returns the driver run the event belongs to.
func (e *BaseEvent[T]) RunID() string { return e.Meta.RunID }

// Frame returns the frame the event concerns, -1 when not frame-bound.
func (e *BaseEvent[T]) Frame() int64 { return e.Meta.Frame }

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Timestamp }

// Data returns the payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the strongly-typed payload.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// DataBytes returns the serialized payload, cached after the first call.
func (e *BaseEvent[T]) DataBytes() []byte {
	if e.cachedBytes == nil {
		e.cachedBytes, _ = json.Marshal(e.Payload)
	}
	return e.cachedBytes
}

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	type alias BaseEvent[T]
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil
	return nil
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id        string
	frame     int64
	timestamp time.Time
}

// WithEventID sets a specific event ID instead of an auto-generated UUID.
func WithEventID(id string) Option {
	return func(cfg *eventConfig) { cfg.id = id }
}

// WithFrame binds the event to a simulation frame.
func WithFrame(frame int64) Option {
	return func(cfg *eventConfig) { cfg.frame = frame }
}

// WithTimestamp sets a specific timestamp instead of time.Now().
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) { cfg.timestamp = t }
}

// New creates an event.
func New[T any](eventType, source, runID string, payload T, opts ...Option) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		frame:     -1,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:     cfg.id,
			EventType:   eventType,
			EventSource: source,
			RunID:       runID,
			Frame:       cfg.frame,
			Timestamp:   cfg.timestamp,
		},
		Payload: payload,
	}
}

// Handler processes published events.
type Handler interface {
	// Handle processes one event. Errors are reported to the bus's
	// OnError hook; they never propagate to the publisher.
	Handle(ctx context.Context, evt Event) error

	// Handles returns the event types this handler wants. Empty means all.
	Handles() []string
}

// HandlerFunc adapts a function to the Handler interface, accepting all
// event types.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Handles returns nil: a HandlerFunc accepts every type.
func (f HandlerFunc) Handles() []string { return nil }

// TypedHandler wraps a function handling a specific payload type. Events
// whose payload is not T (directly or via JSON) fail with an EventError.
func TypedHandler[T any](eventTypes []string, fn func(ctx context.Context, payload T, meta Metadata) error) Handler {
	return &typedHandler[T]{eventTypes: eventTypes, fn: fn}
}

type typedHandler[T any] struct {
	eventTypes []string
	fn         func(ctx context.Context, payload T, meta Metadata) error
}

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) error {
	var payload T
	switch d := evt.Data().(type) {
	case T:
		payload = d
	case map[string]any:
		// The event crossed a serialization boundary; retype via JSON.
		raw, err := json.Marshal(d)
		if err != nil {
			return &EventError{Event: evt, Message: "marshal event data", Err: err}
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return &EventError{Event: evt, Message: "unmarshal event data to expected type", Err: err}
		}
	default:
		return &EventError{Event: evt, Message: "unexpected payload type"}
	}

	meta := Metadata{
		EventID:     evt.ID(),
		EventType:   evt.Type(),
		EventSource: evt.Source(),
		RunID:       evt.RunID(),
		Frame:       evt.Frame(),
		Timestamp:   evt.Timestamp(),
	}
	return h.fn(ctx, payload, meta)
}

func (h *typedHandler[T]) Handles() []string { return h.eventTypes }
