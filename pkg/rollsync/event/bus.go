package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus distributes events to subscribed handlers.
type Bus interface {
	// Publish delivers an event to every matching subscription.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers a handler for one event type. Returns nil when
	// the bus is closed or the subscriber limit is reached.
	Subscribe(eventType string, handler Handler) Subscription

	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler Handler) Subscription

	// Close shuts the bus down and waits for in-flight handlers.
	Close() error
}

// Subscription controls one registered handler.
type Subscription interface {
	// Unsubscribe removes the handler. Buffered events are discarded.
	Unsubscribe()

	// Pause discards events until Resume is called.
	Pause()

	// Resume re-enables delivery after Pause.
	Resume()

	// IsPaused reports whether the subscription is paused.
	IsPaused() bool
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the per-subscription channel depth.
	BufferSize int

	// MaxSubscribers caps the number of subscriptions, 0 for unlimited.
	MaxSubscribers int

	// NonBlocking makes Publish drop events for full subscribers instead
	// of waiting. The driver publishes in this mode so a slow observer
	// can never hold up the tick loop.
	NonBlocking bool

	// OnDrop is called when NonBlocking delivery drops an event.
	OnDrop func(evt Event)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, err error)
}

// DefaultBusConfig returns the default bus configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize:  256,
		NonBlocking: true,
	}
}

// LocalBus is an in-process Bus implementation. Each subscription runs its
// handler on a dedicated goroutine fed by a buffered channel, so handlers
// never run on the publisher's goroutine.
type LocalBus struct {
	mu            sync.RWMutex
	subscriptions map[int64]*localSubscription
	byType        map[string][]int64
	wildcards     []int64
	nextID        int64

	config  BusConfig
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewLocalBus creates an in-process bus.
func NewLocalBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}
	return &LocalBus{
		subscriptions: make(map[int64]*localSubscription),
		byType:        make(map[string][]int64),
		config:        config,
		closeCh:       make(chan struct{}),
	}
}

type localSubscription struct {
	id      int64
	types   []string
	handler Handler
	ch      chan Event
	done    chan struct{}
	paused  atomic.Bool
	bus     *LocalBus
}

// Publish delivers an event to every matching subscription.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &EventError{Event: evt, Message: "bus is closed"}
	}

	b.mu.RLock()
	targets := make([]*localSubscription, 0, len(b.wildcards)+4)
	for _, id := range b.byType[evt.Type()] {
		if sub, ok := b.subscriptions[id]; ok {
			targets = append(targets, sub)
		}
	}
	for _, id := range b.wildcards {
		if sub, ok := b.subscriptions[id]; ok {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if b.config.NonBlocking {
			select {
			case sub.ch <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt)
				}
			}
			continue
		}

		select {
		case sub.ch <- evt:
		case <-sub.done:
		case <-b.closeCh:
			return &EventError{Event: evt, Message: "bus is closed"}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a handler for one event type.
func (b *LocalBus) Subscribe(eventType string, handler Handler) Subscription {
	return b.subscribe([]string{eventType}, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types []string, handler Handler) Subscription {
	if b.closed.Load() || handler == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxSubscribers > 0 && len(b.subscriptions) >= b.config.MaxSubscribers {
		return nil
	}

	b.nextID++
	sub := &localSubscription{
		id:      b.nextID,
		types:   types,
		handler: handler,
		ch:      make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	b.subscriptions[sub.id] = sub
	if len(types) == 0 {
		b.wildcards = append(b.wildcards, sub.id)
	} else {
		for _, t := range types {
			b.byType[t] = append(b.byType[t], sub.id)
		}
	}

	b.wg.Add(1)
	go sub.process()
	return sub
}

func (s *localSubscription) process() {
	defer s.bus.wg.Done()
	for {
		select {
		case evt := <-s.ch:
			if s.paused.Load() {
				continue
			}
			if err := s.handler.Handle(context.Background(), evt); err != nil {
				if s.bus.config.OnError != nil {
					s.bus.config.OnError(evt, err)
				}
			}
		case <-s.done:
			return
		}
	}
}

// Unsubscribe removes the handler from the bus.
func (s *localSubscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	if _, ok := b.subscriptions[s.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscriptions, s.id)
	if len(s.types) == 0 {
		b.wildcards = removeID(b.wildcards, s.id)
	} else {
		for _, t := range s.types {
			b.byType[t] = removeID(b.byType[t], s.id)
			if len(b.byType[t]) == 0 {
				delete(b.byType, t)
			}
		}
	}
	b.mu.Unlock()

	close(s.done)
}

// Pause discards events until Resume is called.
func (s *localSubscription) Pause() { s.paused.Store(true) }

// Resume re-enables delivery.
func (s *localSubscription) Resume() { s.paused.Store(false) }

// IsPaused reports whether the subscription is paused.
func (s *localSubscription) IsPaused() bool { return s.paused.Load() }

// SubscriberCount returns the number of active subscriptions.
func (b *LocalBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close shuts the bus down and waits for subscription goroutines to exit.
// Buffered events that were not yet handled are discarded.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := make([]*localSubscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[int64]*localSubscription)
	b.byType = make(map[string][]int64)
	b.wildcards = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
	return nil
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
