package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventReady carries a session-ready notification.
	EventReady EventType = "ready"
	// EventError carries a bridge error.
	EventError EventType = "error"
	// EventClosed carries a session exit.
	EventClosed EventType = "closed"
	// EventMode carries a mode transition.
	EventMode EventType = "mode"
)

// Event represents a shell-facing event emitted by the bridge core.
type Event struct {
	Type   EventType
	Ready  schema.ReadyEvent
	Error  schema.ErrorEvent
	Closed schema.ClosedEvent
	Mode   schema.ModeEvent
}

// Bus fans bridge events out to subscribers. Publishing never blocks; a slow
// subscriber loses events rather than stalling the bridge.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
		if b.log != nil {
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// OnReady publishes a session-ready event.
func (b *Bus) OnReady(event schema.ReadyEvent) {
	b.publish(Event{Type: EventReady, Ready: event})
}

// OnError publishes a bridge error event.
func (b *Bus) OnError(event schema.ErrorEvent) {
	b.publish(Event{Type: EventError, Error: event})
}

// OnClosed publishes a session exit event.
func (b *Bus) OnClosed(event schema.ClosedEvent) {
	b.publish(Event{Type: EventClosed, Closed: event})
}

// OnMode publishes a mode transition event.
func (b *Bus) OnMode(event schema.ModeEvent) {
	b.publish(Event{Type: EventMode, Mode: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
