package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"drivel/pkg/stanza"
)

const defaultBufferSize = 100

// MessageBus connects transports to the dispatch loop. Inbound events and
// outbound replies travel through bounded queues; dispatch events fan out to
// any number of subscribers.
type MessageBus struct {
	inbound  chan stanza.Event
	outbound chan stanza.Reply
	routes   map[string]Route

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	dropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

// NewMessageBusWithBuffer creates a bus whose queues hold size items.
func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan stanza.Event, size),
		outbound:         make(chan stanza.Reply, size),
		routes:           make(map[string]Route),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg stanza.Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (stanza.Event, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return stanza.Event{}, false
	case <-mb.done:
		return stanza.Event{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg stanza.Reply) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- msg:
		return true
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (stanza.Reply, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return stanza.Reply{}, false
	case <-mb.done:
		return stanza.Reply{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

// Send queues a reply for the outbound loop. It implements the dispatch
// engine's sender boundary and never waits: a reply that finds the
// outbound queue full, or the bus closed, is dropped and counted.
func (mb *MessageBus) Send(reply stanza.Reply) {
	select {
	case <-mb.done:
		mb.dropped.Add(1)
		return
	default:
	}

	select {
	case mb.outbound <- reply:
	default:
		mb.dropped.Add(1)
	}
}

// Dropped returns the number of replies Send discarded.
func (mb *MessageBus) Dropped() int64 {
	return mb.dropped.Load()
}

// RegisterRoute binds the outbound route for a channel name.
func (mb *MessageBus) RegisterRoute(channel string, route Route) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.routes[channel] = route
}

// GetRoute returns the outbound route for a channel name.
func (mb *MessageBus) GetRoute(channel string) (Route, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	route, ok := mb.routes[channel]
	return route, ok
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
