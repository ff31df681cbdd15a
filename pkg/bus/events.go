package bus

import (
	"context"
	"sync"
	"time"

	"drivel/pkg/stanza"
)

type EventType string

const (
	EventReceived       EventType = "event_received"
	EventReplySent      EventType = "reply_sent"
	EventDispatchFailed EventType = "dispatch_failed"
)

// Event reports dispatch activity to observers such as the transcript.
type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Channel   string            `json:"channel,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Kind      stanza.Kind       `json:"kind,omitempty"`
	From      stanza.Address    `json:"from,omitempty"`
	To        stanza.Address    `json:"to,omitempty"`
	Body      string            `json:"body,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// InboundEvent describes a received stanza.
func InboundEvent(in stanza.Event) Event {
	payload := map[string]string{"event_type": string(in.Type)}
	if in.Delayed {
		payload["delayed"] = "true"
	}

	return Event{
		Type:      EventReceived,
		Channel:   in.Channel,
		RequestID: in.ID,
		Kind:      in.Kind,
		From:      in.From,
		To:        in.To,
		Body:      in.Body,
		Payload:   payload,
	}
}

// OutboundEvent describes a delivered reply.
func OutboundEvent(reply stanza.Reply) Event {
	return Event{
		Type:      EventReplySent,
		Channel:   reply.Channel,
		RequestID: reply.InReplyTo,
		Kind:      reply.Kind,
		From:      reply.From,
		To:        reply.To,
		Body:      reply.Body,
	}
}

func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	subs := make([]chan Event, 0, len(mb.eventSubscribers))
	for _, ch := range mb.eventSubscribers {
		subs = append(subs, ch)
	}
	mb.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
