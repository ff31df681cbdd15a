package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"drivel/pkg/stanza"
)

func TestInboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	in := stanza.NewMessage(stanza.KindChat, "bob@host", "bot@host", "hello")
	in.Channel = "console"
	if ok := mb.PublishInbound(context.Background(), in); !ok {
		t.Fatal("expected inbound publish to succeed")
	}

	out, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected inbound consume to succeed")
	}
	if out.Body != in.Body || out.From != in.From {
		t.Fatalf("event = %+v, want %+v", out, in)
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	in := stanza.Reply{Kind: stanza.KindChat, Channel: "console", To: "bob@host", Body: "world"}
	if ok := mb.PublishOutbound(context.Background(), in); !ok {
		t.Fatal("expected outbound publish to succeed")
	}

	out, ok := mb.SubscribeOutbound(context.Background())
	if !ok {
		t.Fatal("expected outbound subscribe to succeed")
	}
	if out.Body != in.Body {
		t.Fatalf("body = %q, want %q", out.Body, in.Body)
	}
}

func TestSendQueuesReply(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	mb.Send(stanza.Reply{Channel: "console", To: "bob@host", Body: "pong"})

	out, ok := mb.SubscribeOutbound(context.Background())
	if !ok {
		t.Fatal("expected queued reply")
	}
	if out.Body != "pong" {
		t.Fatalf("body = %q, want pong", out.Body)
	}
}

func TestSendAfterCloseDoesNotBlock(t *testing.T) {
	mb := NewMessageBusWithBuffer(1)
	mb.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		mb.Send(stanza.Reply{Body: "one"})
		mb.Send(stanza.Reply{Body: "two"})
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("send blocked after close")
	}

	if got := mb.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMessageBusWithBuffer(1)
	defer mb.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, body := range []string{"one", "two", "three"} {
			mb.Send(stanza.Reply{Channel: "console", Body: body})
		}
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("send blocked on a full outbound queue")
	}

	if got := mb.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}

	out, ok := mb.SubscribeOutbound(context.Background())
	if !ok || out.Body != "one" {
		t.Fatalf("queued reply = %+v, ok = %v, want the first reply", out, ok)
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if ok := mb.PublishInbound(context.Background(), stanza.Event{Body: "hello"}); ok {
		t.Fatal("expected inbound publish to fail after close")
	}
	if ok := mb.PublishOutbound(context.Background(), stanza.Reply{Body: "hello"}); ok {
		t.Fatal("expected outbound publish to fail after close")
	}

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatal("expected inbound consume to stop after close")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatal("expected outbound subscribe to stop after close")
	}
}

func TestContextCancellation(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := mb.PublishInbound(ctx, stanza.Event{Body: "hello"}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}

func TestRegisterAndGetRoute(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	wantErr := errors.New("offline")
	mb.RegisterRoute("telegram", func(context.Context, stanza.Reply) error { return wantErr })

	got, ok := mb.GetRoute("telegram")
	if !ok {
		t.Fatal("expected route")
	}
	if err := got(context.Background(), stanza.Reply{}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if _, ok := mb.GetRoute("websocket"); ok {
		t.Fatal("expected no route for unregistered channel")
	}
}

func TestConsumeUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mb.ConsumeInbound(context.Background())
	}()

	mb.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("consume did not unblock after close")
	}
}

func TestSubscribeUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mb.SubscribeOutbound(context.Background())
	}()

	mb.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscribe did not unblock after close")
	}
}

func TestInboundAndOutboundEvents(t *testing.T) {
	in := stanza.NewMessage(stanza.KindGroupchat, "room@conf/dave", "bot@host", "!ping")
	in.ID = "evt-1"
	in.Channel = "websocket"
	in.Delayed = true

	got := InboundEvent(in)
	if got.Type != EventReceived || got.RequestID != "evt-1" || got.Channel != "websocket" {
		t.Fatalf("inbound event = %+v", got)
	}
	if got.Payload["event_type"] != "message" || got.Payload["delayed"] != "true" {
		t.Fatalf("payload = %+v", got.Payload)
	}

	out := OutboundEvent(stanza.Reply{Kind: stanza.KindGroupchat, To: "room@conf", Body: "dave: pong", InReplyTo: "evt-1"})
	if out.Type != EventReplySent || out.RequestID != "evt-1" || out.To != "room@conf" {
		t.Fatalf("outbound event = %+v", out)
	}
}

func TestEventFanout(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	eventsA, unsubA := mb.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := mb.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventReceived, RequestID: "1"}
	if ok := mb.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case got := <-eventsA:
		if got.Type != EventReceived {
			t.Fatalf("event type = %q, want %q", got.Type, EventReceived)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscriber A did not receive event")
	}

	select {
	case got := <-eventsB:
		if got.Type != EventReceived {
			t.Fatalf("event type = %q, want %q", got.Type, EventReceived)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscriber B did not receive event")
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := mb.PublishEvent(ctx, Event{Type: EventReceived}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := mb.PublishEvent(ctx, Event{Type: EventReplySent}); !ok {
		t.Fatal("expected second event publish to succeed")
	}

	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case <-events:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 1)
	unsubscribe()

	if ok := mb.PublishEvent(ctx, Event{Type: EventReceived}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestSubscribeEventsUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	ctx := context.Background()
	events, _ := mb.SubscribeEvents(ctx, 1)
	mb.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}
}
