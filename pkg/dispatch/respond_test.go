package dispatch

import (
	"context"
	"errors"
	"testing"

	"drivel/pkg/errs"
	"drivel/pkg/stanza"
)

func TestNewReplyGroupchat(t *testing.T) {
	msg := stanza.NewMessage(stanza.KindGroupchat, "room@conf/alice", "bot@host", "Bot: hi")
	msg.Channel = "websocket"
	msg.ID = "evt-1"

	reply, err := NewReply(&msg, "hi")
	if err != nil {
		t.Fatalf("NewReply() error = %v", err)
	}
	if reply.To != "room@conf" {
		t.Fatalf("to = %q, want room@conf", reply.To)
	}
	if reply.Body != "alice: hi" {
		t.Fatalf("body = %q, want %q", reply.Body, "alice: hi")
	}
	if reply.Kind != stanza.KindGroupchat || reply.Channel != "websocket" || reply.InReplyTo != "evt-1" || reply.From != "bot@host" {
		t.Fatalf("reply metadata = %+v", reply)
	}
}

func TestNewReplyChat(t *testing.T) {
	msg := stanza.NewMessage(stanza.KindChat, "bob@host", "bot@host", "hi")

	reply, err := NewReply(&msg, "hi")
	if err != nil {
		t.Fatalf("NewReply() error = %v", err)
	}
	if reply.To != "bob@host" || reply.Body != "hi" {
		t.Fatalf("reply = %+v, want bob@host / hi", reply)
	}
}

func TestNewReplyRejectsOtherKinds(t *testing.T) {
	for _, kind := range []stanza.Kind{stanza.KindNormal, stanza.KindHeadline, stanza.KindError, ""} {
		msg := stanza.NewMessage(kind, "bob@host", "bot@host", "hi")
		if _, err := NewReply(&msg, "hi"); !errors.Is(err, errs.ErrAddressing) {
			t.Fatalf("kind %q error = %v, want addressing error", kind, err)
		}
	}
}

func TestRespondWithoutMessageUsesCustomizer(t *testing.T) {
	engine, sender := newTestEngine(t)

	reply, err := engine.Respond(nil, "")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !reply.Empty() || len(sender.Replies()) != 0 {
		t.Fatalf("expected empty reply not to be sent, got %+v", sender.Replies())
	}

	_, err = engine.Respond(nil, "", func(reply *stanza.Reply) {
		reply.Kind = stanza.KindChat
		reply.To = "bob@host"
	}, WithMarkup("<b>hi</b>"))
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	replies := sender.Replies()
	if len(replies) != 1 || replies[0].Markup != "<b>hi</b>" || replies[0].To != "bob@host" {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestCallReplyOnHeadlineFails(t *testing.T) {
	engine, sender := newTestEngine(t)

	var replyErr error
	mustRegister(t, engine.Message(stanza.KindHeadline, func(_ context.Context, call *Call) (Signal, error) {
		replyErr = call.Reply("hi")
		return Continue, nil
	}))

	engine.Dispatch(context.Background(), stanza.NewMessage(stanza.KindHeadline, "news@host", "bot@host", "extra"))

	if !errors.Is(replyErr, errs.ErrAddressing) {
		t.Fatalf("error = %v, want addressing error", replyErr)
	}
	if len(sender.Replies()) != 0 {
		t.Fatalf("replies = %+v, want none", sender.Replies())
	}
}
