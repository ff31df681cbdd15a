package stanza

import "testing"

func TestAddressParts(t *testing.T) {
	addr := ParseAddress(" room@conf/alice ")

	if got := addr.Stripped(); got != "room@conf" {
		t.Fatalf("Stripped = %q, want %q", got, "room@conf")
	}
	if got := addr.Resource(); got != "alice" {
		t.Fatalf("Resource = %q, want %q", got, "alice")
	}
	if got := addr.Node(); got != "room" {
		t.Fatalf("Node = %q, want %q", got, "room")
	}
	if got := addr.Domain(); got != "conf" {
		t.Fatalf("Domain = %q, want %q", got, "conf")
	}
}

func TestAddressWithoutDomainOrResource(t *testing.T) {
	addr := Address("bob")
	if addr.Node() != "bob" || addr.Domain() != "" || addr.Resource() != "" {
		t.Fatalf("unexpected parts node=%q domain=%q resource=%q", addr.Node(), addr.Domain(), addr.Resource())
	}
	if addr.Stripped() != "bob" {
		t.Fatalf("Stripped = %q, want bob", addr.Stripped())
	}
}

func TestResourceKeepsSlashes(t *testing.T) {
	addr := Address("room@conf/nick/with/slash")
	if got := addr.Resource(); got != "nick/with/slash" {
		t.Fatalf("Resource = %q, want %q", got, "nick/with/slash")
	}
}

func TestNewAddress(t *testing.T) {
	if got := NewAddress("42", "telegram", "dave"); got != "42@telegram/dave" {
		t.Fatalf("NewAddress = %q", got)
	}
	if got := NewAddress("42", "telegram", ""); got != "42@telegram" {
		t.Fatalf("NewAddress without resource = %q", got)
	}
}

func TestEventKindHelpers(t *testing.T) {
	chat := NewMessage(KindChat, "bob@host", "bot@host", "hi")
	if !chat.IsChat() || chat.IsGroupchat() {
		t.Fatal("expected chat message")
	}

	ready := Event{Type: EventReady}
	if ready.IsMessage() || ready.IsChat() {
		t.Fatal("lifecycle event must not report as message")
	}
}

func TestReplyEmpty(t *testing.T) {
	if !(Reply{Body: "  "}).Empty() {
		t.Fatal("whitespace body should be empty")
	}
	if (Reply{Markup: "<b>hi</b>"}).Empty() {
		t.Fatal("markup-only reply should not be empty")
	}
}

func TestApprove(t *testing.T) {
	request := Event{ID: "7", Type: EventSubscriptionRequest, Channel: "websocket", From: "carol@ws/phone", To: "bot@ws"}

	reply := Approve(request)
	if reply.Kind != KindSubscribed {
		t.Fatalf("kind = %q, want %q", reply.Kind, KindSubscribed)
	}
	if reply.To != "carol@ws" {
		t.Fatalf("to = %q, want carol@ws", reply.To)
	}
	if reply.Channel != "websocket" || reply.InReplyTo != "7" {
		t.Fatalf("unexpected routing fields: %+v", reply)
	}
}
