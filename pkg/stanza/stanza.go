package stanza

import "strings"

// EventType classifies one unit of inbound traffic.
type EventType string

const (
	EventReady               EventType = "ready"
	EventDisconnected        EventType = "disconnected"
	EventSubscriptionRequest EventType = "subscription_request"
	EventMessage             EventType = "message"
)

// Kind is the conversation kind of a message.
type Kind string

const (
	KindChat      Kind = "chat"
	KindGroupchat Kind = "groupchat"
	KindNormal    Kind = "normal"
	KindHeadline  Kind = "headline"
	KindError     Kind = "error"

	// KindSubscribed marks an outbound subscription approval.
	KindSubscribed Kind = "subscribed"
)

// Event is one inbound stanza. Message events carry Kind and Body; lifecycle
// events only carry Type, Channel and optionally From.
type Event struct {
	ID       string            `json:"id,omitempty"`
	Type     EventType         `json:"type"`
	Kind     Kind              `json:"kind,omitempty"`
	Channel  string            `json:"channel,omitempty"`
	From     Address           `json:"from,omitempty"`
	To       Address           `json:"to,omitempty"`
	Body     string            `json:"body,omitempty"`
	Delayed  bool              `json:"delayed,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewMessage builds a message event.
func NewMessage(kind Kind, from Address, to Address, body string) Event {
	return Event{
		Type: EventMessage,
		Kind: kind,
		From: from,
		To:   to,
		Body: body,
	}
}

// NewLifecycle builds a connection lifecycle event for a channel. self is
// the bot's own address on that channel.
func NewLifecycle(eventType EventType, channel string, self Address) Event {
	return Event{
		Type:    eventType,
		Channel: channel,
		To:      self,
	}
}

// IsMessage reports whether the event is a message stanza.
func (e Event) IsMessage() bool {
	return e.Type == EventMessage
}

// IsChat reports whether the event is a one-to-one message.
func (e Event) IsChat() bool {
	return e.IsMessage() && e.Kind == KindChat
}

// IsGroupchat reports whether the event is a group conversation message.
func (e Event) IsGroupchat() bool {
	return e.IsMessage() && e.Kind == KindGroupchat
}

// Reply is an outbound stanza handed to a transport.
type Reply struct {
	Kind      Kind    `json:"kind"`
	Channel   string  `json:"channel,omitempty"`
	To        Address `json:"to"`
	From      Address `json:"from,omitempty"`
	Body      string  `json:"body,omitempty"`
	Markup    string  `json:"markup,omitempty"`
	InReplyTo string  `json:"in_reply_to,omitempty"`
}

// Empty reports whether the reply carries neither text nor markup.
func (r Reply) Empty() bool {
	return strings.TrimSpace(r.Body) == "" && strings.TrimSpace(r.Markup) == ""
}

// Approve builds the approval reply for a subscription request.
func Approve(request Event) Reply {
	return Reply{
		Kind:      KindSubscribed,
		Channel:   request.Channel,
		To:        request.From.Stripped(),
		From:      request.To,
		InReplyTo: request.ID,
	}
}
