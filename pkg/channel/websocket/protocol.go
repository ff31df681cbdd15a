package websocket

import "drivel/pkg/stanza"

// Frame types exchanged with websocket clients.
const (
	FrameHello      = "hello"
	FrameJoin       = "join"
	FrameLeave      = "leave"
	FrameMessage    = "message"
	FrameSubscribe  = "subscribe"
	FrameWelcome    = "welcome"
	FrameJoined     = "joined"
	FrameSubscribed = "subscribed"
	FrameError      = "error"
)

// Frame is the single JSON envelope used in both directions.
//
// Clients send hello once, then join/leave rooms, send messages either to the
// bot (no room) or to a room, and may ask to subscribe to the bot.
type Frame struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	User     string         `json:"user,omitempty"`
	Resource string         `json:"resource,omitempty"`
	Room     string         `json:"room,omitempty"`
	Nick     string         `json:"nick,omitempty"`
	Kind     stanza.Kind    `json:"kind,omitempty"`
	From     stanza.Address `json:"from,omitempty"`
	To       stanza.Address `json:"to,omitempty"`
	Body     string         `json:"body,omitempty"`
	Markup   string         `json:"markup,omitempty"`
	Delayed  bool           `json:"delayed,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func errorFrame(id string, message string) Frame {
	return Frame{Type: FrameError, ID: id, Error: message}
}

func replyFrame(reply stanza.Reply) Frame {
	frameType := FrameMessage
	if reply.Kind == stanza.KindSubscribed {
		frameType = FrameSubscribed
	}

	return Frame{
		Type:   frameType,
		ID:     reply.InReplyTo,
		Kind:   reply.Kind,
		From:   reply.From,
		To:     reply.To,
		Body:   reply.Body,
		Markup: reply.Markup,
	}
}
