package dispatch

import (
	"drivel/pkg/errs"
	"drivel/pkg/stanza"
)

// NewReply builds a reply to msg addressed per conversation kind. Group
// replies go to the room and are prefixed with the speaker's nickname; chat
// replies go straight back to the sender. A nil msg yields an empty reply.
func NewReply(msg *stanza.Event, content string) (stanza.Reply, error) {
	if msg == nil {
		return stanza.Reply{Body: content}, nil
	}

	reply := stanza.Reply{
		Kind:      msg.Kind,
		Channel:   msg.Channel,
		From:      msg.To,
		InReplyTo: msg.ID,
	}

	switch msg.Kind {
	case stanza.KindGroupchat:
		reply.To = msg.From.Stripped()
		if content != "" {
			if nick := msg.From.Resource(); nick != "" {
				content = nick + ": " + content
			}
		}
	case stanza.KindChat:
		reply.To = msg.From
	default:
		return stanza.Reply{}, errs.Addressing("cannot respond to messages of kind %q", msg.Kind)
	}

	reply.Body = content
	return reply, nil
}

// Respond builds a reply, applies customizers and hands it to the sender if
// it carries any content. The built reply is returned either way.
func (e *Engine) Respond(msg *stanza.Event, content string, customize ...func(*stanza.Reply)) (stanza.Reply, error) {
	reply, err := NewReply(msg, content)
	if err != nil {
		return stanza.Reply{}, err
	}

	for _, fn := range customize {
		if fn != nil {
			fn(&reply)
		}
	}

	if reply.Empty() {
		e.log.Debug("Dropping empty reply", "to", reply.To)
		return reply, nil
	}

	e.send(reply)
	return reply, nil
}

// WithMarkup attaches a rich markup payload to a reply.
func WithMarkup(markup string) func(*stanza.Reply) {
	return func(reply *stanza.Reply) {
		reply.Markup = markup
	}
}
