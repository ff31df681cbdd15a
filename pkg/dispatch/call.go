package dispatch

import (
	"context"
	"log/slog"

	"drivel/pkg/pattern"
	"drivel/pkg/stanza"
)

// HandlerFunc handles one event. Returning Pass lets the next matching
// handler take over; Halt also suppresses after-filters.
type HandlerFunc func(ctx context.Context, call *Call) (Signal, error)

// FilterFunc runs before or after handler dispatch.
type FilterFunc func(ctx context.Context, call *Call) Signal

// ActionFunc is the callback of a command.
type ActionFunc func(ctx context.Context, call *Call) error

// Call is the per-invocation view handed to filters and handlers.
type Call struct {
	Event stanza.Event
	// Params holds named captures of the matched pattern, if any.
	Params pattern.Params
	// Command is the name of the command or handler being invoked.
	Command string
	// Handler is set for after-filters to the handler that ran, or "".
	Handler string

	engine *Engine
}

// Reply responds to the event with content, addressed per conversation kind.
func (c *Call) Reply(content string) error {
	_, err := c.engine.Respond(&c.Event, content)
	return err
}

// Respond is Reply with customizers applied to the reply before sending.
func (c *Call) Respond(content string, customize ...func(*stanza.Reply)) error {
	_, err := c.engine.Respond(&c.Event, content, customize...)
	return err
}

// Send hands a prepared reply to the transport.
func (c *Call) Send(reply stanza.Reply) {
	if reply.Channel == "" {
		reply.Channel = c.Event.Channel
	}
	c.engine.send(reply)
}

// Logger returns the engine logger annotated with the event.
func (c *Call) Logger() *slog.Logger {
	return c.engine.log.With("event_id", c.Event.ID, "channel", c.Event.Channel)
}

// Engine returns the engine that dispatched this call.
func (c *Call) Engine() *Engine {
	return c.engine
}
