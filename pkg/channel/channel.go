package channel

import (
	"context"
	"errors"

	"drivel/pkg/stanza"
)

// ErrNotConnected is returned by Send before an adapter's Run has connected.
var ErrNotConnected = errors.New("channel not connected")

// Deliver hands one inbound event to the dispatch loop. It returns false
// when the gateway is shutting down.
type Deliver func(context.Context, stanza.Event) bool

// Adapter bridges one external chat transport (for example Telegram) into
// the dispatch engine.
//
// Run blocks until ctx is canceled or the transport fails. Send delivers a
// reply produced by the engine and may be called concurrently with Run.
type Adapter interface {
	Name() string
	Run(context.Context, Deliver) error
	Send(context.Context, stanza.Reply) error
}
