package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"drivel/pkg/stanza"
)

type recordingSender struct {
	mu      sync.Mutex
	replies []stanza.Reply
}

func (s *recordingSender) Send(reply stanza.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
}

func (s *recordingSender) Replies() []stanza.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stanza.Reply(nil), s.replies...)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recordingSender) {
	t.Helper()

	sender := &recordingSender{}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(Nickname("Bot"), sender, opts...), sender
}

func chat(body string) stanza.Event {
	return stanza.NewMessage(stanza.KindChat, "bob@host/phone", "bot@host", body)
}

func groupchat(nick string, body string) stanza.Event {
	return stanza.NewMessage(stanza.KindGroupchat, stanza.Address("room@conf/"+nick), "bot@host", body)
}

func replyAction(text string) ActionFunc {
	return func(_ context.Context, call *Call) error {
		return call.Reply(text)
	}
}
