package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"drivel/pkg/dispatch"
	"drivel/pkg/errs"
	"drivel/pkg/pattern"
	"drivel/pkg/stanza"
)

const sample = `
commands:
  - pattern: "weather in :city"
    description: Reports the weather for a city.
    reply: "It is always sunny in {city}."
  - regexp: "^roll (?P<dice>\\d+)d(?P<sides>\\d+)$"
    reply: "Rolling {dice} dice with {sides} sides."
  - pattern: "shout *"
    reply: "{splat}!"
    markup: "<b>{splat}</b>!"
`

type replies struct {
	mu   sync.Mutex
	sent []stanza.Reply
}

func (r *replies) Send(reply stanza.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, reply)
}

func (r *replies) last(t *testing.T) stanza.Reply {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("expected a reply")
	}
	return r.sent[len(r.sent)-1]
}

func newEngine(sender dispatch.Sender) *dispatch.Engine {
	return dispatch.New(dispatch.Nickname("Bot"), sender, dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func chat(body string) stanza.Event {
	event := stanza.NewMessage(stanza.KindChat, "bob@host/phone", "bot@host", body)
	event.ID = "1"
	return event
}

func TestParseSample(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(cat.Commands) != 3 {
		t.Fatalf("commands = %d, want 3", len(cat.Commands))
	}
	if cat.Commands[0].Description != "Reports the weather for a city." {
		t.Fatalf("description = %q", cat.Commands[0].Description)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cat, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(cat.Commands) != 0 {
		t.Fatalf("commands = %d, want 0", len(cat.Commands))
	}
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"missing pattern": "commands:\n  - reply: hi\n",
		"both patterns":   "commands:\n  - pattern: hi\n    regexp: '^hi$'\n    reply: hi\n",
		"missing reply":   "commands:\n  - pattern: hi\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if !errors.Is(err, errs.ErrConfiguration) {
				t.Fatalf("error = %v, want configuration error", err)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("commands:\n  - pattern: hi\n    reply: hi\n    answer: no\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	entry := Entry{Reply: "{city} is {weather}"}
	got := entry.Render(pattern.Params{"city": "Oslo"})
	if got != "Oslo is {weather}" {
		t.Fatalf("Render = %q", got)
	}
}

func TestRegisterAndDispatch(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	sender := &replies{}
	engine := newEngine(sender)
	if err := cat.Register(engine); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	cases := []struct {
		body   string
		want   string
		markup string
	}{
		{body: "weather in Oslo", want: "It is always sunny in Oslo."},
		{body: "Bot: roll 2d6", want: "Rolling 2 dice with 6 sides."},
		{body: "shout hello there", want: "hello there!", markup: "<b>hello there</b>!"},
		{body: "describe weather", want: "Reports the weather for a city."},
	}

	for _, tc := range cases {
		outcome := engine.Dispatch(context.Background(), chat(tc.body))
		if !outcome.Handled {
			t.Fatalf("%q was not handled", tc.body)
		}

		reply := sender.last(t)
		if reply.Body != tc.want {
			t.Fatalf("%q replied %q, want %q", tc.body, reply.Body, tc.want)
		}
		if reply.Markup != tc.markup {
			t.Fatalf("%q markup = %q, want %q", tc.body, reply.Markup, tc.markup)
		}
	}
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	cat := &Catalog{Commands: []Entry{
		{Pattern: "ping", Reply: "pong"},
		{Pattern: "ping :who", Reply: "pong {who}"},
	}}

	err := cat.Register(newEngine(nil))
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestRegisterRecognizeEntries(t *testing.T) {
	cat, err := Parse([]byte(`
commands:
  - pattern: "weather :city"
    reply: "Forecast for {city}."
  - regexp: "(?P<count>\\d+) bottles"
    recognize: true
    reply: "Only {count}?"
`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	sender := &replies{}
	engine := newEngine(sender)
	if err := cat.Register(engine); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	cases := []struct {
		event stanza.Event
		want  string
	}{
		{event: chat("weather Oslo"), want: "Forecast for Oslo."},
		{event: chat("I drank 99 bottles today"), want: "Only 99?"},
	}
	for _, tc := range cases {
		if outcome := engine.Dispatch(context.Background(), tc.event); !outcome.Handled {
			t.Fatalf("%q was not handled", tc.event.Body)
		}
		if got := sender.last(t).Body; got != tc.want {
			t.Fatalf("%q replied %q, want %q", tc.event.Body, got, tc.want)
		}
	}

	if got := engine.Commands(); len(got) != 1 {
		t.Fatalf("commands = %d, want only the pattern entry listed", len(got))
	}
}

func TestRegisterRejectsUnnamedRegexp(t *testing.T) {
	cat := &Catalog{Commands: []Entry{{Regexp: `^\d+$`, Reply: "number"}}}

	if err := cat.Register(newEngine(nil)); err == nil {
		t.Fatal("expected error for a regexp without a literal name")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cat.Commands) != 3 {
		t.Fatalf("commands = %d, want 3", len(cat.Commands))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
