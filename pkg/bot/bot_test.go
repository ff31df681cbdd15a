package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"drivel/pkg/config"
	"drivel/pkg/dispatch"
	"drivel/pkg/errs"
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

func (s *recordingSender) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	bodies := make([]string, 0, len(s.replies))
	for _, reply := range s.replies {
		bodies = append(bodies, reply.Body)
	}
	return bodies
}

func (s *recordingSender) last(t *testing.T) stanza.Reply {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		t.Fatal("expected a reply")
	}
	return s.replies[len(s.replies)-1]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, cfg *config.Config) (*dispatch.Engine, *recordingSender) {
	t.Helper()

	sender := &recordingSender{}
	engine, err := Build(cfg, sender, discard())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !engine.Sealed() {
		t.Fatal("expected sealed engine")
	}
	return engine, sender
}

func chat(body string) stanza.Event {
	event := stanza.NewMessage(stanza.KindChat, "bob@host/phone", "drivel@host", body)
	event.ID = "c1"
	event.Channel = "websocket"
	return event
}

func groupchat(nick string, body string) stanza.Event {
	event := stanza.NewMessage(stanza.KindGroupchat, stanza.Address("lobby@conference.host/"+nick), "drivel@host", body)
	event.ID = "g1"
	event.Channel = "websocket"
	return event
}

func TestBuiltins(t *testing.T) {
	engine, sender := build(t, config.Default())
	ctx := context.Background()

	engine.Dispatch(ctx, chat("ping"))
	engine.Dispatch(ctx, groupchat("alice", "drivel: echo hi there"))
	engine.Dispatch(ctx, groupchat("alice", "!commands"))
	engine.Dispatch(ctx, chat("describe echo"))
	engine.Dispatch(ctx, chat("help echo"))

	want := []string{
		"pong",
		"alice: hi there",
		"alice: Commands: commands, echo, ping",
		"Repeat the given text.",
		"echo *",
	}
	got := sender.bodies()
	if len(got) != len(want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAdmissionDropsDelayedAndBoilerplate(t *testing.T) {
	engine, sender := build(t, config.Default())
	ctx := context.Background()

	delayed := chat("ping")
	delayed.Delayed = true
	if outcome := engine.Dispatch(ctx, delayed); !outcome.Halted {
		t.Fatal("expected delayed message to be halted")
	}

	if outcome := engine.Dispatch(ctx, groupchat("", "This room is not anonymous.")); !outcome.Halted {
		t.Fatal("expected server boilerplate to be halted")
	}

	if got := sender.bodies(); len(got) != 0 {
		t.Fatalf("replies = %q, want none", got)
	}
}

func TestAdmissionKeepDelayed(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.KeepDelayed = true
	engine, sender := build(t, cfg)

	delayed := chat("ping")
	delayed.Delayed = true
	if outcome := engine.Dispatch(context.Background(), delayed); !outcome.Handled {
		t.Fatal("expected delayed message to be handled")
	}
	if got := sender.last(t).Body; got != "pong" {
		t.Fatalf("reply = %q, want pong", got)
	}
}

func TestRequirePrefixInDirect(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.RequirePrefixInDirect = true
	engine, sender := build(t, cfg)
	ctx := context.Background()

	if outcome := engine.Dispatch(ctx, chat("ping")); outcome.Handled {
		t.Fatal("bare ping must not be handled when the prefix is required")
	}
	if outcome := engine.Dispatch(ctx, chat("drivel, ping")); !outcome.Handled {
		t.Fatal("prefixed ping must be handled")
	}
	if got := sender.bodies(); len(got) != 1 || got[0] != "pong" {
		t.Fatalf("replies = %q, want [pong]", got)
	}
}

func TestDisableBuiltins(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.DisableBuiltins = true
	engine, _ := build(t, cfg)

	if len(engine.Commands()) != 0 {
		t.Fatalf("commands = %d, want 0", len(engine.Commands()))
	}
	if outcome := engine.Dispatch(context.Background(), chat("ping")); outcome.Handled {
		t.Fatal("ping must not be handled without builtins")
	}
}

func TestLifecycleApprovesSubscriptions(t *testing.T) {
	engine, sender := build(t, config.Default())

	request := stanza.Event{
		ID:      "s1",
		Type:    stanza.EventSubscriptionRequest,
		Channel: "websocket",
		From:    "carol@host/laptop",
		To:      "drivel@host",
	}
	if outcome := engine.Dispatch(context.Background(), request); !outcome.Handled {
		t.Fatal("expected subscription request to be handled")
	}

	reply := sender.last(t)
	if reply.Kind != stanza.KindSubscribed || reply.To != "carol@host" || reply.Channel != "websocket" {
		t.Fatalf("reply = %+v, want approval to carol@host", reply)
	}
}

func TestLifecycleAnnouncesOnReady(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.Announce = "At your service."
	cfg.Bot.AnnounceTo = []string{
		"websocket:lobby@conference.host",
		"telegram:-100@telegram",
		"malformed",
	}
	engine, sender := build(t, cfg)

	ready := stanza.NewLifecycle(stanza.EventReady, "websocket", "drivel@host")
	if outcome := engine.Dispatch(context.Background(), ready); !outcome.Handled {
		t.Fatal("expected ready to be handled")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.replies) != 1 {
		t.Fatalf("replies = %+v, want one announcement", sender.replies)
	}
	reply := sender.replies[0]
	if reply.Kind != stanza.KindHeadline || reply.To != "lobby@conference.host" || reply.Channel != "websocket" || reply.Body != "At your service." {
		t.Fatalf("announcement = %+v", reply)
	}
}

func TestDisconnectedIsHandledQuietly(t *testing.T) {
	engine, sender := build(t, config.Default())

	outcome := engine.Dispatch(context.Background(), stanza.NewLifecycle(stanza.EventDisconnected, "telegram", ""))
	if !outcome.Handled || outcome.Err != nil {
		t.Fatalf("outcome = %+v, want handled", outcome)
	}
	if got := sender.bodies(); len(got) != 0 {
		t.Fatalf("replies = %q, want none", got)
	}
}

func TestCatalogPlugin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "commands:\n  - pattern: \"weather in :city\"\n    description: Reports the weather.\n    reply: \"Sunny in {city}.\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cfg := config.Default()
	cfg.Catalog.Path = path
	engine, sender := build(t, cfg)

	engine.Dispatch(context.Background(), groupchat("alice", "drivel: weather in Oslo"))
	if got := sender.last(t).Body; got != "alice: Sunny in Oslo." {
		t.Fatalf("reply = %q", got)
	}
}

func TestCatalogCollisionWithBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("commands:\n  - pattern: ping\n    reply: PONG\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cfg := config.Default()
	cfg.Catalog.Path = path
	_, err := Build(cfg, nil, discard())
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestMissingCatalogFails(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := Build(cfg, nil, discard()); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestThrottlePlugin(t *testing.T) {
	cfg := config.Default()
	cfg.Throttle.Enabled = true
	cfg.Throttle.Burst = 1
	cfg.Throttle.Rate = 0.001
	engine, sender := build(t, cfg)
	ctx := context.Background()

	engine.Dispatch(ctx, chat("ping"))
	if outcome := engine.Dispatch(ctx, chat("ping")); !outcome.Halted {
		t.Fatal("expected second ping to be throttled")
	}
	if got := sender.bodies(); len(got) != 1 {
		t.Fatalf("replies = %q, want one", got)
	}
}

func TestExtraPluginsRunAfterDefaults(t *testing.T) {
	sender := &recordingSender{}
	extra := Plugin{Name: "weather", Setup: func(engine *dispatch.Engine) error {
		return engine.Command("weather", "Weather report.", func(_ context.Context, call *dispatch.Call) error {
			return call.Reply("sunny")
		})
	}}

	engine, err := Build(config.Default(), sender, discard(), extra)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	engine.Dispatch(context.Background(), chat("commands"))
	if got := sender.last(t).Body; got != "Commands: commands, echo, ping, weather" {
		t.Fatalf("reply = %q", got)
	}

	failing := Plugin{Name: "broken", Setup: func(*dispatch.Engine) error { return errors.New("boom") }}
	if _, err := Build(config.Default(), sender, discard(), failing); err == nil {
		t.Fatal("expected plugin error")
	}
}
