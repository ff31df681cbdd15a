// Package console is a terminal chat channel. It lets one local user talk to
// the bot either one-to-one or in a simulated room.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/stanza"
)

const channelName = "console"
const domain = "console"
const roomDomain = "conference.console"

// Adapter runs the terminal UI as a channel.
type Adapter struct {
	cfg    config.ConsoleConfig
	self   stanza.Address
	log    *slog.Logger
	input  io.Reader
	output io.Writer

	mu      sync.RWMutex
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithIO replaces the terminal input and output streams.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *Adapter) {
		a.input = in
		a.output = out
	}
}

// NewAdapter builds the console channel for the bot named nickname.
func NewAdapter(cfg config.ConsoleConfig, nickname string, log *slog.Logger, opts ...Option) (*Adapter, error) {
	user := strings.TrimSpace(cfg.User)
	if user == "" || strings.ContainsAny(user, "@/ ") {
		return nil, fmt.Errorf("channels.console.user %q is not a valid node", cfg.User)
	}
	if strings.TrimSpace(cfg.Room) == "" {
		return nil, errors.New("channels.console.room is required")
	}
	if log == nil {
		log = slog.Default()
	}

	node := strings.ToLower(strings.TrimSpace(nickname))
	if node == "" {
		node = "bot"
	}

	a := &Adapter{
		cfg:  cfg,
		self: stanza.NewAddress(node, domain, ""),
		log:  log.With("component", "channel.console"),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Name returns the channel identifier used in stanzas and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Done is closed once the user quits the terminal UI.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Run shows the terminal UI until the user quits or ctx is canceled.
func (a *Adapter) Run(ctx context.Context, deliver channel.Deliver) error {
	if deliver == nil {
		return errors.New("deliver is required")
	}

	m := newModel(ctx, deliver, a.cfg, a.self)

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if a.input != nil || a.output != nil {
		opts = append(opts, tea.WithInput(a.input), tea.WithOutput(a.output))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(m, opts...)

	a.mu.Lock()
	a.program = program
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.program = nil
		a.mu.Unlock()
	}()

	a.log.Info("Console channel started", "user", a.cfg.User, "room", a.cfg.Room)
	deliver(ctx, stanza.NewLifecycle(stanza.EventReady, channelName, a.self))

	_, err := program.Run()
	if ctx.Err() != nil {
		return nil
	}
	a.once.Do(func() { close(a.done) })
	if err != nil {
		return fmt.Errorf("run console: %w", err)
	}

	return nil
}

// Send shows a bot reply in the terminal.
func (a *Adapter) Send(_ context.Context, reply stanza.Reply) error {
	a.mu.RLock()
	program := a.program
	a.mu.RUnlock()

	if program == nil {
		return channel.ErrNotConnected
	}

	program.Send(replyMsg{reply: reply})
	return nil
}
