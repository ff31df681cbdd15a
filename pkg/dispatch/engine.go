package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"drivel/pkg/errs"
	"drivel/pkg/pattern"
	"drivel/pkg/stanza"
)

// AnyEvent scopes a filter to every event type.
const AnyEvent stanza.EventType = ""

const defaultDescribeFallback = "No description available for {name}."

// Identity exposes the bot's own nickname.
type Identity interface {
	Nickname() string
}

// Nickname is a fixed Identity.
type Nickname string

func (n Nickname) Nickname() string {
	return string(n)
}

// Sender is the outbound transport boundary. Send must not block on I/O.
type Sender interface {
	Send(stanza.Reply)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(stanza.Reply)

func (f SenderFunc) Send(reply stanza.Reply) {
	f(reply)
}

type handlerEntry struct {
	name    string
	guards  []Guard
	matcher *pattern.Anchored
	handler HandlerFunc
}

type filterEntry struct {
	name   string
	scope  stanza.EventType
	guards []Guard
	filter FilterFunc
}

// Engine owns the command, handler and filter registries and dispatches
// inbound events through them.
//
// Registration happens during setup. Start seals the registries; from then
// on they are only read, without locking, and any further registration
// fails with a configuration error.
type Engine struct {
	sender           Sender
	log              *slog.Logger
	prefix           pattern.Prefix
	directOptional   bool
	describeFallback string
	observer         func(Outcome)

	mu       sync.Mutex
	sealed   atomic.Bool
	handlers map[stanza.EventType][]handlerEntry
	before   []filterEntry
	after    []filterEntry
	commands []CommandSpec
	names    map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithPrefix sets sigils, case sensitivity and whether group messages may
// omit the prefix. The nickname comes from the engine Identity unless set.
func WithPrefix(prefix pattern.Prefix) Option {
	return func(e *Engine) {
		nickname := e.prefix.Nickname
		e.prefix = prefix
		if strings.TrimSpace(prefix.Nickname) == "" {
			e.prefix.Nickname = nickname
		}
	}
}

// WithDirectPrefixOptional controls whether one-to-one messages may omit the
// address prefix. It defaults to true.
func WithDirectPrefixOptional(optional bool) Option {
	return func(e *Engine) {
		e.directOptional = optional
	}
}

// WithDescribeFallback sets the reply for "describe <name>" when a command
// has no description. "{name}" is replaced by the command name.
func WithDescribeFallback(text string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(text) != "" {
			e.describeFallback = text
		}
	}
}

// WithObserver registers a callback receiving every dispatch outcome.
func WithObserver(observer func(Outcome)) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// New creates an engine. The identity supplies the nickname used in address
// prefixes; sender receives every outbound reply.
func New(identity Identity, sender Sender, opts ...Option) *Engine {
	nickname := ""
	if identity != nil {
		nickname = strings.TrimSpace(identity.Nickname())
	}

	e := &Engine{
		sender:           sender,
		log:              slog.Default(),
		prefix:           pattern.Prefix{Nickname: nickname},
		directOptional:   true,
		describeFallback: defaultDescribeFallback,
		handlers:         make(map[stanza.EventType][]handlerEntry),
		names:            make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "dispatch.engine")

	if e.sender == nil {
		e.log.Warn("No sender configured, replies will be dropped")
		e.sender = SenderFunc(func(stanza.Reply) {})
	}

	return e
}

// Nickname returns the nickname used in address prefixes.
func (e *Engine) Nickname() string {
	return e.prefix.Nickname
}

// Prefix returns the prefix required in group conversations.
func (e *Engine) Prefix() pattern.Prefix {
	return e.prefix
}

// DirectPrefix returns the prefix applied to one-to-one conversations.
func (e *Engine) DirectPrefix() pattern.Prefix {
	return e.prefix.WithOptional(e.prefix.Optional || e.directOptional)
}

// RegisterCommand installs a command's action, usage and describe matchers
// for both chat and groupchat messages.
func (e *Engine) RegisterCommand(spec CommandSpec) error {
	if spec.Matcher == nil || spec.Action == nil || spec.Name == "" {
		return errs.Configuration("command %q is incomplete, build it with NewCommand", spec.RawPattern)
	}

	usage, err := spec.Matcher.Usage()
	if err != nil {
		return err
	}
	describe, err := spec.Matcher.Describe()
	if err != nil {
		return err
	}

	description := spec.Description
	if description == "" {
		description = strings.ReplaceAll(e.describeFallback, "{name}", spec.Name)
	}

	routes := []struct {
		suffix  string
		matcher *pattern.Matcher
		handler HandlerFunc
	}{
		{suffix: "", matcher: spec.Matcher, handler: func(ctx context.Context, call *Call) (Signal, error) {
			return Continue, spec.Action(ctx, call)
		}},
		{suffix: ".usage", matcher: usage, handler: replyWith(spec.RawPattern)},
		{suffix: ".describe", matcher: describe, handler: replyWith(description)},
	}

	entries := make([]handlerEntry, 0, len(routes)*2)
	for _, route := range routes {
		direct, err := route.matcher.Anchor(e.DirectPrefix())
		if err != nil {
			return err
		}
		group, err := route.matcher.Anchor(e.prefix)
		if err != nil {
			return err
		}

		entries = append(entries,
			messageEntry(spec.Name+route.suffix, stanza.KindChat, direct, route.handler),
			messageEntry(spec.Name+route.suffix, stanza.KindGroupchat, group, route.handler),
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return err
	}

	key := strings.ToLower(spec.Name)
	if raw, exists := e.names[key]; exists {
		return errs.Configuration("command %q is already registered with pattern %q", spec.Name, raw)
	}

	e.names[key] = spec.RawPattern
	e.commands = append(e.commands, spec)
	e.handlers[stanza.EventMessage] = append(e.handlers[stanza.EventMessage], entries...)

	e.log.Debug("Registered command", "command", spec.Name, "pattern", spec.RawPattern)
	return nil
}

// Command builds and registers a command in one step.
func (e *Engine) Command(p any, description string, action ActionFunc) error {
	spec, err := NewCommand(p).Description(description).Action(action).Build()
	if err != nil {
		return err
	}

	return e.RegisterCommand(spec)
}

// Handle registers a handler for an event type. Handlers are evaluated in
// registration order; the first whose guards pass is invoked.
func (e *Engine) Handle(eventType stanza.EventType, handler HandlerFunc, guards ...Guard) error {
	if eventType == AnyEvent {
		return errs.Configuration("handler needs an event type")
	}
	if handler == nil {
		return errs.Configuration("handler for %q is nil", eventType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s#%d", eventType, len(e.handlers[eventType]))
	e.handlers[eventType] = append(e.handlers[eventType], handlerEntry{name: name, guards: guards, handler: handler})
	return nil
}

// Message registers a handler for messages of one kind.
func (e *Engine) Message(kind stanza.Kind, handler HandlerFunc, guards ...Guard) error {
	return e.Handle(stanza.EventMessage, handler, append([]Guard{IsKind(kind)}, guards...)...)
}

// Recognize registers a looser pattern handler. In group conversations the
// body must be addressed to the bot; in one-to-one conversations the pattern
// may appear anywhere in the body.
func (e *Engine) Recognize(p any, handler HandlerFunc) error {
	if handler == nil {
		return errs.Configuration("recognize handler is nil")
	}

	matcher, err := pattern.Parse(p)
	if err != nil {
		return err
	}

	direct, err := matcher.Search(e.prefix.WithOptional(true))
	if err != nil {
		return err
	}
	group, err := matcher.Search(e.prefix)
	if err != nil {
		return err
	}

	name := "recognize:" + matcher.Raw()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return err
	}

	e.handlers[stanza.EventMessage] = append(e.handlers[stanza.EventMessage],
		messageEntry(name, stanza.KindChat, direct, handler),
		messageEntry(name, stanza.KindGroupchat, group, handler),
	)
	return nil
}

// Before registers a filter run before handler dispatch. scope limits the
// filter to one event type; AnyEvent applies it to all.
func (e *Engine) Before(scope stanza.EventType, filter FilterFunc, guards ...Guard) error {
	return e.addFilter(&e.before, "before", scope, filter, guards)
}

// After registers a filter run after handler dispatch, unless the event was
// halted.
func (e *Engine) After(scope stanza.EventType, filter FilterFunc, guards ...Guard) error {
	return e.addFilter(&e.after, "after", scope, filter, guards)
}

func (e *Engine) addFilter(chain *[]filterEntry, phase string, scope stanza.EventType, filter FilterFunc, guards []Guard) error {
	if filter == nil {
		return errs.Configuration("%s filter is nil", phase)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOpen(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s#%d", phase, len(*chain))
	*chain = append(*chain, filterEntry{name: name, scope: scope, guards: guards, filter: filter})
	return nil
}

// Commands returns the registered commands in registration order.
func (e *Engine) Commands() []CommandSpec {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]CommandSpec(nil), e.commands...)
}

// Start seals the registries. It is safe to call more than once.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed.Load() {
		return
	}
	e.sealed.Store(true)

	e.log.Info("Registries sealed",
		"commands", len(e.commands),
		"message_handlers", len(e.handlers[stanza.EventMessage]),
		"before_filters", len(e.before),
		"after_filters", len(e.after),
	)
}

// Sealed reports whether Start has been called.
func (e *Engine) Sealed() bool {
	return e.sealed.Load()
}

func (e *Engine) checkOpen() error {
	if e.sealed.Load() {
		return errs.Configuration("registration after dispatch started")
	}

	return nil
}

func (e *Engine) send(reply stanza.Reply) {
	e.sender.Send(reply)
}

func messageEntry(name string, kind stanza.Kind, matcher *pattern.Anchored, handler HandlerFunc) handlerEntry {
	return handlerEntry{
		name:    name,
		guards:  []Guard{IsKind(kind), MatchesPattern(matcher)},
		matcher: matcher,
		handler: handler,
	}
}

func replyWith(text string) HandlerFunc {
	return func(_ context.Context, call *Call) (Signal, error) {
		return Continue, call.Reply(text)
	}
}
