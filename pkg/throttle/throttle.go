// Package throttle limits how often one sender may reach message handlers.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"drivel/pkg/config"
	"drivel/pkg/dispatch"
	"drivel/pkg/stanza"
)

// maxTracked bounds the sender table; idle senders are pruned past it.
const maxTracked = 1024

type sender struct {
	limiter *rate.Limiter
	noticed bool
}

// Throttle is a per-sender token bucket. Senders are keyed by their full
// address, so two occupants of one room are limited separately.
type Throttle struct {
	limit  rate.Limit
	burst  int
	notice string
	now    func() time.Time

	mu      sync.Mutex
	senders map[stanza.Address]*sender
}

// Option customizes a Throttle.
type Option func(*Throttle)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
	}
}

// New builds a throttle allowing cfg.Rate messages per second with bursts of
// cfg.Burst.
func New(cfg config.ThrottleConfig, opts ...Option) *Throttle {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	t := &Throttle{
		limit:   rate.Limit(cfg.Rate),
		burst:   burst,
		notice:  cfg.Notice,
		now:     time.Now,
		senders: make(map[stanza.Address]*sender),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Install registers the throttle as a before-filter for message events.
func (t *Throttle) Install(engine *dispatch.Engine) error {
	return engine.Before(stanza.EventMessage, t.Filter)
}

// Allow reports whether from may send another message now. The second
// result is true the first time a sender is refused after being allowed.
func (t *Throttle) Allow(from stanza.Address) (allowed bool, first bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.senders[from]
	if !ok {
		if len(t.senders) >= maxTracked {
			t.prune(now)
		}
		s = &sender{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.senders[from] = s
	}

	if s.limiter.AllowN(now, 1) {
		s.noticed = false
		return true, false
	}

	first = !s.noticed
	s.noticed = true
	return false, first
}

// Filter halts messages from senders over their budget. The optional notice
// is sent once per refusal streak.
func (t *Throttle) Filter(_ context.Context, call *dispatch.Call) dispatch.Signal {
	allowed, first := t.Allow(call.Event.From)
	if allowed {
		return dispatch.Continue
	}

	call.Logger().Debug("Sender throttled", "from", call.Event.From, "event_id", call.Event.ID)
	if first && t.notice != "" {
		if err := call.Reply(t.notice); err != nil {
			call.Logger().Warn("Failed to send throttle notice", "from", call.Event.From, "error", err)
		}
	}

	return dispatch.Halt
}

// Tracked returns the number of senders with live state.
func (t *Throttle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.senders)
}

// prune drops senders whose bucket has refilled.
func (t *Throttle) prune(now time.Time) {
	for from, s := range t.senders {
		if s.limiter.TokensAt(now) >= float64(t.burst) {
			delete(t.senders, from)
		}
	}
}
