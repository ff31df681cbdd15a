package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gopkg.in/cenkalti/backoff.v1"

	"drivel/pkg/bus"
	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/stanza"
)

// supervisor keeps one adapter running. A failed Run is retried with
// exponential backoff until the restart budget is spent; a Run that returns
// nil is treated as a clean stop.
type supervisor struct {
	adapter channel.Adapter
	bus     *bus.MessageBus
	policy  config.RestartConfig
	log     *slog.Logger
	onState func(channelState)
}

func newSupervisor(adapter channel.Adapter, messageBus *bus.MessageBus, policy config.RestartConfig, log *slog.Logger, onState func(channelState)) *supervisor {
	if onState == nil {
		onState = func(channelState) {}
	}

	return &supervisor{
		adapter: adapter,
		bus:     messageBus,
		policy:  policy,
		log:     log.With("channel", adapter.Name()),
		onState: onState,
	}
}

func (s *supervisor) run(ctx context.Context) error {
	policy := s.newBackOff()
	attempt := 0

	operation := func() error {
		attempt++
		startedAt := time.Now()
		s.onState(channelState{Running: true, Restarts: attempt - 1})

		err := s.adapter.Run(ctx, s.deliver)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = nil
		}

		s.onState(channelState{Running: false, Restarts: attempt - 1, Error: errorString(err)})
		s.disconnected(ctx)

		if err == nil || ctx.Err() != nil {
			return nil
		}
		if time.Since(startedAt) > policy.MaxInterval {
			policy.Reset()
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.log.Warn("Channel stopped, restarting", "error", err, "attempt", attempt, "wait", wait.String())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run %s channel: %w", s.adapter.Name(), err)
	}

	return nil
}

// deliver stamps the event and queues it for dispatch.
func (s *supervisor) deliver(ctx context.Context, event stanza.Event) bool {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Channel == "" {
		event.Channel = s.adapter.Name()
	}

	return s.bus.PublishInbound(ctx, event)
}

func (s *supervisor) disconnected(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.deliver(ctx, stanza.NewLifecycle(stanza.EventDisconnected, s.adapter.Name(), ""))
}

func (s *supervisor) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	if s.policy.InitialIntervalMS > 0 {
		policy.InitialInterval = time.Duration(s.policy.InitialIntervalMS) * time.Millisecond
	}
	if s.policy.MaxIntervalMS > 0 {
		policy.MaxInterval = time.Duration(s.policy.MaxIntervalMS) * time.Millisecond
	}
	if s.policy.MaxElapsedMS > 0 {
		policy.MaxElapsedTime = time.Duration(s.policy.MaxElapsedMS) * time.Millisecond
	}
	policy.Reset()

	return policy
}
