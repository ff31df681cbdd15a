package bot

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"drivel/pkg/config"
	"drivel/pkg/dispatch"
	"drivel/pkg/pattern"
	"drivel/pkg/stanza"
)

// Admission drops backlog replays and server boilerplate before any
// handler sees them.
func Admission(cfg config.BotConfig) func(*dispatch.Engine) error {
	ignored := make([]string, 0, len(cfg.IgnoreBodies))
	for _, body := range cfg.IgnoreBodies {
		if body = strings.TrimSpace(body); body != "" {
			ignored = append(ignored, body)
		}
	}

	return func(engine *dispatch.Engine) error {
		if !cfg.KeepDelayed {
			if err := engine.Before(stanza.EventMessage, halt, dispatch.IsDelayed()); err != nil {
				return err
			}
		}

		if len(ignored) == 0 {
			return nil
		}

		return engine.Before(stanza.EventMessage, halt, func(event stanza.Event) bool {
			return slices.Contains(ignored, strings.TrimSpace(event.Body))
		})
	}
}

func halt(context.Context, *dispatch.Call) dispatch.Signal {
	return dispatch.Halt
}

// Builtins registers ping, echo and commands.
func Builtins(engine *dispatch.Engine) error {
	if err := engine.Command("ping", "Respond with a pong message to test.", func(_ context.Context, call *dispatch.Call) error {
		return call.Reply("pong")
	}); err != nil {
		return err
	}

	if err := engine.Command("echo *", "Repeat the given text.", func(_ context.Context, call *dispatch.Call) error {
		return call.Reply(call.Params.Get(pattern.SplatName))
	}); err != nil {
		return err
	}

	return engine.Command("commands", "List the available commands.", func(_ context.Context, call *dispatch.Call) error {
		specs := call.Engine().Commands()
		names := make([]string, 0, len(specs))
		for _, spec := range specs {
			names = append(names, spec.Name)
		}
		slices.Sort(names)

		return call.Reply("Commands: " + strings.Join(names, ", "))
	})
}

// Lifecycle logs connection changes, announces readiness and approves
// subscription requests.
func Lifecycle(cfg config.BotConfig, log *slog.Logger) func(*dispatch.Engine) error {
	announce := strings.TrimSpace(cfg.Announce)
	targets := parseTargets(cfg.AnnounceTo)

	return func(engine *dispatch.Engine) error {
		if err := engine.Handle(stanza.EventReady, func(_ context.Context, call *dispatch.Call) (dispatch.Signal, error) {
			log.Info("Connected", "channel", call.Event.Channel, "address", call.Event.To)
			if announce == "" {
				return dispatch.Continue, nil
			}

			for _, to := range targets[call.Event.Channel] {
				call.Send(stanza.Reply{
					Kind: stanza.KindHeadline,
					From: call.Event.To,
					To:   to,
					Body: announce,
				})
			}
			return dispatch.Continue, nil
		}); err != nil {
			return err
		}

		if err := engine.Handle(stanza.EventDisconnected, func(_ context.Context, call *dispatch.Call) (dispatch.Signal, error) {
			log.Warn("Disconnected", "channel", call.Event.Channel)
			return dispatch.Continue, nil
		}); err != nil {
			return err
		}

		return engine.Handle(stanza.EventSubscriptionRequest, func(_ context.Context, call *dispatch.Call) (dispatch.Signal, error) {
			log.Info("Approved subscription request", "channel", call.Event.Channel, "from", call.Event.From)
			call.Send(stanza.Approve(call.Event))
			return dispatch.Continue, nil
		})
	}
}

// parseTargets groups "channel:address" entries by channel. Malformed
// entries are skipped.
func parseTargets(entries []string) map[string][]stanza.Address {
	targets := make(map[string][]stanza.Address)
	for _, entry := range entries {
		name, address, ok := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.TrimSpace(name)
		address = strings.TrimSpace(address)
		if !ok || name == "" || address == "" {
			continue
		}
		targets[name] = append(targets[name], stanza.ParseAddress(address))
	}

	return targets
}
