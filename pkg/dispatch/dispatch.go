package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"drivel/pkg/stanza"
)

// Outcome summarizes how one event went through the pipeline.
type Outcome struct {
	Event stanza.Event
	// Halted is set when a filter or handler aborted the event.
	Halted bool
	// Handled is set when a handler was invoked and did not pass.
	Handled bool
	// Handler names the handler that took the event, or "".
	Handler string
	// Err holds a handler error or recovered panic.
	Err error
}

// Dispatch runs one event through before-filters, the first matching
// handler and after-filters. It seals the registries on first use.
//
// Dispatch is not safe for concurrent use with itself when ordering matters;
// the gateway calls it from a single loop.
func (e *Engine) Dispatch(ctx context.Context, event stanza.Event) Outcome {
	if !e.sealed.Load() {
		e.Start()
	}

	outcome := e.dispatch(ctx, event)
	if outcome.Err != nil {
		e.log.Error("Handler failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"handler", outcome.Handler,
			"error", outcome.Err,
		)
	}
	if e.observer != nil {
		e.observer(outcome)
	}

	return outcome
}

func (e *Engine) dispatch(ctx context.Context, event stanza.Event) Outcome {
	outcome := Outcome{Event: event}

	if e.runFilters(ctx, e.before, event, "") == Halt {
		e.log.Debug("Event halted by before-filter", "event_id", event.ID, "event_type", event.Type)
		outcome.Halted = true
		return outcome
	}

	for _, entry := range e.handlers[event.Type] {
		if !allow(entry.guards, event) {
			continue
		}

		call := &Call{Event: event, Command: entry.name, engine: e}
		if entry.matcher != nil {
			params, ok := entry.matcher.Match(event.Body)
			if !ok {
				continue
			}
			call.Params = params
		}

		signal, err := e.invoke(ctx, entry, call)
		if signal == Pass && err == nil {
			continue
		}

		outcome.Handler = entry.name
		outcome.Err = err
		if signal == Halt {
			outcome.Halted = true
			return outcome
		}
		outcome.Handled = true
		break
	}

	if outcome.Handler == "" {
		e.log.Debug("No handler matched", "event_id", event.ID, "event_type", event.Type, "kind", event.Kind)
	}

	if e.runFilters(ctx, e.after, event, outcome.Handler) == Halt {
		outcome.Halted = true
	}

	return outcome
}

func (e *Engine) runFilters(ctx context.Context, chain []filterEntry, event stanza.Event, handler string) Signal {
	for _, entry := range chain {
		if entry.scope != AnyEvent && entry.scope != event.Type {
			continue
		}
		if !allow(entry.guards, event) {
			continue
		}

		call := &Call{Event: event, Command: entry.name, Handler: handler, engine: e}
		if e.runFilter(ctx, entry, call) == Halt {
			return Halt
		}
	}

	return Continue
}

func (e *Engine) runFilter(ctx context.Context, entry filterEntry, call *Call) (signal Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Filter panicked",
				"filter", entry.name,
				"event_id", call.Event.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			signal = Continue
		}
	}()

	return entry.filter(ctx, call)
}

func (e *Engine) invoke(ctx context.Context, entry handlerEntry, call *Call) (signal Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Handler panicked",
				"handler", entry.name,
				"event_id", call.Event.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			signal = Continue
			err = fmt.Errorf("handler %s panicked: %v", entry.name, r)
		}
	}()

	return entry.handler(ctx, call)
}
