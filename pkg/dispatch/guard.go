package dispatch

import (
	"regexp"

	"drivel/pkg/pattern"
	"drivel/pkg/stanza"
)

// Guard is a side-effect-free predicate gating a handler or filter.
type Guard func(stanza.Event) bool

// IsKind matches messages of the given kind.
func IsKind(kind stanza.Kind) Guard {
	return func(event stanza.Event) bool {
		return event.IsMessage() && event.Kind == kind
	}
}

// BodyMatches matches messages whose body matches re.
func BodyMatches(re *regexp.Regexp) Guard {
	return func(event stanza.Event) bool {
		return re != nil && re.MatchString(event.Body)
	}
}

// MatchesPattern matches messages whose trimmed body is accepted by an
// anchored command matcher.
func MatchesPattern(matcher *pattern.Anchored) Guard {
	return func(event stanza.Event) bool {
		if matcher == nil {
			return false
		}
		_, ok := matcher.Match(event.Body)
		return ok
	}
}

// BodyEquals matches messages whose body is exactly body.
func BodyEquals(body string) Guard {
	return func(event stanza.Event) bool {
		return event.Body == body
	}
}

// IsDelayed matches backlog or history replay.
func IsDelayed() Guard {
	return func(event stanza.Event) bool {
		return event.Delayed
	}
}

// FromChannel matches events delivered by the named adapter.
func FromChannel(name string) Guard {
	return func(event stanza.Event) bool {
		return event.Channel == name
	}
}

// Not inverts a guard.
func Not(guard Guard) Guard {
	return func(event stanza.Event) bool {
		return !guard(event)
	}
}

func allow(guards []Guard, event stanza.Event) bool {
	for _, guard := range guards {
		if guard != nil && !guard(event) {
			return false
		}
	}

	return true
}
