package dispatch

import (
	"strings"

	"drivel/pkg/errs"
	"drivel/pkg/pattern"
)

// CommandSpec is a compiled command. It is immutable once built.
type CommandSpec struct {
	Name        string
	RawPattern  string
	Matcher     *pattern.Matcher
	Description string
	Action      ActionFunc
}

// CommandBuilder assembles a CommandSpec.
type CommandBuilder struct {
	pattern     any
	description string
	action      ActionFunc
}

// NewCommand starts a command for a pattern string or expression.
func NewCommand(p any) *CommandBuilder {
	return &CommandBuilder{pattern: p}
}

// Description sets the text returned by "describe <name>".
func (b *CommandBuilder) Description(text string) *CommandBuilder {
	b.description = strings.TrimSpace(text)
	return b
}

// Action sets the command callback.
func (b *CommandBuilder) Action(action ActionFunc) *CommandBuilder {
	b.action = action
	return b
}

// Build compiles the pattern and validates the command.
func (b *CommandBuilder) Build() (CommandSpec, error) {
	matcher, err := pattern.Parse(b.pattern)
	if err != nil {
		return CommandSpec{}, err
	}
	if matcher.Name() == "" {
		return CommandSpec{}, errs.Configuration("command pattern %q has no literal name", matcher.Raw())
	}
	if b.action == nil {
		return CommandSpec{}, errs.Configuration("command %q has no action", matcher.Name())
	}

	return CommandSpec{
		Name:        matcher.Name(),
		RawPattern:  matcher.Raw(),
		Matcher:     matcher,
		Description: b.description,
		Action:      b.action,
	}, nil
}
