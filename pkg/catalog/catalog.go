// Package catalog loads static reply commands from a YAML file and
// registers them with a dispatch engine.
//
// A catalog file looks like:
//
//	commands:
//	  - pattern: "weather in :city"
//	    description: Reports the weather for a city.
//	    reply: "It is always sunny in {city}."
//	  - regexp: "^roll (?P<dice>\\d+)d(?P<sides>\\d+)$"
//	    reply: "Rolling {dice} dice with {sides} sides."
//	  - pattern: "ping"
//	    recognize: true
//	    reply: "pong"
//
// Entries marked recognize are registered as loose matches: the pattern may
// appear anywhere in a direct message and anywhere after the address in a
// group message. They have no usage or describe entry.
//
// Reply templates substitute {name} with the captured parameter of the same
// name; {splat} holds the wildcard capture.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"drivel/pkg/dispatch"
	"drivel/pkg/errs"
	"drivel/pkg/pattern"
)

// Entry is one static reply command.
type Entry struct {
	Pattern     string `yaml:"pattern,omitempty"`
	Regexp      string `yaml:"regexp,omitempty"`
	Description string `yaml:"description,omitempty"`
	Reply       string `yaml:"reply"`
	Markup      string `yaml:"markup,omitempty"`
	Recognize   bool   `yaml:"recognize,omitempty"`
}

// Catalog is a parsed catalog file.
type Catalog struct {
	Commands []Entry `yaml:"commands"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	return cat, nil
}

// Parse decodes catalog YAML. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cat Catalog
	if err := decoder.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return &cat, nil
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i, entry := range cat.Commands {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i+1, err)
		}
	}

	return &cat, nil
}

func (e Entry) validate() error {
	hasPattern := strings.TrimSpace(e.Pattern) != ""
	hasRegexp := strings.TrimSpace(e.Regexp) != ""

	switch {
	case hasPattern && hasRegexp:
		return errs.Configuration("pattern and regexp are mutually exclusive")
	case !hasPattern && !hasRegexp:
		return errs.Configuration("pattern or regexp is required")
	case strings.TrimSpace(e.Reply) == "":
		return errs.Configuration("reply is required")
	}

	return nil
}

// Matcher compiles the entry's pattern.
func (e Entry) Matcher() (*pattern.Matcher, error) {
	if strings.TrimSpace(e.Regexp) != "" {
		re, err := regexp.Compile(e.Regexp)
		if err != nil {
			return nil, errs.Configuration("invalid regexp %q: %v", e.Regexp, err)
		}
		return pattern.FromRegexp(re)
	}

	return pattern.Compile(strings.TrimSpace(e.Pattern))
}

// Render fills the reply template with captured parameters. Placeholders
// without a capture are left as written.
func (e Entry) Render(params pattern.Params) string {
	return render(e.Reply, params)
}

func render(template string, params pattern.Params) string {
	return placeholder.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := params[name]; ok {
			return value
		}
		return token
	})
}

// Register adds every catalog entry to engine. It stops at the first
// registration error, which includes duplicates of built-in commands.
func (c *Catalog) Register(engine *dispatch.Engine) error {
	for _, entry := range c.Commands {
		matcher, err := entry.Matcher()
		if err != nil {
			return err
		}

		if entry.Recognize {
			if err := engine.Recognize(matcher, entry.handler()); err != nil {
				return err
			}
			continue
		}

		spec, err := dispatch.NewCommand(matcher).
			Description(entry.Description).
			Action(entry.action()).
			Build()
		if err != nil {
			return err
		}

		if err := engine.RegisterCommand(spec); err != nil {
			return err
		}
	}

	return nil
}

func (e Entry) action() dispatch.ActionFunc {
	return func(_ context.Context, call *dispatch.Call) error {
		text := e.Render(call.Params)
		if e.Markup == "" {
			return call.Reply(text)
		}
		return call.Respond(text, dispatch.WithMarkup(render(e.Markup, call.Params)))
	}
}

func (e Entry) handler() dispatch.HandlerFunc {
	action := e.action()
	return func(ctx context.Context, call *dispatch.Call) (dispatch.Signal, error) {
		return dispatch.Continue, action(ctx, call)
	}
}
