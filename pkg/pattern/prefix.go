package pattern

import (
	"regexp"
	"strings"
	"unicode"

	"drivel/pkg/errs"
)

// DefaultSigils are the characters that address the bot without naming it.
const DefaultSigils = "!$%@"

// Prefix describes how a message addresses the bot: its nickname followed by
// ':', ',' or whitespace, or a single sigil character.
type Prefix struct {
	Nickname string
	// Sigils defaults to DefaultSigils when empty.
	Sigils string
	// Optional permits a body without any prefix.
	Optional      bool
	CaseSensitive bool
}

// Source renders the prefix alternative as a non-capturing group.
func (p Prefix) Source() string {
	alternatives := make([]string, 0, 2)
	if nick := strings.TrimSpace(p.Nickname); nick != "" {
		alternatives = append(alternatives, regexp.QuoteMeta(nick)+`(?:[:,]\s*|\s+)`)
	}
	alternatives = append(alternatives, sigilClass(p.sigils()))

	group := "(?:" + strings.Join(alternatives, "|") + ")"
	if p.Optional {
		group += "?"
	}

	return group
}

// WithOptional returns a copy of p with Optional set.
func (p Prefix) WithOptional(optional bool) Prefix {
	p.Optional = optional
	return p
}

func (p Prefix) sigils() string {
	if p.Sigils == "" {
		return DefaultSigils
	}

	return p.Sigils
}

func sigilClass(sigils string) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, r := range sigils {
		if r < unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(']')

	return b.String()
}

// Anchored is a matcher bound to a prefix and anchored to the full body.
type Anchored struct {
	matcher *Matcher
	prefix  Prefix
	expr    *regexp.Regexp
}

// Anchor binds m to prefix p.
func (m *Matcher) Anchor(p Prefix) (*Anchored, error) {
	flags := "(?i)"
	if p.CaseSensitive {
		flags = ""
	}

	expr, err := regexp.Compile(flags + "^" + p.Source() + "(?:" + m.source + ")$")
	if err != nil {
		return nil, errs.Configuration("anchor pattern %q: %v", m.raw, err)
	}

	return &Anchored{matcher: m, prefix: p, expr: expr}, nil
}

// Search binds m to prefix p without anchoring the pattern itself: after
// the prefix, the pattern may appear anywhere in the body. With an optional
// prefix this reduces to a plain search of the body.
func (m *Matcher) Search(p Prefix) (*Anchored, error) {
	flags := "(?i)"
	if p.CaseSensitive {
		flags = ""
	}

	expr, err := regexp.Compile(flags + "^" + p.Source() + ".*?(?:" + m.source + ")")
	if err != nil {
		return nil, errs.Configuration("search pattern %q: %v", m.raw, err)
	}

	return &Anchored{matcher: m, prefix: p, expr: expr}, nil
}

// Matcher returns the unanchored matcher.
func (a *Anchored) Matcher() *Matcher {
	return a.matcher
}

// Prefix returns the prefix the matcher was anchored with.
func (a *Anchored) Prefix() Prefix {
	return a.prefix
}

// Regexp returns the full anchored expression.
func (a *Anchored) Regexp() *regexp.Regexp {
	return a.expr
}

func (a *Anchored) String() string {
	return a.expr.String()
}

// Match reports whether body is addressed to the bot and matches the
// pattern, returning the captured parameters.
func (a *Anchored) Match(body string) (Params, bool) {
	return extract(a.expr, body)
}
