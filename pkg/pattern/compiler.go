package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"drivel/pkg/errs"
)

// SplatName is the capture name bound to a wildcard.
const SplatName = "splat"

const (
	placeholderToken = `\S+`
	wildcardToken    = `.*?`
	whitespaceToken  = `\s+`
)

var commandNamePattern = regexp.MustCompile(`^[^\s:*]+`)

var inlineFlags = regexp.MustCompile(`^\(\?[imsU-]+\)`)

// Params maps capture names to the text they matched. Groups that did not
// take part in the match are absent.
type Params map[string]string

// Get returns the captured value or "" when the group did not match.
func (p Params) Get(name string) string {
	return p[name]
}

// Matcher is a compiled, unanchored command pattern.
type Matcher struct {
	raw    string
	name   string
	source string
	params []string
	expr   *regexp.Regexp
}

// Compile translates a command pattern into a Matcher.
//
// Placeholders (":identifier") match one whitespace-delimited token, a bare
// "*" matches the shortest possible run of any characters, runs of
// whitespace match one or more whitespace characters and everything else is
// matched literally.
func Compile(pattern string) (*Matcher, error) {
	raw := strings.TrimSpace(pattern)
	if raw == "" {
		return nil, errs.Configuration("pattern is empty")
	}

	name := commandNamePattern.FindString(raw)
	if name == "" {
		return nil, errs.Configuration("pattern %q must start with a literal command name", raw)
	}

	var (
		b         strings.Builder
		params    []string
		seen      = make(map[string]struct{})
		wildcards int
	)

	addParam := func(param string) error {
		if _, dup := seen[param]; dup {
			return errs.Configuration("pattern %q captures %q more than once", raw, param)
		}
		seen[param] = struct{}{}
		params = append(params, param)
		return nil
	}

	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])

		switch {
		case unicode.IsSpace(r):
			for i < len(raw) {
				next, nextSize := utf8.DecodeRuneInString(raw[i:])
				if !unicode.IsSpace(next) {
					break
				}
				i += nextSize
			}
			b.WriteString(whitespaceToken)
			continue

		case r == '*':
			wildcards++
			if wildcards > 1 {
				return nil, errs.Unsupported("pattern %q has more than one wildcard", raw)
			}
			if err := addParam(SplatName); err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, "(?P<%s>%s)", SplatName, wildcardToken)

		case r == ':' && isIdentifierStart(raw[i+size:]):
			ident := scanIdentifier(raw[i+size:])
			if err := addParam(ident); err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, "(?P<%s>%s)", ident, placeholderToken)
			i += size + len(ident)
			continue

		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}

		i += size
	}

	return newMatcher(raw, name, b.String(), params)
}

// MustCompile is like Compile but panics on error. It simplifies safe
// initialization of package-level matchers.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("pattern: Compile(%q): %v", pattern, err))
	}

	return m
}

// FromRegexp wraps a pre-built expression, bypassing pattern compilation.
//
// Leading '^' and trailing '$' are dropped so the expression can be embedded
// behind an address prefix. A leading inline flag group such as (?i) is kept
// in front of the body. Unnamed capture groups are rejected: parameters
// are only ever passed by name.
func FromRegexp(re *regexp.Regexp) (*Matcher, error) {
	if re == nil {
		return nil, errs.Configuration("expression is nil")
	}

	flags, body := splitFlags(re.String())
	body = trimAnchors(body)
	if body == "" {
		return nil, errs.Configuration("expression %q is empty", re.String())
	}

	source := flags + body
	embedded, err := regexp.Compile(source)
	if err != nil {
		return nil, errs.Configuration("expression %q: %v", re.String(), err)
	}

	var params []string
	for i, param := range embedded.SubexpNames() {
		if i == 0 {
			continue
		}
		if param == "" {
			return nil, errs.Unsupported("expression %q has unnamed capture groups", re.String())
		}
		params = append(params, param)
	}

	var name string
	if bare, err := regexp.Compile(body); err == nil {
		literal, _ := bare.LiteralPrefix()
		name = commandNamePattern.FindString(strings.TrimSpace(literal))
	}

	return newMatcher(re.String(), name, source, params)
}

// Parse accepts anything that can describe a pattern: a string, a
// *regexp.Regexp, an existing *Matcher or a fmt.Stringer.
func Parse(value any) (*Matcher, error) {
	switch v := value.(type) {
	case *Matcher:
		if v == nil {
			return nil, errs.Configuration("matcher is nil")
		}
		return v, nil
	case string:
		return Compile(v)
	case *regexp.Regexp:
		return FromRegexp(v)
	case fmt.Stringer:
		if v == nil {
			return nil, errs.Configuration("pattern is nil")
		}
		return Compile(v.String())
	default:
		return nil, errs.Configuration("pattern must be a string or regular expression, got %T", value)
	}
}

func newMatcher(raw string, name string, source string, params []string) (*Matcher, error) {
	expr, err := regexp.Compile(`(?i)^(?:` + source + `)$`)
	if err != nil {
		return nil, errs.Configuration("pattern %q: %v", raw, err)
	}

	return &Matcher{
		raw:    raw,
		name:   name,
		source: source,
		params: params,
		expr:   expr,
	}, nil
}

// Raw returns the pattern text as written.
func (m *Matcher) Raw() string {
	return m.raw
}

// Name returns the command name: the leading literal token of the pattern.
// Expressions without a literal prefix have no name.
func (m *Matcher) Name() string {
	return m.name
}

// Source returns the unanchored expression body.
func (m *Matcher) Source() string {
	return m.source
}

// Params returns capture names in pattern order.
func (m *Matcher) Params() []string {
	return append([]string(nil), m.params...)
}

func (m *Matcher) String() string {
	return m.raw
}

// Match matches the whole body, case-insensitively and without any prefix.
func (m *Matcher) Match(body string) (Params, bool) {
	return extract(m.expr, body)
}

// Usage derives the matcher for "help <name>" and "usage <name>".
func (m *Matcher) Usage() (*Matcher, error) {
	if m.name == "" {
		return nil, errs.Configuration("pattern %q has no command name", m.raw)
	}

	return newMatcher("help "+m.name, m.name, `(?:help|usage)\s+`+regexp.QuoteMeta(m.name), nil)
}

// Describe derives the matcher for "describe <name>".
func (m *Matcher) Describe() (*Matcher, error) {
	if m.name == "" {
		return nil, errs.Configuration("pattern %q has no command name", m.raw)
	}

	return newMatcher("describe "+m.name, m.name, `describe\s+`+regexp.QuoteMeta(m.name), nil)
}

func extract(expr *regexp.Regexp, body string) (Params, bool) {
	body = strings.TrimSpace(body)
	loc := expr.FindStringSubmatchIndex(body)
	if loc == nil {
		return nil, false
	}

	params := make(Params)
	for i, name := range expr.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		params[name] = body[loc[2*i]:loc[2*i+1]]
	}

	return params, true
}

// splitFlags separates a leading inline flag group from the expression body.
func splitFlags(source string) (flags, body string) {
	if loc := inlineFlags.FindStringIndex(source); loc != nil {
		return source[:loc[1]], source[loc[1]:]
	}

	return "", source
}

func trimAnchors(source string) string {
	source = strings.TrimPrefix(source, "^")
	if strings.HasSuffix(source, "$") && !strings.HasSuffix(source, `\$`) {
		source = strings.TrimSuffix(source, "$")
	}

	return source
}

func isIdentifierStart(s string) bool {
	return s != "" && isIdentifierByte(s[0])
}

func scanIdentifier(s string) string {
	end := 0
	for end < len(s) && isIdentifierByte(s[end]) {
		end++
	}

	return s[:end]
}

// Capture names are restricted to ASCII word characters.
func isIdentifierByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
