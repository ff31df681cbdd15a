// Package pattern compiles human-authored command patterns into anchored
// regular expressions with named captures.
//
// A pattern is a sequence of literal words, named placeholders and at most
// one wildcard:
//
//	weather :city    captures one whitespace-delimited token as "city"
//	echo *           captures the shortest run of any text as "splat"
//
// Compiled matchers are immutable. Anchoring a matcher with a Prefix yields the
// expression the dispatcher evaluates against a message body: the bot's
// nickname followed by ':', ',' or whitespace, or one of a small set of sigils,
// followed by the pattern and nothing else.
package pattern
