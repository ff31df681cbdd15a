package stanza

import "strings"

// Address identifies a conversation endpoint as node@domain/resource.
//
// For group conversations the resource carries the speaker's nickname; for
// one-to-one conversations it usually names the sender's client.
type Address string

// ParseAddress trims surrounding whitespace and returns the address.
func ParseAddress(value string) Address {
	return Address(strings.TrimSpace(value))
}

// NewAddress joins the parts into an address, omitting empty parts.
func NewAddress(node string, domain string, resource string) Address {
	var b strings.Builder
	b.WriteString(node)
	if domain != "" {
		b.WriteByte('@')
		b.WriteString(domain)
	}
	if resource != "" {
		b.WriteByte('/')
		b.WriteString(resource)
	}

	return Address(b.String())
}

func (a Address) String() string {
	return string(a)
}

// Stripped returns the address without its resource.
func (a Address) Stripped() Address {
	bare, _, _ := strings.Cut(string(a), "/")
	return Address(bare)
}

// Resource returns the part after the first slash, or "".
func (a Address) Resource() string {
	_, resource, _ := strings.Cut(string(a), "/")
	return resource
}

// Node returns the local part before '@'. Addresses without '@' are all node.
func (a Address) Node() string {
	bare := string(a.Stripped())
	node, _, found := strings.Cut(bare, "@")
	if !found {
		return bare
	}

	return node
}

// Domain returns the part between '@' and the resource, or "".
func (a Address) Domain() string {
	bare := string(a.Stripped())
	_, domain, _ := strings.Cut(bare, "@")
	return domain
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}
