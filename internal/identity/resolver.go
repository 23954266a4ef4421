package identity

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"ReviewGuard/internal/document"
)

// Attribute carries generated identities on the content node itself.
const Attribute = "data-rg-unique-id"

const generatedPrefix = "rg-"

// NativeIDFunc extracts a platform-assigned identifier, if any.
type NativeIDFunc func(n *html.Node) (string, bool)

// Resolver assigns stable identifiers to content nodes. It keeps no id-map:
// identity lives on the node, so later cycles re-derive the same value.
type Resolver struct {
	generate func() string
}

// NewResolver returns a resolver generating UUID-based fallback identities.
func NewResolver() *Resolver {
	return &Resolver{generate: func() string { return generatedPrefix + uuid.NewString() }}
}

// Resolve must be called while holding the document lock.
func (r *Resolver) Resolve(n *html.Node, native NativeIDFunc) string {
	if id, ok := r.Peek(n, native); ok {
		return id
	}
	id := r.generate()
	document.SetAttr(n, Attribute, id)
	return id
}

// Peek returns the identity without assigning one.
func (r *Resolver) Peek(n *html.Node, native NativeIDFunc) (string, bool) {
	if n == nil {
		return "", false
	}
	if native != nil {
		if id, ok := native(n); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), true
		}
	}
	if id, ok := document.Attr(n, Attribute); ok && id != "" {
		return id, true
	}
	return "", false
}
