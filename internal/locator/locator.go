package locator

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Placement says where the annotation goes relative to the anchor node.
type Placement int

const (
	// PlaceAfter inserts the annotation as the anchor's next sibling.
	PlaceAfter Placement = iota
	// PlacePrepend inserts the annotation as the anchor's first child.
	PlacePrepend
)

// Locator captures a single platform adapter (Amazon, YouTube, etc.).
type Locator interface {
	Name() string
	// Supports reports whether the adapter handles pages served from host.
	Supports(host string) bool
	// Patterns lists the selectors whose matches are content-unit candidates.
	// They may overlap.
	Patterns() []string
	// Qualifies filters candidates that are structurally not content units.
	Qualifies(sel *goquery.Selection) bool
	ExtractText(sel *goquery.Selection) string
	OriginVerified(sel *goquery.Selection) bool
	NativeID(sel *goquery.Selection) (string, bool)
	Anchor(sel *goquery.Selection) (*html.Node, Placement)
	// Endpoint is the classifier path used for this platform's content.
	Endpoint() string
}

// Registry keeps the known adapters in registration order.
type Registry struct {
	locators map[string]Locator
	order    []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{locators: map[string]Locator{}}
}

// Register adds or replaces a locator implementation.
func (r *Registry) Register(l Locator) {
	if r.locators == nil {
		r.locators = map[string]Locator{}
	}
	if _, ok := r.locators[l.Name()]; !ok {
		r.order = append(r.order, l.Name())
	}
	r.locators[l.Name()] = l
}

// Resolve returns a locator by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Locator, error) {
	if l, ok := r.locators[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("locator %s is not registered", name)
}

// Select returns the first registered locator supporting host.
func (r *Registry) Select(host string) (Locator, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, name := range r.order {
		if l := r.locators[name]; l.Supports(host) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("no locator supports host %q", host)
}

// Names lists registered locators.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Wrap exposes a single node as a selection for adapter methods.
func Wrap(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Class names carried by rendered annotation markup. Adapters exclude these
// subtrees so annotations never leak into extracted text.
const (
	WrapperClass = "reviewguard-wrapper"
	ExplainClass = "reviewguard-explain"
)

// AnnotationSelector matches every piece of rendered annotation markup.
const AnnotationSelector = "." + WrapperClass + ", ." + ExplainClass
