package locator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/identity"
)

// DefaultMinRunes rejects anything of five runes or fewer.
const DefaultMinRunes = 6

// Collection is the outcome of one locate-and-extract pass.
type Collection struct {
	Units    []domain.ContentUnit
	Located  int
	Rejected int
}

// Locate runs every pattern and returns candidates deduplicated by node
// identity, in first-seen order.
func Locate(doc *goquery.Document, l Locator) []*goquery.Selection {
	seen := map[*html.Node]struct{}{}
	var out []*goquery.Selection
	for _, pattern := range l.Patterns() {
		doc.Find(pattern).Each(func(_ int, sel *goquery.Selection) {
			n := sel.Get(0)
			if _, dup := seen[n]; dup {
				return
			}
			seen[n] = struct{}{}
			out = append(out, sel)
		})
	}
	return out
}

// Collect turns candidates into content units. Rejected candidates never get
// an identity. Must run under Document.View since it may tag nodes.
func Collect(doc *goquery.Document, l Locator, resolver *identity.Resolver, minRunes int) Collection {
	if minRunes <= 0 {
		minRunes = DefaultMinRunes
	}

	var (
		candidates = Locate(doc, l)
		qualified  = make([]*goquery.Selection, 0, len(candidates))
		rejected   int
	)
	for _, sel := range candidates {
		if !l.Qualifies(sel) {
			rejected++
			continue
		}
		qualified = append(qualified, sel)
	}
	qualified = innermost(qualified)

	col := Collection{Located: len(qualified) + rejected, Rejected: rejected}
	native := NativeIDFunc(l)

	for _, sel := range qualified {
		text := l.ExtractText(sel)
		if !TextQualifies(text, minRunes) {
			col.Rejected++
			continue
		}
		col.Units = append(col.Units, domain.ContentUnit{
			ID:             resolver.Resolve(sel.Get(0), native),
			RawText:        text,
			SourceRef:      sel.Get(0),
			OriginVerified: l.OriginVerified(sel),
			Platform:       l.Name(),
		})
	}
	return col
}

// innermost drops candidates that enclose another candidate, so a unit
// wrapped by a second matching element is collected once, from its own node.
func innermost(sels []*goquery.Selection) []*goquery.Selection {
	if len(sels) < 2 {
		return sels
	}
	enclosing := make(map[*html.Node]struct{})
	for _, sel := range sels {
		for p := sel.Get(0).Parent; p != nil; p = p.Parent {
			enclosing[p] = struct{}{}
		}
	}
	out := sels[:0]
	for _, sel := range sels {
		if _, ok := enclosing[sel.Get(0)]; ok {
			continue
		}
		out = append(out, sel)
	}
	return out
}

// TextQualifies applies the minimum-content heuristics.
func TextQualifies(text string, minRunes int) bool {
	if utf8.RuneCountInString(text) < minRunes {
		return false
	}
	return strings.IndexFunc(text, unicode.IsSpace) >= 0
}

// NormalizeText applies NFKC and collapses whitespace runs.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// NativeIDFunc adapts a locator for identity lookups.
func NativeIDFunc(l Locator) identity.NativeIDFunc {
	return func(n *html.Node) (string, bool) {
		return l.NativeID(Wrap(n))
	}
}
