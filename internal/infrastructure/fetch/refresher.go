package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ReviewGuard/internal/document"
	"ReviewGuard/internal/locator"
	"ReviewGuard/internal/ports"
)

// Refresher re-fetches the page and appends content units that the live
// document does not have yet. It plays the host: its insertions are the
// mutations the observer reacts to.
type Refresher struct {
	fetcher *Fetcher
	pageURL string
	doc     *document.Document
	locator locator.Locator
	logger  *slog.Logger
}

var _ ports.Refresher = (*Refresher)(nil)

// NewRefresher builds a refresher merging pageURL into doc.
func NewRefresher(fetcher *Fetcher, pageURL string, doc *document.Document, l locator.Locator, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{fetcher: fetcher, pageURL: pageURL, doc: doc, locator: l, logger: logger}
}

// Refresh fetches the page once and returns the number of appended units.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	fresh, err := r.fetcher.Fetch(ctx, r.pageURL)
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}
	return r.Merge(fresh)
}

// Merge appends the units of fresh that are unknown to the live document.
// Units are matched by native identifier when the platform has one, by
// normalized text otherwise.
func (r *Refresher) Merge(fresh *goquery.Document) (int, error) {
	var (
		known     = map[string]struct{}{}
		container *html.Node
	)
	r.doc.View(func(doc *goquery.Document) {
		live := r.candidates(doc)
		for _, sel := range live {
			known[r.key(sel)] = struct{}{}
		}
		switch {
		case len(live) > 0:
			container = live[len(live)-1].Get(0).Parent
		case doc.Find("body").Length() > 0:
			container = doc.Find("body").Get(0)
		}
	})
	if container == nil {
		return 0, fmt.Errorf("refresh: document has no place for new content")
	}

	var added []*html.Node
	for _, sel := range r.candidates(fresh) {
		key := r.key(sel)
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		added = append(added, sel.Get(0))
	}
	if len(added) == 0 {
		return 0, nil
	}

	if err := r.doc.Append(container, added, document.SourceHost); err != nil {
		return 0, fmt.Errorf("refresh: append: %w", err)
	}
	r.logger.Info("new content merged", "url", r.pageURL, "added", len(added))
	return len(added), nil
}

// candidates returns qualifying top-level candidates. Nested matches are
// skipped so a unit is never appended twice.
func (r *Refresher) candidates(doc *goquery.Document) []*goquery.Selection {
	all := locator.Locate(doc, r.locator)
	nodes := make(map[*html.Node]struct{}, len(all))
	for _, sel := range all {
		nodes[sel.Get(0)] = struct{}{}
	}

	out := make([]*goquery.Selection, 0, len(all))
	for _, sel := range all {
		if nestedIn(sel.Get(0), nodes) || !r.locator.Qualifies(sel) {
			continue
		}
		out = append(out, sel)
	}
	return out
}

func (r *Refresher) key(sel *goquery.Selection) string {
	if id, ok := r.locator.NativeID(sel); ok && id != "" {
		return "id:" + id
	}
	return "text:" + r.locator.ExtractText(sel)
}

func nestedIn(n *html.Node, set map[*html.Node]struct{}) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}
