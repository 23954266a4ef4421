package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ReviewGuard/internal/document"
	"ReviewGuard/internal/infrastructure/parser"
)

const reviewTemplate = `<div id="customer_review-%s" data-hook="review"><span class="review-date">Reviewed on 1 Jan 2026</span><div data-hook="review-body"><span>%s</span></div></div>`

func reviewsPage(reviews ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="cm-cr-dp-review-list">`)
	for _, r := range reviews {
		fmt.Fprintf(&b, reviewTemplate, r[0], r[1])
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func TestRefreshMergesOnlyNewUnits(t *testing.T) {
	t.Parallel()

	var version atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if version.Load() == 0 {
			_, _ = w.Write([]byte(reviewsPage([2]string{"R1", "first review text"})))
			return
		}
		_, _ = w.Write([]byte(reviewsPage(
			[2]string{"R1", "first review text"},
			[2]string{"R2", "second review text"},
		)))
	}))
	defer server.Close()

	fetcher := newTestFetcher(0, 0)
	doc, err := fetcher.Load(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	events, cancel := doc.Subscribe(4)
	defer cancel()

	refresher := NewRefresher(fetcher, server.URL, doc, parser.NewAmazonLocator(), nil)

	added, err := refresher.Refresh(context.Background())
	if err != nil || added != 0 {
		t.Fatalf("unchanged page must add nothing: %d %v", added, err)
	}

	version.Store(1)
	added, err = refresher.Refresh(context.Background())
	if err != nil || added != 1 {
		t.Fatalf("expected one new unit: %d %v", added, err)
	}
	if !doc.Exists("#customer_review-R2") {
		t.Fatal("new unit not merged")
	}
	if !doc.Exists("#cm-cr-dp-review-list > #customer_review-R2") {
		t.Fatal("new unit not appended next to its siblings")
	}

	select {
	case m := <-events:
		if m.Source != document.SourceHost || len(m.Added) != 1 {
			t.Fatalf("unexpected mutation %+v", m)
		}
	default:
		t.Fatal("merge did not publish a mutation")
	}

	added, err = refresher.Refresh(context.Background())
	if err != nil || added != 0 {
		t.Fatalf("second merge must be a no-op: %d %v", added, err)
	}
}
