package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ReviewGuard/internal/locator"
)

var statusExpr = regexp.MustCompile(`/status/(\d+)`)

// TwitterLocator finds posts on X/Twitter timelines and threads.
type TwitterLocator struct{}

var _ locator.Locator = (*TwitterLocator)(nil)

// NewTwitterLocator returns the X/Twitter post adapter.
func NewTwitterLocator() *TwitterLocator {
	return &TwitterLocator{}
}

// Name identifies the adapter inside the registry.
func (t *TwitterLocator) Name() string {
	return "twitter"
}

// Supports matches twitter.com, x.com and their subdomains.
func (t *TwitterLocator) Supports(host string) bool {
	return locator.HostMatches(host, "twitter.com") || locator.HostMatches(host, "x.com")
}

// Patterns match the post article directly and through its timeline cell.
func (t *TwitterLocator) Patterns() []string {
	return []string{
		`article[data-testid="tweet"]`,
		`[data-testid="cellInnerDiv"] article`,
	}
}

// Qualifies requires post text; media-only posts and ads are skipped.
func (t *TwitterLocator) Qualifies(sel *goquery.Selection) bool {
	return sel.Find(`[data-testid="tweetText"]`).Length() > 0
}

// ExtractText reads the first post text block.
func (t *TwitterLocator) ExtractText(sel *goquery.Selection) string {
	return locator.NormalizeText(sel.Find(`[data-testid="tweetText"]`).First().Text())
}

// OriginVerified reports the verified-account badge.
func (t *TwitterLocator) OriginVerified(sel *goquery.Selection) bool {
	return sel.Find(`[data-testid="icon-verified"], svg[aria-label="Verified account"]`).Length() > 0
}

// NativeID derives the id from the post permalink.
func (t *TwitterLocator) NativeID(sel *goquery.Selection) (string, bool) {
	var id string
	sel.Find(`a[href*="/status/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := statusExpr.FindStringSubmatch(href); m != nil {
			id = "tweet-" + m[1]
			return false
		}
		return true
	})
	return id, id != ""
}

// Anchor places the badge after the author line.
func (t *TwitterLocator) Anchor(sel *goquery.Selection) (*html.Node, locator.Placement) {
	if header := sel.Find(`[data-testid="User-Name"]`).First(); header.Length() > 0 {
		return header.Get(0), locator.PlaceAfter
	}
	return sel.Get(0), locator.PlacePrepend
}

// Endpoint routes posts to the bot/human classifier.
func (t *TwitterLocator) Endpoint() string {
	return "/predict_comment"
}
