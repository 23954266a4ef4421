package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ReviewGuard/internal/locator"
)

const amazonReviewPrefix = "customer_review-"

var (
	amazonNoiseExpr    = regexp.MustCompile(`(?i)\b(read more|helpful|report)\b`)
	amazonVerifiedExpr = regexp.MustCompile(`(?i)verified purchase`)
)

// amazonJunk lists fragments that never belong to the review body.
var amazonJunk = strings.Join([]string{
	".a-profile",
	".review-date",
	".review-title",
	".a-icon-alt",
	".review-comments",
	".cr-footer-line",
	"button",
	".helpful-button-wrapper",
	".video-block",
	locator.AnnotationSelector,
}, ", ")

// AmazonLocator finds customer reviews on Amazon product and review pages.
type AmazonLocator struct{}

var _ locator.Locator = (*AmazonLocator)(nil)

// NewAmazonLocator returns the Amazon review adapter.
func NewAmazonLocator() *AmazonLocator {
	return &AmazonLocator{}
}

// Name identifies the adapter inside the registry.
func (a *AmazonLocator) Name() string {
	return "amazon"
}

// Supports matches any Amazon storefront (amazon.com, amazon.co.uk, ...).
func (a *AmazonLocator) Supports(host string) bool {
	for _, label := range strings.Split(strings.ToLower(host), ".") {
		if label == "amazon" {
			return true
		}
	}
	return false
}

// Patterns overlap on purpose: most reviews match both.
func (a *AmazonLocator) Patterns() []string {
	return []string{
		`[id^="customer_review-"]`,
		`[data-hook="review"]`,
	}
}

// Qualifies requires a rating or a review date, which widgets reusing the
// review hook do not carry.
func (a *AmazonLocator) Qualifies(sel *goquery.Selection) bool {
	return sel.Find(".a-icon-alt").Length() > 0 || sel.Find(".review-date").Length() > 0
}

// ExtractText prefers the review body and falls back to the whole node minus
// profile, rating and action fragments.
func (a *AmazonLocator) ExtractText(sel *goquery.Selection) string {
	box := sel.Find(`[data-hook="review-body"] span`).First()
	if box.Length() == 0 {
		box = sel.Find(".review-text-content span").First()
	}

	var text string
	if box.Length() > 0 {
		text = box.Text()
	} else {
		clone := sel.Clone()
		clone.Find(amazonJunk).Remove()
		text = clone.Text()
	}

	text = amazonNoiseExpr.ReplaceAllString(text, " ")
	return locator.NormalizeText(text)
}

// OriginVerified reports the "Verified Purchase" badge.
func (a *AmazonLocator) OriginVerified(sel *goquery.Selection) bool {
	clone := sel.Clone()
	clone.Find(locator.AnnotationSelector).Remove()
	return amazonVerifiedExpr.MatchString(clone.Text())
}

// NativeID reuses Amazon's own review id when present.
func (a *AmazonLocator) NativeID(sel *goquery.Selection) (string, bool) {
	id, ok := sel.Attr("id")
	if !ok || !strings.HasPrefix(id, amazonReviewPrefix) {
		return "", false
	}
	return id, true
}

// Anchor places the badge right after the reviewer header.
func (a *AmazonLocator) Anchor(sel *goquery.Selection) (*html.Node, locator.Placement) {
	for _, selector := range []string{".a-profile", ".review-header", ".a-row"} {
		if header := sel.Find(selector).First(); header.Length() > 0 {
			return header.Get(0), locator.PlaceAfter
		}
	}
	return sel.Get(0), locator.PlacePrepend
}

// Endpoint routes reviews to the review classifier.
func (a *AmazonLocator) Endpoint() string {
	return "/predict"
}
