package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ReviewGuard/internal/locator"
)

var youtubeNoiseExpr = regexp.MustCompile(`(?i)\b(read more|show less)\b`)

// YouTubeLocator finds comments under YouTube videos.
type YouTubeLocator struct{}

var _ locator.Locator = (*YouTubeLocator)(nil)

// NewYouTubeLocator returns the YouTube comment adapter.
func NewYouTubeLocator() *YouTubeLocator {
	return &YouTubeLocator{}
}

func (y *YouTubeLocator) Name() string {
	return "youtube"
}

func (y *YouTubeLocator) Supports(host string) bool {
	return locator.HostMatches(host, "youtube.com") || locator.HostMatches(host, "youtu.be")
}

// Patterns cover both the legacy and the view-model comment renderers.
func (y *YouTubeLocator) Patterns() []string {
	return []string{
		"ytd-comment-view-model",
		"ytd-comment-renderer",
		"ytd-comment-thread-renderer #comment",
	}
}

func (y *YouTubeLocator) Qualifies(sel *goquery.Selection) bool {
	return sel.Find("#content-text").Length() > 0
}

func (y *YouTubeLocator) ExtractText(sel *goquery.Selection) string {
	text := sel.Find("#content-text").First().Text()
	text = youtubeNoiseExpr.ReplaceAllString(text, " ")
	return locator.NormalizeText(text)
}

// OriginVerified treats channel-verified and creator-badged authors as verified.
func (y *YouTubeLocator) OriginVerified(sel *goquery.Selection) bool {
	return sel.Find("ytd-author-comment-badge-renderer, #author-comment-badge, .badge-style-type-verified").Length() > 0
}

// NativeID reads the comment id from the "lc" parameter of the permalink.
func (y *YouTubeLocator) NativeID(sel *goquery.Selection) (string, bool) {
	href, ok := sel.Find(`#published-time-text a, a[href*="lc="]`).First().Attr("href")
	if !ok {
		return "", false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	lc := strings.TrimSpace(parsed.Query().Get("lc"))
	if lc == "" {
		return "", false
	}
	return "yt-comment-" + lc, true
}

func (y *YouTubeLocator) Anchor(sel *goquery.Selection) (*html.Node, locator.Placement) {
	if header := sel.Find("#header-author, #header").First(); header.Length() > 0 {
		return header.Get(0), locator.PlaceAfter
	}
	return sel.Get(0), locator.PlacePrepend
}

// Endpoint routes comments to the bot/human classifier.
func (y *YouTubeLocator) Endpoint() string {
	return "/predict_comment"
}
