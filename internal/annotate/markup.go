package annotate

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html"

	"ReviewGuard/internal/document"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/locator"
)

const (
	markerPrefix  = "badge-wrapper-"
	explainPrefix = "explain-"
	badgeClass    = "reviewguard-badge"
	buttonClass   = "reviewguard-explain-btn"
	maxShown      = 0.99
)

// Explanation box messages.
const (
	loadingText  = "Asking AI..."
	loadedPrefix = "AI Logic: "
	emptyText    = "Could not generate explanation."
	failedText   = "Error connecting to AI."
)

// MarkerID is the element id that proves a unit is already annotated.
func MarkerID(unitID string) string {
	return markerPrefix + unitID
}

// MarkerSelector matches the marker element of unitID.
func MarkerSelector(unitID string) string {
	return document.AttrSelector("id", MarkerID(unitID))
}

// ShownConfidence caps the displayed confidence so nothing reads as 100%.
func ShownConfidence(confidence float64) float64 {
	return math.Min(confidence, maxShown)
}

// BadgeText renders "CATEGORY (NN%)", or "Error" for failed classifications.
func BadgeText(a domain.Annotation) string {
	if a.DisplayedCategory == domain.DisplayError {
		return string(domain.DisplayError)
	}
	return fmt.Sprintf("%s (%d%%)", a.DisplayedCategory, int(math.Round(a.ConfidenceShown*100)))
}

func fragment(a domain.Annotation) string {
	id := html.EscapeString(a.UnitID)
	category := strings.ToLower(string(a.DisplayedCategory))

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s%s" class="%s" data-rg-unit="%s" data-rg-category="%s">`,
		markerPrefix, id, locator.WrapperClass, id, html.EscapeString(string(a.DisplayedCategory)))
	fmt.Fprintf(&b, `<span class="%s %s-%s">%s</span>`,
		badgeClass, badgeClass, category, html.EscapeString(BadgeText(a)))
	if a.Explainable() {
		fmt.Fprintf(&b, `<button type="button" class="%s" data-rg-explain="%s">Why?</button>`, buttonClass, id)
		fmt.Fprintf(&b, `<div id="%s%s" class="%s" hidden=""></div>`, explainPrefix, id, locator.ExplainClass)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func explanationMessage(a domain.Annotation) string {
	switch a.ExplanationState {
	case domain.ExplanationLoading:
		return loadingText
	case domain.ExplanationLoaded:
		if a.ExplanationText == "" {
			return emptyText
		}
		return loadedPrefix + a.ExplanationText
	case domain.ExplanationFailed:
		return failedText
	default:
		return ""
	}
}
