package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"ReviewGuard/internal/document"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/locator"
	"ReviewGuard/internal/ports"
)

var (
	// ErrUnknownAnnotation is returned for ids that have no live annotation.
	ErrUnknownAnnotation = errors.New("annotation not found")
	// ErrExplanationInFlight is returned while an explanation is loading.
	ErrExplanationInFlight = errors.New("explanation already loading")
	// ErrNotExplainable is returned for annotations without an explanation control.
	ErrNotExplainable = errors.New("annotation has no explanation control")
)

// Target says where a unit's annotation goes.
type Target struct {
	Unit      domain.ContentUnit
	Anchor    *html.Node
	Placement locator.Placement
}

type entry struct {
	ann     domain.Annotation
	text    string
	wrapper *html.Node
}

// Renderer owns every annotation it inserted into the document.
type Renderer struct {
	doc       *document.Document
	explainer ports.Explainer
	logger    *slog.Logger

	// mu is always taken before the document lock, never the other way round.
	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a renderer over doc. explainer may be nil, in which case every
// explanation request fails.
func New(doc *document.Document, explainer ports.Explainer, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		doc:       doc,
		explainer: explainer,
		logger:    logger,
		entries:   map[string]*entry{},
	}
}

// Render inserts the annotation for target unless its marker is already in
// the document. It reports whether anything was inserted.
func (r *Renderer) Render(target Target, result domain.ClassificationResult) (bool, error) {
	unit := target.Unit
	if unit.ID == "" {
		return false, fmt.Errorf("render: unit has no identifier")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc.Exists(MarkerSelector(unit.ID)) {
		return false, nil
	}

	display := domain.DisplayFor(result, unit.OriginVerified)
	ann := domain.Annotation{
		UnitID:            unit.ID,
		DisplayedCategory: display,
		ConfidenceShown:   ShownConfidence(result.Confidence),
		ExplanationState:  domain.ExplanationNotRequested,
		Label:             result.Label,
		Confidence:        result.Confidence,
	}
	if result.IsErr() {
		ann.ConfidenceShown = 0
	}

	markup := fragment(ann)

	parent, after := target.Anchor, target.Placement == locator.PlaceAfter
	if result.IsErr() || parent == nil {
		parent, after = unit.SourceRef, false
	}

	var (
		nodes []*html.Node
		err   error
	)
	if after {
		nodes, err = r.doc.InsertAfter(parent, markup, document.SourceAnnotation)
	} else {
		nodes, err = r.doc.Prepend(parent, markup, document.SourceAnnotation)
	}
	if err != nil {
		return false, fmt.Errorf("render %s: %w", unit.ID, err)
	}

	r.entries[unit.ID] = &entry{ann: ann, text: unit.RawText, wrapper: nodes[0]}
	r.logger.Debug("annotation rendered", "id", unit.ID, "category", display)
	return true, nil
}

// Annotation returns the current annotation for id.
func (r *Renderer) Annotation(id string) (domain.Annotation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.Annotation{}, false
	}
	return e.ann, true
}

// Annotations lists live annotations ordered by unit id.
func (r *Renderer) Annotations() []domain.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Annotation, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ann)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

// RequestExplanation fetches the explanation for id. While a fetch is running
// further requests get ErrExplanationInFlight; a loaded explanation is
// returned as is; a failed one may be retried.
func (r *Renderer) RequestExplanation(ctx context.Context, id string) (domain.Annotation, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return domain.Annotation{}, fmt.Errorf("explain %s: %w", id, ErrUnknownAnnotation)
	}
	if !e.ann.Explainable() {
		ann := e.ann
		r.mu.Unlock()
		return ann, fmt.Errorf("explain %s: %w", id, ErrNotExplainable)
	}
	switch e.ann.ExplanationState {
	case domain.ExplanationLoading:
		ann := e.ann
		r.mu.Unlock()
		return ann, ErrExplanationInFlight
	case domain.ExplanationLoaded:
		ann := e.ann
		r.mu.Unlock()
		return ann, nil
	}
	e.ann.ExplanationState = domain.ExplanationLoading
	e.ann.ExplanationText = ""
	loading := e.ann
	req := ports.ExplainRequest{Text: e.text, Label: string(e.ann.Label), Confidence: e.ann.Confidence}
	r.mu.Unlock()

	r.paint(e.wrapper, loading)

	var (
		text string
		err  error
	)
	if r.explainer == nil {
		err = errors.New("no explainer configured")
	} else {
		text, err = r.explainer.Explain(ctx, req)
	}

	r.mu.Lock()
	if err != nil {
		e.ann.ExplanationState = domain.ExplanationFailed
	} else {
		e.ann.ExplanationState = domain.ExplanationLoaded
		e.ann.ExplanationText = text
	}
	done := e.ann
	r.mu.Unlock()

	r.paint(e.wrapper, done)

	if err != nil {
		r.logger.Warn("explanation failed", "id", id, "error", err)
		return done, fmt.Errorf("explain %s: %w", id, err)
	}
	return done, nil
}

// Withdraw removes the annotation for id from the document and forgets it.
func (r *Renderer) Withdraw(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("withdraw %s: %w", id, ErrUnknownAnnotation)
	}
	delete(r.entries, id)
	if err := r.doc.Remove(e.wrapper, document.SourceAnnotation); err != nil && !errors.Is(err, document.ErrDetached) {
		return fmt.Errorf("withdraw %s: %w", id, err)
	}
	return nil
}

// Forget drops annotations whose markup is no longer attached to the
// document, typically because the host removed the unit. It returns how many
// were dropped.
func (r *Renderer) Forget(removed []*html.Node) int {
	if len(removed) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []string
	r.doc.View(func(*goquery.Document) {
		for id, e := range r.entries {
			if !attached(e.wrapper) {
				dropped = append(dropped, id)
			}
		}
	})
	for _, id := range dropped {
		delete(r.entries, id)
		r.logger.Debug("annotation forgotten", "id", id)
	}
	return len(dropped)
}

// paint reflects the explanation state in the markup.
func (r *Renderer) paint(wrapper *html.Node, ann domain.Annotation) {
	r.doc.View(func(*goquery.Document) {
		sel := locator.Wrap(wrapper)
		button := sel.Find("." + buttonClass)
		box := sel.Find("." + locator.ExplainClass)

		if ann.ExplanationState == domain.ExplanationLoading {
			button.SetAttr("disabled", "")
		} else {
			button.RemoveAttr("disabled")
		}
		if ann.ExplanationState == domain.ExplanationLoaded {
			button.SetAttr("hidden", "")
		}

		box.RemoveAttr("hidden")
		box.SetAttr("data-rg-state", string(ann.ExplanationState))
		box.SetText(explanationMessage(ann))
	})
}

func attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}
