package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ReviewGuard/internal/annotate"
	"ReviewGuard/internal/document"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/infrastructure/parser"
	"ReviewGuard/internal/infrastructure/storage"
	"ReviewGuard/internal/ports"
	"ReviewGuard/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const reviewTemplate = `<div id="customer_review-%s" data-hook="review"><span class="review-date">Reviewed on 1 Jan 2026</span><div data-hook="review-body"><span>%s</span></div></div>`

type stubClassifier struct {
	gate chan struct{}
}

func (s *stubClassifier) Classify(_ context.Context, _, text string) domain.ClassificationResult {
	if s.gate != nil {
		<-s.gate
	}
	switch {
	case strings.Contains(text, "broken"):
		return domain.ErrResult()
	case strings.Contains(text, "fake"):
		return domain.ClassificationResult{Label: domain.LabelFake, Confidence: 0.93}
	default:
		return domain.ClassificationResult{Label: domain.LabelGenuine, Confidence: 0.81}
	}
}

type stubExplainer struct {
	gate    chan struct{}
	entered chan struct{}
	fail    bool
}

func (s *stubExplainer) Explain(_ context.Context, req ports.ExplainRequest) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.fail {
		return "", errors.New("explainer down")
	}
	return "Because " + req.Label, nil
}

type stubReports struct {
	last storage.ReportQuery
}

func (s *stubReports) List(_ context.Context, q storage.ReportQuery) ([]storage.ReportEntry, error) {
	s.last = q
	return []storage.ReportEntry{{Seq: 1, UnitID: "customer_review-R1", Displayed: domain.DisplayFake}}, nil
}

func newTestServer(t *testing.T, classifier *stubClassifier, explainer ports.Explainer, reports ReportLister) (*Server, *usecase.Session) {
	t.Helper()

	var page strings.Builder
	page.WriteString(`<html><body><div id="cm-cr-dp-review-list">`)
	fmt.Fprintf(&page, reviewTemplate, "R1", "this looks like a fake review")
	fmt.Fprintf(&page, reviewTemplate, "R2", "honest words about the product")
	fmt.Fprintf(&page, reviewTemplate, "R3", "a broken classifier answer")
	page.WriteString(`</div></body></html>`)

	doc, err := document.Parse(strings.NewReader(page.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	session, err := usecase.NewSession(usecase.SessionDeps{
		Document:   doc,
		Locator:    parser.NewAmazonLocator(),
		Classifier: classifier,
		Renderer:   annotate.New(doc, explainer, nil),
		Batch:      usecase.BatchScheduler{Size: 3},
		MinRunes:   6,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return New(session, reports, nil), session
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestScanAndAnnotations(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubClassifier{}, &stubExplainer{}, nil)

	if rec := do(t, s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/scan")
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: %d %s", rec.Code, rec.Body.String())
	}
	report := decode[usecase.CycleReport](t, rec)
	if report.Acquired != 3 || len(report.Groups) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/scan")
	if again := decode[usecase.CycleReport](t, rec); again.Acquired != 0 || again.Skipped != 3 {
		t.Fatalf("second scan must skip everything: %+v", again)
	}

	anns := decode[[]domain.Annotation](t, do(t, s, http.MethodGet, "/api/v1/annotations"))
	if len(anns) != 3 {
		t.Fatalf("expected 3 annotations, got %+v", anns)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/annotations/customer_review-R1")
	if rec.Code != http.StatusOK {
		t.Fatalf("get annotation: %d", rec.Code)
	}
	if ann := decode[domain.Annotation](t, rec); ann.DisplayedCategory != domain.DisplayFake {
		t.Fatalf("unexpected annotation %+v", ann)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/annotations/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing annotation: %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/document")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("document: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), `id="badge-wrapper-customer_review-R1"`) {
		t.Fatal("annotated document lacks the marker")
	}

	records := decode[struct {
		Counts struct {
			Done  int `json:"done"`
			Error int `json:"error"`
		} `json:"counts"`
		Records []domain.ProcessingRecord `json:"records"`
	}](t, do(t, s, http.MethodGet, "/api/v1/records"))
	if records.Counts.Done != 2 || records.Counts.Error != 1 || len(records.Records) != 3 {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestScanConflictWhileInFlight(t *testing.T) {
	t.Parallel()

	classifier := &stubClassifier{gate: make(chan struct{})}
	s, session := newTestServer(t, classifier, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = session.RunCycle(context.Background())
	}()

	deadline := time.Now().Add(3 * time.Second)
	for !session.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("cycle never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/scan"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	close(classifier.gate)
	<-done
}

func TestExplainLifecycle(t *testing.T) {
	t.Parallel()

	explainer := &stubExplainer{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, session := newTestServer(t, &stubClassifier{}, explainer, nil)
	if _, err := session.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, s, http.MethodPost, "/api/v1/annotations/customer_review-R1/explain")
	}()
	select {
	case <-explainer.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("explainer never called")
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/annotations/customer_review-R1/explain"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while loading, got %d", rec.Code)
	}

	close(explainer.gate)
	rec := <-first
	if rec.Code != http.StatusOK {
		t.Fatalf("explain: %d %s", rec.Code, rec.Body.String())
	}
	ann := decode[domain.Annotation](t, rec)
	if ann.ExplanationState != domain.ExplanationLoaded || ann.ExplanationText != "Because FAKE" {
		t.Fatalf("unexpected annotation %+v", ann)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/annotations/customer_review-R3/explain"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("ERR annotation must not be explainable, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/annotations/missing/explain"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExplainFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	s, session := newTestServer(t, &stubClassifier{}, &stubExplainer{fail: true}, nil)
	if _, err := session.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/annotations/customer_review-R2/explain")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if ann, _ := session.Renderer().Annotation("customer_review-R2"); ann.ExplanationState != domain.ExplanationFailed {
		t.Fatalf("unexpected state %s", ann.ExplanationState)
	}
}

func TestReports(t *testing.T) {
	t.Parallel()

	without, _ := newTestServer(t, &stubClassifier{}, nil, nil)
	if rec := do(t, without, http.MethodGet, "/api/v1/reports"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without store, got %d", rec.Code)
	}

	reports := &stubReports{}
	s, _ := newTestServer(t, &stubClassifier{}, nil, reports)

	if rec := do(t, s, http.MethodGet, "/api/v1/reports?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/reports?limit=5&flagged=true&platform=amazon")
	if rec.Code != http.StatusOK {
		t.Fatalf("reports: %d", rec.Code)
	}
	if reports.last != (storage.ReportQuery{Limit: 5, Platform: "amazon", FlaggedOnly: true}) {
		t.Fatalf("unexpected query %+v", reports.last)
	}
	if entries := decode[[]storage.ReportEntry](t, rec); len(entries) != 1 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
