package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ReviewGuard/internal/annotate"
	"ReviewGuard/internal/document"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/identity"
	"ReviewGuard/internal/locator"
	"ReviewGuard/internal/ports"
	"ReviewGuard/internal/tracker"
)

// ErrCycleInFlight reports a trigger that was coalesced into a running cycle.
var ErrCycleInFlight = errors.New("scan cycle already in flight")

const digestSnippetRunes = 120

// SessionDeps wires all collaborators of a scan session.
type SessionDeps struct {
	Document   *document.Document
	Locator    locator.Locator
	Resolver   *identity.Resolver
	Tracker    *tracker.Tracker
	Classifier ports.Classifier
	Renderer   *annotate.Renderer
	Batch      BatchScheduler
	Reports    ports.ReportSink
	Notifier   ports.Notifier
	Logger     *slog.Logger
	MinRunes   int
	Now        func() time.Time
}

// Session owns the processing state of one document: the tracker, the
// in-flight flag and every collaborator a scan cycle needs.
type Session struct {
	doc        *document.Document
	locator    locator.Locator
	resolver   *identity.Resolver
	tracker    *tracker.Tracker
	classifier ports.Classifier
	renderer   *annotate.Renderer
	batch      BatchScheduler
	reports    ports.ReportSink
	notifier   ports.Notifier
	logger     *slog.Logger
	minRunes   int
	now        func() time.Time

	inFlight atomic.Bool
	cycles   atomic.Int64
}

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	Cycle    int64            `json:"cycle"`
	Located  int              `json:"located"`
	Rejected int              `json:"rejected"`
	Acquired int              `json:"acquired"`
	Skipped  int              `json:"skipped"`
	Retried  int              `json:"retried"`
	Restored int              `json:"restored"`
	Groups   []int            `json:"groups"`
	Outcomes []domain.Outcome `json:"-"`
}

// NewSession constructs a session. Document, Locator, Classifier and
// Renderer are required.
func NewSession(deps SessionDeps) (*Session, error) {
	switch {
	case deps.Document == nil:
		return nil, fmt.Errorf("session: document is required")
	case deps.Locator == nil:
		return nil, fmt.Errorf("session: locator is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("session: classifier is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("session: renderer is required")
	}

	s := &Session{
		doc:        deps.Document,
		locator:    deps.Locator,
		resolver:   deps.Resolver,
		tracker:    deps.Tracker,
		classifier: deps.Classifier,
		renderer:   deps.Renderer,
		batch:      deps.Batch,
		reports:    deps.Reports,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		minRunes:   deps.MinRunes,
		now:        deps.Now,
	}
	if s.resolver == nil {
		s.resolver = identity.NewResolver()
	}
	if s.tracker == nil {
		s.tracker = tracker.New(tracker.RetryPolicy{})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Tracker exposes the processing state for read-only reporting.
func (s *Session) Tracker() *tracker.Tracker { return s.tracker }

// Renderer exposes the annotations for the explanation control.
func (s *Session) Renderer() *annotate.Renderer { return s.renderer }

// Document returns the live document.
func (s *Session) Document() *document.Document { return s.doc }

// Locator returns the platform adapter chosen for this session.
func (s *Session) Locator() locator.Locator { return s.locator }

// InFlight reports whether a cycle is running.
func (s *Session) InFlight() bool { return s.inFlight.Load() }

// RunCycle performs one locate, acquire, classify and render pass. A call
// made while another cycle runs returns ErrCycleInFlight immediately. Once
// started, a cycle ignores cancellation of ctx and runs to completion.
func (s *Session) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInFlight
	}
	defer s.inFlight.Store(false)

	ctx = context.WithoutCancel(ctx)
	report := CycleReport{Cycle: s.cycles.Add(1)}
	started := s.now()

	targets, located, rejected := s.collect()
	report.Located, report.Rejected = located, rejected

	var acquired []annotate.Target
	for _, target := range targets {
		id := target.Unit.ID
		if s.tracker.TryAcquire(id) {
			acquired = append(acquired, target)
			continue
		}
		if s.retry(id) {
			acquired = append(acquired, target)
			report.Retried++
			continue
		}
		if s.restore(target) {
			report.Restored++
			continue
		}
		report.Skipped++
	}
	report.Acquired = len(acquired)

	var (
		mu       sync.Mutex
		outcomes []domain.Outcome
	)
	groups, err := Dispatch(ctx, s.batch, acquired, func(ctx context.Context, target annotate.Target) {
		outcome := s.process(ctx, target)
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	})
	if err != nil {
		s.logger.Warn("dispatch stopped", "error", err)
	}
	report.Groups = groups
	report.Outcomes = outcomes

	s.publish(ctx, outcomes)

	s.logger.Info("scan cycle finished",
		"cycle", report.Cycle,
		"located", report.Located,
		"rejected", report.Rejected,
		"acquired", report.Acquired,
		"skipped", report.Skipped,
		"retried", report.Retried,
		"restored", report.Restored,
		"groups", len(report.Groups),
		"elapsed", s.now().Sub(started),
	)
	return report, nil
}

// collect runs the locator and resolves identities under the document lock.
func (s *Session) collect() ([]annotate.Target, int, int) {
	var (
		targets []annotate.Target
		col     locator.Collection
	)
	s.doc.View(func(doc *goquery.Document) {
		col = locator.Collect(doc, s.locator, s.resolver, s.minRunes)
		targets = make([]annotate.Target, 0, len(col.Units))
		for _, unit := range col.Units {
			anchor, placement := s.locator.Anchor(locator.Wrap(unit.SourceRef))
			targets = append(targets, annotate.Target{Unit: unit, Anchor: anchor, Placement: placement})
		}
	})
	return targets, col.Located, col.Rejected
}

// retry resets an ERROR record when the policy allows it and reacquires it.
// The stale Error annotation is withdrawn so the new verdict can render.
func (s *Session) retry(id string) bool {
	if !s.tracker.ResetForRetry(id) {
		return false
	}
	if err := s.renderer.Withdraw(id); err != nil && !errors.Is(err, annotate.ErrUnknownAnnotation) {
		s.logger.Warn("withdraw stale annotation", "id", id, "error", err)
	}
	return s.tracker.TryAcquire(id)
}

// restore re-renders a finished unit whose annotation is missing, which
// happens when the host re-inserts content it had removed.
func (s *Session) restore(target annotate.Target) bool {
	rec, ok := s.tracker.Get(target.Unit.ID)
	if !ok || !rec.State.Terminal() || rec.Result == nil {
		return false
	}
	rendered, err := s.renderer.Render(target, *rec.Result)
	if err != nil {
		s.logger.Warn("restore annotation", "id", target.Unit.ID, "error", err)
		return false
	}
	return rendered
}

func (s *Session) process(ctx context.Context, target annotate.Target) domain.Outcome {
	unit := target.Unit
	result := s.classifier.Classify(ctx, s.locator.Endpoint(), unit.RawText)

	if err := s.tracker.Complete(unit.ID, result); err != nil {
		s.logger.Error("complete record", "id", unit.ID, "error", err)
	}
	if _, err := s.renderer.Render(target, result); err != nil {
		s.logger.Warn("render annotation", "id", unit.ID, "error", err)
	}

	s.logger.Debug("unit classified", "id", unit.ID, "label", result.Label, "confidence", result.Confidence)
	return domain.Outcome{
		Unit:         unit,
		Result:       result,
		Displayed:    domain.DisplayFor(result, unit.OriginVerified),
		ClassifiedAt: s.now(),
	}
}

func (s *Session) publish(ctx context.Context, outcomes []domain.Outcome) {
	if len(outcomes) == 0 {
		return
	}

	if s.reports != nil {
		if err := s.reports.Record(ctx, outcomes); err != nil {
			s.logger.Warn("record outcomes", "error", err)
		}
	}

	if s.notifier != nil {
		if digest := buildDigestMessage(s.locator.Name(), outcomes); digest != "" {
			if err := s.notifier.PublishDigest(ctx, digest); err != nil {
				s.logger.Warn("publish digest", "error", err)
			}
		}
	}
}

// buildDigestMessage lists flagged units; it is empty when nothing is flagged.
func buildDigestMessage(platform string, outcomes []domain.Outcome) string {
	var b strings.Builder
	flagged := 0
	for _, o := range outcomes {
		if !o.Displayed.Flagged() {
			continue
		}
		flagged++
		fmt.Fprintf(&b, "- %s (%.0f%%) %s\n%s\n\n",
			o.Displayed,
			annotate.ShownConfidence(o.Result.Confidence)*100,
			o.Unit.ID,
			snippet(o.Unit.RawText))
	}
	if flagged == 0 {
		return ""
	}
	return fmt.Sprintf("ReviewGuard flagged %d of %d new %s units\n\n%s", flagged, len(outcomes), platform, b.String())
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= digestSnippetRunes {
		return text
	}
	return string(runes[:digestSnippetRunes]) + "..."
}
