package ports

import (
	"context"
	"time"

	"ReviewGuard/internal/domain"
)

// Classifier maps text to a verdict. Implementations never fail: transport or
// protocol problems come back as domain.ErrResult().
type Classifier interface {
	Classify(ctx context.Context, endpoint, text string) domain.ClassificationResult
}

// ExplainRequest carries the original (pre-downgrade) verdict as context.
type ExplainRequest struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Explainer produces a short human-readable reason for a verdict. An empty
// string with a nil error means there is nothing to explain.
type Explainer interface {
	Explain(ctx context.Context, req ExplainRequest) (string, error)
}

// ReportSink receives every outcome classified during a cycle.
type ReportSink interface {
	Record(ctx context.Context, outcomes []domain.Outcome) error
}

// Notifier streams flagged-content digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when document refreshes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Refresher merges newly published host content into the live document and
// reports how many nodes it added.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}
