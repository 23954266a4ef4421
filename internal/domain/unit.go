package domain

import (
	"math"
	"time"

	"golang.org/x/net/html"
)

// ContentUnit is one classifiable piece of content located in the document.
type ContentUnit struct {
	ID             string
	RawText        string
	SourceRef      *html.Node
	OriginVerified bool
	Platform       string
}

// Label enumerates classifier verdicts.
type Label string

const (
	LabelGenuine Label = "GENUINE"
	LabelFake    Label = "FAKE"
	LabelBot     Label = "BOT"
	LabelHuman   Label = "HUMAN"
	LabelErr     Label = "ERR"
)

// ParseLabel maps a wire label to a known Label. ERR is not accepted from the wire.
func ParseLabel(value string) (Label, bool) {
	switch Label(value) {
	case LabelGenuine, LabelFake, LabelBot, LabelHuman:
		return Label(value), true
	default:
		return "", false
	}
}

// ClassificationResult is the classifier verdict for a single unit.
type ClassificationResult struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ErrResult is the terminal outcome for unreachable or misbehaving classifiers.
func ErrResult() ClassificationResult {
	return ClassificationResult{Label: LabelErr, Confidence: 0}
}

// IsErr reports whether the result is the terminal error outcome.
func (r ClassificationResult) IsErr() bool {
	return r.Label == LabelErr
}

// Valid checks the result domain: confidence in [0,1], ERR carries zero confidence.
func (r ClassificationResult) Valid() bool {
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return false
	}
	if r.Label == LabelErr {
		return r.Confidence == 0
	}
	_, ok := ParseLabel(string(r.Label))
	return ok
}

// State enumerates processing milestones of an identifier.
type State string

const (
	StateUnseen  State = "UNSEEN"
	StatePending State = "PENDING"
	StateDone    State = "DONE"
	StateError   State = "ERROR"
)

// Terminal reports whether no further classification is expected.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// ProcessingRecord tracks one identifier across scan cycles.
type ProcessingRecord struct {
	ID       string                `json:"id"`
	State    State                 `json:"state"`
	Result   *ClassificationResult `json:"result,omitempty"`
	Attempts int                   `json:"attempts"`
}

// Outcome is reported once per unit classified during a cycle.
type Outcome struct {
	Unit         ContentUnit
	Result       ClassificationResult
	Displayed    DisplayCategory
	ClassifiedAt time.Time
}
