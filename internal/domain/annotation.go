package domain

// DisplayCategory is what the annotation shows, which may differ from the stored label.
type DisplayCategory string

const (
	DisplayGenuine    DisplayCategory = "GENUINE"
	DisplayHuman      DisplayCategory = "HUMAN"
	DisplayFake       DisplayCategory = "FAKE"
	DisplaySuspicious DisplayCategory = "SUSPICIOUS"
	DisplayBot        DisplayCategory = "BOT"
	DisplayError      DisplayCategory = "Error"
)

// DisplayFor maps a result to its displayed category. FAKE verdicts on
// verified-origin content are softened to SUSPICIOUS.
func DisplayFor(result ClassificationResult, originVerified bool) DisplayCategory {
	switch result.Label {
	case LabelFake:
		if originVerified {
			return DisplaySuspicious
		}
		return DisplayFake
	case LabelGenuine:
		return DisplayGenuine
	case LabelHuman:
		return DisplayHuman
	case LabelBot:
		return DisplayBot
	default:
		return DisplayError
	}
}

// Flagged reports whether the category warns the reader.
func (d DisplayCategory) Flagged() bool {
	return d == DisplayFake || d == DisplaySuspicious || d == DisplayBot
}

// ExplanationState tracks the lazily fetched explanation.
type ExplanationState string

const (
	ExplanationNotRequested ExplanationState = "NOT_REQUESTED"
	ExplanationLoading      ExplanationState = "LOADING"
	ExplanationLoaded       ExplanationState = "LOADED"
	ExplanationFailed       ExplanationState = "FAILED"
)

// Annotation is the rendered indicator for one unit. Label and Confidence keep
// the original classifier output used as explanation context.
type Annotation struct {
	UnitID            string           `json:"unitId"`
	DisplayedCategory DisplayCategory  `json:"displayedCategory"`
	ConfidenceShown   float64          `json:"confidenceShown"`
	ExplanationState  ExplanationState `json:"explanationState"`
	ExplanationText   string           `json:"explanationText,omitempty"`
	Label             Label            `json:"label"`
	Confidence        float64          `json:"confidence"`
}

// Explainable reports whether an explanation control is offered.
func (a Annotation) Explainable() bool {
	return a.Label != LabelErr
}
