package tracker

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"ReviewGuard/internal/domain"
)

var (
	// ErrUnknownID is returned when completing an identifier never acquired.
	ErrUnknownID = errors.New("unknown identifier")
	// ErrNotPending is returned when completing an identifier that is not in flight.
	ErrNotPending = errors.New("identifier is not pending")
)

// RetryPolicy gates the ERROR -> UNSEEN reset.
type RetryPolicy struct {
	Enabled bool
	// MaxAttempts bounds classification attempts per identifier; 0 means unlimited.
	MaxAttempts int
}

// Counts aggregates records per state.
type Counts struct {
	Unseen  int `json:"unseen"`
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Error   int `json:"error"`
}

// Tracker is the single source of truth for per-identifier processing state.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*domain.ProcessingRecord
	policy  RetryPolicy
}

// New builds an empty tracker.
func New(policy RetryPolicy) *Tracker {
	return &Tracker{records: map[string]*domain.ProcessingRecord{}, policy: policy}
}

// TryAcquire moves id from UNSEEN (or absent) to PENDING. It returns false,
// leaving the record untouched, for any other state.
func (t *Tracker) TryAcquire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		rec = &domain.ProcessingRecord{ID: id, State: domain.StateUnseen}
		t.records[id] = rec
	}
	if rec.State != domain.StateUnseen {
		return false
	}
	rec.State = domain.StatePending
	rec.Attempts++
	return true
}

// Complete moves a PENDING id to DONE, or to ERROR for ERR results.
func (t *Tracker) Complete(id string, result domain.ClassificationResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return fmt.Errorf("complete %s: %w", id, ErrUnknownID)
	}
	if rec.State != domain.StatePending {
		return fmt.Errorf("complete %s in state %s: %w", id, rec.State, ErrNotPending)
	}

	stored := result
	rec.Result = &stored
	if result.IsErr() {
		rec.State = domain.StateError
	} else {
		rec.State = domain.StateDone
	}
	return nil
}

// ResetForRetry moves an ERROR id back to UNSEEN when the policy allows it.
func (t *Tracker) ResetForRetry(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.policy.Enabled {
		return false
	}
	rec, ok := t.records[id]
	if !ok || rec.State != domain.StateError {
		return false
	}
	if t.policy.MaxAttempts > 0 && rec.Attempts >= t.policy.MaxAttempts {
		return false
	}
	rec.State = domain.StateUnseen
	rec.Result = nil
	return true
}

// Get returns a copy of the record for id.
func (t *Tracker) Get(id string) (domain.ProcessingRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return domain.ProcessingRecord{}, false
	}
	return copyRecord(rec), true
}

// Records returns copies of every record ordered by identifier.
func (t *Tracker) Records() []domain.ProcessingRecord {
	t.mu.Lock()
	out := make([]domain.ProcessingRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, copyRecord(rec))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyRecord(rec *domain.ProcessingRecord) domain.ProcessingRecord {
	cp := *rec
	if rec.Result != nil {
		res := *rec.Result
		cp.Result = &res
	}
	return cp
}

// Counts returns the number of records per state.
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	var c Counts
	for _, rec := range t.records {
		switch rec.State {
		case domain.StateUnseen:
			c.Unseen++
		case domain.StatePending:
			c.Pending++
		case domain.StateDone:
			c.Done++
		case domain.StateError:
			c.Error++
		}
	}
	return c
}

// Len returns the number of tracked identifiers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
