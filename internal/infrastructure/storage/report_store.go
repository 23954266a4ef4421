package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/ports"
)

const (
	outcomesTable = "outcomes"
	snippetRunes  = 200
)

var (
	// ErrLocked is returned when another process already writes to the report.
	ErrLocked = errors.New("report store is locked by another writer")
	// ErrReadOnly is returned by Record on a store opened for reading.
	ErrReadOnly = errors.New("report store is read-only")
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	unit_id         TEXT    NOT NULL,
	platform        TEXT    NOT NULL,
	label           TEXT    NOT NULL,
	confidence      REAL    NOT NULL,
	displayed       TEXT    NOT NULL,
	origin_verified INTEGER NOT NULL,
	snippet         TEXT    NOT NULL,
	classified_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_classified_at ON outcomes(classified_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_displayed ON outcomes(displayed);
`

// ReportEntry is one stored outcome.
type ReportEntry struct {
	Seq            int64                  `json:"seq"`
	UnitID         string                 `json:"unitId"`
	Platform       string                 `json:"platform"`
	Label          domain.Label           `json:"label"`
	Confidence     float64                `json:"confidence"`
	Displayed      domain.DisplayCategory `json:"displayed"`
	OriginVerified bool                   `json:"originVerified"`
	Snippet        string                 `json:"snippet"`
	ClassifiedAt   time.Time              `json:"classifiedAt"`
}

// ReportQuery filters List results. A zero Limit returns everything.
type ReportQuery struct {
	Limit       uint64
	Platform    string
	FlaggedOnly bool
}

// CategoryCount aggregates stored outcomes per displayed category.
type CategoryCount struct {
	Displayed domain.DisplayCategory `json:"displayed"`
	Count     int                    `json:"count"`
}

// ReportStore is an append-only audit log of classification outcomes backed
// by SQLite. Writers hold an exclusive file lock next to the database.
type ReportStore struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

var _ ports.ReportSink = (*ReportStore)(nil)

// Open opens path for writing, creating the schema when needed. It fails with
// ErrLocked while another writer holds the store.
func Open(path string) (*ReportStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire report lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	store, err := open(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	store.lock = lock

	if _, err := store.db.Exec(schema); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init report schema: %w", err)
	}
	return store, nil
}

// OpenReadOnly opens an existing report without taking the writer lock.
func OpenReadOnly(path string) (*ReportStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return open(path)
}

func open(path string) (*ReportStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return &ReportStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *ReportStore) Path() string { return s.path }

// Close closes the database and releases the writer lock.
func (s *ReportStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("release report lock: %w", unlockErr)
		}
	}
	return err
}

// Record appends outcomes in a single statement.
func (s *ReportStore) Record(ctx context.Context, outcomes []domain.Outcome) error {
	if s.lock == nil {
		return ErrReadOnly
	}
	if len(outcomes) == 0 {
		return nil
	}

	insert := sq.Insert(outcomesTable).Columns(
		"unit_id", "platform", "label", "confidence", "displayed",
		"origin_verified", "snippet", "classified_at",
	)
	for _, o := range outcomes {
		insert = insert.Values(
			o.Unit.ID,
			o.Unit.Platform,
			string(o.Result.Label),
			o.Result.Confidence,
			string(o.Displayed),
			o.Unit.OriginVerified,
			truncate(o.Unit.RawText, snippetRunes),
			o.ClassifiedAt.UnixMilli(),
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcomes: %w", err)
	}
	return nil
}

// List returns stored outcomes, newest first.
func (s *ReportStore) List(ctx context.Context, q ReportQuery) ([]ReportEntry, error) {
	sel := sq.Select(
		"id", "unit_id", "platform", "label", "confidence", "displayed",
		"origin_verified", "snippet", "classified_at",
	).From(outcomesTable).OrderBy("classified_at DESC", "id DESC")

	if q.Platform != "" {
		sel = sel.Where(sq.Eq{"platform": q.Platform})
	}
	if q.FlaggedOnly {
		sel = sel.Where(sq.Eq{"displayed": flaggedCategories()})
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []ReportEntry
	for rows.Next() {
		var (
			e       ReportEntry
			label   string
			display string
			at      int64
		)
		if err := rows.Scan(&e.Seq, &e.UnitID, &e.Platform, &label, &e.Confidence, &display,
			&e.OriginVerified, &e.Snippet, &at); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.Label = domain.Label(label)
		e.Displayed = domain.DisplayCategory(display)
		e.ClassifiedAt = time.UnixMilli(at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

// Summary counts stored outcomes per displayed category.
func (s *ReportStore) Summary(ctx context.Context) ([]CategoryCount, error) {
	query, args, err := sq.Select("displayed", "COUNT(*)").
		From(outcomesTable).
		GroupBy("displayed").
		OrderBy("displayed").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build summary: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var counts []CategoryCount
	for rows.Next() {
		var (
			display string
			c       CategoryCount
		)
		if err := rows.Scan(&display, &c.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		c.Displayed = domain.DisplayCategory(display)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}

func flaggedCategories() []string {
	return []string{
		string(domain.DisplayFake),
		string(domain.DisplaySuspicious),
		string(domain.DisplayBot),
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
