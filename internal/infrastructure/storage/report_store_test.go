package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ReviewGuard/internal/domain"
)

func outcome(id, platform string, label domain.Label, conf float64, verified bool, at time.Time) domain.Outcome {
	result := domain.ClassificationResult{Label: label, Confidence: conf}
	return domain.Outcome{
		Unit:         domain.ContentUnit{ID: id, RawText: "text of " + id, Platform: platform, OriginVerified: verified},
		Result:       result,
		Displayed:    domain.DisplayFor(result, verified),
		ClassifiedAt: at,
	}
}

func openTestStore(t *testing.T) (*ReportStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reports", "outcomes.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := store.Record(ctx, []domain.Outcome{
		outcome("R1", "amazon", domain.LabelGenuine, 0.91, false, base),
		outcome("R2", "amazon", domain.LabelFake, 0.88, true, base.Add(time.Second)),
		outcome("C1", "youtube", domain.LabelBot, 0.75, false, base.Add(2*time.Second)),
		outcome("R3", "amazon", domain.LabelErr, 0, false, base.Add(3*time.Second)),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	all, err := store.List(ctx, ReportQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].UnitID != "R3" || all[3].UnitID != "R1" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if !all[0].ClassifiedAt.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("timestamp not preserved: %v", all[0].ClassifiedAt)
	}

	suspicious := all[2]
	if suspicious.UnitID != "R2" || suspicious.Displayed != domain.DisplaySuspicious ||
		suspicious.Label != domain.LabelFake || !suspicious.OriginVerified {
		t.Fatalf("unexpected entry %+v", suspicious)
	}

	flagged, err := store.List(ctx, ReportQuery{FlaggedOnly: true})
	if err != nil {
		t.Fatalf("list flagged: %v", err)
	}
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged entries, got %+v", flagged)
	}

	amazon, err := store.List(ctx, ReportQuery{Platform: "amazon", Limit: 2})
	if err != nil {
		t.Fatalf("list amazon: %v", err)
	}
	if len(amazon) != 2 || amazon[0].UnitID != "R3" || amazon[1].UnitID != "R2" {
		t.Fatalf("unexpected filtered list %+v", amazon)
	}
}

func TestSummaryCountsCategories(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	if err := store.Record(ctx, []domain.Outcome{
		outcome("A", "amazon", domain.LabelGenuine, 0.9, false, now),
		outcome("B", "amazon", domain.LabelGenuine, 0.8, false, now),
		outcome("C", "amazon", domain.LabelFake, 0.7, false, now),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	counts, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	got := map[domain.DisplayCategory]int{}
	for _, c := range counts {
		got[c.Displayed] = c.Count
	}
	if got[domain.DisplayGenuine] != 2 || got[domain.DisplayFake] != 1 || len(got) != 2 {
		t.Fatalf("unexpected summary %+v", counts)
	}
}

func TestSnippetIsTruncated(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	o := outcome("LONG", "amazon", domain.LabelHuman, 0.6, false, time.Now())
	o.Unit.RawText = strings.Repeat("é", snippetRunes+50)
	if err := store.Record(context.Background(), []domain.Outcome{o}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := store.List(context.Background(), ReportQuery{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v %+v", err, entries)
	}
	if n := len([]rune(entries[0].Snippet)); n != snippetRunes {
		t.Fatalf("expected %d runes, got %d", snippetRunes, n)
	}
}

func TestSingleWriter(t *testing.T) {
	t.Parallel()

	store, path := openTestStore(t)

	if _, err := Open(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	reader, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer reader.Close()
	if err := reader.Record(context.Background(), []domain.Outcome{outcome("X", "amazon", domain.LabelHuman, 0.5, false, time.Now())}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	_ = again.Close()
}

func TestOpenReadOnlyRequiresExistingFile(t *testing.T) {
	t.Parallel()

	if _, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Fatal("expected error for missing report")
	}
}
