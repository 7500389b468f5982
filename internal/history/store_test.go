package history

import (
	"context"
	"testing"
	"time"

	"cardbox/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.TargetDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	store, err := Open(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEntry(sessionID string, copied, errors int) Entry {
	now := time.Now()
	return Entry{
		SessionID:    sessionID,
		Source:       "/media/user/SDCARD",
		Outcome:      "completed",
		TotalFiles:   copied + errors,
		CopiedFiles:  copied,
		ErrorFiles:   errors,
		Message:      "copy complete",
		StartedAt:    now.Add(-time.Minute),
		FinishedAt:   now,
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Record(ctx, sampleEntry("s-1", 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Record(ctx, sampleEntry("s-2", 5, 1))
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Fatalf("ids should increase: %d then %d", first, second)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	// Most recent first.
	if entries[0].SessionID != "s-2" || entries[1].SessionID != "s-1" {
		t.Fatalf("unexpected order: %s, %s", entries[0].SessionID, entries[1].SessionID)
	}
	if entries[0].CopiedFiles != 5 || entries[0].ErrorFiles != 1 {
		t.Fatalf("counters mismatch: %+v", entries[0])
	}
	if entries[0].StartedAt.IsZero() || entries[0].FinishedAt.IsZero() {
		t.Fatalf("timestamps not round-tripped: %+v", entries[0])
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Record(ctx, sampleEntry("s", 1, 0)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("limit ignored: got %d entries", len(entries))
	}
}

func TestRecordRequiresSessionID(t *testing.T) {
	store := openTestStore(t)
	entry := sampleEntry("", 1, 0)
	if _, err := store.Record(context.Background(), entry); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestTotals(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stats, err := store.Totals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sessions != 0 {
		t.Fatalf("empty journal should have zero sessions, got %d", stats.Sessions)
	}

	if _, err := store.Record(ctx, sampleEntry("s-1", 10, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record(ctx, sampleEntry("s-2", 4, 0)); err != nil {
		t.Fatal(err)
	}

	stats, err = store.Totals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sessions != 2 || stats.CopiedFiles != 14 || stats.ErrorFiles != 2 {
		t.Fatalf("totals mismatch: %+v", stats)
	}
}

func TestOpenIsReentrant(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TargetDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	store, err := Open(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record(context.Background(), sampleEntry("s-1", 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the entry to persist, got %d", len(entries))
	}
}
