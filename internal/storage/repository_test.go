package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"refdesk/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "tallies.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestIncrementCreatesDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tally, err := repo.Increment(ctx, "2024-01-01", "quick_fact", "desk-a")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if tally.Count("quick_fact") != 1 {
		t.Fatalf("count = %d, want 1", tally.Count("quick_fact"))
	}
	for _, c := range core.Categories() {
		if c.ID != "quick_fact" && tally.Count(c.ID) != 0 {
			t.Fatalf("category %s = %d, want 0", c.ID, tally.Count(c.ID))
		}
	}
	if tally.Version != 1 || tally.UpdatedBy != "desk-a" {
		t.Fatalf("metadata = version %d by %q", tally.Version, tally.UpdatedBy)
	}
	if tally.CreatedAt.IsZero() || tally.UpdatedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}
}

func TestSequentialIncrementsAccumulate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const k = 7
	var last core.DailyTally
	for i := 0; i < k; i++ {
		var err error
		last, err = repo.Increment(ctx, "2024-01-01", "research", "desk-b")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if last.Count("research") != k {
		t.Fatalf("count = %d, want %d", last.Count("research"), k)
	}
	if last.Version != k {
		t.Fatalf("version = %d, want %d", last.Version, k)
	}
}

func TestConcurrentIncrementsLoseNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	const callers = 20

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cat := "quick_fact"
			if n%2 == 0 {
				cat = "technology"
			}
			if _, err := repo.Increment(ctx, "2024-01-01", cat, "desk"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}(i)
	}
	wg.Wait()

	tally, ok, err := repo.GetDay(ctx, "2024-01-01")
	if err != nil || !ok {
		t.Fatalf("get day: ok=%v err=%v", ok, err)
	}
	if got := tally.Total(); got != callers {
		t.Fatalf("total = %d, want %d", got, callers)
	}
}

func TestGetDayAbsent(t *testing.T) {
	repo := newTestRepo(t)
	tally, ok, err := repo.GetDay(context.Background(), "2024-01-01")
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if ok {
		t.Fatal("expected absent day")
	}
	if tally.Day != "2024-01-01" || tally.Total() != 0 {
		t.Fatalf("default tally = %+v", tally)
	}
}

func TestIncrementRejectsBadInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Increment(ctx, "2024-01-01", "nope", "a"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := repo.Increment(ctx, "bad-day", "other", "a"); !errors.Is(err, core.ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
}

func TestListRecentDays(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []core.Day{
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
		"2024-01-05", "2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09",
	}
	for _, d := range seed {
		if _, err := repo.Increment(ctx, d, "other", "desk"); err != nil {
			t.Fatalf("seed %s: %v", d, err)
		}
	}

	days, err := repo.ListRecentDays(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("got %d days, want 7", len(days))
	}
	if days[0].Day != "2024-01-03" || days[6].Day != "2024-01-09" {
		t.Fatalf("window = %s..%s, want 2024-01-03..2024-01-09", days[0].Day, days[6].Day)
	}
	for i := 1; i < len(days); i++ {
		if days[i-1].Day >= days[i].Day {
			t.Fatalf("days not ascending at %d: %s >= %s", i, days[i-1].Day, days[i].Day)
		}
	}
}

func TestListRecentDaysSparseStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, d := range []core.Day{"2024-01-01", "2024-01-04", "2024-01-06"} {
		if _, err := repo.Increment(ctx, d, "directional", "desk"); err != nil {
			t.Fatalf("seed %s: %v", d, err)
		}
	}

	days, err := repo.ListRecentDays(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("got %d days, want the 3 that exist (no padding)", len(days))
	}
}

func TestMirrorBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tally, err := repo.Increment(ctx, "2024-01-01", "quick_fact", "desk")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}

	pending, err := repo.ListPendingDays(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "2024-01-01" {
		t.Fatalf("pending = %v", pending)
	}

	if err := repo.MarkSynced(ctx, "2024-01-01", tally.Version); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, err = repo.ListPendingDays(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after sync = %v", pending)
	}

	// A newer write keeps the day pending even if an old mirror completes.
	newer, err := repo.Increment(ctx, "2024-01-01", "other", "desk")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := repo.MarkSynced(ctx, "2024-01-01", newer.Version-1); err != nil {
		t.Fatalf("mark synced stale: %v", err)
	}
	pending, _ = repo.ListPendingDays(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("stale mirror cleared pending day: %v", pending)
	}

	if err := repo.MarkSyncError(ctx, "2024-01-01"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	pending, _ = repo.ListPendingDays(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("errored day missing from sweep: %v", pending)
	}
}
