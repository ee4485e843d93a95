package tally

import (
	"context"
	"errors"
	"testing"
	"time"

	"refdesk/internal/core"
	"refdesk/internal/live"
	"refdesk/internal/tally/memory"
)

func TestIncrementEndToEnd(t *testing.T) {
	store := memory.New()
	hub := live.NewHub()
	svc := NewService(store, nil, hub)
	ctx := context.Background()

	sub := hub.Subscribe("2024-01-01", core.EmptyTally("2024-01-01"))
	defer sub.Cancel()
	<-sub.C // initial snapshot

	tally, err := svc.Increment(ctx, "2024-01-01", "quick_fact", "desk-a")
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

	select {
	case snap := <-sub.C:
		if snap.Count("quick_fact") != 1 {
			t.Fatalf("hub snapshot count = %d, want 1", snap.Count("quick_fact"))
		}
	case <-time.After(time.Second):
		t.Fatal("no hub delivery after increment")
	}

	week, err := svc.Week(ctx, 7)
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if len(week.Days) != 1 || week.GrandTotal != 1 {
		t.Fatalf("week = %+v, want one day with grand total 1", week)
	}
}

func TestIncrementValidation(t *testing.T) {
	svc := NewService(memory.New(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, "2024-01-01", "made_up", "a"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := svc.Increment(ctx, "jan 1st", "other", "a"); !errors.Is(err, core.ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
}

func TestDayDefaultsToZero(t *testing.T) {
	svc := NewService(memory.New(), nil, nil)
	tally, err := svc.Day(context.Background(), "2024-01-01")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if tally.Day != "2024-01-01" || tally.Total() != 0 {
		t.Fatalf("expected all-zero default, got %+v", tally)
	}
}

type failingStore struct{ Store }

func (f failingStore) ListRecentDays(context.Context, int) ([]core.DailyTally, error) {
	return nil, errors.New("query timeout")
}

func TestWeekWrapsFetchFailure(t *testing.T) {
	svc := NewService(failingStore{memory.New()}, nil, nil)
	if _, err := svc.Week(context.Background(), 7); !errors.Is(err, core.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}
