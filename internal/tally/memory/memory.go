package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"refdesk/internal/core"
)

// Store is a mutex-guarded in-memory counter store. It is the default
// development backend and the test double for the SQLite repository; both
// honor the same increment semantics.
type Store struct {
	mu   sync.Mutex
	days map[core.Day]core.DailyTally
	now  func() time.Time
}

func New() *Store {
	return &Store{
		days: make(map[core.Day]core.DailyTally),
		now:  time.Now,
	}
}

// NewWithClock pins the store's clock, for tests.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// Increment implements tally.Incrementer.
func (s *Store) Increment(_ context.Context, day core.Day, categoryID, actor string) (core.DailyTally, error) {
	if err := day.Validate(); err != nil {
		return core.DailyTally{}, err
	}
	if !core.IsCategoryID(categoryID) {
		return core.DailyTally{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, categoryID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t, ok := s.days[day]
	if !ok {
		t = core.EmptyTally(day)
		t.CreatedAt = now
	}
	t.Counts[categoryID]++
	t.UpdatedAt = now
	t.UpdatedBy = actor
	t.Version++
	s.days[day] = t

	return t.Clone(), nil
}

// GetDay implements tally.DayReader.
func (s *Store) GetDay(_ context.Context, day core.Day) (core.DailyTally, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.days[day]
	if !ok {
		return core.EmptyTally(day), false, nil
	}
	return t.Clone(), true, nil
}

// ListRecentDays implements tally.WeekReader.
func (s *Store) ListRecentDays(_ context.Context, n int) ([]core.DailyTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days := make([]core.DailyTally, 0, len(s.days))
	for _, t := range s.days {
		days = append(days, t.Clone())
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	if len(days) > n {
		days = days[len(days)-n:]
	}
	return days, nil
}
