package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Day is an ISO calendar date (YYYY-MM-DD). It is the identity key of a
// daily tally and doubles as its display and sort key.
type Day string

const dayLayout = "2006-01-02"

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrFetchFailed         = errors.New("fetch failed")
)

// DayOf truncates a point in time to its calendar date.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// ParseDay validates and normalizes an ISO date string.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return DayOf(t), nil
}

func (d Day) String() string { return string(d) }

func (d Day) Validate() error {
	if _, err := time.Parse(dayLayout, string(d)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDay, string(d))
	}
	return nil
}

// Category is one entry of the fixed question taxonomy.
type Category struct {
	ID          string
	Name        string
	Description string
}

// categories is the static registry. IDs are stable and appear in storage
// and on the wire; display names are free to change.
var categories = []Category{
	{ID: "directional", Name: "Directional", Description: "Where is the bathroom, printer, study room..."},
	{ID: "quick_fact", Name: "Quick Fact", Description: "Single lookup answered in under a minute"},
	{ID: "research", Name: "Research", Description: "In-depth help with sources and search strategy"},
	{ID: "technology", Name: "Technology", Description: "Computers, printing, wifi, e-readers"},
	{ID: "other", Name: "Other", Description: "Anything that does not fit the above"},
}

// Categories returns the registry in display order. The returned slice is a
// copy; callers may not mutate the registry.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryByID looks up a category by its stable id.
func CategoryByID(id string) (Category, error) {
	for _, c := range categories {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, id)
}

// IsCategoryID reports whether id names a registered category.
func IsCategoryID(id string) bool {
	_, err := CategoryByID(id)
	return err == nil
}

// DailyTally is the per-day counter record. Counts hold one non-negative
// integer per category id; a missing id counts as zero. Counts only ever
// increase within a day: the only exposed mutation is a single increment.
type DailyTally struct {
	Day       Day
	Counts    map[string]int64
	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
	Version   int64
}

// EmptyTally returns the all-zero tally used before a day's first increment.
func EmptyTally(day Day) DailyTally {
	return DailyTally{Day: day, Counts: map[string]int64{}}
}

// Count returns the count for a category id, zero when absent.
func (t DailyTally) Count(categoryID string) int64 {
	return t.Counts[categoryID]
}

// Total sums every category count of the day.
func (t DailyTally) Total() int64 {
	var total int64
	for _, c := range categories {
		total += t.Counts[c.ID]
	}
	return total
}

// Clone returns a deep copy so snapshots handed to subscribers stay
// consistent even if the caller keeps mutating its map.
func (t DailyTally) Clone() DailyTally {
	out := t
	out.Counts = make(map[string]int64, len(t.Counts))
	for k, v := range t.Counts {
		out.Counts[k] = v
	}
	return out
}
