package tally

import (
	"context"

	"refdesk/internal/core"
)

// Ports for outbound adapters.
type (
	// Incrementer adds one to a category's count for a day, creating the
	// day on first use. The write is atomic with respect to concurrent
	// increments on the same day.
	Incrementer interface {
		Increment(ctx context.Context, day core.Day, categoryID, actor string) (core.DailyTally, error)
	}

	// DayReader returns a day's tally; ok is false when the day has never
	// been written, in which case the all-zero tally is returned.
	DayReader interface {
		GetDay(ctx context.Context, day core.Day) (t core.DailyTally, ok bool, err error)
	}

	// WeekReader returns the n most recently dated tallies in ascending
	// day order. Fewer than n days returns exactly what exists.
	WeekReader interface {
		ListRecentDays(ctx context.Context, n int) ([]core.DailyTally, error)
	}

	// DayMirror copies one day's state to an external log.
	DayMirror interface {
		MirrorDay(ctx context.Context, t core.DailyTally) error
	}

	// Store is the full counter-store surface the board needs.
	Store interface {
		Incrementer
		DayReader
		WeekReader
	}
)
