package core

import "sort"

// WeekSummary is the derived rolling report: the most recent tallies in
// chronological ascending order plus per-category and grand totals. It is
// recomputed on demand and never persisted.
type WeekSummary struct {
	Days        []DailyTally
	PerCategory map[string]int64
	GrandTotal  int64
}

// Summarize builds a WeekSummary from daily tallies. Input order does not
// matter; days are sorted ascending by their day key. Missing category
// fields count as zero, so the grand total always equals the sum of the
// per-category totals.
func Summarize(days []DailyTally) WeekSummary {
	sorted := make([]DailyTally, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	sum := WeekSummary{
		Days:        sorted,
		PerCategory: make(map[string]int64, len(categories)),
	}
	for _, c := range categories {
		for _, d := range sorted {
			sum.PerCategory[c.ID] += d.Counts[c.ID]
		}
		sum.GrandTotal += sum.PerCategory[c.ID]
	}
	return sum
}
