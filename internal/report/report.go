package report

import (
	"strconv"
	"time"

	"refdesk/internal/core"
)

// WeekRecords flattens a week summary into export records: one per day in
// chronological order, each with the day, one column per category display
// name and a per-day total, plus a trailing TOTAL record carrying the
// per-category totals and the grand total.
func WeekRecords(sum core.WeekSummary) []Record {
	cats := core.Categories()
	records := make([]Record, 0, len(sum.Days)+1)

	for _, d := range sum.Days {
		rec := make(Record, 0, len(cats)+2)
		rec = append(rec, Field{Name: "Date", Value: d.Day.String()})
		for _, c := range cats {
			rec = append(rec, Field{Name: c.Name, Value: strconv.FormatInt(d.Count(c.ID), 10)})
		}
		rec = append(rec, Field{Name: "Total", Value: strconv.FormatInt(d.Total(), 10)})
		records = append(records, rec)
	}

	totals := make(Record, 0, len(cats)+2)
	totals = append(totals, Field{Name: "Date", Value: "TOTAL"})
	for _, c := range cats {
		totals = append(totals, Field{Name: c.Name, Value: strconv.FormatInt(sum.PerCategory[c.ID], 10)})
	}
	totals = append(totals, Field{Name: "Total", Value: strconv.FormatInt(sum.GrandTotal, 10)})
	return append(records, totals)
}

// Filename is the attachment name for a CSV export generated on the given
// date, e.g. ref_question_log_2024-01-01.csv.
func Filename(now time.Time) string {
	return "ref_question_log_" + now.Format("2006-01-02") + ".csv"
}
