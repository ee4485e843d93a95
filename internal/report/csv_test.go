package report

import (
	"strings"
	"testing"
	"time"

	"refdesk/internal/core"
)

func TestToCSVEmpty(t *testing.T) {
	if got := ToCSV(nil); got != "" {
		t.Fatalf("ToCSV(nil) = %q, want empty", got)
	}
	if got := ToCSV([]Record{}); got != "" {
		t.Fatalf("ToCSV(empty) = %q, want empty", got)
	}
}

func TestToCSVQuotesAllValues(t *testing.T) {
	got := ToCSV([]Record{{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}})
	want := "\"a\",\"b\"\n\"1\",\"2\""
	if got != want {
		t.Fatalf("ToCSV = %q, want %q", got, want)
	}
}

func TestToCSVEscapesDoubleQuotes(t *testing.T) {
	got := ToCSV([]Record{{{Name: "a", Value: `he said "hi"`}}})
	want := "\"a\"\n\"he said \"\"hi\"\"\""
	if got != want {
		t.Fatalf("ToCSV = %q, want %q", got, want)
	}
}

func TestToCSVMultipleRows(t *testing.T) {
	got := ToCSV([]Record{
		{{Name: "Date", Value: "2024-01-01"}, {Name: "Total", Value: "3"}},
		{{Name: "Date", Value: "2024-01-02"}, {Name: "Total", Value: "0"}},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "\"Date\",\"Total\"" {
		t.Fatalf("header = %q", lines[0])
	}
}

func TestWeekRecords(t *testing.T) {
	sum := core.Summarize([]core.DailyTally{
		{Day: "2024-01-01", Counts: map[string]int64{"quick_fact": 1}},
		{Day: "2024-01-02", Counts: map[string]int64{"research": 2, "other": 1}},
	})
	recs := WeekRecords(sum)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 2 days + totals", len(recs))
	}

	first := recs[0]
	if first[0].Name != "Date" || first[0].Value != "2024-01-01" {
		t.Fatalf("first record date field = %+v", first[0])
	}
	// 1 date column + 5 categories + 1 total column
	if len(first) != 7 {
		t.Fatalf("record has %d fields, want 7", len(first))
	}
	if last := first[len(first)-1]; last.Name != "Total" || last.Value != "1" {
		t.Fatalf("first record total = %+v", last)
	}

	totals := recs[2]
	if totals[0].Value != "TOTAL" {
		t.Fatalf("trailing record starts with %q, want TOTAL", totals[0].Value)
	}
	if grand := totals[len(totals)-1]; grand.Value != "4" {
		t.Fatalf("grand total = %q, want 4", grand.Value)
	}
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 1, 1, 15, 4, 5, 0, time.UTC)
	if got := Filename(at); got != "ref_question_log_2024-01-01.csv" {
		t.Fatalf("Filename = %q", got)
	}
}
