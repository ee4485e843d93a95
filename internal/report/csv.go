package report

import "strings"

// Field is one column/value pair of a record. Column order is significant:
// the header row is taken from the first record's field order.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered row of uniform fields. All records passed to ToCSV
// are expected to share the same field set; a caller that violates that
// gets misaligned columns, not an error.
type Record []Field

// ToCSV renders records as CSV text. Every value (header cells included) is
// wrapped in double quotes with embedded quotes doubled, fields are joined
// by commas and rows by newlines. An empty input yields the empty string.
func ToCSV(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow(&b, records[0], func(f Field) string { return f.Name })
	for _, r := range records {
		b.WriteByte('\n')
		writeRow(&b, r, func(f Field) string { return f.Value })
	}
	return b.String()
}

func writeRow(b *strings.Builder, r Record, cell func(Field) string) {
	for i, f := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(cell(f)))
	}
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
