// Package report renders a unified table for humans and downstream tools:
// per-column summaries, an aligned text preview and a CSV export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/montanaflynn/stats"

	"sheetetl/internal/frame"
)

// ColumnSummary describes the numeric content of one value column.
type ColumnSummary struct {
	Column string
	Count  int
	Nulls  int
	// The fields below are zero when Count is 0.
	Sum    float64
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// Summarize computes a ColumnSummary for each named column. With no names
// it summarizes every float column.
//
// Errors:
//   - a named column is not in the table.
func Summarize(t *frame.Table, columns ...string) ([]ColumnSummary, error) {
	if len(columns) == 0 {
		for _, f := range t.Schema() {
			if f.Type == frame.TypeFloat64 {
				columns = append(columns, f.Name)
			}
		}
	}
	out := make([]ColumnSummary, 0, len(columns))
	for _, name := range columns {
		cells, err := t.Column(name)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		s := ColumnSummary{Column: name}
		data := make(stats.Float64Data, 0, len(cells))
		for _, c := range cells {
			f, ok := frame.ToFloat(c)
			if !ok {
				s.Nulls++
				continue
			}
			data = append(data, f)
		}
		s.Count = len(data)
		if s.Count > 0 {
			// stats only fails on empty input.
			s.Sum, _ = data.Sum()
			s.Mean, _ = data.Mean()
			s.Median, _ = data.Median()
			s.Min, _ = data.Min()
			s.Max, _ = data.Max()
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteSummary prints summaries as an aligned table.
func WriteSummary(w io.Writer, sums []ColumnSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tCOUNT\tNULLS\tSUM\tMEAN\tMEDIAN\tMIN\tMAX")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n", s.Column, s.Count, s.Nulls,
			frame.FormatValue(s.Sum), frame.FormatValue(s.Mean), frame.FormatValue(s.Median),
			frame.FormatValue(s.Min), frame.FormatValue(s.Max))
	}
	return tw.Flush()
}

// WriteText prints up to limit rows as an aligned table; limit <= 0 prints
// every row. Nil cells print as "-".
func WriteText(w io.Writer, t *frame.Table, limit int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns(), "\t"))
	n := t.Len()
	if limit > 0 {
		n = min(n, limit)
	}
	cells := make([]string, len(t.Columns()))
	for i := 0; i < n; i++ {
		r := t.Row(i)
		for j := range cells {
			if v := r.At(j); v == nil {
				cells[j] = "-"
			} else {
				cells[j] = frame.FormatValue(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if n < t.Len() {
		fmt.Fprintf(tw, "... %d more rows\n", t.Len()-n)
	}
	return tw.Flush()
}

// WriteCSV writes the header and every row. Nil cells are empty fields.
func WriteCSV(w io.Writer, t *frame.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		for j := range rec {
			rec[j] = frame.FormatValue(r.At(j))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
