package transformer

import (
	"errors"
	"fmt"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
)

// PeriodColumn is the name of the melted period column.
const PeriodColumn = "period"

// MeltOptions tune Melt.
type MeltOptions struct {
	// PeriodLabel maps a period column name to the label stored in the
	// period column. Nil keeps names as they are.
	PeriodLabel func(string) string
	// FingerprintColumn defaults to FingerprintColumn.
	FingerprintColumn string
}

// Melt reshapes a fingerprinted sheet into (fingerprint, period, label) rows.
//
// Every catalog column is dropped first (shared or not); what remains besides
// the fingerprint are the period columns. Each input row yields one output
// row per period column, in column order, so R rows with P periods give R*P
// rows.
//
// The value column takes the common type of the period columns: one type is
// kept as is, int64 mixed with float64 becomes float64, and anything mixed
// with string becomes string.
func Melt(t *frame.Table, label string, cat *catalog.Catalog, opts MeltOptions) (*frame.Table, error) {
	fp := opts.FingerprintColumn
	if fp == "" {
		fp = FingerprintColumn
	}
	if label == "" {
		return nil, errors.New("melt: empty value label")
	}
	if label == fp || label == PeriodColumn {
		return nil, fmt.Errorf("melt: value label %q collides with a key column", label)
	}
	if !t.Has(fp) {
		return nil, fmt.Errorf("melt: %w %q", frame.ErrUnknownColumn, fp)
	}

	var drop []string
	for _, f := range cat.Fields() {
		if f.Name != fp {
			drop = append(drop, f.Name)
		}
	}
	narrow := t.Drop(drop...)

	var periods []string
	for _, c := range narrow.Columns() {
		if c != fp {
			periods = append(periods, c)
		}
	}

	valueType := commonType(narrow, periods)
	narrow, err := castColumns(narrow, periods, valueType)
	if err != nil {
		return nil, fmt.Errorf("melt: %w", err)
	}

	cols := make([]frame.UnpivotColumn, len(periods))
	for i, p := range periods {
		l := p
		if opts.PeriodLabel != nil {
			l = opts.PeriodLabel(p)
		}
		cols[i] = frame.UnpivotColumn{Source: p, Label: l}
	}
	out, err := narrow.Unpivot([]string{fp}, cols, PeriodColumn, label, valueType)
	if err != nil {
		return nil, fmt.Errorf("melt: %w", err)
	}
	return out, nil
}

// PeriodColumns lists the columns Melt would unpivot.
func PeriodColumns(t *frame.Table, cat *catalog.Catalog, fingerprintColumn string) []string {
	if fingerprintColumn == "" {
		fingerprintColumn = FingerprintColumn
	}
	var out []string
	for _, c := range t.Columns() {
		if c != fingerprintColumn && !cat.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}

func commonType(t *frame.Table, cols []string) frame.Type {
	seen := map[frame.Type]bool{}
	for _, c := range cols {
		f, _ := t.Field(c)
		seen[f.Type] = true
	}
	switch {
	case len(cols) == 0, seen[frame.TypeString]:
		return frame.TypeString
	case seen[frame.TypeFloat64]:
		return frame.TypeFloat64
	default:
		return frame.TypeInt64
	}
}

func castColumns(t *frame.Table, cols []string, to frame.Type) (*frame.Table, error) {
	for _, c := range cols {
		f, _ := t.Field(c)
		if f.Type == to {
			continue
		}
		name := c
		var err error
		t, err = t.WithColumn(frame.Field{Name: name, Type: to, Nullable: true}, func(r frame.Row) (any, error) {
			v := r.Get(name)
			if v == nil {
				return nil, nil
			}
			switch to {
			case frame.TypeString:
				return frame.FormatValue(v), nil
			case frame.TypeFloat64:
				x, _ := frame.ToFloat(v)
				return x, nil
			}
			return nil, fmt.Errorf("cannot cast %s to %s", f.Type, to)
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
