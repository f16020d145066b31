// Package merge combines melted sheets into one unified time-series table.
//
// Each input is a (fingerprint, period, <label>) table. Inputs are summed per
// (fingerprint, period) first, joined on that key, and the joined result is
// grouped again by (checksum, date) so the output has exactly one row per key
// with one summed column per input label.
package merge

import (
	"errors"
	"fmt"

	"sheetetl/internal/frame"
	"sheetetl/internal/transformer"
)

// Output key columns.
const (
	ChecksumColumn = "checksum"
	DateColumn     = "date"
)

// ErrJoinEmpty is the warning raised when every input has rows but the join
// produced none, which usually means the sheets do not line up.
var ErrJoinEmpty = errors.New("join produced no rows")

// Input is one melted sheet.
type Input struct {
	// Label names the value column, and the output column it becomes.
	Label string
	Table *frame.Table
}

// Options tune Merge.
type Options struct {
	// Join is frame.JoinInner (default: a key must appear in every input) or
	// frame.JoinOuter (missing inputs contribute nil).
	Join frame.JoinKind
}

// Result is the unified table plus warnings.
type Result struct {
	Table *frame.Table
	// Unmatched[i] counts distinct keys of input i absent from Table; only
	// inner joins drop keys.
	Unmatched []int
	Warnings  []error
}

// Merge joins and aggregates inputs.
//
// Errors:
//   - no inputs
//   - an empty or repeated label, or a label equal to a key column
//   - an input missing fingerprint, period or its label column
func Merge(inputs []Input, opts Options) (*Result, error) {
	if err := validate(inputs); err != nil {
		return nil, err
	}
	keys := []string{transformer.FingerprintColumn, transformer.PeriodColumn}

	aggs := make([]*frame.Table, len(inputs))
	labels := make([]string, len(inputs))
	allNonEmpty := true
	for i, in := range inputs {
		narrow, err := in.Table.Select(transformer.FingerprintColumn, transformer.PeriodColumn, in.Label)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Label, err)
		}
		agg, err := narrow.GroupBySum(keys, []string{in.Label})
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", in.Label, err)
		}
		aggs[i] = agg
		labels[i] = in.Label
		if agg.Len() == 0 {
			allNonEmpty = false
		}
	}

	joined := aggs[0]
	for i := 1; i < len(aggs); i++ {
		var err error
		joined, err = joined.Join(aggs[i], keys, opts.Join)
		if err != nil {
			return nil, fmt.Errorf("join %q: %w", labels[i], err)
		}
	}

	renamed, err := joined.Rename(transformer.FingerprintColumn, ChecksumColumn)
	if err != nil {
		return nil, err
	}
	if renamed, err = renamed.Rename(transformer.PeriodColumn, DateColumn); err != nil {
		return nil, err
	}
	out, err := renamed.GroupBySum([]string{ChecksumColumn, DateColumn}, labels)
	if err != nil {
		return nil, fmt.Errorf("final aggregate: %w", err)
	}

	res := &Result{Table: out, Unmatched: unmatched(aggs, out)}
	if allNonEmpty && out.Len() == 0 {
		res.Warnings = append(res.Warnings, ErrJoinEmpty)
	}
	return res, nil
}

func validate(inputs []Input) error {
	if len(inputs) == 0 {
		return errors.New("merge: no inputs")
	}
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		switch in.Label {
		case "":
			return fmt.Errorf("merge: input %d has an empty label", i)
		case transformer.FingerprintColumn, transformer.PeriodColumn, ChecksumColumn, DateColumn:
			return fmt.Errorf("merge: input label %q collides with a key column", in.Label)
		}
		if seen[in.Label] {
			return fmt.Errorf("merge: duplicate input label %q", in.Label)
		}
		seen[in.Label] = true
		if in.Table == nil {
			return fmt.Errorf("merge: input %q has no table", in.Label)
		}
		for _, c := range []string{transformer.FingerprintColumn, transformer.PeriodColumn, in.Label} {
			if !in.Table.Has(c) {
				return fmt.Errorf("merge: input %q: %w %q", in.Label, frame.ErrUnknownColumn, c)
			}
		}
	}
	return nil
}

func unmatched(aggs []*frame.Table, out *frame.Table) []int {
	kept := make(map[[2]any]bool, out.Len())
	for i := 0; i < out.Len(); i++ {
		r := out.Row(i)
		kept[[2]any{r.Get(ChecksumColumn), r.Get(DateColumn)}] = true
	}
	res := make([]int, len(aggs))
	for j, a := range aggs {
		for i := 0; i < a.Len(); i++ {
			r := a.Row(i)
			if !kept[[2]any{r.Get(transformer.FingerprintColumn), r.Get(transformer.PeriodColumn)}] {
				res[j]++
			}
		}
	}
	return res
}
