// Package schema derives typed table schemas for sheet headers and coerces
// raw cell text into those types.
//
// Inference never looks at cell contents: a header's type comes from the
// field catalog alone, so the same headers always yield the same schema.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
)

// ErrSchemaMismatch is returned by Apply when headers and schema disagree.
var ErrSchemaMismatch = errors.New("schema mismatch")

// TypeOf maps a catalog kind to a column type.
func TypeOf(k catalog.Kind) frame.Type {
	switch k {
	case catalog.KindFloat:
		return frame.TypeFloat64
	case catalog.KindInteger, catalog.KindLong:
		return frame.TypeInt64
	default:
		return frame.TypeString
	}
}

// Infer builds a schema for headers, in header order.
//
// Headers the catalog does not know (typically period columns such as
// "Jan" or a date serial) are strings; the melt step decides what to do with
// them. Every field is nullable.
func Infer(headers []string, cat *catalog.Catalog) frame.Schema {
	out := make(frame.Schema, len(headers))
	for i, h := range headers {
		t := frame.TypeString
		if f, ok := cat.Lookup(h); ok {
			t = TypeOf(f.Kind)
		}
		out[i] = frame.Field{Name: h, Type: t, Nullable: true}
	}
	return out
}

// Untyped is the schema of the header-discovery pass: every column a
// nullable string.
func Untyped(headers []string) frame.Schema {
	out := make(frame.Schema, len(headers))
	for i, h := range headers {
		out[i] = frame.Field{Name: h, Type: frame.TypeString, Nullable: true}
	}
	return out
}

// Coerce converts raw cell text to a value of type t.
//
// Blank text (after trimming) is nil for every type. Integer columns accept
// integral float text such as "3.0" or "1e3", which spreadsheet readers emit
// for numeric cells. String cells keep their text untrimmed.
func Coerce(raw string, t frame.Type) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch t {
	case frame.TypeFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q as float: %w", s, err)
		}
		return f, nil
	case frame.TypeInt64:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || f >= 0x1p63 || f < -0x1p63 {
			return nil, fmt.Errorf("parse %q as integer: not an integral number", s)
		}
		return int64(f), nil
	default:
		return raw, nil
	}
}

// RejectFunc receives cells that failed coercion. row is 0-based over data
// rows (the header is not counted).
type RejectFunc func(row int, column string, err error)

// Apply builds a typed table from raw rows.
//
// headers name the columns of rows; they are matched to sch by name, so
// column order may differ. Short rows are padded with blanks and long rows
// truncated to the header width.
//
// Errors:
//   - ErrSchemaMismatch when a header is not in sch or a schema field is not
//     in headers
//
// A cell that cannot be coerced becomes nil and is reported to onReject
// (which may be nil).
func Apply(sch frame.Schema, headers []string, rows [][]string, onReject RejectFunc) (*frame.Table, error) {
	if len(headers) != len(sch) {
		return nil, fmt.Errorf("%w: %d headers, %d schema fields", ErrSchemaMismatch, len(headers), len(sch))
	}
	// pos[i] is the header index feeding schema field i
	pos := make([]int, len(sch))
	byName := make(map[string]int, len(headers))
	for i, h := range headers {
		byName[h] = i
	}
	for i, f := range sch {
		j, ok := byName[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: column %q not found in sheet headers", ErrSchemaMismatch, f.Name)
		}
		pos[i] = j
	}

	out := make([][]any, len(rows))
	for r, raw := range rows {
		row := make([]any, len(sch))
		for i, f := range sch {
			cell := ""
			if j := pos[i]; j < len(raw) {
				cell = raw[j]
			}
			v, err := Coerce(cell, f.Type)
			if err != nil {
				if onReject != nil {
					onReject(r, f.Name, err)
				}
				v = nil
			}
			if v == nil && !f.Nullable {
				return nil, fmt.Errorf("%w: row %d column %q is empty but not nullable", ErrSchemaMismatch, r, f.Name)
			}
			row[i] = v
		}
		out[r] = row
	}
	return frame.New(sch, out)
}
