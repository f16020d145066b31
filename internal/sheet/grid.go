package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"sheetetl/internal/frame"
	"sheetetl/internal/schema"
)

// Address is a parsed sheet selector.
type Address struct {
	Sheet string
	// Col and Row locate the header's first cell, 1-based. Zero means 1.
	Col int
	Row int
}

func (a Address) String() string {
	if a.Col <= 1 && a.Row <= 1 {
		return a.Sheet
	}
	cell, err := excelize.CoordinatesToCellName(max(a.Col, 1), max(a.Row, 1))
	if err != nil {
		return a.Sheet
	}
	return "'" + strings.ReplaceAll(a.Sheet, "'", "''") + "'!" + cell
}

// ParseAddress parses a sheet selector.
//
// Accepted forms:
//
//	Sheet1
//	Sheet1!B3
//	'My Sheet'!B3
//	'It''s here'!A2
//
// A selector whose text after the last '!' is not a cell reference is taken
// as a plain sheet name.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty sheet selector")
	}
	if strings.HasPrefix(s, "'") {
		name, rest, err := unquote(s)
		if err != nil {
			return Address{}, err
		}
		if rest == "" {
			return Address{Sheet: name}, nil
		}
		if !strings.HasPrefix(rest, "!") {
			return Address{}, fmt.Errorf("sheet selector %q: unexpected %q after quoted name", s, rest)
		}
		col, row, err := excelize.CellNameToCoordinates(rest[1:])
		if err != nil {
			return Address{}, fmt.Errorf("sheet selector %q: %w", s, err)
		}
		return Address{Sheet: name, Col: col, Row: row}, nil
	}

	if i := strings.LastIndexByte(s, '!'); i > 0 {
		if col, row, err := excelize.CellNameToCoordinates(s[i+1:]); err == nil {
			return Address{Sheet: s[:i], Col: col, Row: row}, nil
		}
	}
	return Address{Sheet: s}, nil
}

func unquote(s string) (name, rest string, err error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		if b.Len() == 0 {
			return "", "", fmt.Errorf("sheet selector %q: empty quoted name", s)
		}
		return b.String(), s[i+1:], nil
	}
	return "", "", fmt.Errorf("sheet selector %q: unterminated quote", s)
}

// Grid is the raw text content of a sheet, first row included.
type Grid [][]string

// Crop drops the rows above and the columns left of the address origin.
func (g Grid) Crop(a Address) Grid {
	r0, c0 := max(a.Row, 1)-1, max(a.Col, 1)-1
	if r0 >= len(g) {
		return nil
	}
	out := make(Grid, 0, len(g)-r0)
	for _, row := range g[r0:] {
		if c0 >= len(row) {
			out = append(out, nil)
			continue
		}
		out = append(out, row[c0:])
	}
	return out
}

// WithoutBlankRows drops rows whose cells are all blank.
func (g Grid) WithoutBlankRows() Grid {
	out := make(Grid, 0, len(g))
	for _, row := range g {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// Build turns a grid into a table for req: the first non-blank row is the
// header, the rest are data rows. The address origin must already be applied.
//
// An empty grid yields a table with no columns.
func Build(req Request, g Grid) (*frame.Table, error) {
	g = g.WithoutBlankRows()
	if len(g) == 0 {
		if len(req.Schema) > 0 {
			return nil, fmt.Errorf("%w: sheet is empty", ErrSchemaMismatch)
		}
		return frame.Empty(nil)
	}
	headers := NormalizeHeaders(g[0])
	sch := req.Schema
	if sch == nil {
		sch = schema.Untyped(headers)
	}
	return schema.Apply(sch, headers, g[1:], req.OnReject)
}

// NormalizeHeaders cleans header cells.
//
// Each header is trimmed, stripped of a byte-order mark and NFC-normalised.
// A blank header becomes "_c<i>" and a repeated header "<name>_<i>", where i
// is the 0-based column position.
func NormalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimPrefix(h, "\uFEFF")
		h = norm.NFC.String(strings.TrimSpace(h))
		if h == "" {
			h = "_c" + strconv.Itoa(i)
		}
		for seen[h] {
			h = h + "_" + strconv.Itoa(i)
		}
		seen[h] = true
		out[i] = h
	}
	return out
}
