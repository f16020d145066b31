package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AppendCanonical appends a stable string form of v.
//
// Canonicalization rules:
//   - nil renders as nothing (callers decide how to mark nulls)
//   - string as is
//   - int64 in base 10
//   - float64 in shortest round-trip form, with ".0" added to integral values
//     so 10 renders as "10.0" (the spreadsheet engine's cast-to-string form)
//   - NaN and infinities as "NaN", "Infinity", "-Infinity"
func AppendCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
	case string:
		b.WriteString(t)
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case int:
		b.WriteString(strconv.Itoa(t))
	case float64:
		b.WriteString(formatFloat(t))
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	default:
		fmt.Fprint(b, t)
	}
}

// FormatValue returns the canonical string form of v; nil is "".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	}
	var b strings.Builder
	AppendCanonical(&b, v)
	return b.String()
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// ToFloat converts a cell to float64 for numeric aggregation.
//
// Strings are trimmed and parsed; nil, empty and unparseable values report
// ok=false and are skipped by aggregations.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// keyOf encodes a composite key. The type tag keeps int64(1) and "1" apart;
// nil keys get their own tag so they group together and never collide with "".
func keyOf(row []any, idx []int) string {
	var b strings.Builder
	for _, j := range idx {
		v := row[j]
		switch v.(type) {
		case nil:
			b.WriteByte(0)
		case string:
			b.WriteByte('s')
		case int64:
			b.WriteByte('i')
		case float64:
			b.WriteByte('f')
		default:
			b.WriteByte('?')
		}
		AppendCanonical(&b, v)
		b.WriteByte('\x1f')
	}
	return b.String()
}

func hasNil(row []any, idx []int) bool {
	for _, j := range idx {
		if row[j] == nil {
			return true
		}
	}
	return false
}
