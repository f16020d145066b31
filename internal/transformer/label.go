package transformer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLabelLen = 63

// ValueLabel derives a value column name from a sheet name.
//
// Diacritics are stripped, letters lowercased, runs of separators and other
// symbols folded into a single '_', and the result cut to 63 bytes:
// "A" → "a", "Sales 2024" → "sales_2024", "Tržby/Q1" → "trzby_q1".
// A name with nothing usable left becomes "value".
func ValueLabel(sheet string) string {
	s := foldDiacritics(strings.TrimSpace(sheet))
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := truncateLabel(strings.Trim(b.String(), "_"))
	if out == "" {
		return "value"
	}
	return out
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func truncateLabel(s string) string {
	if len(s) <= maxLabelLen {
		return s
	}
	cut := maxLabelLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], "_")
}

// reservedLabels are key column names of melted and merged tables.
var reservedLabels = map[string]bool{
	FingerprintColumn: true,
	PeriodColumn:      true,
	"checksum":        true,
	"date":            true,
}

// UniqueLabels maps sheet names to distinct value labels, in order.
// Later sheets whose label is taken get a numeric suffix ("a", "a_2"), as
// do labels equal to a key column name.
func UniqueLabels(sheets []string) []string {
	out := make([]string, len(sheets))
	used := make(map[string]bool, len(sheets))
	for i, s := range sheets {
		base := ValueLabel(s)
		l := base
		for n := 2; used[l] || reservedLabels[l]; n++ {
			suffix := "_" + strconv.Itoa(n)
			l = base
			if len(l)+len(suffix) > maxLabelLen {
				l = l[:maxLabelLen-len(suffix)]
			}
			l += suffix
		}
		used[l] = true
		out[i] = l
	}
	return out
}
