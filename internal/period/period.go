// Package period turns spreadsheet day serials into month labels.
package period

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSerial is returned for NaN, infinite, negative or absurdly large serials.
var ErrInvalidSerial = errors.New("invalid date serial")

// maxSerial is 9999-12-31 in the 1900 date system.
const maxSerial = 2958465

var epoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ToTime converts a 1900-system day serial to a UTC date.
//
// The fraction (time of day) is discarded. Serial 60 is the 1900-02-29 that
// never existed; serials above it are shifted back one day, so 60 itself
// lands on 1900-02-28. Serial 0 is 1899-12-31.
func ToTime(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 0 || serial > maxSerial+1 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSerial, serial)
	}
	days := int(math.Trunc(serial))
	if days > 59 {
		days--
	}
	return epoch.AddDate(0, 0, days-1), nil
}

// Decode converts a day serial to its "MM_YYYY" label.
func Decode(serial float64) (string, error) {
	t, err := ToTime(serial)
	if err != nil {
		return "", err
	}
	return t.Format("01_2006"), nil
}

// minHeaderSerial is 1927-05-18, the first five-digit serial. Smaller
// numbers in a header are week numbers, years or codes, not dates.
const minHeaderSerial = 10000

// Label maps a period column header to its label. Plain decimal headers
// from minHeaderSerial up are decoded as day serials; anything else is
// returned unchanged, so "1", "2" and "2024" stay distinct periods.
func Label(header string) string {
	s := strings.TrimSpace(header)
	if !isSerialText(s) {
		return header
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < minHeaderSerial {
		return header
	}
	l, err := Decode(f)
	if err != nil {
		return header
	}
	return l
}

// isSerialText reports whether s is digits with an optional fraction.
// Exponents, signs, hex and underscores are rejected.
func isSerialText(s string) bool {
	intPart, frac, hasDot := strings.Cut(s, ".")
	if intPart == "" || (hasDot && frac == "") {
		return false
	}
	for _, part := range []string{intPart, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
