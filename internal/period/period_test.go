package period

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		serial float64
		want   string
	}{
		{1, "01_1900"},
		{31, "01_1900"},
		{32, "02_1900"},
		{59, "02_1900"},
		{60, "02_1900"},
		{61, "03_1900"},
		{43831, "01_2020"},
		{43861.75, "01_2020"},
		{43862, "02_2020"},
	}
	for _, tt := range tests {
		got, err := Decode(tt.serial)
		if err != nil {
			t.Fatalf("Decode(%v): %v", tt.serial, err)
		}
		if got != tt.want {
			t.Fatalf("Decode(%v)=%q, want %q", tt.serial, got, tt.want)
		}
	}
}

func TestToTime_NoPhantomLeapDay(t *testing.T) {
	t.Parallel()

	got, err := ToTime(60)
	if err != nil {
		t.Fatalf("ToTime(60): %v", err)
	}
	if got.Month() == time.February && got.Day() == 29 {
		t.Fatalf("ToTime(60)=%v, 1900-02-29 does not exist", got)
	}
	next, _ := ToTime(61)
	if want := time.Date(1900, time.March, 1, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("ToTime(61)=%v, want %v", next, want)
	}
}

// TestToTime_AgreesWithExcelize checks the arithmetic against the workbook
// library for modern dates, where both conventions coincide.
func TestToTime_AgreesWithExcelize(t *testing.T) {
	t.Parallel()

	for _, serial := range []float64{365, 36526, 43831, 45658} {
		got, err := ToTime(serial)
		if err != nil {
			t.Fatalf("ToTime(%v): %v", serial, err)
		}
		ref, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			t.Fatalf("ExcelDateToTime(%v): %v", serial, err)
		}
		if got.Format("2006-01-02") != ref.Format("2006-01-02") {
			t.Fatalf("serial %v: got %s, excelize %s", serial, got.Format("2006-01-02"), ref.Format("2006-01-02"))
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	for _, s := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1, 1e12} {
		if _, err := Decode(s); !errors.Is(err, ErrInvalidSerial) {
			t.Fatalf("Decode(%v) err=%v, want ErrInvalidSerial", s, err)
		}
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"43831":      "01_2020",
		" 43862 ":    "02_2020",
		"43861.75":   "01_2020",
		"Jan":        "Jan",
		"-5":         "-5",
		"":           "",
		"1":          "1",
		"2":          "2",
		"52":         "52",
		"2024":       "2024",
		"9999":       "9999",
		"4.3831e4":   "4.3831e4",
		"43_831":     "43_831",
		"43831.":     "43831.",
		"3000000":    "3000000",
		"0x10000":    "0x10000",
		"Week 43831": "Week 43831",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Fatalf("Label(%q)=%q, want %q", in, got, want)
		}
	}
}
