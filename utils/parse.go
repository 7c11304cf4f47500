package utils

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// The parsers in this file never fail loudly: malformed input yields the zero
// value and ok=false, so callers decide whether "unparsed" means zero.

// ParseAmount parses a Brazilian-formatted currency string such as
// "R$ 72,53". The comma is read as the decimal separator; a dot used as a
// thousands separator ("1.234,56") is not understood and yields ok=false.
func ParseAmount(text string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(text, "R$", "")
	s = strings.ReplaceAll(s, "r$", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// AmountOrZero is ParseAmount for aggregation paths that treat unparsed as zero.
func AmountOrZero(text string) decimal.Decimal {
	d, _ := ParseAmount(text)
	return d
}

// Single-digit layout elements also accept zero-padded input.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
}

// ParseDate accepts ISO (YYYY-MM-DD) and then DD/MM/YYYY. The result is UTC midnight.
func ParseDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-1-2 15:04:05",
	"2006-1-2T15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
}

// ParseDateTime tries the layouts found in spreadsheets and exported files,
// day-first before month-first. Times without a zone are read as UTC.
func ParseDateTime(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseOptionalFloat reads "12,5" and "12.5" alike.
func ParseOptionalFloat(text string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseOptionalInt truncates decimal input ("4.0" -> 4), matching how
// spreadsheet cells export whole numbers.
func ParseOptionalInt(text string) (int, bool) {
	f, ok := ParseOptionalFloat(text)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ParseRating accepts whole ratings between 1 and 5.
func ParseRating(text string) (int, bool) {
	n, ok := ParseOptionalInt(text)
	if !ok || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

func NullableString(text string) *string {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	return &s
}
