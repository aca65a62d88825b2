// Package parser holds the field-level parsing helpers shared by the XML
// dialect adapters and the OCR normalizer: amounts and dates arrive in a
// mix of German and ISO notation and have to be disambiguated in one place.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// germanGrouped matches amounts using dots purely as thousands separators,
// e.g. "1.234" or "12.345.678". A trailing group must have exactly three
// digits; anything else is read as a decimal point.
var germanGrouped = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// ParseAmount parses a monetary amount in German ("1.234,56") or plain
// decimal ("1234.56") notation. Negative amounts are accepted for credit
// notes. The bare "1.234" case is grouped German notation and reads as 1234.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimPrefix(s, "€")

	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	if strings.Contains(s, ",") {
		// German notation: dots are thousands separators, comma is the
		// decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
		if strings.Contains(s, ",") {
			return decimal.Zero, fmt.Errorf("malformed amount: %q", s)
		}
	} else if germanGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse amount %q: %w", s, err)
	}
	return d, nil
}

var dateFormats = []string{
	"02.01.2006",
	"2006-01-02",
	"20060102",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses German (DD.MM.YYYY) and ISO (YYYY-MM-DD, YYYYMMDD)
// dates. Impossible calendar dates such as 31.02.2024 are rejected by
// time.Parse itself.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date: %s", s)
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
