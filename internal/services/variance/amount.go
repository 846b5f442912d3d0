package variance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberFormat names the decimal separator of an upload.
type NumberFormat int

const (
	// FormatAuto decides from the shape of the amounts.
	FormatAuto NumberFormat = iota
	// FormatDecimalPoint reads "1,234.56".
	FormatDecimalPoint
	// FormatDecimalComma reads "1.234,56".
	FormatDecimalComma
)

var (
	decimalPointAmount = regexp.MustCompile(`^[+-]?(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)
	decimalCommaAmount = regexp.MustCompile(`^[+-]?(\d{1,3}(\.\d{3})+|\d+)(,\d+)?$`)

	// One separator followed by exactly three digits reads both ways.
	ambiguousAmount = regexp.MustCompile(`^[+-]?\d{1,3}[.,]\d{3}$`)
)

// ParseAmount parses a spreadsheet balance on its own. It accepts currency
// symbols, grouped thousands, accounting negatives "(1,200.00)" and a
// trailing minus. An empty cell is zero. The decimal separator follows the
// shape of the value; "1,234" and "1.234" read with a decimal point.
func ParseAmount(raw string) (decimal.Decimal, error) {
	return ParseAmountFormat(raw, FormatAuto)
}

// ParseAmountFormat parses raw in the given format. Separators that do not
// fit the format are rejected rather than dropped.
func ParseAmountFormat(raw string, format NumberFormat) (decimal.Decimal, error) {
	s, negative, blank := cleanAmount(raw)
	if blank {
		return decimal.Zero, nil
	}

	if format == FormatAuto {
		format = formatOf(s)
	}

	switch format {
	case FormatDecimalComma:
		if !decimalCommaAmount.MatchString(s) {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
		}
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	default:
		if !decimalPointAmount.MatchString(s) {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// cleanAmount strips accounting negatives, currency symbols and spaces.
func cleanAmount(raw string) (s string, negative, blank bool) {
	s = strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return "", false, true
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'', '$', '€', '£', '¥':
			return -1
		}
		return r
	}, s)
	return s, negative, false
}

// formatOf reports the only format s can be read in, or FormatAuto when it
// reads either way.
func formatOf(s string) NumberFormat {
	if ambiguousAmount.MatchString(s) {
		return FormatAuto
	}
	point := decimalPointAmount.MatchString(s)
	comma := decimalCommaAmount.MatchString(s)
	switch {
	case point && !comma:
		return FormatDecimalPoint
	case comma && !point:
		return FormatDecimalComma
	}
	return FormatAuto
}
