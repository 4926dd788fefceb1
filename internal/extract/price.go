package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// NormalizePrice parses a displayed price into a decimal.
//
// Currency symbols, letters, spaces (including non-breaking and thin spaces)
// and apostrophes are dropped. A separator that occurs more than once is a
// grouping separator. When both '.' and ',' occur the last one is the decimal
// marker. A single comma is the decimal marker only when no '.' marker is
// present. Negative amounts, ranges and text without digits fail with
// alert.ErrFieldMissing.
func NormalizePrice(text string) (decimal.Decimal, error) {
	var b strings.Builder
	digits := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−' || r == '–' || r == '—':
			b.WriteByte('-')
		}
	}
	if digits == 0 {
		return decimal.Zero, fmt.Errorf("%w: no digits in price %q", alert.ErrFieldMissing, text)
	}

	// "1299.-" and "руб." leave dangling separators at the edges.
	cleaned := strings.TrimRight(strings.TrimLeft(b.String(), ".,"), "-.,")
	if strings.Contains(cleaned, "-") {
		return decimal.Zero, fmt.Errorf("%w: price %q is not a single non-negative amount", alert.ErrFieldMissing, text)
	}

	canonical, err := resolveSeparators(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q: %v", alert.ErrFieldMissing, text, err)
	}
	price, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q: %v", alert.ErrFieldMissing, text, err)
	}
	return price, nil
}

func resolveSeparators(s string) (string, error) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		decimalSep, groupSep := ".", ","
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			decimalSep, groupSep = ",", "."
		}
		if strings.Count(s, decimalSep) > 1 {
			return "", fmt.Errorf("ambiguous separators")
		}
		s = strings.ReplaceAll(s, groupSep, "")
		return strings.Replace(s, decimalSep, ".", 1), nil
	case dots > 1:
		return strings.ReplaceAll(s, ".", ""), nil
	case commas > 1:
		return strings.ReplaceAll(s, ",", ""), nil
	case commas == 1:
		return strings.Replace(s, ",", ".", 1), nil
	default:
		return s, nil
	}
}
