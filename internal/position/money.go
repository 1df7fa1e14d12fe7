package position

import (
	"strings"

	"github.com/shopspring/decimal"
)

// round converts d to a float64 rounded half away from zero to 2 decimals.
func round(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Round2 rounds v half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return round(decimal.NewFromFloat(v))
}

// FormatCurrency renders an amount in euros using German conventions,
// e.g. "1.234,56 €".
func FormatCurrency(amount float64) string {
	return formatGerman(decimal.NewFromFloat(amount)) + " €"
}

// FormatPercent renders a percentage value (12.3 means 12.3%) using German
// conventions, e.g. "12,30 %".
func FormatPercent(value float64) string {
	return formatGerman(decimal.NewFromFloat(value)) + " %"
}

func formatGerman(d decimal.Decimal) string {
	d = d.Round(2)
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var sb strings.Builder
	if d.IsNegative() {
		sb.WriteString("-")
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(c)
	}
	sb.WriteByte(',')
	sb.WriteString(frac)
	return sb.String()
}
