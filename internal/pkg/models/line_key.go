package models

import "github.com/shopspring/decimal"

// LinePrecision is the number of decimals line keys are normalized to.
const LinePrecision = 2

// LineKey normalizes a line to a fixed-precision string so 2.5, 2.50 and
// 2.4999999 all land on the same map key.
func LineKey(line float64) string {
	return decimal.NewFromFloat(line).Round(LinePrecision).StringFixed(LinePrecision)
}

// FormatLine renders a line without trailing zeros: 2.5, 3, 10.25.
func FormatLine(line float64) string {
	return decimal.NewFromFloat(line).Round(LinePrecision).String()
}
