// Package money computes tax-correct amounts for document lines using
// fixed-point decimals. Each line is rounded to 2 places half-up, then line
// totals are summed without re-rounding, so document totals reproduce
// deterministically.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidLine indicates a negative quantity, price, or tax rate.
var ErrInvalidLine = errors.New("invalid line")

// Places is the rounding precision for fiscal amounts.
const Places = 2

// LineAmounts holds the three computed amounts of a line.
type LineAmounts struct {
	ExclTax decimal.Decimal // HT
	Tax     decimal.Decimal // TVA
	InclTax decimal.Decimal // TTC
}

// Totals aggregates already-rounded line amounts.
type Totals struct {
	ExclTax decimal.Decimal
	Tax     decimal.Decimal
	InclTax decimal.Decimal
}

// ComputeLine derives HT/TVA/TTC for a single line. Inputs must be
// non-negative; a zero quantity yields zero amounts but is legal.
func ComputeLine(quantity, unitPriceExclTax, taxRatePercent decimal.Decimal) (LineAmounts, error) {
	switch {
	case quantity.IsNegative():
		return LineAmounts{}, fmt.Errorf("%w: quantity %s is negative", ErrInvalidLine, quantity)
	case unitPriceExclTax.IsNegative():
		return LineAmounts{}, fmt.Errorf("%w: unit price %s is negative", ErrInvalidLine, unitPriceExclTax)
	case taxRatePercent.IsNegative():
		return LineAmounts{}, fmt.Errorf("%w: tax rate %s is negative", ErrInvalidLine, taxRatePercent)
	}

	// Round is half away from zero, which equals half-up for the
	// non-negative amounts allowed here.
	exclTax := quantity.Mul(unitPriceExclTax).Round(Places)
	tax := exclTax.Mul(taxRatePercent).Div(decimal.NewFromInt(100)).Round(Places)
	inclTax := exclTax.Add(tax)

	return LineAmounts{ExclTax: exclTax, Tax: tax, InclTax: inclTax}, nil
}

// Sum adds rounded line amounts into document totals. Sums are not
// re-rounded; adding 2-place decimals cannot introduce more places.
func Sum(lines []LineAmounts) Totals {
	totals := Totals{
		ExclTax: decimal.Zero,
		Tax:     decimal.Zero,
		InclTax: decimal.Zero,
	}
	for _, l := range lines {
		totals.ExclTax = totals.ExclTax.Add(l.ExclTax)
		totals.Tax = totals.Tax.Add(l.Tax)
		totals.InclTax = totals.InclTax.Add(l.InclTax)
	}
	return totals
}
