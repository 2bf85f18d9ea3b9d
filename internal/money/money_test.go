package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeLineIdentity(t *testing.T) {
	cases := []struct {
		name                string
		qty, price, rate    string
		ht, tva, ttc        string
	}{
		{"standard rate", "2", "100.00", "20", "200.00", "40.00", "240.00"},
		{"reduced rate", "1", "50.00", "10", "50.00", "5.00", "55.00"},
		{"intermediate rate", "3", "19.99", "5.5", "59.97", "3.30", "63.27"},
		{"zero rate", "4", "25.00", "0", "100.00", "0.00", "100.00"},
		{"zero quantity keeps the line", "0", "80.00", "20", "0.00", "0.00", "0.00"},
		{"fractional quantity", "1.5", "33.33", "20", "50.00", "10.00", "60.00"},
		{"half cent rounds up", "1", "10.005", "0", "10.01", "0.00", "10.01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeLine(d(tc.qty), d(tc.price), d(tc.rate))
			require.NoError(t, err)
			require.True(t, got.ExclTax.Equal(d(tc.ht)), "HT: got %s", got.ExclTax)
			require.True(t, got.Tax.Equal(d(tc.tva)), "TVA: got %s", got.Tax)
			require.True(t, got.InclTax.Equal(d(tc.ttc)), "TTC: got %s", got.InclTax)
			// lineInclTax == lineExclTax + lineTax, exactly.
			require.True(t, got.InclTax.Equal(got.ExclTax.Add(got.Tax)))
		})
	}
}

func TestComputeLineRejectsNegatives(t *testing.T) {
	_, err := ComputeLine(d("-1"), d("10"), d("20"))
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = ComputeLine(d("1"), d("-10"), d("20"))
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = ComputeLine(d("1"), d("10"), d("-20"))
	require.ErrorIs(t, err, ErrInvalidLine)
}

// The fixed reference scenario: qty 2 @ 100.00 HT at 20% plus qty 1 @ 50.00 HT
// at 10% must give HT=250.00 and TVA=45.00 under line-then-sum rounding.
func TestSumReferenceScenario(t *testing.T) {
	l1, err := ComputeLine(d("2"), d("100.00"), d("20"))
	require.NoError(t, err)
	l2, err := ComputeLine(d("1"), d("50.00"), d("10"))
	require.NoError(t, err)

	totals := Sum([]LineAmounts{l1, l2})
	require.True(t, totals.ExclTax.Equal(d("250.00")), "HT: got %s", totals.ExclTax)
	require.True(t, totals.Tax.Equal(d("45.00")), "TVA: got %s", totals.Tax)
	require.True(t, totals.InclTax.Equal(d("295.00")), "TTC: got %s", totals.InclTax)
}

// Rounding at line level then summing differs from summing then rounding;
// the former is the fixed policy.
func TestLineThenSumPolicy(t *testing.T) {
	// Per line: HT 1.665 rounds to 1.67, tax 0.334 rounds to 0.33. Three
	// such lines give TVA 0.99 where sum-then-round would give 1.00.
	var lines []LineAmounts
	for i := 0; i < 3; i++ {
		l, err := ComputeLine(d("1"), d("1.665"), d("20"))
		require.NoError(t, err)
		lines = append(lines, l)
	}
	totals := Sum(lines)
	require.True(t, totals.ExclTax.Equal(d("5.01")), "HT: got %s", totals.ExclTax)
	require.True(t, totals.Tax.Equal(d("0.99")), "TVA: got %s", totals.Tax)
}

func TestSumEmpty(t *testing.T) {
	totals := Sum(nil)
	require.True(t, totals.ExclTax.IsZero())
	require.True(t, totals.Tax.IsZero())
	require.True(t, totals.InclTax.IsZero())
}
