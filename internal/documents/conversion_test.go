package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertAcceptedQuote(t *testing.T) {
	ctx, _, svc := newTestService(t)
	scope := newTestScope(t, 1)

	q, err := svc.CreateQuote(ctx, scope, CreateQuoteInput{ClientID: 10, Lines: referenceLines()})
	require.NoError(t, err)
	_, err = svc.SendQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	q, err = svc.AcceptQuote(ctx, scope, q.ID)
	require.NoError(t, err)

	inv, err := svc.ConvertQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, inv.Status)
	require.Nil(t, inv.Number)
	require.NotNil(t, inv.QuoteID)
	require.Equal(t, q.ID, *inv.QuoteID)
	require.True(t, inv.TotalHT.Equal(q.TotalHT))
	require.True(t, inv.TotalTVA.Equal(q.TotalTVA))
	require.True(t, inv.TotalTTC.Equal(q.TotalTTC))

	// Lines are value-equal to the quote's at the moment of conversion.
	require.Len(t, inv.Lines, len(q.Lines))
	for i, line := range inv.Lines {
		src := q.Lines[i]
		require.Equal(t, src.Designation, line.Designation)
		require.True(t, line.Quantity.Equal(src.Quantity))
		require.True(t, line.UnitPriceExclTax.Equal(src.UnitPriceExclTax))
		require.True(t, line.TaxRatePercent.Equal(src.TaxRatePercent))
		require.True(t, line.InclTax.Equal(src.InclTax))
		require.NotEqual(t, src.ID, line.ID, "lines must be copies, not shared rows")
	}

	q, err = svc.GetQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	require.True(t, q.Converted())
	require.Equal(t, inv.ID, *q.ConvertedTo)
}

func TestConvertSentQuoteIsAllowed(t *testing.T) {
	ctx, _, svc := newTestService(t)
	scope := newTestScope(t, 1)

	q, err := svc.CreateQuote(ctx, scope, CreateQuoteInput{ClientID: 10, Lines: referenceLines()})
	require.NoError(t, err)
	_, err = svc.SendQuote(ctx, scope, q.ID)
	require.NoError(t, err)

	_, err = svc.ConvertQuote(ctx, scope, q.ID)
	require.NoError(t, err)
}

func TestConvertRejectsWrongStatus(t *testing.T) {
	ctx, _, svc := newTestService(t)
	scope := newTestScope(t, 1)

	q, err := svc.CreateQuote(ctx, scope, CreateQuoteInput{ClientID: 10, Lines: referenceLines()})
	require.NoError(t, err)

	_, err = svc.ConvertQuote(ctx, scope, q.ID)
	require.ErrorIs(t, err, ErrNotConvertible)

	_, err = svc.SendQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	_, err = svc.RefuseQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	_, err = svc.ConvertQuote(ctx, scope, q.ID)
	require.ErrorIs(t, err, ErrNotConvertible)
}

func TestConvertTwiceFails(t *testing.T) {
	ctx, _, svc := newTestService(t)
	scope := newTestScope(t, 1)

	q, err := svc.CreateQuote(ctx, scope, CreateQuoteInput{ClientID: 10, Lines: referenceLines()})
	require.NoError(t, err)
	_, err = svc.SendQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	_, err = svc.AcceptQuote(ctx, scope, q.ID)
	require.NoError(t, err)

	_, err = svc.ConvertQuote(ctx, scope, q.ID)
	require.NoError(t, err)
	_, err = svc.ConvertQuote(ctx, scope, q.ID)
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestQuoteEditsAfterConversionDoNotTouchInvoice(t *testing.T) {
	ctx, _, svc := newTestService(t)
	scope := newTestScope(t, 1)

	q, err := svc.CreateQuote(ctx, scope, CreateQuoteInput{ClientID: 10, Lines: referenceLines()})
	require.NoError(t, err)
	_, err = svc.SendQuote(ctx, scope, q.ID)
	require.NoError(t, err)

	inv, err := svc.ConvertQuote(ctx, scope, q.ID)
	require.NoError(t, err)

	// The quote is still SENT and therefore editable under default policy.
	_, err = svc.AddQuoteLine(ctx, scope, q.ID, referenceLines()[0])
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, scope, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	require.True(t, got.TotalHT.Equal(d("250.00")))
}
