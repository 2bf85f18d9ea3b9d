package documents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/tenant"
)

// ConvertQuote turns an accepted or sent quote into a new draft invoice.
// Lines are value-copied: later edits to the quote do not touch the invoice
// and vice versa. The quote records a one-way converted marker in the same
// transaction, so a second conversion attempt fails with ErrAlreadyConverted
// instead of silently producing a duplicate invoice.
func (s *Service) ConvertQuote(ctx context.Context, scope tenant.Scope, quoteID int64) (*Invoice, error) {
	settings, err := s.repo.GetSettings(ctx, scope)
	if err != nil {
		return nil, err
	}

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetQuoteForUpdate(ctx, scope, quoteID)
		if err != nil {
			return err
		}
		if q.Converted() {
			return fmt.Errorf("%w: invoice %d", ErrAlreadyConverted, *q.ConvertedTo)
		}
		switch q.Status {
		case QuoteStatusAccepted, QuoteStatusSent:
			// convertible
		default:
			return fmt.Errorf("%w: quote is %s", ErrNotConvertible, q.Status)
		}

		issueDate := s.now()
		qid := q.ID
		id, err := repo.CreateInvoice(ctx, scope, Invoice{
			ClientID:   q.ClientID,
			Status:     InvoiceStatusDraft,
			IssueDate:  issueDate,
			DueDate:    issueDate.AddDate(0, 0, settings.InvoicePaymentDays),
			Notes:      q.Notes,
			TotalHT:    q.TotalHT,
			TotalTVA:   q.TotalTVA,
			TotalTTC:   q.TotalTTC,
			AmountPaid: decimal.Zero,
			QuoteID:    &qid,
		})
		if err != nil {
			return fmt.Errorf("create invoice from quote: %w", err)
		}
		invoiceID = id

		for _, line := range q.Lines {
			copied := Line{
				Designation:      line.Designation,
				Quantity:         line.Quantity,
				UnitPriceExclTax: line.UnitPriceExclTax,
				TaxRatePercent:   line.TaxRatePercent,
				ExclTax:          line.ExclTax,
				Tax:              line.Tax,
				InclTax:          line.InclTax,
				LineOrder:        line.LineOrder,
			}
			if _, err := repo.InsertLine(ctx, scope, DocTypeInvoice, invoiceID, copied); err != nil {
				return fmt.Errorf("copy quote line: %w", err)
			}
		}

		return repo.MarkQuoteConverted(ctx, scope, quoteID, invoiceID, issueDate)
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, scope, invoiceID)
}
