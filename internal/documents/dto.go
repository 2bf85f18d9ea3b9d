package documents

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest is the wire shape of a line. Amounts arrive as JSON strings
// so no precision is lost in transit.
type LineRequest struct {
	Designation      string `json:"designation" validate:"required,max=500"`
	Quantity         string `json:"quantity" validate:"required"`
	UnitPriceExclTax string `json:"unit_price_excl_tax" validate:"required"`
	TaxRatePercent   string `json:"tax_rate_percent" validate:"required"`
	LineOrder        int    `json:"line_order" validate:"gte=0"`
}

func (r LineRequest) toInput() (LineInput, error) {
	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return LineInput{}, err
	}
	price, err := decimal.NewFromString(r.UnitPriceExclTax)
	if err != nil {
		return LineInput{}, err
	}
	rate, err := decimal.NewFromString(r.TaxRatePercent)
	if err != nil {
		return LineInput{}, err
	}
	return LineInput{
		Designation:      r.Designation,
		Quantity:         qty,
		UnitPriceExclTax: price,
		TaxRatePercent:   rate,
		LineOrder:        r.LineOrder,
	}, nil
}

type CreateQuoteRequest struct {
	ClientID   int64         `json:"client_id" validate:"required,gt=0"`
	IssueDate  *time.Time    `json:"issue_date,omitempty"`
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	Lines      []LineRequest `json:"lines" validate:"dive"`
}

type CreateInvoiceRequest struct {
	ClientID  int64         `json:"client_id" validate:"required,gt=0"`
	IssueDate *time.Time    `json:"issue_date,omitempty"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
	Lines     []LineRequest `json:"lines" validate:"dive"`
}

type PaymentRequest struct {
	Amount string     `json:"amount" validate:"required"`
	Method string     `json:"method" validate:"required,oneof=bank cash"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
}

type totalsResponse struct {
	TotalHT  decimal.Decimal `json:"total_ht"`
	TotalTVA decimal.Decimal `json:"total_tva"`
	TotalTTC decimal.Decimal `json:"total_ttc"`
}

type quoteListResponse struct {
	Quotes []Quote `json:"quotes"`
	Total  int     `json:"total"`
}

type invoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
	Total    int       `json:"total"`
}
