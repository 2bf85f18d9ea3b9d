// Package documents holds the quote and invoice aggregates, their lifecycle
// state machine, and the quote-to-invoice conversion engine.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/money"
)

// DocType distinguishes the two numbered document families.
type DocType string

const (
	DocTypeQuote   DocType = "QUOTE"
	DocTypeInvoice DocType = "INVOICE"
)

// QuoteStatus enumerates quote lifecycle states.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusSent     QuoteStatus = "SENT"
	QuoteStatusAccepted QuoteStatus = "ACCEPTED"
	QuoteStatusRefused  QuoteStatus = "REFUSED"
	QuoteStatusExpired  QuoteStatus = "EXPIRED"
)

// InvoiceStatus enumerates invoice lifecycle states. OVERDUE is derived on
// read and never stored.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Line is one priced row of a quote or invoice. Lines belong to exactly one
// document and are never shared.
type Line struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	Designation      string          `json:"designation"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPriceExclTax decimal.Decimal `json:"unit_price_excl_tax"`
	TaxRatePercent   decimal.Decimal `json:"tax_rate_percent"`
	ExclTax          decimal.Decimal `json:"excl_tax"`
	Tax              decimal.Decimal `json:"tax"`
	InclTax          decimal.Decimal `json:"incl_tax"`
	LineOrder        int             `json:"line_order"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Amounts returns the computed amounts of the line.
func (l Line) Amounts() money.LineAmounts {
	return money.LineAmounts{ExclTax: l.ExclTax, Tax: l.Tax, InclTax: l.InclTax}
}

// Quote is the pre-sale document (devis).
type Quote struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	ClientID    int64           `json:"client_id"`
	Number      *string         `json:"number,omitempty"`
	Status      QuoteStatus     `json:"status"`
	IssueDate   time.Time       `json:"issue_date"`
	ValidUntil  time.Time       `json:"valid_until"`
	Notes       *string         `json:"notes,omitempty"`
	TotalHT     decimal.Decimal `json:"total_ht"`
	TotalTVA    decimal.Decimal `json:"total_tva"`
	TotalTTC    decimal.Decimal `json:"total_ttc"`
	ConvertedTo *int64          `json:"converted_to,omitempty"`
	ConvertedAt *time.Time      `json:"converted_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []Line          `json:"lines,omitempty"`
}

// Converted reports whether the quote already produced an invoice.
func (q *Quote) Converted() bool {
	return q.ConvertedTo != nil
}

// Invoice is the billing document (facture). QuoteID is a weak provenance
// reference; the invoice lifecycle is independent after creation.
type Invoice struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"tenant_id"`
	ClientID   int64           `json:"client_id"`
	Number     *string         `json:"number,omitempty"`
	Status     InvoiceStatus   `json:"status"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    time.Time       `json:"due_date"`
	Notes      *string         `json:"notes,omitempty"`
	TotalHT    decimal.Decimal `json:"total_ht"`
	TotalTVA   decimal.Decimal `json:"total_tva"`
	TotalTTC   decimal.Decimal `json:"total_ttc"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	QuoteID    *int64          `json:"quote_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Lines      []Line          `json:"lines,omitempty"`
}

// EffectiveStatus derives OVERDUE from the stored status at read time: a
// SENT invoice past its due date and not fully paid reads as OVERDUE.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusSent && now.After(i.DueDate) && i.AmountPaid.LessThan(i.TotalTTC) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// Payment records money received against an invoice.
type Payment struct {
	ID        int64           `json:"id"`
	TenantID  int64           `json:"tenant_id"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"` // bank | cash
	PaidAt    time.Time       `json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// Settings holds the per-tenant document policy. Zero value is never used;
// DefaultSettings applies when a tenant has no stored row.
type Settings struct {
	TenantID             int64
	AllowedTaxRates      []decimal.Decimal
	QuoteEditStatuses    []QuoteStatus
	InvoiceEditStatuses  []InvoiceStatus
	QuoteValidityDays    int
	InvoicePaymentDays   int
}

// DefaultSettings are the French service-trade defaults: standard VAT rate
// set, quotes editable while draft or sent, invoices only while draft.
func DefaultSettings(tenantID int64) Settings {
	return Settings{
		TenantID: tenantID,
		AllowedTaxRates: []decimal.Decimal{
			decimal.Zero,
			decimal.RequireFromString("5.5"),
			decimal.RequireFromString("10"),
			decimal.RequireFromString("20"),
		},
		QuoteEditStatuses:   []QuoteStatus{QuoteStatusDraft, QuoteStatusSent},
		InvoiceEditStatuses: []InvoiceStatus{InvoiceStatusDraft},
		QuoteValidityDays:   30,
		InvoicePaymentDays:  30,
	}
}

// TaxRateAllowed checks membership in the tenant's configured rate set.
func (s Settings) TaxRateAllowed(rate decimal.Decimal) bool {
	for _, allowed := range s.AllowedTaxRates {
		if allowed.Equal(rate) {
			return true
		}
	}
	return false
}

func (s Settings) quoteEditable(status QuoteStatus) bool {
	for _, st := range s.QuoteEditStatuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s Settings) invoiceEditable(status InvoiceStatus) bool {
	for _, st := range s.InvoiceEditStatuses {
		if st == status {
			return true
		}
	}
	return false
}
