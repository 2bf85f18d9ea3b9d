package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/money"
	"github.com/facturio/facturio/internal/tenant"
)

// NumberingPort supplies the tenant's configured document-number prefix.
// Implemented by the accounting configuration; the service falls back to
// DEV/FAC when no configuration exists yet.
type NumberingPort interface {
	DocumentPrefix(ctx context.Context, scope tenant.Scope, docType DocType) (string, error)
}

// ClientPort verifies that a client belongs to the calling tenant.
type ClientPort interface {
	Ensure(ctx context.Context, scope tenant.Scope, clientID int64) error
}

// LineInput is the caller-supplied part of a line.
type LineInput struct {
	Designation      string
	Quantity         decimal.Decimal
	UnitPriceExclTax decimal.Decimal
	TaxRatePercent   decimal.Decimal
	LineOrder        int
}

// CreateQuoteInput groups fields for quote creation.
type CreateQuoteInput struct {
	ClientID   int64
	IssueDate  time.Time
	ValidUntil time.Time
	Notes      *string
	Lines      []LineInput
}

// CreateInvoiceInput groups fields for direct invoice creation.
type CreateInvoiceInput struct {
	ClientID  int64
	IssueDate time.Time
	DueDate   time.Time
	Notes     *string
	Lines     []LineInput
}

// PaymentInput records money received against an invoice.
type PaymentInput struct {
	Amount decimal.Decimal
	Method string // bank | cash
	PaidAt time.Time
}

// Service implements the document model and its lifecycle state machine.
type Service struct {
	repo      Repository
	numbering NumberingPort
	clients   ClientPort
	now       func() time.Time
}

// NewService constructs the documents service.
func NewService(repo Repository, numbering NumberingPort, clients ClientPort) *Service {
	return &Service{repo: repo, numbering: numbering, clients: clients, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) buildLine(settings Settings, input LineInput, order int) (Line, error) {
	if strings.TrimSpace(input.Designation) == "" {
		return Line{}, fmt.Errorf("%w: designation required", ErrInvalidLine)
	}
	if !settings.TaxRateAllowed(input.TaxRatePercent) {
		return Line{}, fmt.Errorf("%w: tax rate %s not in tenant's allowed set", ErrInvalidLine, input.TaxRatePercent)
	}
	amounts, err := money.ComputeLine(input.Quantity, input.UnitPriceExclTax, input.TaxRatePercent)
	if err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
	}
	line := Line{
		Designation:      input.Designation,
		Quantity:         input.Quantity,
		UnitPriceExclTax: input.UnitPriceExclTax,
		TaxRatePercent:   input.TaxRatePercent,
		ExclTax:          amounts.ExclTax,
		Tax:              amounts.Tax,
		InclTax:          amounts.InclTax,
		LineOrder:        input.LineOrder,
	}
	if line.LineOrder == 0 {
		line.LineOrder = order
	}
	return line, nil
}

func totalsOf(lines []Line) money.Totals {
	amounts := make([]money.LineAmounts, len(lines))
	for i, l := range lines {
		amounts[i] = l.Amounts()
	}
	return money.Sum(amounts)
}

func (s *Service) formatNumber(ctx context.Context, scope tenant.Scope, repo Repository, docType DocType) (string, error) {
	prefix := "FAC"
	if docType == DocTypeQuote {
		prefix = "DEV"
	}
	if s.numbering != nil {
		configured, err := s.numbering.DocumentPrefix(ctx, scope, docType)
		if err == nil && configured != "" {
			prefix = configured
		}
	}
	seq, err := repo.NextNumber(ctx, scope, docType)
	if err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

// --- Quotes ---

// CreateQuote creates a draft quote with its lines and computed totals.
func (s *Service) CreateQuote(ctx context.Context, scope tenant.Scope, input CreateQuoteInput) (*Quote, error) {
	settings, err := s.repo.GetSettings(ctx, scope)
	if err != nil {
		return nil, err
	}
	if s.clients != nil {
		if err := s.clients.Ensure(ctx, scope, input.ClientID); err != nil {
			return nil, fmt.Errorf("verify client: %w", err)
		}
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	validUntil := input.ValidUntil
	if validUntil.IsZero() {
		validUntil = issueDate.AddDate(0, 0, settings.QuoteValidityDays)
	}
	if validUntil.Before(issueDate) {
		return nil, fmt.Errorf("%w: valid_until before issue date", ErrInvalidLine)
	}

	lines := make([]Line, 0, len(input.Lines))
	for i, li := range input.Lines {
		line, err := s.buildLine(settings, li, i+1)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	totals := totalsOf(lines)

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.CreateQuote(ctx, scope, Quote{
			ClientID:   input.ClientID,
			Status:     QuoteStatusDraft,
			IssueDate:  issueDate,
			ValidUntil: validUntil,
			Notes:      input.Notes,
			TotalHT:    totals.ExclTax,
			TotalTVA:   totals.Tax,
			TotalTTC:   totals.InclTax,
		})
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		quoteID = id
		for _, line := range lines {
			if _, err := repo.InsertLine(ctx, scope, DocTypeQuote, quoteID, line); err != nil {
				return fmt.Errorf("insert quote line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetQuote(ctx, scope, quoteID)
}

// GetQuote loads one quote with lines.
func (s *Service) GetQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return s.repo.GetQuote(ctx, scope, id)
}

// ListQuotes returns a filtered page of quotes plus the total count.
func (s *Service) ListQuotes(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Quote, int, error) {
	return s.repo.ListQuotes(ctx, scope, filter)
}

// AddQuoteLine appends a line and returns the recomputed totals.
func (s *Service) AddQuoteLine(ctx context.Context, scope tenant.Scope, quoteID int64, input LineInput) (money.Totals, error) {
	return s.mutateQuoteLines(ctx, scope, quoteID, func(repo Repository, q *Quote, settings Settings) error {
		line, err := s.buildLine(settings, input, len(q.Lines)+1)
		if err != nil {
			return err
		}
		_, err = repo.InsertLine(ctx, scope, DocTypeQuote, quoteID, line)
		return err
	})
}

// UpdateQuoteLine replaces a line's content and returns the recomputed totals.
func (s *Service) UpdateQuoteLine(ctx context.Context, scope tenant.Scope, quoteID, lineID int64, input LineInput) (money.Totals, error) {
	return s.mutateQuoteLines(ctx, scope, quoteID, func(repo Repository, q *Quote, settings Settings) error {
		line, err := s.buildLine(settings, input, 0)
		if err != nil {
			return err
		}
		line.ID = lineID
		return repo.UpdateLine(ctx, scope, DocTypeQuote, quoteID, line)
	})
}

// RemoveQuoteLine deletes a line and returns the recomputed totals.
func (s *Service) RemoveQuoteLine(ctx context.Context, scope tenant.Scope, quoteID, lineID int64) (money.Totals, error) {
	return s.mutateQuoteLines(ctx, scope, quoteID, func(repo Repository, q *Quote, settings Settings) error {
		return repo.DeleteLine(ctx, scope, DocTypeQuote, quoteID, lineID)
	})
}

// mutateQuoteLines serializes line edits per document: the quote row is
// locked for the duration of the mutation and the totals recomputation.
func (s *Service) mutateQuoteLines(ctx context.Context, scope tenant.Scope, quoteID int64, mutate func(Repository, *Quote, Settings) error) (money.Totals, error) {
	var totals money.Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		settings, err := repo.GetSettings(ctx, scope)
		if err != nil {
			return err
		}
		q, err := repo.GetQuoteForUpdate(ctx, scope, quoteID)
		if err != nil {
			return err
		}
		if !settings.quoteEditable(q.Status) {
			return fmt.Errorf("%w: quote is %s", ErrDocumentLocked, q.Status)
		}
		if err := mutate(repo, q, settings); err != nil {
			return err
		}
		lines, err := repo.GetLines(ctx, scope, DocTypeQuote, quoteID)
		if err != nil {
			return err
		}
		totals = totalsOf(lines)
		return repo.UpdateQuoteTotals(ctx, scope, quoteID, totals)
	})
	return totals, err
}

// SendQuote transitions a draft quote to SENT, assigning its immutable
// sequential number on first send.
func (s *Service) SendQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetQuoteForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if !CanTransitionQuote(q.Status, QuoteStatusSent) {
			return invalidQuoteTransition(q.Status, QuoteStatusSent)
		}
		var number *string
		if q.Number == nil {
			formatted, err := s.formatNumber(ctx, scope, repo, DocTypeQuote)
			if err != nil {
				return err
			}
			number = &formatted
		}
		return repo.UpdateQuoteStatus(ctx, scope, id, QuoteStatusSent, number)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetQuote(ctx, scope, id)
}

// AcceptQuote transitions a sent quote to ACCEPTED.
func (s *Service) AcceptQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return s.transitionQuote(ctx, scope, id, QuoteStatusAccepted)
}

// RefuseQuote transitions a sent quote to REFUSED.
func (s *Service) RefuseQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return s.transitionQuote(ctx, scope, id, QuoteStatusRefused)
}

func (s *Service) transitionQuote(ctx context.Context, scope tenant.Scope, id int64, to QuoteStatus) (*Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetQuoteForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if !CanTransitionQuote(q.Status, to) {
			return invalidQuoteTransition(q.Status, to)
		}
		return repo.UpdateQuoteStatus(ctx, scope, id, to, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetQuote(ctx, scope, id)
}

// ExpireDueQuotes moves every SENT quote past its validity date to EXPIRED.
// Returns the number of quotes expired. Called from the scheduled job.
func (s *Service) ExpireDueQuotes(ctx context.Context, scope tenant.Scope) (int, error) {
	ids, err := s.repo.ListExpirableQuoteIDs(ctx, scope, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			q, err := repo.GetQuoteForUpdate(ctx, scope, id)
			if err != nil {
				return err
			}
			if !CanTransitionQuote(q.Status, QuoteStatusExpired) {
				return nil // raced with another transition, skip
			}
			return repo.UpdateQuoteStatus(ctx, scope, id, QuoteStatusExpired, nil)
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// DeleteQuote destroys a quote. Only draft quotes may be hard-deleted.
func (s *Service) DeleteQuote(ctx context.Context, scope tenant.Scope, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetQuoteForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if q.Status != QuoteStatusDraft {
			return fmt.Errorf("%w: quote is %s", ErrDeleteNotDraft, q.Status)
		}
		return repo.DeleteQuote(ctx, scope, id)
	})
}

// --- Invoices ---

// CreateInvoice creates a draft invoice directly (not via conversion).
func (s *Service) CreateInvoice(ctx context.Context, scope tenant.Scope, input CreateInvoiceInput) (*Invoice, error) {
	settings, err := s.repo.GetSettings(ctx, scope)
	if err != nil {
		return nil, err
	}
	if s.clients != nil {
		if err := s.clients.Ensure(ctx, scope, input.ClientID); err != nil {
			return nil, fmt.Errorf("verify client: %w", err)
		}
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = issueDate.AddDate(0, 0, settings.InvoicePaymentDays)
	}

	lines := make([]Line, 0, len(input.Lines))
	for i, li := range input.Lines {
		line, err := s.buildLine(settings, li, i+1)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	totals := totalsOf(lines)

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.CreateInvoice(ctx, scope, Invoice{
			ClientID:   input.ClientID,
			Status:     InvoiceStatusDraft,
			IssueDate:  issueDate,
			DueDate:    dueDate,
			Notes:      input.Notes,
			TotalHT:    totals.ExclTax,
			TotalTVA:   totals.Tax,
			TotalTTC:   totals.InclTax,
			AmountPaid: decimal.Zero,
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id
		for _, line := range lines {
			if _, err := repo.InsertLine(ctx, scope, DocTypeInvoice, invoiceID, line); err != nil {
				return fmt.Errorf("insert invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, scope, invoiceID)
}

// GetInvoice loads one invoice with lines. The returned status is the
// effective one: a sent invoice past due reads as OVERDUE.
func (s *Service) GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	inv.Status = inv.EffectiveStatus(s.now())
	return inv, nil
}

// ListInvoices returns a filtered page of invoices with effective statuses.
func (s *Service) ListInvoices(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Invoice, int, error) {
	invoices, total, err := s.repo.ListInvoices(ctx, scope, filter)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range invoices {
		invoices[i].Status = invoices[i].EffectiveStatus(now)
	}
	return invoices, total, nil
}

// AddInvoiceLine appends a line and returns the recomputed totals.
func (s *Service) AddInvoiceLine(ctx context.Context, scope tenant.Scope, invoiceID int64, input LineInput) (money.Totals, error) {
	return s.mutateInvoiceLines(ctx, scope, invoiceID, func(repo Repository, inv *Invoice, settings Settings) error {
		line, err := s.buildLine(settings, input, len(inv.Lines)+1)
		if err != nil {
			return err
		}
		_, err = repo.InsertLine(ctx, scope, DocTypeInvoice, invoiceID, line)
		return err
	})
}

// UpdateInvoiceLine replaces a line's content and returns the recomputed totals.
func (s *Service) UpdateInvoiceLine(ctx context.Context, scope tenant.Scope, invoiceID, lineID int64, input LineInput) (money.Totals, error) {
	return s.mutateInvoiceLines(ctx, scope, invoiceID, func(repo Repository, inv *Invoice, settings Settings) error {
		line, err := s.buildLine(settings, input, 0)
		if err != nil {
			return err
		}
		line.ID = lineID
		return repo.UpdateLine(ctx, scope, DocTypeInvoice, invoiceID, line)
	})
}

// RemoveInvoiceLine deletes a line and returns the recomputed totals.
func (s *Service) RemoveInvoiceLine(ctx context.Context, scope tenant.Scope, invoiceID, lineID int64) (money.Totals, error) {
	return s.mutateInvoiceLines(ctx, scope, invoiceID, func(repo Repository, inv *Invoice, settings Settings) error {
		return repo.DeleteLine(ctx, scope, DocTypeInvoice, invoiceID, lineID)
	})
}

func (s *Service) mutateInvoiceLines(ctx context.Context, scope tenant.Scope, invoiceID int64, mutate func(Repository, *Invoice, Settings) error) (money.Totals, error) {
	var totals money.Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		settings, err := repo.GetSettings(ctx, scope)
		if err != nil {
			return err
		}
		inv, err := repo.GetInvoiceForUpdate(ctx, scope, invoiceID)
		if err != nil {
			return err
		}
		if !settings.invoiceEditable(inv.Status) {
			return fmt.Errorf("%w: invoice is %s", ErrDocumentLocked, inv.Status)
		}
		if err := mutate(repo, inv, settings); err != nil {
			return err
		}
		lines, err := repo.GetLines(ctx, scope, DocTypeInvoice, invoiceID)
		if err != nil {
			return err
		}
		totals = totalsOf(lines)
		return repo.UpdateInvoiceTotals(ctx, scope, invoiceID, totals)
	})
	return totals, err
}

// SendInvoice transitions a draft invoice to SENT: the immutable number is
// assigned and the issuance is queued for ledger derivation, all in one
// transaction.
func (s *Service) SendInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoiceForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if !CanTransitionInvoice(inv.Status, InvoiceStatusSent) {
			return invalidInvoiceTransition(inv.Status, InvoiceStatusSent)
		}
		var number *string
		if inv.Number == nil {
			formatted, err := s.formatNumber(ctx, scope, repo, DocTypeInvoice)
			if err != nil {
				return err
			}
			number = &formatted
		}
		if err := repo.UpdateInvoiceStatus(ctx, scope, id, InvoiceStatusSent, number); err != nil {
			return err
		}
		return repo.EnqueueLedgerItem(ctx, scope, LedgerItemInput{Kind: LedgerItemInvoice, InvoiceID: id})
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, scope, id)
}

// RecordPayment registers a payment against a sent invoice and queues it for
// ledger derivation. When the cumulated amount covers the total the invoice
// transitions to PAID.
func (s *Service) RecordPayment(ctx context.Context, scope tenant.Scope, invoiceID int64, input PaymentInput) (*Invoice, error) {
	if input.Amount.IsZero() || input.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if input.Method != "bank" && input.Method != "cash" {
		return nil, fmt.Errorf("%w: method must be bank or cash", ErrInvalidPayment)
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoiceForUpdate(ctx, scope, invoiceID)
		if err != nil {
			return err
		}
		// Payments require a SENT invoice; OVERDUE is stored as SENT.
		if inv.Status != InvoiceStatusSent {
			return invalidInvoiceTransition(inv.Status, InvoiceStatusPaid)
		}

		paymentID, err := repo.InsertPayment(ctx, scope, Payment{
			InvoiceID: invoiceID,
			Amount:    input.Amount,
			Method:    input.Method,
			PaidAt:    paidAt,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		newPaid := inv.AmountPaid.Add(input.Amount)
		if err := repo.UpdateInvoiceAmountPaid(ctx, scope, invoiceID, newPaid); err != nil {
			return err
		}
		if newPaid.GreaterThanOrEqual(inv.TotalTTC) {
			if !CanTransitionInvoice(inv.Status, InvoiceStatusPaid) {
				return invalidInvoiceTransition(inv.Status, InvoiceStatusPaid)
			}
			if err := repo.UpdateInvoiceStatus(ctx, scope, invoiceID, InvoiceStatusPaid, nil); err != nil {
				return err
			}
		}
		return repo.EnqueueLedgerItem(ctx, scope, LedgerItemInput{
			Kind:      LedgerItemPayment,
			InvoiceID: invoiceID,
			PaymentID: &paymentID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, scope, invoiceID)
}

// CancelInvoice transitions a draft or sent invoice to CANCELLED. A
// cancelled invoice is never mutated again.
func (s *Service) CancelInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoiceForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if !CanTransitionInvoice(inv.Status, InvoiceStatusCancelled) {
			return invalidInvoiceTransition(inv.Status, InvoiceStatusCancelled)
		}
		return repo.UpdateInvoiceStatus(ctx, scope, id, InvoiceStatusCancelled, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetInvoice(ctx, scope, id)
}
