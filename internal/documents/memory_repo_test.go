package documents

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/money"
	"github.com/facturio/facturio/internal/tenant"
)

// memoryRepo is the in-memory Repository used by the service tests. It
// serializes transactions with txMu, mirroring the row locks the pgx
// implementation takes with FOR UPDATE.
type memoryRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex

	quotes      map[int64]*Quote
	invoices    map[int64]*Invoice
	payments    map[int64]*Payment
	lines       map[string][]Line // key: docType/docID
	sequences   map[string]int64  // key: tenant/docType
	ledgerItems []LedgerItemInput
	settings    map[int64]Settings

	nextQuoteID   int64
	nextInvoiceID int64
	nextPaymentID int64
	nextLineID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotes:    make(map[int64]*Quote),
		invoices:  make(map[int64]*Invoice),
		payments:  make(map[int64]*Payment),
		lines:     make(map[string][]Line),
		sequences: make(map[string]int64),
		settings:  make(map[int64]Settings),
	}
}

func lineKey(docType DocType, docID int64) string {
	return string(docType) + "/" + strconv.FormatInt(docID, 10)
}

func seqKey(scope tenant.Scope, docType DocType) string {
	return strconv.FormatInt(scope.TenantID(), 10) + "/" + string(docType)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx, r)
}

func (r *memoryRepo) GetSettings(ctx context.Context, scope tenant.Scope) (Settings, error) {
	if err := scope.Ensure(); err != nil {
		return Settings{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[scope.TenantID()]; ok {
		return s, nil
	}
	return DefaultSettings(scope.TenantID()), nil
}

func (r *memoryRepo) CreateQuote(ctx context.Context, scope tenant.Scope, q Quote) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextQuoteID++
	q.ID = r.nextQuoteID
	q.TenantID = scope.TenantID()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	stored := q
	stored.Lines = nil
	r.quotes[q.ID] = &stored
	return q.ID, nil
}

func (r *memoryRepo) GetQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getQuoteLocked(scope, id)
}

func (r *memoryRepo) getQuoteLocked(scope tenant.Scope, id int64) (*Quote, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	q, ok := r.quotes[id]
	if !ok || q.TenantID != scope.TenantID() {
		return nil, ErrNotFound
	}
	copied := *q
	copied.Lines = append([]Line(nil), r.lines[lineKey(DocTypeQuote, id)]...)
	return &copied, nil
}

func (r *memoryRepo) GetQuoteForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return r.GetQuote(ctx, scope, id)
}

func (r *memoryRepo) ListQuotes(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Quote, int, error) {
	if err := scope.Ensure(); err != nil {
		return nil, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Quote
	for _, q := range r.quotes {
		if q.TenantID != scope.TenantID() {
			continue
		}
		if filter.Status != "" && string(q.Status) != filter.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateQuoteTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok || q.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	q.TotalHT = totals.ExclTax
	q.TotalTVA = totals.Tax
	q.TotalTTC = totals.InclTax
	return nil
}

func (r *memoryRepo) UpdateQuoteStatus(ctx context.Context, scope tenant.Scope, id int64, status QuoteStatus, number *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok || q.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	q.Status = status
	if number != nil {
		q.Number = number
	}
	return nil
}

func (r *memoryRepo) MarkQuoteConverted(ctx context.Context, scope tenant.Scope, quoteID, invoiceID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[quoteID]
	if !ok || q.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	if q.ConvertedTo != nil {
		return ErrAlreadyConverted
	}
	q.ConvertedTo = &invoiceID
	q.ConvertedAt = &at
	return nil
}

func (r *memoryRepo) DeleteQuote(ctx context.Context, scope tenant.Scope, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok || q.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	delete(r.quotes, id)
	delete(r.lines, lineKey(DocTypeQuote, id))
	return nil
}

func (r *memoryRepo) ListExpirableQuoteIDs(ctx context.Context, scope tenant.Scope, now time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, q := range r.quotes {
		if q.TenantID == scope.TenantID() && q.Status == QuoteStatusSent && q.ValidUntil.Before(now) {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func (r *memoryRepo) CreateInvoice(ctx context.Context, scope tenant.Scope, inv Invoice) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextInvoiceID++
	inv.ID = r.nextInvoiceID
	inv.TenantID = scope.TenantID()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	stored := inv
	stored.Lines = nil
	r.invoices[inv.ID] = &stored
	return inv.ID, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return nil, ErrNotFound
	}
	copied := *inv
	copied.Lines = append([]Line(nil), r.lines[lineKey(DocTypeInvoice, id)]...)
	return &copied, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	return r.GetInvoice(ctx, scope, id)
}

func (r *memoryRepo) ListInvoices(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Invoice, int, error) {
	if err := scope.Ensure(); err != nil {
		return nil, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.TenantID != scope.TenantID() {
			continue
		}
		if filter.Status != "" && string(inv.Status) != filter.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateInvoiceTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	inv.TotalHT = totals.ExclTax
	inv.TotalTVA = totals.Tax
	inv.TotalTTC = totals.InclTax
	return nil
}

func (r *memoryRepo) UpdateInvoiceStatus(ctx context.Context, scope tenant.Scope, id int64, status InvoiceStatus, number *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	inv.Status = status
	if number != nil {
		inv.Number = number
	}
	return nil
}

func (r *memoryRepo) UpdateInvoiceAmountPaid(ctx context.Context, scope tenant.Scope, id int64, amountPaid decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	inv.AmountPaid = amountPaid
	return nil
}

func (r *memoryRepo) InsertPayment(ctx context.Context, scope tenant.Scope, p Payment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	p.TenantID = scope.TenantID()
	p.CreatedAt = time.Now()
	r.payments[p.ID] = &p
	return p.ID, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, scope tenant.Scope, id int64) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.TenantID != scope.TenantID() {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.TenantID != scope.TenantID() {
			continue
		}
		if p.PaidAt.Before(from) || p.PaidAt.After(to) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetLines(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64) ([]Line, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines[lineKey(docType, documentID)]...), nil
}

func (r *memoryRepo) InsertLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLineID++
	line.ID = r.nextLineID
	line.DocumentID = documentID
	key := lineKey(docType, documentID)
	r.lines[key] = append(r.lines[key], line)
	return line.ID, nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lineKey(docType, documentID)
	for i, existing := range r.lines[key] {
		if existing.ID == line.ID {
			line.DocumentID = documentID
			line.LineOrder = existing.LineOrder
			r.lines[key][i] = line
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) DeleteLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID, lineID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lineKey(docType, documentID)
	for i, existing := range r.lines[key] {
		if existing.ID == lineID {
			r.lines[key] = append(r.lines[key][:i], r.lines[key][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) NextNumber(ctx context.Context, scope tenant.Scope, docType DocType) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seqKey(scope, docType)
	r.sequences[key]++
	return r.sequences[key], nil
}

func (r *memoryRepo) EnqueueLedgerItem(ctx context.Context, scope tenant.Scope, item LedgerItemInput) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgerItems = append(r.ledgerItems, item)
	return nil
}

func (r *memoryRepo) ledgerQueue() []LedgerItemInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerItemInput(nil), r.ledgerItems...)
}
