package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/money"
	"github.com/facturio/facturio/internal/platform/db"
	"github.com/facturio/facturio/internal/tenant"
)

// LedgerItemKind names what a queued ledger item was derived from.
type LedgerItemKind string

const (
	LedgerItemInvoice LedgerItemKind = "INVOICE"
	LedgerItemPayment LedgerItemKind = "PAYMENT"
)

// LedgerItemInput queues an issuance or payment for ledger derivation and
// synchronization. Inserted in the same transaction as the triggering status
// change so a crash cannot lose the item.
type LedgerItemInput struct {
	Kind      LedgerItemKind
	InvoiceID int64
	PaymentID *int64
}

// ListFilter narrows document listings. Zero fields are ignored.
type ListFilter struct {
	Status   string
	ClientID int64
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// Repository is the tenant-scoped persistence port for documents. Every
// method takes a tenant.Scope and filters by its tenant id.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetSettings(ctx context.Context, scope tenant.Scope) (Settings, error)

	CreateQuote(ctx context.Context, scope tenant.Scope, q Quote) (int64, error)
	GetQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error)
	GetQuoteForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error)
	ListQuotes(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Quote, int, error)
	UpdateQuoteTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error
	UpdateQuoteStatus(ctx context.Context, scope tenant.Scope, id int64, status QuoteStatus, number *string) error
	MarkQuoteConverted(ctx context.Context, scope tenant.Scope, quoteID, invoiceID int64, at time.Time) error
	DeleteQuote(ctx context.Context, scope tenant.Scope, id int64) error
	ListExpirableQuoteIDs(ctx context.Context, scope tenant.Scope, now time.Time) ([]int64, error)

	CreateInvoice(ctx context.Context, scope tenant.Scope, inv Invoice) (int64, error)
	GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Invoice, int, error)
	UpdateInvoiceTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error
	UpdateInvoiceStatus(ctx context.Context, scope tenant.Scope, id int64, status InvoiceStatus, number *string) error
	UpdateInvoiceAmountPaid(ctx context.Context, scope tenant.Scope, id int64, amountPaid decimal.Decimal) error
	InsertPayment(ctx context.Context, scope tenant.Scope, p Payment) (int64, error)
	GetPayment(ctx context.Context, scope tenant.Scope, id int64) (*Payment, error)
	ListPayments(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]Payment, error)

	GetLines(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64) ([]Line, error)
	InsertLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) (int64, error)
	UpdateLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) error
	DeleteLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID, lineID int64) error

	NextNumber(ctx context.Context, scope tenant.Scope, docType DocType) (int64, error)
	EnqueueLedgerItem(ctx context.Context, scope tenant.Scope, item LedgerItemInput) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed documents repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quoteColumns = `id, tenant_id, client_id, number, status, issue_date, valid_until, notes,
	total_ht, total_tva, total_ttc, converted_to, converted_at, created_at, updated_at`

const invoiceColumns = `id, tenant_id, client_id, number, status, issue_date, due_date, notes,
	total_ht, total_tva, total_ttc, amount_paid, quote_id, created_at, updated_at`

func (r *repository) GetSettings(ctx context.Context, scope tenant.Scope) (Settings, error) {
	if err := scope.Ensure(); err != nil {
		return Settings{}, err
	}
	var (
		rates                  []string
		quoteEdit, invoiceEdit []string
		validity, payment      int
	)
	err := r.db.QueryRow(ctx, `
		SELECT allowed_tax_rates, quote_edit_statuses, invoice_edit_statuses,
		       quote_validity_days, invoice_payment_days
		FROM document_settings WHERE tenant_id = $1
	`, scope.TenantID()).Scan(&rates, &quoteEdit, &invoiceEdit, &validity, &payment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(scope.TenantID()), nil
		}
		return Settings{}, err
	}

	settings := Settings{
		TenantID:           scope.TenantID(),
		QuoteValidityDays:  validity,
		InvoicePaymentDays: payment,
	}
	for _, raw := range rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("documents: bad tax rate %q in settings: %w", raw, err)
		}
		settings.AllowedTaxRates = append(settings.AllowedTaxRates, rate)
	}
	for _, s := range quoteEdit {
		settings.QuoteEditStatuses = append(settings.QuoteEditStatuses, QuoteStatus(s))
	}
	for _, s := range invoiceEdit {
		settings.InvoiceEditStatuses = append(settings.InvoiceEditStatuses, InvoiceStatus(s))
	}
	return settings, nil
}

func (r *repository) CreateQuote(ctx context.Context, scope tenant.Scope, q Quote) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotes (tenant_id, client_id, status, issue_date, valid_until, notes,
		                    total_ht, total_tva, total_ttc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, scope.TenantID(), q.ClientID, q.Status,
		dateOf(q.IssueDate), dateOf(q.ValidUntil), textOf(q.Notes),
		numericOf(q.TotalHT), numericOf(q.TotalTVA), numericOf(q.TotalTTC),
	).Scan(&id)
	return id, err
}

func (r *repository) GetQuote(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return r.getQuote(ctx, scope, id, false)
}

func (r *repository) GetQuoteForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Quote, error) {
	return r.getQuote(ctx, scope, id, true)
}

func (r *repository) getQuote(ctx context.Context, scope tenant.Scope, id int64, forUpdate bool) (*Quote, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE tenant_id = $1 AND id = $2`, quoteColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	q, err := scanQuote(r.db.QueryRow(ctx, query, scope.TenantID(), id))
	if err != nil {
		return nil, err
	}
	q.Lines, err = r.GetLines(ctx, scope, DocTypeQuote, q.ID)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) ListQuotes(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Quote, int, error) {
	if err := scope.Ensure(); err != nil {
		return nil, 0, err
	}
	where, args := buildFilter(scope, filter, "issue_date")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotes "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageOf(filter)
	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

func (r *repository) UpdateQuoteTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error {
	return r.updateTotals(ctx, scope, "quotes", id, totals)
}

func (r *repository) UpdateQuoteStatus(ctx context.Context, scope tenant.Scope, id int64, status QuoteStatus, number *string) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes SET status = $3, number = COALESCE($4, number), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, scope.TenantID(), id, status, textOf(number))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) MarkQuoteConverted(ctx context.Context, scope tenant.Scope, quoteID, invoiceID int64, at time.Time) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	// The WHERE converted_to IS NULL guard makes the marker one-way even
	// under concurrent conversion attempts.
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes SET converted_to = $3, converted_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND converted_to IS NULL
	`, scope.TenantID(), quoteID, invoiceID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

func (r *repository) DeleteQuote(ctx context.Context, scope tenant.Scope, id int64) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM document_lines WHERE tenant_id = $1 AND document_type = $2 AND document_id = $3`,
		scope.TenantID(), DocTypeQuote, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM quotes WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListExpirableQuoteIDs(ctx context.Context, scope tenant.Scope, now time.Time) ([]int64, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id FROM quotes
		WHERE tenant_id = $1 AND status = $2 AND valid_until < $3
		ORDER BY id
	`, scope.TenantID(), QuoteStatusSent, dateOf(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) CreateInvoice(ctx context.Context, scope tenant.Scope, inv Invoice) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (tenant_id, client_id, status, issue_date, due_date, notes,
		                      total_ht, total_tva, total_ttc, amount_paid, quote_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, scope.TenantID(), inv.ClientID, inv.Status,
		dateOf(inv.IssueDate), dateOf(inv.DueDate), textOf(inv.Notes),
		numericOf(inv.TotalHT), numericOf(inv.TotalTVA), numericOf(inv.TotalTTC),
		numericOf(inv.AmountPaid), inv.QuoteID,
	).Scan(&id)
	return id, err
}

func (r *repository) GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	return r.getInvoice(ctx, scope, id, false)
}

func (r *repository) GetInvoiceForUpdate(ctx context.Context, scope tenant.Scope, id int64) (*Invoice, error) {
	return r.getInvoice(ctx, scope, id, true)
}

func (r *repository) getInvoice(ctx context.Context, scope tenant.Scope, id int64, forUpdate bool) (*Invoice, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE tenant_id = $1 AND id = $2`, invoiceColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, scope.TenantID(), id))
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.GetLines(ctx, scope, DocTypeInvoice, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repository) ListInvoices(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Invoice, int, error) {
	if err := scope.Ensure(); err != nil {
		return nil, 0, err
	}
	where, args := buildFilter(scope, filter, "issue_date")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageOf(filter)
	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

func (r *repository) UpdateInvoiceTotals(ctx context.Context, scope tenant.Scope, id int64, totals money.Totals) error {
	return r.updateTotals(ctx, scope, "invoices", id, totals)
}

func (r *repository) UpdateInvoiceStatus(ctx context.Context, scope tenant.Scope, id int64, status InvoiceStatus, number *string) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $3, number = COALESCE($4, number), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, scope.TenantID(), id, status, textOf(number))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateInvoiceAmountPaid(ctx context.Context, scope tenant.Scope, id int64, amountPaid decimal.Decimal) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET amount_paid = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, scope.TenantID(), id, numericOf(amountPaid))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertPayment(ctx context.Context, scope tenant.Scope, p Payment) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (tenant_id, invoice_id, amount, method, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, scope.TenantID(), p.InvoiceID, numericOf(p.Amount), p.Method, p.PaidAt).Scan(&id)
	return id, err
}

func (r *repository) GetPayment(ctx context.Context, scope tenant.Scope, id int64) (*Payment, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	var (
		p      Payment
		amount pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, invoice_id, amount, method, paid_at, created_at
		FROM payments WHERE tenant_id = $1 AND id = $2
	`, scope.TenantID(), id).Scan(&p.ID, &p.TenantID, &p.InvoiceID, &amount, &p.Method, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Amount = decimalOf(amount)
	return &p, nil
}

// ListPayments returns payments whose paid_at date falls inside [from, to].
func (r *repository) ListPayments(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]Payment, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, invoice_id, amount, method, paid_at, created_at
		FROM payments
		WHERE tenant_id = $1 AND paid_at >= $2 AND paid_at <= $3
		ORDER BY paid_at, id
	`, scope.TenantID(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var (
			p      Payment
			amount pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.InvoiceID, &amount, &p.Method, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = decimalOf(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) GetLines(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64) ([]Line, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, designation, quantity, unit_price_excl_tax, tax_rate_percent,
		       excl_tax, tax, incl_tax, line_order, created_at, updated_at
		FROM document_lines
		WHERE tenant_id = $1 AND document_type = $2 AND document_id = $3
		ORDER BY line_order, id
	`, scope.TenantID(), docType, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l                            Line
			qty, price, rate             pgtype.Numeric
			exclTax, taxAmt, inclTax     pgtype.Numeric
		)
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Designation, &qty, &price, &rate,
			&exclTax, &taxAmt, &inclTax, &l.LineOrder, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Quantity = decimalOf(qty)
		l.UnitPriceExclTax = decimalOf(price)
		l.TaxRatePercent = decimalOf(rate)
		l.ExclTax = decimalOf(exclTax)
		l.Tax = decimalOf(taxAmt)
		l.InclTax = decimalOf(inclTax)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) InsertLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_lines (tenant_id, document_type, document_id, designation,
			quantity, unit_price_excl_tax, tax_rate_percent, excl_tax, tax, incl_tax, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, scope.TenantID(), docType, documentID, line.Designation,
		numericOf(line.Quantity), numericOf(line.UnitPriceExclTax), numericOf(line.TaxRatePercent),
		numericOf(line.ExclTax), numericOf(line.Tax), numericOf(line.InclTax), line.LineOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID int64, line Line) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE document_lines SET designation = $5, quantity = $6, unit_price_excl_tax = $7,
			tax_rate_percent = $8, excl_tax = $9, tax = $10, incl_tax = $11, updated_at = NOW()
		WHERE tenant_id = $1 AND document_type = $2 AND document_id = $3 AND id = $4
	`, scope.TenantID(), docType, documentID, line.ID, line.Designation,
		numericOf(line.Quantity), numericOf(line.UnitPriceExclTax), numericOf(line.TaxRatePercent),
		numericOf(line.ExclTax), numericOf(line.Tax), numericOf(line.InclTax))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteLine(ctx context.Context, scope tenant.Scope, docType DocType, documentID, lineID int64) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM document_lines
		WHERE tenant_id = $1 AND document_type = $2 AND document_id = $3 AND id = $4
	`, scope.TenantID(), docType, documentID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextNumber atomically increments the per-tenant, per-type counter. Must be
// called inside the same transaction as the status update that consumes the
// number, so a rollback cannot leave a gap.
func (r *repository) NextNumber(ctx context.Context, scope tenant.Scope, docType DocType) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, doc_type, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, doc_type)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, scope.TenantID(), docType).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *repository) EnqueueLedgerItem(ctx context.Context, scope tenant.Scope, item LedgerItemInput) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_sync_items (id, tenant_id, kind, invoice_id, payment_id, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 'PENDING')
	`, scope.TenantID(), item.Kind, item.InvoiceID, item.PaymentID)
	return err
}

func (r *repository) updateTotals(ctx context.Context, scope tenant.Scope, table string, id int64, totals money.Totals) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET total_ht = $3, total_tva = $4, total_ttc = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, table)
	tag, err := r.db.Exec(ctx, query, scope.TenantID(), id,
		numericOf(totals.ExclTax), numericOf(totals.Tax), numericOf(totals.InclTax))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildFilter(scope tenant.Scope, filter ListFilter, dateColumn string) (string, []interface{}) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{scope.TenantID()}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		where += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, dateOf(*filter.DateFrom))
		where += fmt.Sprintf(" AND %s >= $%d", dateColumn, len(args))
	}
	if filter.DateTo != nil {
		args = append(args, dateOf(*filter.DateTo))
		where += fmt.Sprintf(" AND %s <= $%d", dateColumn, len(args))
	}
	return where, args
}

func pageOf(filter ListFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var (
		q                        Quote
		number, notes            pgtype.Text
		issueDate, validUntil    pgtype.Date
		ht, tva, ttc             pgtype.Numeric
		convertedTo              pgtype.Int8
		convertedAt              pgtype.Timestamptz
	)
	err := row.Scan(&q.ID, &q.TenantID, &q.ClientID, &number, &q.Status, &issueDate, &validUntil, &notes,
		&ht, &tva, &ttc, &convertedTo, &convertedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if number.Valid {
		q.Number = &number.String
	}
	if notes.Valid {
		q.Notes = &notes.String
	}
	q.IssueDate = issueDate.Time
	q.ValidUntil = validUntil.Time
	q.TotalHT = decimalOf(ht)
	q.TotalTVA = decimalOf(tva)
	q.TotalTTC = decimalOf(ttc)
	if convertedTo.Valid {
		q.ConvertedTo = &convertedTo.Int64
	}
	if convertedAt.Valid {
		q.ConvertedAt = &convertedAt.Time
	}
	return &q, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                Invoice
		number, notes      pgtype.Text
		issueDate, dueDate pgtype.Date
		ht, tva, ttc, paid pgtype.Numeric
		quoteID            pgtype.Int8
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.ClientID, &number, &inv.Status, &issueDate, &dueDate, &notes,
		&ht, &tva, &ttc, &paid, &quoteID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if number.Valid {
		inv.Number = &number.String
	}
	if notes.Valid {
		inv.Notes = &notes.String
	}
	inv.IssueDate = issueDate.Time
	inv.DueDate = dueDate.Time
	inv.TotalHT = decimalOf(ht)
	inv.TotalTVA = decimalOf(tva)
	inv.TotalTTC = decimalOf(ttc)
	inv.AmountPaid = decimalOf(paid)
	if quoteID.Valid {
		inv.QuoteID = &quoteID.Int64
	}
	return &inv, nil
}

func numericOf(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func decimalOf(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func dateOf(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func textOf(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}
