// Package accounting holds the per-tenant accounting configuration and the
// derivation of balanced journal entry lines from commercial documents.
package accounting

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRole is a logical slot in the tenant's chart-of-accounts mapping.
// Derivation addresses accounts by role, never by raw code.
type AccountRole string

const (
	RoleSales         AccountRole = "sales"
	RoleVATCollected  AccountRole = "vat_collected"
	RoleCustomers     AccountRole = "customers"
	RolePurchases     AccountRole = "purchases"
	RoleVATDeductible AccountRole = "vat_deductible"
	RoleSuppliers     AccountRole = "suppliers"
	RoleBank          AccountRole = "bank"
	RoleCash          AccountRole = "cash"
)

// AllRoles lists every mappable role, in presentation order.
var AllRoles = []AccountRole{
	RoleSales, RoleVATCollected, RoleCustomers, RolePurchases,
	RoleVATDeductible, RoleSuppliers, RoleBank, RoleCash,
}

// JournalKind selects one of the tenant's journals.
type JournalKind string

const (
	JournalSales     JournalKind = "sales"
	JournalPurchases JournalKind = "purchases"
	JournalBank      JournalKind = "bank"
)

// Account is one mapped ledger account.
type Account struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Journal is one mapped journal book.
type Journal struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// SyncFrequency is how often the tenant's ledger sync runs.
type SyncFrequency string

const (
	SyncDaily   SyncFrequency = "daily"
	SyncWeekly  SyncFrequency = "weekly"
	SyncMonthly SyncFrequency = "monthly"
	SyncManual  SyncFrequency = "manual"
)

// ExportFormat selects the rendering target for the tenant's ledger files.
type ExportFormat string

const (
	FormatFiscal  ExportFormat = "fec"
	FormatGeneric ExportFormat = "generic"
)

// Config is the tenant's active accounting configuration. Exactly one config
// is active per tenant at a time; activating a new one replaces the previous.
type Config struct {
	ID              int64                    `json:"id"`
	TenantID        int64                    `json:"-"`
	Accounts        map[AccountRole]Account  `json:"accounts"`
	Journals        map[JournalKind]Journal  `json:"journals"`
	QuotePrefix     string                   `json:"quote_prefix"`
	InvoicePrefix   string                   `json:"invoice_prefix"`
	ExportFormat    ExportFormat             `json:"export_format"`
	SyncFrequency   SyncFrequency            `json:"sync_frequency"`
	SyncHour        int                      `json:"sync_hour"`
	NotifyOnSuccess bool                     `json:"notify_on_success"`
	NotifyOnError   bool                     `json:"notify_on_error"`
	IsActive        bool                     `json:"is_active"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// JournalLine is one derived debit-or-credit row. Lines are derived, never
// hand-edited; a derivation always yields a balanced set.
type JournalLine struct {
	JournalCode  string          `json:"journal_code"`
	JournalLabel string          `json:"journal_label"`
	EntryNumber  string          `json:"entry_number"`
	EntryDate    time.Time       `json:"entry_date"`
	AccountCode  string          `json:"account_code"`
	AccountLabel string          `json:"account_label"`
	Reference    string          `json:"reference"`
	Label        string          `json:"label"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Lettering    string          `json:"lettering,omitempty"`
	LetteredAt   *time.Time      `json:"lettered_at,omitempty"`
	ValidatedAt  time.Time       `json:"validated_at"`
}

var (
	ErrNotConfigured = errors.New("no active accounting configuration")

	// ErrIncompleteConfiguration blocks ledger derivation only; the
	// commercial document stays valid and the queued item stays retryable.
	ErrIncompleteConfiguration = errors.New("incomplete accounting configuration")

	// ErrUnbalanced means a derived set failed the debit/credit check.
	// This is a defect, never a user error, and must surface loudly.
	ErrUnbalanced = errors.New("journal entry is not balanced")
)

// Balanced reports whether the set satisfies the double-entry invariant.
func Balanced(lines []JournalLine) bool {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit.Equal(credit)
}
