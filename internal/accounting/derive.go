package accounting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/documents"
)

// account resolves a role against the config, accumulating missing roles so
// one derivation error can name everything that is unmapped at once.
func (c *Config) account(role AccountRole, missing *[]AccountRole) Account {
	acc, ok := c.Accounts[role]
	if !ok || acc.Code == "" {
		*missing = append(*missing, role)
		return Account{}
	}
	return acc
}

func (c *Config) journal(kind JournalKind, missing *[]AccountRole) Journal {
	j, ok := c.Journals[kind]
	if !ok || j.Code == "" {
		*missing = append(*missing, AccountRole("journal:"+string(kind)))
		return Journal{}
	}
	return j
}

func incompleteErr(missing []AccountRole) error {
	names := make([]string, len(missing))
	for i, r := range missing {
		names[i] = string(r)
	}
	return fmt.Errorf("%w: missing %s", ErrIncompleteConfiguration, strings.Join(names, ", "))
}

// DeriveInvoiceIssuance produces the journal lines for an invoice entering
// SENT: debit the customer receivable for the TTC total, credit sales for
// the HT total, credit VAT collected for the tax total. The VAT line is
// omitted when the invoice carries no tax.
func DeriveInvoiceIssuance(cfg *Config, inv *documents.Invoice) ([]JournalLine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration loaded", ErrIncompleteConfiguration)
	}
	if inv.Number == nil {
		return nil, fmt.Errorf("derive issuance: invoice %d has no number", inv.ID)
	}

	var missing []AccountRole
	customers := cfg.account(RoleCustomers, &missing)
	sales := cfg.account(RoleSales, &missing)
	var vat Account
	hasTax := !inv.TotalTVA.IsZero()
	if hasTax {
		vat = cfg.account(RoleVATCollected, &missing)
	}
	journal := cfg.journal(JournalSales, &missing)
	if len(missing) > 0 {
		return nil, incompleteErr(missing)
	}

	number := *inv.Number
	label := fmt.Sprintf("Facture %s", number)
	base := JournalLine{
		JournalCode:  journal.Code,
		JournalLabel: journal.Label,
		EntryNumber:  number,
		EntryDate:    inv.IssueDate,
		Reference:    number,
		Label:        label,
		ValidatedAt:  inv.IssueDate,
	}

	debit := base
	debit.AccountCode = customers.Code
	debit.AccountLabel = customers.Label
	debit.Debit = inv.TotalTTC
	debit.Credit = decimal.Zero

	creditSales := base
	creditSales.AccountCode = sales.Code
	creditSales.AccountLabel = sales.Label
	creditSales.Debit = decimal.Zero
	creditSales.Credit = inv.TotalHT

	lines := []JournalLine{debit, creditSales}
	if hasTax {
		creditVAT := base
		creditVAT.AccountCode = vat.Code
		creditVAT.AccountLabel = vat.Label
		creditVAT.Debit = decimal.Zero
		creditVAT.Credit = inv.TotalTVA
		lines = append(lines, creditVAT)
	}

	if !Balanced(lines) {
		return nil, fmt.Errorf("%w: invoice %s", ErrUnbalanced, number)
	}
	return lines, nil
}

// DerivePayment produces the journal lines for a recorded payment: debit
// the bank or cash account by payment method, credit the customer
// receivable for the same amount.
func DerivePayment(cfg *Config, inv *documents.Invoice, p *documents.Payment) ([]JournalLine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration loaded", ErrIncompleteConfiguration)
	}
	if inv.Number == nil {
		return nil, fmt.Errorf("derive payment: invoice %d has no number", inv.ID)
	}

	treasuryRole := RoleBank
	if p.Method == "cash" {
		treasuryRole = RoleCash
	}

	var missing []AccountRole
	treasury := cfg.account(treasuryRole, &missing)
	customers := cfg.account(RoleCustomers, &missing)
	journal := cfg.journal(JournalBank, &missing)
	if len(missing) > 0 {
		return nil, incompleteErr(missing)
	}

	number := *inv.Number
	base := JournalLine{
		JournalCode:  journal.Code,
		JournalLabel: journal.Label,
		EntryNumber:  fmt.Sprintf("%s-P%d", number, p.ID),
		EntryDate:    p.PaidAt,
		Reference:    number,
		Label:        fmt.Sprintf("Reglement facture %s", number),
		ValidatedAt:  p.PaidAt,
	}

	debit := base
	debit.AccountCode = treasury.Code
	debit.AccountLabel = treasury.Label
	debit.Debit = p.Amount
	debit.Credit = decimal.Zero

	credit := base
	credit.AccountCode = customers.Code
	credit.AccountLabel = customers.Label
	credit.Debit = decimal.Zero
	credit.Credit = p.Amount

	lines := []JournalLine{debit, credit}
	if !Balanced(lines) {
		return nil, fmt.Errorf("%w: payment %d", ErrUnbalanced, p.ID)
	}
	return lines, nil
}
