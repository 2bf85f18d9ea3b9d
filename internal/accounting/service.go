package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/tenant"
)

// Default document prefixes used before a tenant configures its own.
const (
	DefaultQuotePrefix   = "DEV"
	DefaultInvoicePrefix = "FAC"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetActive(ctx context.Context, scope tenant.Scope) (*Config, error) {
	return s.repo.GetActive(ctx, scope)
}

func (s *Service) Activate(ctx context.Context, scope tenant.Scope, req UpsertConfigRequest) (*Config, error) {
	cfg := Config{
		Accounts:        req.Accounts,
		Journals:        req.Journals,
		QuotePrefix:     req.QuotePrefix,
		InvoicePrefix:   req.InvoicePrefix,
		ExportFormat:    req.ExportFormat,
		SyncFrequency:   req.SyncFrequency,
		SyncHour:        req.SyncHour,
		NotifyOnSuccess: req.NotifyOnSuccess,
		NotifyOnError:   req.NotifyOnError,
	}
	if cfg.Accounts == nil {
		cfg.Accounts = make(map[AccountRole]Account)
	}
	if cfg.Journals == nil {
		cfg.Journals = make(map[JournalKind]Journal)
	}
	if cfg.QuotePrefix == "" {
		cfg.QuotePrefix = DefaultQuotePrefix
	}
	if cfg.InvoicePrefix == "" {
		cfg.InvoicePrefix = DefaultInvoicePrefix
	}
	if cfg.ExportFormat == "" {
		cfg.ExportFormat = FormatFiscal
	}
	if cfg.SyncFrequency == "" {
		cfg.SyncFrequency = SyncManual
	}

	for role := range cfg.Accounts {
		if !validRole(role) {
			return nil, fmt.Errorf("unknown account role %q", role)
		}
	}
	for kind := range cfg.Journals {
		switch kind {
		case JournalSales, JournalPurchases, JournalBank:
		default:
			return nil, fmt.Errorf("unknown journal kind %q", kind)
		}
	}

	if _, err := s.repo.Activate(ctx, scope, cfg); err != nil {
		return nil, err
	}
	return s.repo.GetActive(ctx, scope)
}

func validRole(role AccountRole) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// MissingRoles reports which roles an active configuration still lacks.
// The pending-items view uses it to show why an item is blocked.
func (s *Service) MissingRoles(ctx context.Context, scope tenant.Scope) ([]AccountRole, error) {
	cfg, err := s.repo.GetActive(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return AllRoles, nil
		}
		return nil, err
	}
	var missing []AccountRole
	for _, role := range AllRoles {
		if acc, ok := cfg.Accounts[role]; !ok || acc.Code == "" {
			missing = append(missing, role)
		}
	}
	return missing, nil
}

// DocumentPrefix implements the numbering port for documents: prefixes come
// from the active configuration, with French defaults when unset.
func (s *Service) DocumentPrefix(ctx context.Context, scope tenant.Scope, docType documents.DocType) (string, error) {
	cfg, err := s.repo.GetActive(ctx, scope)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return "", err
	}

	switch docType {
	case documents.DocTypeQuote:
		if cfg != nil && cfg.QuotePrefix != "" {
			return cfg.QuotePrefix, nil
		}
		return DefaultQuotePrefix, nil
	case documents.DocTypeInvoice:
		if cfg != nil && cfg.InvoicePrefix != "" {
			return cfg.InvoicePrefix, nil
		}
		return DefaultInvoicePrefix, nil
	default:
		return "", fmt.Errorf("unknown document type %q", docType)
	}
}
