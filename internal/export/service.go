package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/tenant"
)

// DocumentSource is the slice of the documents repository the exporter
// reads. Satisfied by documents.Repository.
type DocumentSource interface {
	ListInvoices(ctx context.Context, scope tenant.Scope, filter documents.ListFilter) ([]documents.Invoice, int, error)
	ListPayments(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]documents.Payment, error)
	GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*documents.Invoice, error)
}

// ConfigSource yields the tenant's active accounting configuration.
type ConfigSource interface {
	GetActive(ctx context.Context, scope tenant.Scope) (*accounting.Config, error)
}

type Service struct {
	docs DocumentSource
	cfgs ConfigSource
}

func NewService(docs DocumentSource, cfgs ConfigSource) *Service {
	return &Service{docs: docs, cfgs: cfgs}
}

const pageSize = 200

// CollectJournalLines derives the full journal for the date range: issuance
// entries for every numbered invoice issued in range, payment entries for
// every payment received in range. Output order is deterministic.
func (s *Service) CollectJournalLines(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]accounting.JournalLine, error) {
	cfg, err := s.cfgs.GetActive(ctx, scope)
	if err != nil {
		return nil, err
	}

	var lines []accounting.JournalLine
	for _, status := range []documents.InvoiceStatus{documents.InvoiceStatusSent, documents.InvoiceStatusPaid} {
		offset := 0
		for {
			batch, _, err := s.docs.ListInvoices(ctx, scope, documents.ListFilter{
				Status:   string(status),
				DateFrom: &from,
				DateTo:   &to,
				Limit:    pageSize,
				Offset:   offset,
			})
			if err != nil {
				return nil, fmt.Errorf("list invoices: %w", err)
			}
			for i := range batch {
				inv := batch[i]
				if inv.Number == nil {
					continue
				}
				derived, err := accounting.DeriveInvoiceIssuance(cfg, &inv)
				if err != nil {
					return nil, err
				}
				lines = append(lines, derived...)
			}
			if len(batch) < pageSize {
				break
			}
			offset += pageSize
		}
	}

	payments, err := s.docs.ListPayments(ctx, scope, from, to)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for i := range payments {
		p := payments[i]
		inv, err := s.docs.GetInvoice(ctx, scope, p.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("payment %d invoice: %w", p.ID, err)
		}
		derived, err := accounting.DerivePayment(cfg, inv, &p)
		if err != nil {
			return nil, err
		}
		lines = append(lines, derived...)
	}

	// Stable so the debit/credit order inside one entry survives.
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].EntryDate.Equal(lines[j].EntryDate) {
			return lines[i].EntryDate.Before(lines[j].EntryDate)
		}
		return lines[i].EntryNumber < lines[j].EntryNumber
	})
	return lines, nil
}

// GenerateRequest selects the range and, optionally, a format overriding
// the tenant configuration.
type GenerateRequest struct {
	From   time.Time
	To     time.Time
	Format accounting.ExportFormat
}

// Generate collects and renders the journal for the range, returning the
// number of journal lines written.
func (s *Service) Generate(ctx context.Context, scope tenant.Scope, w io.Writer, req GenerateRequest) (int, error) {
	format := req.Format
	if format == "" {
		cfg, err := s.cfgs.GetActive(ctx, scope)
		if err != nil {
			return 0, err
		}
		format = cfg.ExportFormat
	}

	lines, err := s.CollectJournalLines(ctx, scope, req.From, req.To)
	if err != nil {
		return 0, err
	}

	switch format {
	case accounting.FormatFiscal:
		err = RenderFiscal(w, lines, DelimiterTab)
	case accounting.FormatGeneric:
		err = RenderGeneric(w, lines)
	default:
		return 0, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}
