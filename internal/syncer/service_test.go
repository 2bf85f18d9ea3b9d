package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/tenant"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeDocs struct {
	invoices map[int64]*documents.Invoice
	payments map[int64]*documents.Payment
}

func (f *fakeDocs) GetInvoice(_ context.Context, scope tenant.Scope, id int64) (*documents.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return nil, documents.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeDocs) GetPayment(_ context.Context, scope tenant.Scope, id int64) (*documents.Payment, error) {
	p, ok := f.payments[id]
	if !ok || p.TenantID != scope.TenantID() {
		return nil, documents.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeConfigs struct {
	mu  sync.Mutex
	cfg *accounting.Config
}

func (f *fakeConfigs) GetActive(context.Context, tenant.Scope) (*accounting.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		return nil, accounting.ErrNotConfigured
	}
	cp := *f.cfg
	return &cp, nil
}

func (f *fakeConfigs) set(cfg *accounting.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	failWith map[string]error
}

func (f *fakeTransport) Transmit(_ context.Context, _ tenant.Scope, reference string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[reference]; ok {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("empty payload for %s", reference)
	}
	f.sent = append(f.sent, reference)
	return nil
}

type noopLock struct{}

func (noopLock) Acquire(context.Context, int64) (func(), error) {
	return func() {}, nil
}

func testConfig() *accounting.Config {
	return &accounting.Config{
		Accounts: map[accounting.AccountRole]accounting.Account{
			accounting.RoleSales:        {Code: "706000", Label: "Prestations"},
			accounting.RoleVATCollected: {Code: "445710", Label: "TVA collectee"},
			accounting.RoleCustomers:    {Code: "411000", Label: "Clients"},
			accounting.RoleBank:         {Code: "512000", Label: "Banque"},
			accounting.RoleCash:         {Code: "530000", Label: "Caisse"},
		},
		Journals: map[accounting.JournalKind]accounting.Journal{
			accounting.JournalSales: {Code: "VE", Label: "Ventes"},
			accounting.JournalBank:  {Code: "BQ", Label: "Banque"},
		},
	}
}

func invoice(tenantID, id int64, number string, ht, tva string) *documents.Invoice {
	n := number
	return &documents.Invoice{
		ID:        id,
		TenantID:  tenantID,
		Number:    &n,
		Status:    documents.InvoiceStatusSent,
		IssueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		TotalHT:   d(ht),
		TotalTVA:  d(tva),
		TotalTTC:  d(ht).Add(d(tva)),
	}
}

func testScope(t *testing.T, id int64) tenant.Scope {
	t.Helper()
	scope, err := tenant.NewScope(id)
	require.NoError(t, err)
	return scope
}

func newTestEnv(t *testing.T) (*memoryRepo, *fakeDocs, *fakeConfigs, *fakeTransport, *Service) {
	t.Helper()
	repo := newMemoryRepo()
	docs := &fakeDocs{
		invoices: make(map[int64]*documents.Invoice),
		payments: make(map[int64]*documents.Payment),
	}
	cfgs := &fakeConfigs{cfg: testConfig()}
	transport := &fakeTransport{failWith: make(map[string]error)}
	svc := NewService(repo, docs, cfgs, transport, noopLock{}, slog.New(slog.DiscardHandler))
	return repo, docs, cfgs, transport, svc
}

func TestRunProcessesPendingItems(t *testing.T) {
	repo, docs, _, transport, svc := newTestEnv(t)
	scope := testScope(t, 1)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "20.00")
	docs.invoices[2] = invoice(1, 2, "FAC-000002", "50.00", "10.00")
	repo.addItem(1, documents.LedgerItemInvoice, 1, nil)
	repo.addItem(1, documents.LedgerItemInvoice, 2, nil)

	run, err := svc.Run(context.Background(), scope, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 2, run.Processed)
	require.Equal(t, 2, run.Succeeded)
	require.Equal(t, 0, run.Failed)
	require.ElementsMatch(t, []string{"FAC-000001", "FAC-000002"}, transport.sent)

	remaining, err := svc.ListItems(context.Background(), scope, nil, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.Len(t, repo.attempts, 2)
}

func TestRunWithIncompleteConfigurationThenRetry(t *testing.T) {
	repo, docs, cfgs, transport, svc := newTestEnv(t)
	scope := testScope(t, 1)

	// Two invoices without tax, one with tax while the VAT role is
	// unmapped: the taxed item fails, the others are unaffected.
	cfg := testConfig()
	delete(cfg.Accounts, accounting.RoleVATCollected)
	cfgs.set(cfg)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "0")
	docs.invoices[2] = invoice(1, 2, "FAC-000002", "200.00", "40.00")
	docs.invoices[3] = invoice(1, 3, "FAC-000003", "300.00", "0")
	repo.addItem(1, documents.LedgerItemInvoice, 1, nil)
	blocked := repo.addItem(1, documents.LedgerItemInvoice, 2, nil)
	repo.addItem(1, documents.LedgerItemInvoice, 3, nil)

	run, err := svc.Run(context.Background(), scope, TriggerScheduled)
	require.NoError(t, err)
	require.Equal(t, 3, run.Processed)
	require.Equal(t, 2, run.Succeeded)
	require.Equal(t, 1, run.Failed)

	errored, err := svc.ListItems(context.Background(), scope, []Status{StatusError}, 0)
	require.NoError(t, err)
	require.Len(t, errored, 1)
	require.Equal(t, blocked, errored[0].ID)
	require.NotNil(t, errored[0].LastError)
	require.Contains(t, *errored[0].LastError, "incomplete accounting configuration")
	require.Contains(t, *errored[0].LastError, "vat_collected")

	// Completing the configuration makes the explicit retry succeed.
	cfgs.set(testConfig())
	item, err := svc.RetryItem(context.Background(), scope, blocked)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, item.Status)
	require.Contains(t, transport.sent, "FAC-000002")

	remaining, err := svc.ListItems(context.Background(), scope, nil, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestTransportFailureIsIsolated(t *testing.T) {
	repo, docs, _, transport, svc := newTestEnv(t)
	scope := testScope(t, 1)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "20.00")
	docs.invoices[2] = invoice(1, 2, "FAC-000002", "50.00", "10.00")
	repo.addItem(1, documents.LedgerItemInvoice, 1, nil)
	failing := repo.addItem(1, documents.LedgerItemInvoice, 2, nil)
	transport.failWith["FAC-000002"] = fmt.Errorf("connection refused")

	run, err := svc.Run(context.Background(), scope, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, run.Succeeded)
	require.Equal(t, 1, run.Failed)

	item, err := repo.GetItem(context.Background(), scope, failing)
	require.NoError(t, err)
	require.Equal(t, StatusError, item.Status)
	require.Contains(t, *item.LastError, "sync transport error")
}

func TestPaymentItemDerivesPaymentEntry(t *testing.T) {
	repo, docs, _, transport, svc := newTestEnv(t)
	scope := testScope(t, 1)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "20.00")
	docs.payments[9] = &documents.Payment{
		ID: 9, TenantID: 1, InvoiceID: 1,
		Amount: d("120.00"), Method: "bank",
		PaidAt: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	paymentID := int64(9)
	repo.addItem(1, documents.LedgerItemPayment, 1, &paymentID)

	run, err := svc.Run(context.Background(), scope, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, run.Succeeded)
	require.Equal(t, []string{"FAC-000001-P9"}, transport.sent)
}

func TestRunWithoutAnyConfigMarksItemsRetryable(t *testing.T) {
	repo, docs, cfgs, _, svc := newTestEnv(t)
	scope := testScope(t, 1)
	cfgs.set(nil)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "20.00")
	repo.addItem(1, documents.LedgerItemInvoice, 1, nil)

	run, err := svc.Run(context.Background(), scope, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, run.Failed)

	errored, err := svc.ListItems(context.Background(), scope, []Status{StatusError}, 0)
	require.NoError(t, err)
	require.Len(t, errored, 1)
}

func TestReclaimStaleInProgress(t *testing.T) {
	repo, docs, _, _, svc := newTestEnv(t)
	scope := testScope(t, 1)

	docs.invoices[1] = invoice(1, 1, "FAC-000001", "100.00", "20.00")
	id := repo.addItem(1, documents.LedgerItemInvoice, 1, nil)

	stale := time.Now().Add(-time.Hour)
	repo.mu.Lock()
	repo.items[id].Status = StatusInProgress
	repo.items[id].LockedAt = &stale
	repo.mu.Unlock()

	n, err := svc.Reclaim(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	item, err := repo.GetItem(context.Background(), scope, id)
	require.NoError(t, err)
	require.Equal(t, StatusError, item.Status)
}

func TestRunLockSerializesRunsPerTenant(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lock := NewRunLock(client, time.Minute)

	release, err := lock.Acquire(context.Background(), 1)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background(), 1)
	require.ErrorIs(t, err, ErrRunInProgress)

	// A different tenant is unaffected.
	release2, err := lock.Acquire(context.Background(), 2)
	require.NoError(t, err)
	release2()

	release()
	release3, err := lock.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release3()
}
