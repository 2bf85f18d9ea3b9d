package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/export"
	"github.com/facturio/facturio/internal/tenant"
)

// DocumentSource is the slice of the documents repository the syncer reads.
// Satisfied by documents.Repository.
type DocumentSource interface {
	GetInvoice(ctx context.Context, scope tenant.Scope, id int64) (*documents.Invoice, error)
	GetPayment(ctx context.Context, scope tenant.Scope, id int64) (*documents.Payment, error)
}

// ConfigSource yields the tenant's active accounting configuration.
type ConfigSource interface {
	GetActive(ctx context.Context, scope tenant.Scope) (*accounting.Config, error)
}

// Transport delivers a rendered payload to the tenant's accounting target.
// Implementations must be safe for concurrent use.
type Transport interface {
	Transmit(ctx context.Context, scope tenant.Scope, reference string, payload []byte) error
}

// Locker serializes runs per tenant.
type Locker interface {
	Acquire(ctx context.Context, tenantID int64) (func(), error)
}

type Service struct {
	repo      Repository
	docs      DocumentSource
	cfgs      ConfigSource
	transport Transport
	lock      Locker
	logger    *slog.Logger

	itemTimeout    time.Duration
	fanOut         int
	staleThreshold time.Duration
	now            func() time.Time
}

type Option func(*Service)

// WithItemTimeout bounds a single item's derivation plus transmission.
func WithItemTimeout(d time.Duration) Option {
	return func(s *Service) { s.itemTimeout = d }
}

// WithFanOut caps concurrent item processing within one run.
func WithFanOut(n int) Option {
	return func(s *Service) { s.fanOut = n }
}

// WithStaleThreshold sets how long IN_PROGRESS may persist before the
// watchdog reclaims the item.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Service) { s.staleThreshold = d }
}

// WithNow overrides the clock for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, docs DocumentSource, cfgs ConfigSource, transport Transport, lock Locker, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		docs:           docs,
		cfgs:           cfgs,
		transport:      transport,
		lock:           lock,
		logger:         logger,
		itemTimeout:    30 * time.Second,
		fanOut:         4,
		staleThreshold: 15 * time.Minute,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const claimBatch = 100

// Run processes the tenant's retryable queue: each item is derived,
// rendered and transmitted independently, so one failure never blocks the
// rest. Returns the finished run record.
func (s *Service) Run(ctx context.Context, scope tenant.Scope, trigger Trigger) (*Run, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	release, err := s.lock.Acquire(ctx, scope.TenantID())
	if err != nil {
		return nil, err
	}
	defer release()

	run := Run{
		ID:        uuid.New(),
		TenantID:  scope.TenantID(),
		Trigger:   trigger,
		Status:    StatusInProgress,
		StartedAt: s.now(),
	}
	if err := s.repo.InsertRun(ctx, scope, run); err != nil {
		return nil, fmt.Errorf("record sync run: %w", err)
	}

	// Load the config before claiming so an infrastructure failure here
	// cannot strand claimed items in IN_PROGRESS. A merely missing config
	// is not fatal: each item then fails with IncompleteConfiguration and
	// stays retryable.
	cfg, err := s.cfgs.GetActive(ctx, scope)
	if err != nil && !errors.Is(err, accounting.ErrNotConfigured) {
		return s.finishRunError(ctx, scope, run, fmt.Errorf("load accounting config: %w", err))
	}

	items, err := s.repo.ClaimItems(ctx, scope, []Status{StatusPending, StatusError}, claimBatch)
	if err != nil {
		return s.finishRunError(ctx, scope, run, fmt.Errorf("claim items: %w", err))
	}

	results := make([]Status, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i := range items {
		g.Go(func() error {
			results[i] = s.processItem(gctx, scope, cfg, items[i], &run.ID)
			return nil
		})
	}
	_ = g.Wait()

	run.Processed = len(items)
	for _, st := range results {
		if st == StatusSuccess {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}
	run.Status = StatusSuccess
	finished := s.now()
	run.FinishedAt = &finished
	if err := s.repo.FinishRun(ctx, scope, run); err != nil {
		return nil, fmt.Errorf("finish sync run: %w", err)
	}

	s.logger.Info("sync run finished",
		slog.Int64("tenant_id", scope.TenantID()),
		slog.String("trigger", string(trigger)),
		slog.Int("processed", run.Processed),
		slog.Int("succeeded", run.Succeeded),
		slog.Int("failed", run.Failed))
	return &run, nil
}

func (s *Service) finishRunError(ctx context.Context, scope tenant.Scope, run Run, cause error) (*Run, error) {
	detail := cause.Error()
	run.Status = StatusError
	run.ErrorDetail = &detail
	finished := s.now()
	run.FinishedAt = &finished
	if err := s.repo.FinishRun(ctx, scope, run); err != nil {
		s.logger.Error("finish failed sync run", slog.Any("error", err))
	}
	return nil, cause
}

// processItem handles one queued item end to end. Derivation and rendering
// happen first; transmission runs without holding any database lock. The
// returned status is what was recorded on the item.
func (s *Service) processItem(ctx context.Context, scope tenant.Scope, cfg *accounting.Config, item Item, runID *uuid.UUID) Status {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	err := s.syncItem(ctx, scope, cfg, item)
	status := StatusSuccess
	var detail *string
	if err != nil {
		status = StatusError
		reason := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timeout after %s: %s", s.itemTimeout, reason)
		}
		detail = &reason
		s.logger.Warn("sync item failed",
			slog.Int64("tenant_id", scope.TenantID()),
			slog.String("item_id", item.ID.String()),
			slog.String("reason", reason))
	}

	// Use the background context for bookkeeping so a per-item timeout
	// cannot leave the item stuck IN_PROGRESS.
	bookCtx, bookCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bookCancel()
	if err := s.repo.MarkItem(bookCtx, scope, item.ID, status, detail); err != nil {
		s.logger.Error("mark sync item", slog.Any("error", err))
	}
	att := Attempt{
		ID:         uuid.New(),
		ItemID:     item.ID,
		RunID:      runID,
		Status:     status,
		Error:      detail,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if err := s.repo.InsertAttempt(bookCtx, scope, att); err != nil {
		s.logger.Error("record sync attempt", slog.Any("error", err))
	}
	return status
}

func (s *Service) syncItem(ctx context.Context, scope tenant.Scope, cfg *accounting.Config, item Item) error {
	inv, err := s.docs.GetInvoice(ctx, scope, item.InvoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %d: %w", item.InvoiceID, err)
	}

	var lines []accounting.JournalLine
	switch item.Kind {
	case documents.LedgerItemInvoice:
		lines, err = accounting.DeriveInvoiceIssuance(cfg, inv)
	case documents.LedgerItemPayment:
		if item.PaymentID == nil {
			return fmt.Errorf("payment item %s has no payment id", item.ID)
		}
		var p *documents.Payment
		p, err = s.docs.GetPayment(ctx, scope, *item.PaymentID)
		if err != nil {
			return fmt.Errorf("load payment %d: %w", *item.PaymentID, err)
		}
		lines, err = accounting.DerivePayment(cfg, inv, p)
	default:
		return fmt.Errorf("unknown ledger item kind %q", item.Kind)
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.RenderFiscal(&buf, lines, export.DelimiterTab); err != nil {
		return fmt.Errorf("render item: %w", err)
	}

	reference := lines[0].EntryNumber
	if err := s.transport.Transmit(ctx, scope, reference, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	return nil
}

// RetryItem re-processes one errored item immediately, outside the
// scheduled cadence. The attempt is logged against a retry run.
func (s *Service) RetryItem(ctx context.Context, scope tenant.Scope, itemID uuid.UUID) (*Item, error) {
	item, err := s.repo.ClaimItem(ctx, scope, itemID)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:        uuid.New(),
		TenantID:  scope.TenantID(),
		Trigger:   TriggerRetry,
		Status:    StatusInProgress,
		StartedAt: s.now(),
	}
	if err := s.repo.InsertRun(ctx, scope, run); err != nil {
		return nil, fmt.Errorf("record retry run: %w", err)
	}

	cfg, err := s.cfgs.GetActive(ctx, scope)
	if err != nil && !errors.Is(err, accounting.ErrNotConfigured) {
		return s.retryFinish(ctx, scope, run, nil, err)
	}

	status := s.processItem(ctx, scope, cfg, *item, &run.ID)
	run.Processed = 1
	if status == StatusSuccess {
		run.Succeeded = 1
	} else {
		run.Failed = 1
	}
	return s.retryFinish(ctx, scope, run, &itemID, nil)
}

func (s *Service) retryFinish(ctx context.Context, scope tenant.Scope, run Run, itemID *uuid.UUID, cause error) (*Item, error) {
	run.Status = StatusSuccess
	if cause != nil {
		detail := cause.Error()
		run.Status = StatusError
		run.ErrorDetail = &detail
	}
	finished := s.now()
	run.FinishedAt = &finished
	if err := s.repo.FinishRun(ctx, scope, run); err != nil {
		s.logger.Error("finish retry run", slog.Any("error", err))
	}
	if cause != nil {
		return nil, cause
	}
	return s.repo.GetItem(ctx, scope, *itemID)
}

// ListItems exposes the pending/error queue with each item's last error, so
// operators can see exactly what is blocked and why.
func (s *Service) ListItems(ctx context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusPending, StatusError}
	}
	return s.repo.ListItems(ctx, scope, statuses, limit)
}

func (s *Service) ListRuns(ctx context.Context, scope tenant.Scope, limit int) ([]Run, error) {
	return s.repo.ListRuns(ctx, scope, limit)
}

// Reclaim is the stale in_progress watchdog: items locked longer than the
// threshold go back to the retryable queue as errors.
func (s *Service) Reclaim(ctx context.Context) (int, error) {
	n, err := s.repo.ReclaimStale(ctx, s.staleThreshold)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("reclaimed stale sync items", slog.Int("count", n))
	}
	return n, nil
}
