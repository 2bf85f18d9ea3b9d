package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/tenant"
)

// memoryRepo is the in-memory Repository used by the service tests.
type memoryRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*Item
	runs     map[uuid.UUID]*Run
	attempts []Attempt
	now      func() time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items: make(map[uuid.UUID]*Item),
		runs:  make(map[uuid.UUID]*Run),
		now:   time.Now,
	}
}

func (m *memoryRepo) addItem(tenantID int64, kind documents.LedgerItemKind, invoiceID int64, paymentID *int64) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.items[id] = &Item{
		ID: id, TenantID: tenantID, Kind: kind,
		InvoiceID: invoiceID, PaymentID: paymentID,
		Status: StatusPending, CreatedAt: m.now(),
	}
	return id
}

func (m *memoryRepo) sortedItems(tenantID int64, statuses []Status) []Item {
	wanted := make(map[Status]bool)
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []Item
	for _, item := range m.items {
		if item.TenantID == tenantID && wanted[item.Status] {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *memoryRepo) GetItem(_ context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.TenantID != scope.TenantID() {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *memoryRepo) ListItems(_ context.Context, scope tenant.Scope, statuses []Status, _ int) ([]Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedItems(scope.TenantID(), statuses), nil
}

func (m *memoryRepo) ClaimItems(_ context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	candidates := m.sortedItems(scope.TenantID(), statuses)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	var out []Item
	for _, c := range candidates {
		item := m.items[c.ID]
		item.Status = StatusInProgress
		now := m.now()
		item.LockedAt = &now
		item.Attempts++
		out = append(out, *item)
	}
	return out, nil
}

func (m *memoryRepo) ClaimItem(_ context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.TenantID != scope.TenantID() {
		return nil, ErrItemNotFound
	}
	if item.Status != StatusPending && item.Status != StatusError {
		return nil, ErrItemNotFound
	}
	item.Status = StatusInProgress
	now := m.now()
	item.LockedAt = &now
	item.Attempts++
	cp := *item
	return &cp, nil
}

func (m *memoryRepo) MarkItem(_ context.Context, scope tenant.Scope, id uuid.UUID, status Status, errDetail *string) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.TenantID != scope.TenantID() {
		return ErrItemNotFound
	}
	item.Status = status
	item.LastError = errDetail
	item.LockedAt = nil
	return nil
}

func (m *memoryRepo) ResetItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return m.MarkItem(ctx, scope, id, StatusPending, nil)
}

func (m *memoryRepo) ReclaimStale(_ context.Context, threshold time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-threshold)
	reason := "reclaimed: stale in_progress"
	n := 0
	for _, item := range m.items {
		if item.Status == StatusInProgress && item.LockedAt != nil && item.LockedAt.Before(cutoff) {
			item.Status = StatusError
			item.LastError = &reason
			item.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) InsertRun(_ context.Context, scope tenant.Scope, run Run) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memoryRepo) FinishRun(_ context.Context, scope tenant.Scope, run Run) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memoryRepo) ListRuns(_ context.Context, scope tenant.Scope, _ int) ([]Run, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, run := range m.runs {
		if run.TenantID == scope.TenantID() {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memoryRepo) InsertAttempt(_ context.Context, scope tenant.Scope, att Attempt) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, att)
	return nil
}
