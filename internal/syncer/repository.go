package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturio/facturio/internal/tenant"
)

type Repository interface {
	GetItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error)
	// ClaimItems atomically moves up to limit items in the given statuses to
	// IN_PROGRESS and returns them. Concurrent claimers never get the same
	// item.
	ClaimItems(ctx context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error)
	// ClaimItem claims a single retryable item by id; fails with
	// ErrItemNotFound if the item is missing or already running.
	ClaimItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error)
	MarkItem(ctx context.Context, scope tenant.Scope, id uuid.UUID, status Status, errDetail *string) error
	// ResetItem returns an item to PENDING for an explicit retry.
	ResetItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
	// ReclaimStale runs tenant-wide: items stuck IN_PROGRESS longer than
	// threshold are marked ERROR so they re-enter the retry queue.
	ReclaimStale(ctx context.Context, threshold time.Duration) (int, error)

	InsertRun(ctx context.Context, scope tenant.Scope, run Run) error
	FinishRun(ctx context.Context, scope tenant.Scope, run Run) error
	ListRuns(ctx context.Context, scope tenant.Scope, limit int) ([]Run, error)

	InsertAttempt(ctx context.Context, scope tenant.Scope, att Attempt) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, tenant_id, kind, invoice_id, payment_id, status, attempts,
	last_error, locked_at, created_at, updated_at`

func (r *repository) GetItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM ledger_sync_items WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *repository) ListItems(ctx context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM ledger_sync_items
		 WHERE tenant_id = $1 AND status = ANY($2)
		 ORDER BY created_at, id LIMIT $3`,
		scope.TenantID(), statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *repository) ClaimItems(ctx context.Context, scope tenant.Scope, statuses []Status, limit int) ([]Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE ledger_sync_items SET status = 'IN_PROGRESS', locked_at = NOW(),
			attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM ledger_sync_items
			WHERE tenant_id = $1 AND status = ANY($2)
			ORDER BY created_at, id LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+itemColumns,
		scope.TenantID(), statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *repository) ClaimItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Item, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE ledger_sync_items SET status = 'IN_PROGRESS', locked_at = NOW(),
			attempts = attempts + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status IN ('PENDING', 'ERROR')
		RETURNING `+itemColumns,
		scope.TenantID(), id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *repository) MarkItem(ctx context.Context, scope tenant.Scope, id uuid.UUID, status Status, errDetail *string) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE ledger_sync_items SET status = $3, last_error = $4, locked_at = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id, status, errDetail)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) ResetItem(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return r.MarkItem(ctx, scope, id, StatusPending, nil)
}

func (r *repository) ReclaimStale(ctx context.Context, threshold time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ledger_sync_items
		SET status = 'ERROR', last_error = 'reclaimed: stale in_progress', locked_at = NULL, updated_at = NOW()
		WHERE status = 'IN_PROGRESS' AND locked_at < NOW() - $1::interval`,
		threshold.String())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) InsertRun(ctx context.Context, scope tenant.Scope, run Run) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, tenant_id, trigger_source, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, scope.TenantID(), run.Trigger, run.Status, run.StartedAt)
	return err
}

func (r *repository) FinishRun(ctx context.Context, scope tenant.Scope, run Run) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_runs SET status = $3, processed = $4, succeeded = $5, failed = $6,
			error_detail = $7, finished_at = $8
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), run.ID, run.Status, run.Processed, run.Succeeded,
		run.Failed, run.ErrorDetail, run.FinishedAt)
	return err
}

func (r *repository) ListRuns(ctx context.Context, scope tenant.Scope, limit int) ([]Run, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, trigger_source, status, processed, succeeded, failed,
		       error_detail, started_at, finished_at
		FROM sync_runs WHERE tenant_id = $1
		ORDER BY started_at DESC LIMIT $2`,
		scope.TenantID(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run         Run
			errorDetail pgtype.Text
			finishedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(&run.ID, &run.TenantID, &run.Trigger, &run.Status,
			&run.Processed, &run.Succeeded, &run.Failed, &errorDetail,
			&run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		if errorDetail.Valid {
			run.ErrorDetail = &errorDetail.String
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *repository) InsertAttempt(ctx context.Context, scope tenant.Scope, att Attempt) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_attempts (id, tenant_id, item_id, run_id, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		att.ID, scope.TenantID(), att.ItemID, att.RunID, att.Status, att.Error,
		att.StartedAt, att.FinishedAt)
	return err
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanItem(row pgx.Row) (*Item, error) {
	var (
		item      Item
		paymentID pgtype.Int8
		lastError pgtype.Text
		lockedAt  pgtype.Timestamptz
	)
	err := row.Scan(&item.ID, &item.TenantID, &item.Kind, &item.InvoiceID,
		&paymentID, &item.Status, &item.Attempts, &lastError, &lockedAt,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		item.PaymentID = &paymentID.Int64
	}
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	if lockedAt.Valid {
		item.LockedAt = &lockedAt.Time
	}
	return &item, nil
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}
