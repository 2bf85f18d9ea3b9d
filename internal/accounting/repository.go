package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturio/facturio/internal/platform/db"
	"github.com/facturio/facturio/internal/tenant"
)

type Repository interface {
	GetActive(ctx context.Context, scope tenant.Scope) (*Config, error)
	// Activate inserts the config and deactivates any previous active one,
	// atomically. Returns the new config id.
	Activate(ctx context.Context, scope tenant.Scope, cfg Config) (int64, error)
	ListSyncSchedules(ctx context.Context) (map[int64]SyncSchedule, error)
}

// SyncSchedule is the per-tenant sync cadence the dispatcher reads.
type SyncSchedule struct {
	Frequency SyncFrequency
	Hour      int
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const configColumns = `id, tenant_id, accounts, journals, quote_prefix, invoice_prefix,
	export_format, sync_frequency, sync_hour, notify_on_success, notify_on_error,
	is_active, created_at, updated_at`

func (r *repository) GetActive(ctx context.Context, scope tenant.Scope) (*Config, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM accounting_configs WHERE tenant_id = $1 AND is_active`, configColumns),
		scope.TenantID())
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return cfg, nil
}

func (r *repository) Activate(ctx context.Context, scope tenant.Scope, cfg Config) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	accounts, err := json.Marshal(cfg.Accounts)
	if err != nil {
		return 0, fmt.Errorf("encode accounts: %w", err)
	}
	journals, err := json.Marshal(cfg.Journals)
	if err != nil {
		return 0, fmt.Errorf("encode journals: %w", err)
	}

	var id int64
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE accounting_configs SET is_active = FALSE, updated_at = NOW()
			 WHERE tenant_id = $1 AND is_active`, scope.TenantID()); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO accounting_configs (tenant_id, accounts, journals, quote_prefix,
				invoice_prefix, export_format, sync_frequency, sync_hour,
				notify_on_success, notify_on_error, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
			RETURNING id`,
			scope.TenantID(), accounts, journals, cfg.QuotePrefix, cfg.InvoicePrefix,
			cfg.ExportFormat, cfg.SyncFrequency, cfg.SyncHour,
			cfg.NotifyOnSuccess, cfg.NotifyOnError,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("activate accounting config: %w", err)
	}
	return id, nil
}

// ListSyncSchedules returns the sync frequency of every tenant with an
// active configuration. Used by the dispatcher, which runs outside any
// single tenant scope.
func (r *repository) ListSyncSchedules(ctx context.Context) (map[int64]SyncSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, sync_frequency, sync_hour FROM accounting_configs WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]SyncSchedule)
	for rows.Next() {
		var tenantID int64
		var sched SyncSchedule
		if err := rows.Scan(&tenantID, &sched.Frequency, &sched.Hour); err != nil {
			return nil, err
		}
		out[tenantID] = sched
	}
	return out, rows.Err()
}

func scanConfig(row pgx.Row) (*Config, error) {
	var (
		cfg                  Config
		accounts, journals   []byte
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &accounts, &journals, &cfg.QuotePrefix,
		&cfg.InvoicePrefix, &cfg.ExportFormat, &cfg.SyncFrequency, &cfg.SyncHour,
		&cfg.NotifyOnSuccess, &cfg.NotifyOnError, &cfg.IsActive,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(accounts, &cfg.Accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	if err := json.Unmarshal(journals, &cfg.Journals); err != nil {
		return nil, fmt.Errorf("decode journals: %w", err)
	}
	cfg.CreatedAt = createdAt.Time
	cfg.UpdatedAt = updatedAt.Time
	return &cfg, nil
}
