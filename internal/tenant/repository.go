package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no tenant matched the lookup.
var ErrNotFound = errors.New("tenant not found")

// Tenant is the business account owning all other rows.
type Tenant struct {
	ID         int64
	Name       string
	APIKeyHash string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository looks tenants up for authentication and scheduling.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetByAPIKeyPrefix(ctx context.Context, prefix string) (*Tenant, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed tenant repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	return r.get(ctx, `SELECT id, name, api_key_hash, is_active, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

// GetByAPIKeyPrefix resolves a tenant from the public prefix of its API key.
// The secret part is verified against api_key_hash by the middleware.
func (r *repository) GetByAPIKeyPrefix(ctx context.Context, prefix string) (*Tenant, error) {
	return r.get(ctx, `SELECT id, name, api_key_hash, is_active, created_at, updated_at FROM tenants WHERE api_key_prefix = $1`, prefix)
}

func (r *repository) get(ctx context.Context, query string, arg any) (*Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.Name, &t.APIKeyHash, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants WHERE is_active ORDER BY id`)
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
