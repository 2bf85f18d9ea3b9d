package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturio/facturio/internal/tenant"
)

var ErrNotFound = errors.New("client not found")

// ListFilter narrows a client listing.
type ListFilter struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

type Repository interface {
	Get(ctx context.Context, scope tenant.Scope, id int64) (*Client, error)
	List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Client, int, error)
	Create(ctx context.Context, scope tenant.Scope, c Client) (int64, error)
	Update(ctx context.Context, scope tenant.Scope, id int64, updates map[string]any) error
	Deactivate(ctx context.Context, scope tenant.Scope, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const clientColumns = `id, tenant_id, name, email, phone, address_line1, address_line2,
	city, postal_code, country, siren, vat_number, is_active, notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, scope tenant.Scope, id int64) (*Client, error) {
	if err := scope.Ensure(); err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM clients WHERE tenant_id = $1 AND id = $2`, clientColumns),
		scope.TenantID(), id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Client, int, error) {
	if err := scope.Ensure(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{scope.TenantID()}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR siren ILIKE $%d)", n, n, n))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM clients "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM clients %s ORDER BY name LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, scope tenant.Scope, c Client) (int64, error) {
	if err := scope.Ensure(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (tenant_id, name, email, phone, address_line1, address_line2,
			city, postal_code, country, siren, vat_number, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		scope.TenantID(), c.Name, textOf(c.Email), textOf(c.Phone),
		textOf(c.AddressLine1), textOf(c.AddressLine2), textOf(c.City),
		textOf(c.PostalCode), c.Country, textOf(c.Siren), textOf(c.VATNumber),
		c.IsActive, textOf(c.Notes),
	).Scan(&id)
	return id, err
}

var updatableColumns = map[string]bool{
	"name": true, "email": true, "phone": true,
	"address_line1": true, "address_line2": true, "city": true,
	"postal_code": true, "country": true, "siren": true,
	"vat_number": true, "is_active": true, "notes": true,
}

func (r *repository) Update(ctx context.Context, scope tenant.Scope, id int64, updates map[string]any) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	query := "UPDATE clients SET updated_at = NOW()"
	var args []any
	for _, col := range []string{
		"name", "email", "phone", "address_line1", "address_line2",
		"city", "postal_code", "country", "siren", "vat_number",
		"is_active", "notes",
	} {
		v, ok := updates[col]
		if !ok || !updatableColumns[col] {
			continue
		}
		args = append(args, v)
		query += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	args = append(args, scope.TenantID(), id)
	query += fmt.Sprintf(" WHERE tenant_id = $%d AND id = $%d", len(args)-1, len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, scope tenant.Scope, id int64) error {
	if err := scope.Ensure(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE clients SET is_active = FALSE, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var (
		c                                              Client
		email, phone, addr1, addr2, city, postal       pgtype.Text
		siren, vatNumber, notes                        pgtype.Text
		createdAt, updatedAt                           pgtype.Timestamptz
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &email, &phone, &addr1, &addr2,
		&city, &postal, &c.Country, &siren, &vatNumber, &c.IsActive, &notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Email = stringOf(email)
	c.Phone = stringOf(phone)
	c.AddressLine1 = stringOf(addr1)
	c.AddressLine2 = stringOf(addr2)
	c.City = stringOf(city)
	c.PostalCode = stringOf(postal)
	c.Siren = stringOf(siren)
	c.VATNumber = stringOf(vatNumber)
	c.Notes = stringOf(notes)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func textOf(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringOf(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}
