package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/MarketForge/internal/domain/tenant"
)

const tenantColumns = `id, name, subdomain, plan, status, settings, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var settings []byte
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Plan, &t.Status, &settings, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Settings = jsonMap(settings)
	return t, nil
}

// CreateTenant inserts a tenant with its caller-chosen id. A taken subdomain
// surfaces as domain.ErrConflict from the unique constraint.
func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	settings, err := jsonObject(t.Settings)
	if err != nil {
		return fmt.Errorf("create tenant %s: encode settings: %w", t.ID, err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name, subdomain, plan, status, settings)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Subdomain, t.Plan, t.Status, settings,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return writeErr(err, "create tenant %s", t.ID)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) GetTenantBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant by subdomain %s", subdomain)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context, f tenant.ListFilter) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at ASC, id ASC
		 LIMIT NULLIF($2::int, 0) OFFSET $3`,
		string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return orEmpty(tenants), rows.Err()
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	settings, err := jsonObject(t.Settings)
	if err != nil {
		return fmt.Errorf("update tenant %s: encode settings: %w", t.ID, err)
	}
	err = s.pool.QueryRow(ctx,
		`UPDATE tenants SET name = $2, subdomain = $3, plan = $4, status = $5, settings = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.Name, t.Subdomain, t.Plan, t.Status, settings,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return notFoundWrap(err, "update tenant %s", t.ID)
		}
		return writeErr(err, "update tenant %s", t.ID)
	}
	return nil
}

// DeleteTenant hard-deletes a tenant and, by cascade, its dependents. It is
// only used to clean up a failed provisioning run and is idempotent.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	return nil
}

func (s *Store) CountTenants(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return n, nil
}
