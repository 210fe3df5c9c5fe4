package postgres

import (
	"context"

	"github.com/Strob0t/MarketForge/internal/domain/merchant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
)

// UpsertUser mirrors an identity-store account locally. Empty email or name
// never overwrite known values.
func (s *Store) UpsertUser(ctx context.Context, u *user.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		   SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		       name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		       updated_at = now()
		 RETURNING email, name, created_at, updated_at`,
		u.ID, u.Email, u.Name,
	).Scan(&u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return writeErr(err, "upsert user %s", u.ID)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) CreateMerchant(ctx context.Context, m *merchant.Merchant) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO merchants (id, tenant_id, user_id, display_name, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		m.ID, m.TenantID, m.UserID, m.DisplayName, m.Role,
	).Scan(&m.CreatedAt)
	if err != nil {
		return writeErr(err, "create merchant for tenant %s", m.TenantID)
	}
	return nil
}

func (s *Store) GetMerchant(ctx context.Context, tenantID, userID string) (*merchant.Merchant, error) {
	var m merchant.Merchant
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, display_name, role, created_at
		 FROM merchants WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID,
	).Scan(&m.ID, &m.TenantID, &m.UserID, &m.DisplayName, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get merchant %s/%s", tenantID, userID)
	}
	return &m, nil
}
