package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/MarketForge/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	caps database.Capabilities
}

// NewStore creates a new Store backed by the given connection pool. caps is
// resolved once at startup (see LoadCapabilities).
func NewStore(pool *pgxpool.Pool, caps database.Capabilities) *Store {
	return &Store{pool: pool, caps: caps}
}

// Capabilities returns the schema feature set the store was opened with.
func (s *Store) Capabilities() database.Capabilities {
	return s.caps
}
