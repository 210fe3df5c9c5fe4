// Package identity defines the port to the external identity/auth store that
// owns user accounts and the per-user market quota.
package identity

import (
	"context"

	"github.com/Strob0t/MarketForge/internal/domain/user"
)

// Quota is the caller's market-creation allowance.
type Quota struct {
	Allowed      bool `json:"allowed"`
	CurrentCount int  `json:"currentCount"`
	Limit        int  `json:"limit"`
}

// Market is the tenant record registered in the identity store.
type Market struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
}

// Client is the typed boundary to the identity store. Every failure
// (transport, non-2xx status, malformed body) wraps domain.ErrExternalService.
type Client interface {
	// CheckCanCreate returns the caller's quota. It never reports Allowed on failure.
	CheckCanCreate(ctx context.Context, caller *user.Session) (*Quota, error)
	// CreateAndLink registers the market and links the caller as its owner.
	CreateAndLink(ctx context.Context, caller *user.Session, m Market) error
	// LinkExisting links the caller to an already registered market.
	LinkExisting(ctx context.Context, caller *user.Session, tenantID string) error
}
