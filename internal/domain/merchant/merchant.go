// Package merchant defines the link between a tenant and a user that
// operates it.
package merchant

import "time"

// Role is the merchant's role within the tenant.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleStaff Role = "STAFF"
)

// Merchant is unique per (TenantID, UserID).
type Merchant struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}
