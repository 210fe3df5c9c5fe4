// Package tenant defines the tenant (market) domain model.
package tenant

import (
	"strings"
	"time"
)

// Plan is the commercial plan of a tenant.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanBasic      Plan = "BASIC"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// ValidPlans is the set of all valid plans.
var ValidPlans = map[Plan]bool{
	PlanFree:       true,
	PlanBasic:      true,
	PlanPro:        true,
	PlanEnterprise: true,
}

// Status is the lifecycle status of a tenant.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE" // soft-deleted
)

// ValidStatuses is the set of all valid statuses.
var ValidStatuses = map[Status]bool{
	StatusActive:    true,
	StatusSuspended: true,
	StatusInactive:  true,
}

// Tenant is an independent storefront. The ID is chosen by the caller at
// creation time and never generated by the store.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Subdomain string         `json:"subdomain"`
	Plan      Plan           `json:"plan"`
	Status    Status         `json:"status"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SetupRequest holds the fields a merchant supplies to provision a new tenant.
type SetupRequest struct {
	Name         string `json:"name"`
	Subdomain    string `json:"subdomain"`
	Description  string `json:"description,omitempty"`
	CustomDomain string `json:"custom_domain,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
}

// UpdateRequest holds the administratively mutable fields of a tenant.
type UpdateRequest struct {
	Name      *string        `json:"name,omitempty"`
	Subdomain *string        `json:"subdomain,omitempty"`
	Plan      *Plan          `json:"plan,omitempty"`
	Status    *Status        `json:"status,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
}

// ListFilter narrows ListTenants results. Zero values mean no filter.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// NormalizeSubdomain lowercases and trims a user-supplied subdomain.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
