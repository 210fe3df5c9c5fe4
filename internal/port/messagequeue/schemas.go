package messagequeue

// TenantProvisionedPayload is the schema for tenants.provisioned messages.
type TenantProvisionedPayload struct {
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	OwnerID   string `json:"owner_id"`
	Plan      string `json:"plan"`
}

// TenantUpdatedPayload is the schema for tenants.updated messages.
type TenantUpdatedPayload struct {
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	Status    string `json:"status"`
	Plan      string `json:"plan"`
}

// DomainChangedPayload is the schema for domains.changed messages.
// Action is one of "created", "activated", "deleted".
type DomainChangedPayload struct {
	Domain   string `json:"domain"`
	TenantID string `json:"tenant_id"`
	Action   string `json:"action"`
	Status   string `json:"status,omitempty"`
}

// CredentialsRotatedPayload is the schema for platform.credentials.rotated messages.
type CredentialsRotatedPayload struct {
	Key string `json:"key,omitempty"` // empty means all credentials
}
