// Package customdomain defines externally owned domains bound to a tenant and
// the hostname normalization shared by resolution and validation.
package customdomain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/Strob0t/MarketForge/internal/domain"
)

// Status is the verification status of a custom domain.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
)

// SSL certificate states.
const (
	SSLPending = "PENDING"
	SSLActive  = "ACTIVE"
	SSLFailed  = "FAILED"
)

// CustomDomain binds a globally unique domain name to one tenant.
type CustomDomain struct {
	Domain     string     `json:"domain"`
	TenantID   string     `json:"tenant_id"`
	Status     Status     `json:"status"`
	SSLStatus  string     `json:"ssl_status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Blocking reports whether the domain occupies its name for subdomain
// allocation purposes.
func (d *CustomDomain) Blocking() bool {
	return d.Status == StatusActive || d.Status == StatusPending
}

// CreateRequest is the input for binding a custom domain to a tenant.
type CreateRequest struct {
	Domain   string `json:"domain"`
	TenantID string `json:"tenant_id"`
}

// ActivateRequest marks a domain verified.
type ActivateRequest struct {
	SSLStatus string `json:"ssl_status,omitempty"`
}

// NormalizeHost reduces a raw Host header or URL to a bare lowercase hostname:
// scheme, path, port and trailing dot are removed. IPv6 literals lose their
// brackets.
func NormalizeHost(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}

	switch {
	case strings.HasPrefix(h, "["):
		if end := strings.Index(h, "]"); end > 0 {
			h = h[1:end]
		}
	case strings.Count(h, ":") == 1:
		h = h[:strings.Index(h, ":")]
	}
	return strings.TrimSuffix(h, ".")
}

// Normalize converts a domain to its canonical ASCII (punycode) form and
// validates it as a registrable hostname.
func Normalize(raw string) (string, error) {
	h := NormalizeHost(raw)
	if h == "" {
		return "", fmt.Errorf("%w: domain is required", domain.ErrValidation)
	}
	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("%w: invalid domain %q", domain.ErrValidation, raw)
	}
	if len(ascii) > 253 {
		return "", fmt.Errorf("%w: domain exceeds 253 characters", domain.ErrValidation)
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("%w: domain %q must contain a dot", domain.ErrValidation, ascii)
	}
	return ascii, nil
}

// Validate normalizes the request in place.
func (r *CreateRequest) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", domain.ErrValidation)
	}
	d, err := Normalize(r.Domain)
	if err != nil {
		return err
	}
	r.Domain = d
	return nil
}

// PlatformDomain returns the synthesized domain for a subdomain on a base.
func PlatformDomain(subdomain, base string) string {
	return subdomain + "." + base
}
