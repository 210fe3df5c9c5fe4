package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Strob0t/MarketForge/internal/domain"
)

// Subdomain length bounds (inclusive).
const (
	MinSubdomainLen = 3
	MaxSubdomainLen = 63
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// reservedSubdomains are never routed to a tenant by the resolver.
var reservedSubdomains = map[string]bool{
	"www": true,
	"app": true,
}

// IsReserved reports whether s is a platform-reserved label.
func IsReserved(s string) bool {
	return reservedSubdomains[s]
}

// ValidateSubdomain checks an already normalized subdomain.
func ValidateSubdomain(s string) error {
	if len(s) < MinSubdomainLen || len(s) > MaxSubdomainLen {
		return fmt.Errorf("%w: subdomain must be %d-%d characters", domain.ErrValidation, MinSubdomainLen, MaxSubdomainLen)
	}
	if !subdomainPattern.MatchString(s) {
		return fmt.Errorf("%w: subdomain may only contain lowercase letters, digits and hyphens", domain.ErrValidation)
	}
	if IsReserved(s) {
		return fmt.Errorf("%w: subdomain %q is reserved", domain.ErrValidation, s)
	}
	return nil
}

// ValidateName checks a tenant display name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name exceeds 255 characters", domain.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control characters", domain.ErrValidation)
		}
	}
	return nil
}

// Normalize lowercases the subdomain and trims the name in place.
func (r *SetupRequest) Normalize() {
	r.Subdomain = NormalizeSubdomain(r.Subdomain)
	r.Name = strings.TrimSpace(r.Name)
}

// Validate checks a normalized SetupRequest. The custom domain is validated
// separately by the customdomain package.
func (r *SetupRequest) Validate() error {
	if err := ValidateSubdomain(r.Subdomain); err != nil {
		return err
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if len(r.Description) > 2000 {
		return fmt.Errorf("%w: description exceeds 2000 characters", domain.ErrValidation)
	}
	return nil
}

// Validate checks an UpdateRequest, normalizing the subdomain if present.
func (r *UpdateRequest) Validate() error {
	if r.Name != nil {
		if err := ValidateName(*r.Name); err != nil {
			return err
		}
	}
	if r.Subdomain != nil {
		s := NormalizeSubdomain(*r.Subdomain)
		r.Subdomain = &s
		if err := ValidateSubdomain(s); err != nil {
			return err
		}
	}
	if r.Plan != nil && !ValidPlans[*r.Plan] {
		return fmt.Errorf("%w: invalid plan %q", domain.ErrValidation, *r.Plan)
	}
	if r.Status != nil && !ValidStatuses[*r.Status] {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *r.Status)
	}
	return nil
}

// Apply copies the set fields of r onto t.
func (r *UpdateRequest) Apply(t *Tenant) {
	if r.Name != nil {
		t.Name = *r.Name
	}
	if r.Subdomain != nil {
		t.Subdomain = *r.Subdomain
	}
	if r.Plan != nil {
		t.Plan = *r.Plan
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Settings != nil {
		t.Settings = r.Settings
	}
}
