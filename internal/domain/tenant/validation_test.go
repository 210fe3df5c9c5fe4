package tenant

import (
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/MarketForge/internal/domain"
)

func TestValidateSubdomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"length 2", "ab", true},
		{"length 3", "abc", false},
		{"length 63", strings.Repeat("a", 63), false},
		{"length 64", strings.Repeat("a", 64), true},
		{"hyphen and digits", "my-shop-42", false},
		{"underscore", "my_shop", true},
		{"dot", "my.shop", true},
		{"uppercase unnormalized", "Shop", true},
		{"reserved www", "www", true},
		{"reserved app", "app", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubdomain(tt.input)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSetupRequest_NormalizeThenValidate(t *testing.T) {
	req := SetupRequest{Name: "  Acme Store ", Subdomain: "  ACME-Shop "}
	req.Normalize()
	if req.Subdomain != "acme-shop" {
		t.Fatalf("subdomain = %q, want acme-shop", req.Subdomain)
	}
	if req.Name != "Acme Store" {
		t.Fatalf("name = %q, want %q", req.Name, "Acme Store")
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetupRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SetupRequest
		wantErr string
	}{
		{name: "valid", req: SetupRequest{Name: "Acme", Subdomain: "acme"}},
		{name: "missing name", req: SetupRequest{Subdomain: "acme"}, wantErr: "name is required"},
		{name: "long name", req: SetupRequest{Name: strings.Repeat("n", 256), Subdomain: "acme"}, wantErr: "name exceeds 255 characters"},
		{name: "control char", req: SetupRequest{Name: "bad\x00", Subdomain: "acme"}, wantErr: "control characters"},
		{name: "long description", req: SetupRequest{Name: "A", Subdomain: "acme", Description: strings.Repeat("d", 2001)}, wantErr: "description exceeds"},
		{name: "bad subdomain", req: SetupRequest{Name: "A", Subdomain: "a"}, wantErr: "subdomain must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUpdateRequest_ValidateAndApply(t *testing.T) {
	sub := "  NewName "
	plan := PlanPro
	req := UpdateRequest{Subdomain: &sub, Plan: &plan}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *req.Subdomain != "newname" {
		t.Fatalf("subdomain not normalized: %q", *req.Subdomain)
	}

	tn := Tenant{ID: "t1", Name: "Old", Subdomain: "old", Plan: PlanBasic, Status: StatusActive}
	req.Apply(&tn)
	if tn.Subdomain != "newname" || tn.Plan != PlanPro || tn.Name != "Old" {
		t.Fatalf("unexpected tenant after apply: %+v", tn)
	}

	bad := Status("DELETED")
	if err := (&UpdateRequest{Status: &bad}).Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad status, got %v", err)
	}
	badPlan := Plan("GOLD")
	if err := (&UpdateRequest{Plan: &badPlan}).Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad plan, got %v", err)
	}
}
