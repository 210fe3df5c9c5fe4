package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/MarketForge/internal/domain"
)

// SQLSTATE codes mapped onto domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// conflictMessages gives the user-facing reason for each unique constraint.
var conflictMessages = map[string]string{
	"tenants_subdomain_key":     "subdomain already taken",
	"custom_domains_pkey":       "domain already registered",
	"merchants_tenant_user_key": "merchant already exists",
	"pages_tenant_slug_key":     "page slug already exists",
	"site_configs_pkey":         "site config already exists",
	"tenants_pkey":              "tenant id already exists",
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// writeErr maps constraint violations on a write to domain errors. Unique
// violations become domain.ErrConflict carrying the constraint's reason;
// foreign key violations mean the referenced parent is gone.
func writeErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			reason, ok := conflictMessages[pgErr.ConstraintName]
			if !ok {
				reason = "duplicate value"
			}
			return fmt.Errorf("%s: %w: %s", msg, domain.ErrConflict, reason)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: referenced row missing: %w", msg, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return writeErr(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}

// jsonMap decodes a JSONB object column; a NULL or malformed value yields nil.
func jsonMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// jsonObject encodes a map for a NOT NULL JSONB column.
func jsonObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
