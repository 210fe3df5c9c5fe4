// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness conflict (subdomain or domain already taken).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed input. Returned before any I/O happens.
var ErrValidation = errors.New("validation failed")

// ErrForbidden indicates the caller is not allowed to perform the operation,
// e.g. the tenant-creation quota is exhausted.
var ErrForbidden = errors.New("forbidden")

// ErrExternalService indicates the identity store was unreachable, answered
// with a non-2xx status or returned a malformed body.
var ErrExternalService = errors.New("external service error")

// ErrTransientConsistency indicates a local write succeeded but did not become
// visible to reads within the retry budget.
var ErrTransientConsistency = errors.New("transient consistency error")
