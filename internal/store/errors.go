package store

import "errors"

// ErrNotFound is returned by store methods when the requested record does
// not exist. Callers should check for this with errors.Is.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert violates an invariant the store
// checks itself (an s3 destination created without a credential provider
// reference). Database constraint errors are wrapped as-is, not mapped to it.
var ErrConflict = errors.New("record conflict")
