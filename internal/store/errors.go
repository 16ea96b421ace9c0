package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a unique constraint.
var ErrDuplicate = errors.New("duplicate entry")

// ErrStaleVersion is returned when an update targets an outdated version.
var ErrStaleVersion = errors.New("stale version")

// lib/pq error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return ErrDuplicate
		case invalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}
