// Package id defines the identity type shared by all entity records.
// Identities are assigned by the primary store on first insert.
package id

import (
	"fmt"
	"strconv"
)

// ID is a primary-store generated identity (BIGSERIAL).
type ID = int64

// Parse converts a path or query value to ID. Only positive values are valid.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("parse id %q: must be positive", s)
	}
	return v, nil
}

// String formats an ID the way it is used as a search document key.
func String(v ID) string {
	return strconv.FormatInt(v, 10)
}

// Ptr returns a pointer to v.
func Ptr(v ID) *ID {
	return &v
}

// Equal reports whether two optional identities are both set and equal.
func Equal(a, b *ID) bool {
	return a != nil && b != nil && *a == *b
}
