// Package entity holds the capabilities every persisted record shares.
package entity

import (
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// Record is implemented by every entity stored through an indexed repository.
// The identity is nil until the primary store assigns one.
type Record interface {
	GetID() *id.ID
	SetID(v id.ID)
}

// Base carries the identity column. Embed it in every entity record.
type Base struct {
	ID *id.ID `db:"id" json:"id"`
}

// GetID returns the identity or nil when the record was never persisted.
func (b *Base) GetID() *id.ID {
	return b.ID
}

// SetID assigns the identity.
func (b *Base) SetID(v id.ID) {
	b.ID = &v
}

// ClearID drops the identity.
func (b *Base) ClearID() {
	b.ID = nil
}

// HasID reports whether r carries an identity.
func HasID(r Record) bool {
	return r.GetID() != nil
}
