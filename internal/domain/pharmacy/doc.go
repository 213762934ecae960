// Package pharmacy defines the entity records of the pharmacy backend.
//
// Every attribute is optional (pointer typed): a nil attribute is stored as
// NULL by a full update and left untouched by a partial update. Relations are
// held as foreign-key ids on the "many" side only; one-to-many collections
// are resolved by lookup, never embedded.
//
// The ref tag names the entity a reference points to.
package pharmacy
