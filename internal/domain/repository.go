// Package domain holds the indexed repository: the component that keeps the
// primary store and the search index of one entity type in step.
package domain

import (
	"context"
	"iter"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// PrimaryStore is the authoritative, transactional storage of one entity type.
// Absence is never an error: FindByID reports it through the found flag and
// DeleteByID is a no-op for unknown ids.
type PrimaryStore[T entity.Record] interface {
	// Insert stores a record without identity and returns it with the
	// assigned id. A pre-set id yields a conflict error.
	Insert(ctx context.Context, rec T) (T, error)

	FindByID(ctx context.Context, entityID id.ID) (T, bool, error)

	ExistsByID(ctx context.Context, entityID id.ID) (bool, error)

	// Save overwrites every column of an existing record.
	Save(ctx context.Context, rec T) (T, error)

	DeleteByID(ctx context.Context, entityID id.ID) error

	Count(ctx context.Context) (int64, error)

	// FindAll returns every record ordered by id.
	FindAll(ctx context.Context) ([]T, error)

	// FindBy returns the records whose reference field (json name) holds value.
	FindBy(ctx context.Context, field string, value id.ID) ([]T, error)

	// FindPage returns up to limit records with id > afterID, ordered by id.
	FindPage(ctx context.Context, afterID id.ID, limit int) ([]T, error)
}

// SearchIndex is the document mirror of one entity type. Every failure is
// reported as an apperror with code SEARCH_UNAVAILABLE; an empty result is
// not a failure.
type SearchIndex[T entity.Record] interface {
	// Index upserts the document keyed by the record id.
	Index(ctx context.Context, rec T) error

	IndexBatch(ctx context.Context, recs []T) error

	// DeleteByID removes the document if present.
	DeleteByID(ctx context.Context, entityID id.ID) error

	// Search runs query in the backend's native query-string syntax. Parsing
	// and connectivity errors are returned before the sequence is consumed.
	Search(ctx context.Context, query string) (iter.Seq2[T, error], error)

	// FindAll scans the whole index.
	FindAll(ctx context.Context) (iter.Seq2[T, error], error)

	// IDs scans the document keys.
	IDs(ctx context.Context) (iter.Seq2[id.ID, error], error)

	Count(ctx context.Context) (uint64, error)
}

// MirrorOp names the mutation that triggered a mirror task.
type MirrorOp string

const (
	MirrorIndex  MirrorOp = "index"
	MirrorDelete MirrorOp = "delete"
)

// MirrorTask propagates one primary-store mutation to the search index.
type MirrorTask struct {
	Entity string
	ID     id.ID
	Op     MirrorOp
	Run    func(ctx context.Context) error
}

// Key identifies the document the task touches. Tasks sharing a key must be
// applied in submission order.
func (t MirrorTask) Key() string {
	return t.Entity + "/" + id.String(t.ID)
}

// Mirror executes mirror tasks. Submit never reports the task outcome to
// the caller: failures are recorded by the implementation.
type Mirror interface {
	Submit(ctx context.Context, task MirrorTask)
}
