package domain

import (
	"context"
	"fmt"
	"iter"
	"reflect"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/core/tx"
)

// IndexedRepository writes one entity type to the primary store and mirrors
// every committed mutation to the search index. The primary store is the
// source of truth: index failures never fail or roll back a write.
//
// The repository holds no mutable state; one instance serves all requests.
type IndexedRepository[T entity.Record] struct {
	name      string
	store     PrimaryStore[T]
	index     SearchIndex[T]
	txManager tx.Manager
	mirror    Mirror
}

// IndexedRepositoryConfig configures the indexed repository.
type IndexedRepositoryConfig[T entity.Record] struct {
	// EntityName is used in error details and mirror keys (e.g. "medicines")
	EntityName string
	Store      PrimaryStore[T]
	Index      SearchIndex[T]
	TxManager  tx.Manager // Optional, defaults to tx.Nop
	Mirror     Mirror
}

// NewIndexedRepository creates an indexed repository.
func NewIndexedRepository[T entity.Record](cfg IndexedRepositoryConfig[T]) *IndexedRepository[T] {
	txm := cfg.TxManager
	if txm == nil {
		txm = tx.Nop{}
	}
	return &IndexedRepository[T]{
		name:      cfg.EntityName,
		store:     cfg.Store,
		index:     cfg.Index,
		txManager: txm,
		mirror:    cfg.Mirror,
	}
}

// Name returns the entity name.
func (r *IndexedRepository[T]) Name() string {
	return r.name
}

// Create inserts rec and mirrors it. rec must not carry an id.
func (r *IndexedRepository[T]) Create(ctx context.Context, rec T) (T, error) {
	if entity.HasID(rec) {
		return rec, apperror.NewInvalidRequest(r.name, apperror.KeyIDExists)
	}

	inserted, err := r.store.Insert(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("create %s: %w", r.name, err)
	}

	r.submit(ctx, *inserted.GetID(), MirrorIndex)
	return inserted, nil
}

// Update fully overwrites the record pathID with rec. Attributes absent from
// rec become NULL.
func (r *IndexedRepository[T]) Update(ctx context.Context, pathID id.ID, rec T) (T, error) {
	if err := r.checkIdentity(pathID, rec); err != nil {
		return rec, err
	}

	var saved T
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := r.store.ExistsByID(ctx, pathID)
		if err != nil {
			return fmt.Errorf("update %s: %w", r.name, err)
		}
		if !exists {
			return apperror.NewIDNotFound(r.name, pathID)
		}

		saved, err = r.store.Save(ctx, rec)
		if err != nil {
			return fmt.Errorf("update %s: %w", r.name, err)
		}
		return nil
	})
	if err != nil {
		return rec, err
	}

	r.submit(ctx, pathID, MirrorIndex)
	return saved, nil
}

// PartialUpdate merges every set attribute of patch into the stored record.
func (r *IndexedRepository[T]) PartialUpdate(ctx context.Context, pathID id.ID, patch T) (T, error) {
	if err := r.checkIdentity(pathID, patch); err != nil {
		return patch, err
	}

	var merged T
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := r.store.ExistsByID(ctx, pathID)
		if err != nil {
			return fmt.Errorf("partial update %s: %w", r.name, err)
		}
		if !exists {
			return apperror.NewIDNotFound(r.name, pathID)
		}

		current, found, err := r.store.FindByID(ctx, pathID)
		if err != nil {
			return fmt.Errorf("partial update %s: %w", r.name, err)
		}
		if !found {
			// Deleted between the existence check and the load.
			return apperror.NewNotFound(r.name, pathID)
		}

		if err := entity.Merge(current, patch); err != nil {
			return apperror.NewInternal(err).WithDetail("entity", r.name)
		}

		merged, err = r.store.Save(ctx, current)
		if err != nil {
			return fmt.Errorf("partial update %s: %w", r.name, err)
		}
		return nil
	})
	if err != nil {
		return patch, err
	}

	r.submit(ctx, pathID, MirrorIndex)
	return merged, nil
}

// Delete removes the record from both stores. Unknown ids are not an error.
func (r *IndexedRepository[T]) Delete(ctx context.Context, entityID id.ID) error {
	if err := r.store.DeleteByID(ctx, entityID); err != nil {
		return fmt.Errorf("delete %s: %w", r.name, err)
	}

	r.submit(ctx, entityID, MirrorDelete)
	return nil
}

// GetByID reads from the primary store.
func (r *IndexedRepository[T]) GetByID(ctx context.Context, entityID id.ID) (T, error) {
	rec, found, err := r.store.FindByID(ctx, entityID)
	if err != nil {
		return rec, fmt.Errorf("get %s: %w", r.name, err)
	}
	if !found {
		return rec, apperror.NewNotFound(r.name, entityID)
	}
	return rec, nil
}

// FindAll reads every record from the primary store.
func (r *IndexedRepository[T]) FindAll(ctx context.Context) ([]T, error) {
	items, err := r.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.name, err)
	}
	return items, nil
}

// FindBy lists the records referencing value through field.
func (r *IndexedRepository[T]) FindBy(ctx context.Context, field string, value id.ID) ([]T, error) {
	items, err := r.store.FindBy(ctx, field, value)
	if err != nil {
		return nil, fmt.Errorf("list %s by %s: %w", r.name, field, err)
	}
	return items, nil
}

// Count returns the number of rows in the primary store.
func (r *IndexedRepository[T]) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx)
}

// Search passes query to the search index. Every failure, including those
// met while the sequence is consumed, is a SEARCH_UNAVAILABLE error.
func (r *IndexedRepository[T]) Search(ctx context.Context, query string) (iter.Seq2[T, error], error) {
	seq, err := r.index.Search(ctx, query)
	if err != nil {
		return nil, r.searchErr(err)
	}

	return func(yield func(T, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(rec, r.searchErr(err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

// Refresh makes the index document of entityID match the primary store: the
// current row is indexed, or the document removed when the row is gone.
// Mirror tasks run Refresh, so replaying any of them converges on the latest
// committed state.
func (r *IndexedRepository[T]) Refresh(ctx context.Context, entityID id.ID) error {
	rec, found, err := r.store.FindByID(ctx, entityID)
	if err != nil {
		return fmt.Errorf("refresh %s %d: %w", r.name, entityID, err)
	}
	if !found {
		return r.index.DeleteByID(ctx, entityID)
	}
	return r.index.Index(ctx, rec)
}

// ReindexStats reports the outcome of Reindex.
type ReindexStats struct {
	Entity   string `json:"entity"`
	Indexed  int    `json:"indexed"`
	Orphans  int    `json:"orphans"`
	Resynced int    `json:"resynced"`
	Failures int    `json:"failures"`
}

// Reindex rebuilds the index from the primary store in pages of batchSize and
// then removes documents whose row no longer exists.
//
// Writers keep running meanwhile. After each page is written the page is
// read again, and every row that changed, appeared or vanished since is
// resynced through the mirror, which orders it after the writers' own tasks
// for the same key. A document missing from the pages is only deleted once
// the store confirms its row is gone.
func (r *IndexedRepository[T]) Reindex(ctx context.Context, batchSize int) (ReindexStats, error) {
	stats := ReindexStats{Entity: r.name}
	if batchSize <= 0 {
		batchSize = 500
	}

	seen := make(map[id.ID]struct{})
	var after id.ID
	for {
		page, err := r.store.FindPage(ctx, after, batchSize)
		if err != nil {
			return stats, fmt.Errorf("reindex %s: %w", r.name, err)
		}
		if len(page) == 0 {
			break
		}
		if err := r.index.IndexBatch(ctx, page); err != nil {
			return stats, fmt.Errorf("reindex %s: %w", r.name, err)
		}
		stats.Indexed += len(page)

		stale, err := r.changedSince(ctx, after, page)
		if err != nil {
			return stats, fmt.Errorf("reindex %s: %w", r.name, err)
		}
		for _, rec := range page {
			seen[*rec.GetID()] = struct{}{}
		}
		for _, staleID := range stale {
			seen[staleID] = struct{}{}
			r.resync(ctx, staleID)
			stats.Resynced++
		}

		after = *page[len(page)-1].GetID()
		if len(page) < batchSize {
			break
		}
	}

	ids, err := r.index.IDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("reindex %s: %w", r.name, err)
	}
	var candidates []id.ID
	for docID, err := range ids {
		if err != nil {
			return stats, fmt.Errorf("reindex %s: %w", r.name, err)
		}
		if _, ok := seen[docID]; !ok {
			candidates = append(candidates, docID)
		}
	}
	for _, docID := range candidates {
		exists, err := r.store.ExistsByID(ctx, docID)
		if err != nil {
			stats.Failures++
			continue
		}
		if exists {
			// Committed after its page was read.
			r.resync(ctx, docID)
			stats.Resynced++
			continue
		}
		// Ids are never reused, so a missing row stays missing.
		if err := r.index.DeleteByID(ctx, docID); err != nil {
			stats.Failures++
			continue
		}
		stats.Orphans++
	}

	return stats, nil
}

// changedSince reads the range of page again and returns the ids whose row
// differs from page: updated, deleted, or committed into the range late.
func (r *IndexedRepository[T]) changedSince(ctx context.Context, after id.ID, page []T) ([]id.ID, error) {
	last := *page[len(page)-1].GetID()
	written := make(map[id.ID]T, len(page))
	for _, rec := range page {
		written[*rec.GetID()] = rec
	}

	current, err := r.store.FindPage(ctx, after, len(page))
	if err != nil {
		return nil, err
	}

	var stale []id.ID
	for _, rec := range current {
		recID := *rec.GetID()
		if recID > last {
			continue
		}
		old, ok := written[recID]
		delete(written, recID)
		if !ok || !reflect.DeepEqual(old, rec) {
			stale = append(stale, recID)
		}
	}
	for recID := range written {
		stale = append(stale, recID)
	}
	return stale, nil
}

// resync refreshes one document in mirror order. Without a mirror (offline
// rebuilds) nothing else writes the index and Refresh runs directly.
func (r *IndexedRepository[T]) resync(ctx context.Context, entityID id.ID) {
	task := r.refreshTask(entityID, MirrorIndex)
	if r.mirror == nil {
		_ = task.Run(ctx)
		return
	}
	r.mirror.Submit(ctx, task)
}

func (r *IndexedRepository[T]) checkIdentity(pathID id.ID, rec T) error {
	recID := rec.GetID()
	if recID == nil {
		return apperror.NewInvalidRequest(r.name, apperror.KeyIDNull)
	}
	if *recID != pathID {
		return apperror.NewInvalidRequest(r.name, apperror.KeyIDInvalid)
	}
	return nil
}

// submit hands the mirror task over once the surrounding transaction, if
// any, has committed.
func (r *IndexedRepository[T]) submit(ctx context.Context, entityID id.ID, op MirrorOp) {
	if r.mirror == nil {
		return
	}
	task := r.refreshTask(entityID, op)
	r.txManager.AfterCommit(ctx, func() {
		r.mirror.Submit(ctx, task)
	})
}

func (r *IndexedRepository[T]) refreshTask(entityID id.ID, op MirrorOp) MirrorTask {
	return MirrorTask{
		Entity: r.name,
		ID:     entityID,
		Op:     op,
		Run: func(ctx context.Context) error {
			return r.Refresh(ctx, entityID)
		},
	}
}

func (r *IndexedRepository[T]) searchErr(err error) error {
	if apperror.IsSearchUnavailable(err) {
		return err
	}
	return apperror.NewSearchUnavailable(r.name, err)
}
