package bleveindex

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

// DefaultPageSize is the number of hits fetched per backend round trip.
const DefaultPageSize = 200

// Index is the search index of one entity type.
type Index[T entity.Record] struct {
	def      metadata.EntityDef
	idx      bleve.Index
	newFn    func() T
	pageSize int
}

// New wraps an open bleve index built with NewMapping(def).
func New[T entity.Record](idx bleve.Index, def metadata.EntityDef, newFn func() T) *Index[T] {
	return &Index[T]{
		def:      def,
		idx:      idx,
		newFn:    newFn,
		pageSize: DefaultPageSize,
	}
}

// WithPageSize sets the page size used by lazy sequences.
func (x *Index[T]) WithPageSize(n int) *Index[T] {
	if n > 0 {
		x.pageSize = n
	}
	return x
}

// Index upserts rec.
func (x *Index[T]) Index(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return x.unavailable(err)
	}
	docID, doc, err := toDocument(x.def, rec)
	if err != nil {
		return x.unavailable(err)
	}
	if err := x.idx.Index(docID, doc); err != nil {
		return x.unavailable(fmt.Errorf("index %s: %w", docID, err))
	}
	return nil
}

// IndexBatch upserts recs in one backend batch.
func (x *Index[T]) IndexBatch(ctx context.Context, recs []T) error {
	if err := ctx.Err(); err != nil {
		return x.unavailable(err)
	}
	batch := x.idx.NewBatch()
	for _, rec := range recs {
		docID, doc, err := toDocument(x.def, rec)
		if err != nil {
			return x.unavailable(err)
		}
		if err := batch.Index(docID, doc); err != nil {
			return x.unavailable(fmt.Errorf("batch %s: %w", docID, err))
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return x.unavailable(fmt.Errorf("apply batch: %w", err))
	}
	return nil
}

// DeleteByID removes the document. Deleting a missing document succeeds.
func (x *Index[T]) DeleteByID(ctx context.Context, entityID id.ID) error {
	if err := ctx.Err(); err != nil {
		return x.unavailable(err)
	}
	if err := x.idx.Delete(id.String(entityID)); err != nil {
		return x.unavailable(fmt.Errorf("delete %d: %w", entityID, err))
	}
	return nil
}

// Search runs q in bleve query-string syntax, e.g. `name:Paracetamol stock:>10`.
func (x *Index[T]) Search(ctx context.Context, q string) (iter.Seq2[T, error], error) {
	qsq := bleve.NewQueryStringQuery(q)
	if _, err := qsq.Parse(); err != nil {
		return nil, apperror.NewMalformedQuery(x.def.Name, q, err)
	}
	return x.records(ctx, qsq)
}

// FindAll scans every document.
func (x *Index[T]) FindAll(ctx context.Context) (iter.Seq2[T, error], error) {
	return x.records(ctx, bleve.NewMatchAllQuery())
}

// IDs scans every document key.
func (x *Index[T]) IDs(ctx context.Context) (iter.Seq2[id.ID, error], error) {
	first, err := x.page(ctx, bleve.NewMatchAllQuery(), 0, false)
	if err != nil {
		return nil, err
	}
	hits := x.hits(ctx, bleve.NewMatchAllQuery(), first, false)

	return func(yield func(id.ID, error) bool) {
		for hit, err := range hits {
			if err != nil {
				yield(0, err)
				return
			}
			docID, err := id.Parse(hit.ID)
			if err != nil {
				yield(0, x.unavailable(err))
				return
			}
			if !yield(docID, nil) {
				return
			}
		}
	}, nil
}

// Count returns the number of documents.
func (x *Index[T]) Count(ctx context.Context) (uint64, error) {
	n, err := x.idx.DocCount()
	if err != nil {
		return 0, x.unavailable(err)
	}
	return n, nil
}

func (x *Index[T]) records(ctx context.Context, q query.Query) (iter.Seq2[T, error], error) {
	first, err := x.page(ctx, q, 0, true)
	if err != nil {
		return nil, err
	}
	hits := x.hits(ctx, q, first, true)

	return func(yield func(T, error) bool) {
		var zero T
		for hit, err := range hits {
			if err != nil {
				yield(zero, err)
				return
			}
			rec, err := x.decode(hit)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

type hit struct {
	ID     string
	Source string
}

// hits yields the hits of first and fetches the following pages on demand.
func (x *Index[T]) hits(ctx context.Context, q query.Query, first *bleve.SearchResult, withSource bool) iter.Seq2[hit, error] {
	return func(yield func(hit, error) bool) {
		page := first
		from := 0
		for {
			for _, h := range page.Hits {
				src, _ := h.Fields[sourceField].(string)
				if !yield(hit{ID: h.ID, Source: src}, nil) {
					return
				}
			}
			from += len(page.Hits)
			if len(page.Hits) < x.pageSize || uint64(from) >= page.Total {
				return
			}

			next, err := x.page(ctx, q, from, withSource)
			if err != nil {
				yield(hit{}, err)
				return
			}
			page = next
		}
	}
}

func (x *Index[T]) page(ctx context.Context, q query.Query, from int, withSource bool) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequestOptions(q, x.pageSize, from, false)
	req.SortBy([]string{"-_score", "_id"})
	if withSource {
		req.Fields = []string{sourceField}
	}

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, x.unavailable(fmt.Errorf("search: %w", err))
	}
	return res, nil
}

func (x *Index[T]) decode(h hit) (T, error) {
	rec := x.newFn()
	if h.Source == "" {
		return rec, x.unavailable(fmt.Errorf("document %s has no source", h.ID))
	}
	if err := json.Unmarshal([]byte(h.Source), rec); err != nil {
		return rec, x.unavailable(fmt.Errorf("decode document %s: %w", h.ID, err))
	}
	return rec, nil
}

func (x *Index[T]) unavailable(err error) error {
	return apperror.NewSearchUnavailable(x.def.Name, err)
}
