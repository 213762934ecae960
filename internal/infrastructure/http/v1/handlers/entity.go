package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
)

// EntityHandler provides the REST endpoints of one entity record type.
type EntityHandler[T entity.Record] struct {
	*BaseHandler
	repo  *domain.IndexedRepository[T]
	name  string
	newFn func() T
}

// NewEntityHandler creates a handler. newFn must return a fresh zero record.
func NewEntityHandler[T entity.Record](base *BaseHandler, repo *domain.IndexedRepository[T], newFn func() T) *EntityHandler[T] {
	return &EntityHandler[T]{
		BaseHandler: base,
		repo:        repo,
		name:        repo.Name(),
		newFn:       newFn,
	}
}

// Create handles POST /{entity}.
func (h *EntityHandler[T]) Create(c *gin.Context) {
	rec := h.newFn()
	if !h.BindJSON(c, rec) {
		return
	}

	created, err := h.repo.Create(c.Request.Context(), rec)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, created)
}

// Update handles PUT /{entity}/:id. The body replaces the record: absent
// attributes are cleared.
func (h *EntityHandler[T]) Update(c *gin.Context) {
	pathID, ok := h.ParseID(c, h.name)
	if !ok {
		return
	}
	rec := h.newFn()
	if !h.BindJSON(c, rec) {
		return
	}

	saved, err := h.repo.Update(c.Request.Context(), pathID, rec)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saved)
}

// Patch handles PATCH /{entity}/:id with merge-patch semantics: only the
// attributes present in the body are changed.
func (h *EntityHandler[T]) Patch(c *gin.Context) {
	pathID, ok := h.ParseID(c, h.name)
	if !ok {
		return
	}
	patch := h.newFn()
	if !h.BindJSON(c, patch) {
		return
	}

	merged, err := h.repo.PartialUpdate(c.Request.Context(), pathID, patch)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, merged)
}

// List handles GET /{entity}: every record ordered by id.
func (h *EntityHandler[T]) List(c *gin.Context) {
	items, err := h.repo.FindAll(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, orEmpty(items))
}

// Get handles GET /{entity}/:id.
func (h *EntityHandler[T]) Get(c *gin.Context) {
	entityID, ok := h.ParseID(c, h.name)
	if !ok {
		return
	}

	rec, err := h.repo.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Delete handles DELETE /{entity}/:id. Unknown ids succeed as well.
func (h *EntityHandler[T]) Delete(c *gin.Context) {
	entityID, ok := h.ParseID(c, h.name)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), entityID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Search handles GET /{entity}/_search?query=...
func (h *EntityHandler[T]) Search(c *gin.Context) {
	query, ok := c.GetQuery("query")
	if !ok || query == "" {
		h.Error(c, apperror.NewValidation("query parameter is required").
			WithDetail("entity", h.name))
		return
	}

	seq, err := h.repo.Search(c.Request.Context(), query)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]T, 0)
	for rec, err := range seq {
		if err != nil {
			h.Error(c, err)
			return
		}
		items = append(items, rec)
	}
	h.OK(c, items)
}

// ListByParent returns a handler for GET /{parent}/:id/{entity} listing the
// records whose reference field points at the parent.
func (h *EntityHandler[T]) ListByParent(parent, field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		parentID, ok := h.ParseID(c, parent)
		if !ok {
			return
		}

		items, err := h.repo.FindBy(c.Request.Context(), field, parentID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, orEmpty(items))
	}
}

// orEmpty keeps empty lists rendering as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
