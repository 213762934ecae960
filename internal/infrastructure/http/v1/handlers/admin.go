package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
)

// AdminHandler exposes the index reconciliation operations.
type AdminHandler struct {
	*BaseHandler
	reconciler *indexing.Reconciler
}

func NewAdminHandler(base *BaseHandler, reconciler *indexing.Reconciler) *AdminHandler {
	return &AdminHandler{
		BaseHandler: base,
		reconciler:  reconciler,
	}
}

// Reindex rebuilds the search indexes from the primary store.
// POST /api/admin/reindex?entity=medicines&entity=sales
// Without an entity parameter every index is rebuilt.
func (h *AdminHandler) Reindex(c *gin.Context) {
	entities := c.QueryArray("entity")

	stats, err := h.reconciler.Reindex(c.Request.Context(), entities...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": stats})
}

// Repair replays the journaled mirror failures.
// POST /api/admin/repair
func (h *AdminHandler) Repair(c *gin.Context) {
	stats, err := h.reconciler.Repair(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, stats)
}
