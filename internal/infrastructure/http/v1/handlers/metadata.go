package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{
		BaseHandler: base,
		registry:    registry,
	}
}

// ListEntities returns all registered entity definitions.
// GET /api/meta
func (h *MetadataHandler) ListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// GetEntity returns the full metadata for a specific entity.
// GET /api/meta/:name
func (h *MetadataHandler) GetEntity(c *gin.Context) {
	name := c.Param("name")
	def, ok := h.registry.Get(name)
	if !ok {
		h.Error(c, apperror.NewNotFound("metadata", name))
		return
	}
	c.JSON(http.StatusOK, def)
}
