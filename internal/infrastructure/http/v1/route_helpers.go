// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

// EntityRouteHandler defines the interface for entity handlers.
// handlers.EntityHandler implements it for every record type.
type EntityRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Patch(c *gin.Context)
	Delete(c *gin.Context)
	Search(c *gin.Context)
	ListByParent(parent, field string) gin.HandlerFunc
}

// EntityModule binds an entity definition to its handler.
type EntityModule struct {
	Def     metadata.EntityDef
	Handler EntityRouteHandler
}

// RegisterEntityRoutes registers the CRUD and search routes of one entity.
//
// Usage:
//
//	handler := handlers.NewEntityHandler(base, repo, func() *pharmacy.Medicine { return new(pharmacy.Medicine) })
//	RegisterEntityRoutes(api.Group("/medicines"), handler)
func RegisterEntityRoutes(group *gin.RouterGroup, handler EntityRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/_search", handler.Search)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.PATCH("/:id", handler.Patch)
	group.DELETE("/:id", handler.Delete)
}

// RegisterChildRoutes registers GET /<parent>/:id/<child> for every child
// relation whose entity has a module.
func RegisterChildRoutes(group *gin.RouterGroup, parent string, children []metadata.ChildDef, modules map[string]EntityModule) {
	for _, child := range children {
		m, ok := modules[child.Entity]
		if !ok {
			continue
		}
		group.GET("/:id/"+child.Path, m.Handler.ListByParent(parent, child.Field))
	}
}
