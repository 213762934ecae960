// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1/handlers"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1/middleware"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// MetadataRegistry stores entity definitions
	MetadataRegistry *metadata.Registry

	// Modules are the served entities, keyed by entity name
	Modules map[string]EntityModule

	// Reconciler backs the admin endpoints; nil disables them
	Reconciler *indexing.Reconciler

	Health handlers.HealthConfig

	// Development enables gin debug mode
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Health)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	api := router.Group("/api")
	{
		registerEntityRoutes(api, cfg)
		registerMetaRoutes(api, cfg)
		registerAdminRoutes(api, cfg)
	}

	return router
}

// registerEntityRoutes registers the CRUD, search and child lookup routes
// of every module.
func registerEntityRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	for _, m := range cfg.Modules {
		group := rg.Group("/" + m.Def.Path)
		RegisterEntityRoutes(group, m.Handler)

		children := m.Def.Children
		if cfg.MetadataRegistry != nil {
			children = cfg.MetadataRegistry.ChildrenOf(m.Def.Name)
		}
		RegisterChildRoutes(group, m.Def.Name, children, cfg.Modules)
	}
}

// registerMetaRoutes registers metadata/schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.MetadataRegistry == nil {
		return
	}

	handler := handlers.NewMetadataHandler(handlers.NewBaseHandler(), cfg.MetadataRegistry)
	meta := rg.Group("/meta")
	{
		meta.GET("", handler.ListEntities)
		meta.GET("/:name", handler.GetEntity)
	}
}

func registerAdminRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Reconciler == nil {
		return
	}

	handler := handlers.NewAdminHandler(handlers.NewBaseHandler(), cfg.Reconciler)
	admin := rg.Group("/admin")
	{
		admin.POST("/reindex", handler.Reindex)
		admin.POST("/repair", handler.Repair)
	}
}
