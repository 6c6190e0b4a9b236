// routes.go - Route registration helpers
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/client"
	"github.com/wms-admin/gateway/internal/errfile"
	"github.com/wms-admin/gateway/internal/health"
	"github.com/wms-admin/gateway/internal/history"
	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Registry     *importcfg.Registry
	Manager      *importer.Manager
	Store        storage.Store
	Client       *client.Client
	History      *history.Store
	Health       *health.Monitor
	Version      string
	PollInterval time.Duration
}

// Handlers holds all handler instances
type Handlers struct {
	Import   *ImportHandler
	Auth     *AuthHandler
	Health   *HealthHandler
	Progress *ProgressHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Import:   NewImportHandler(deps.Registry, deps.Manager, deps.Store, errfile.NewDownloader(deps.Client), deps.History),
		Auth:     NewAuthHandler(deps.Client),
		Health:   NewHealthHandler(deps.Version, deps.Health),
		Progress: NewProgressHandler(deps.Manager, deps.PollInterval),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Auth proxy
	authGroup := e.Group("/api/auth")
	authGroup.POST("/login", handlers.Auth.HandleLogin)
	authGroup.POST("/logout", handlers.Auth.HandleLogout)
	authGroup.GET("/status", handlers.Auth.HandleAuthStatus)

	// Import pipeline
	importGroup := e.Group("/api/import")
	importGroup.GET("/entities", handlers.Import.HandleEntities)
	importGroup.GET("/history", handlers.Import.HandleHistory)
	importGroup.POST("/:entity/upload", handlers.Import.HandleUpload)
	importGroup.POST("/:entity/paste", handlers.Import.HandlePaste)
	importGroup.POST("/:entity/draft", handlers.Import.HandleRestoreDraft)
	importGroup.GET("/:entity/template", handlers.Import.HandleTemplate)
	importGroup.GET("/:entity/error-file", handlers.Import.HandleErrorFile)

	sessionGroup := importGroup.Group("/sessions")
	sessionGroup.GET("/:id", handlers.Import.HandleGetSession)
	sessionGroup.GET("/:id/rows", handlers.Import.HandleGetRows)
	sessionGroup.POST("/:id/rows", handlers.Import.HandleUpdateRows)
	sessionGroup.POST("/:id/confirm", handlers.Import.HandleConfirm)
	sessionGroup.POST("/:id/cancel", handlers.Import.HandleCancel)
	sessionGroup.GET("/:id/progress", handlers.Progress.HandleProgressStream)
}
