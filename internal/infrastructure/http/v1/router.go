package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/security"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// DB backs the readiness probe
	DB handlers.Pinger

	// IdempotencyStore enables X-Idempotency-Key handling when set
	IdempotencyStore middleware.IdempotencyStore

	// Metrics is served on /metrics when set
	Metrics http.Handler

	// Version reported by /health/info
	Version string

	Locations *location.Service
	Ledger    *ledger.Service
	Snapshots *snapshot.Service
	Counting  *counting.Service

	// Audit serves /audit history when set
	Audit domain.AuditReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Metrics())
	if cfg.Logger != nil {
		router.Use(middleware.Logger(cfg.Logger))
	}
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator)) // 1. Validate JWT
	api.Use(middleware.UserContext())          // 2. Add UserID to context for domain layer
	if cfg.IdempotencyStore != nil {
		api.Use(middleware.Idempotency(cfg.IdempotencyStore))
	}

	base := handlers.NewBaseHandler()
	registerLocationRoutes(api, base, cfg)
	registerItemRoutes(api, base, cfg)
	registerMovementRoutes(api, base, cfg)
	registerSnapshotRoutes(api, base, cfg)
	registerCountRoutes(api, base, cfg)
	if cfg.Audit != nil {
		audit := handlers.NewAuditHandler(base, cfg.Audit)
		api.GET("/audit/:entity/:id", middleware.RequirePermission(security.PermissionLedgerRead), audit.History)
	}

	return router
}

func registerLocationRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewLocationHandler(base, cfg.Locations)
	RegisterCRUDRoutes(rg.Group("/locations"), handler, security.PermissionLedgerRead, security.PermissionLocationWrite)
}

func registerItemRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewItemHandler(base, cfg.Ledger)
	items := rg.Group("/items")
	RegisterCRUDRoutes(items, handler, security.PermissionLedgerRead, security.PermissionLedgerWrite)

	write := middleware.RequirePermission(security.PermissionLedgerWrite)
	items.POST("/:id/receipt", write, handler.Receipt)
	items.POST("/:id/issue", write, handler.Issue)
	items.POST("/:id/transfer", write, handler.Transfer)
	items.POST("/:id/adjustment", write, handler.Adjustment)
}

func registerMovementRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewMovementHandler(base, cfg.Ledger)
	movements := rg.Group("/movements")

	read := middleware.RequirePermission(security.PermissionLedgerRead)
	write := middleware.RequirePermission(security.PermissionLedgerWrite)

	movements.GET("", read, handler.List)
	movements.POST("", write, handler.Create)
	movements.GET("/:id", read, handler.Get)
	movements.POST("/:id/complete", write, handler.Complete)
	movements.DELETE("/:id", write, handler.Delete)
	movements.POST("/batches/:key/complete", write, handler.CompleteBatch)
	movements.DELETE("/batches/:key", write, handler.DeleteBatch)
}

func registerSnapshotRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewSnapshotHandler(base, cfg.Snapshots)
	group := rg.Group("/snapshot")

	sync := middleware.RequirePermission(security.PermissionSnapshotSync)
	group.GET("", middleware.RequirePermission(security.PermissionLedgerRead), handler.List)
	group.POST("/sync", sync, handler.Sync)
	group.POST("/sync/:itemId", sync, handler.SyncItem)
}

func registerCountRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewCountSessionHandler(base, cfg.Counting)
	sessions := rg.Group("/count-sessions")

	read := middleware.RequirePermission(security.PermissionCountRead)
	enter := middleware.RequirePermission(security.PermissionCountEnter)
	manage := middleware.RequirePermission(security.PermissionCountManage)

	sessions.GET("", read, handler.List)
	sessions.POST("", manage, handler.Create)
	sessions.GET("/:id", read, handler.Get)
	sessions.GET("/:id/lines", read, handler.ListLines)
	sessions.POST("/:id/lines/:lineId/count", enter, handler.EnterCount)
	sessions.POST("/:id/count", enter, handler.EnterCountByItem)
	sessions.POST("/:id/submit", enter, handler.Submit)
	sessions.POST("/:id/approve", middleware.RequirePermission(security.PermissionCountApprove), handler.Approve)
	sessions.POST("/:id/cancel", manage, handler.Cancel)
	sessions.POST("/:id/lines/:lineId/recount", manage, handler.Recount)
}
