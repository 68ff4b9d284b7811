// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/middleware"
)

// CRUDRouteHandler is implemented by directory-style handlers
// (locations, items).
type CRUDRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
}

// DeleteRouteHandler is optional; handlers that implement it get DELETE /:id.
type DeleteRouteHandler interface {
	Delete(c *gin.Context)
}

// RegisterCRUDRoutes registers list/create/get/update routes, plus delete
// when the handler supports it. Reads require readPerm, writes writePerm.
//
// Usage:
//
//	handler := handlers.NewLocationHandler(base, locationService)
//	RegisterCRUDRoutes(api.Group("/locations"), handler, security.PermissionLedgerRead, security.PermissionLocationWrite)
func RegisterCRUDRoutes(group *gin.RouterGroup, handler CRUDRouteHandler, readPerm, writePerm string) {
	read := middleware.RequirePermission(readPerm)
	write := middleware.RequirePermission(writePerm)

	group.GET("", read, handler.List)
	group.POST("", write, handler.Create)
	group.GET("/:id", read, handler.Get)
	group.PUT("/:id", write, handler.Update)

	if deleter, ok := handler.(DeleteRouteHandler); ok {
		group.DELETE("/:id", write, deleter.Delete)
	}
}
