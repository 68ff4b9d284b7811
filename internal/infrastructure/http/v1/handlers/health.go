// Package handlers maps the ledger, counting and location services onto
// gin routes.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 2 * time.Second

// Pinger checks a dependency. *postgres.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the probes under /health. Consul polls /ready.
type HealthHandler struct {
	db      Pinger
	version string
	started time.Time
}

func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, started: time.Now()}
}

// Live answers as long as the process serves HTTP.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready fails with 503 while the database is unreachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status, db, code := "ok", "healthy", http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		status, db, code = "error", "unhealthy: "+err.Error(), http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": gin.H{"database": db}})
}

func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     "stockledger",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
