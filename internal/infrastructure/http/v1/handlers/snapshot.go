package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/snapshot"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// SnapshotHandler serves the inventory snapshot and its rebuild.
type SnapshotHandler struct {
	*BaseHandler
	service *snapshot.Service
}

// NewSnapshotHandler creates a snapshot handler.
func NewSnapshotHandler(base *BaseHandler, service *snapshot.Service) *SnapshotHandler {
	return &SnapshotHandler{BaseHandler: base, service: service}
}

// List handles GET /snapshot
func (h *SnapshotHandler) List(c *gin.Context) {
	var q dto.SnapshotListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(res, func(r *snapshot.Record) *snapshot.Record { return r }))
}

// Sync handles POST /snapshot/sync
func (h *SnapshotHandler) Sync(c *gin.Context) {
	res, err := h.service.Sync(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// SyncItem handles POST /snapshot/sync/:itemId
func (h *SnapshotHandler) SyncItem(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}
	res, err := h.service.SyncItem(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
