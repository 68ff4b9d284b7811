package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves the movement log and batch lifecycle.
type MovementHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewMovementHandler creates a movement handler.
func NewMovementHandler(base *BaseHandler, service *ledger.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service}
}

// List handles GET /movements
func (h *MovementHandler) List(c *gin.Context) {
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(res, dto.FromMovement))
}

// Create handles POST /movements
func (h *MovementHandler) Create(c *gin.Context) {
	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.CreateMovement(c.Request.Context(), m)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromResult(res))
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	m, err := h.service.GetMovement(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// Complete handles POST /movements/:id/complete. The whole batch of the
// movement is applied.
func (h *MovementHandler) Complete(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	completed, err := h.service.CompleteMovement(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, batchResponse(completed))
}

// Delete handles DELETE /movements/:id?reason=
func (h *MovementHandler) Delete(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.DeleteMovementRequest
	if !h.BindQuery(c, &req) {
		return
	}
	m, err := h.service.DeleteMovement(c.Request.Context(), movementID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// CompleteBatch handles POST /movements/batches/:key/complete
func (h *MovementHandler) CompleteBatch(c *gin.Context) {
	completed, err := h.service.CompleteBatch(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, batchResponse(completed))
}

// DeleteBatch handles DELETE /movements/batches/:key?reason=
func (h *MovementHandler) DeleteBatch(c *gin.Context) {
	var req dto.DeleteMovementRequest
	if !h.BindQuery(c, &req) {
		return
	}
	deleted, err := h.service.DeleteBatch(c.Request.Context(), c.Param("key"), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, batchResponse(deleted))
}

func batchResponse(ms []*ledger.Movement) dto.BatchResponse {
	resp := dto.BatchResponse{Movements: dto.FromMovements(ms)}
	if len(ms) > 0 {
		resp.BatchKey = ms[0].BatchKey
	}
	return resp
}
