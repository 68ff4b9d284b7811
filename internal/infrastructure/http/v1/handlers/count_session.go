package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/counting"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// CountSessionHandler serves cycle-count sessions. Responses are shaped per
// caller: counters never see system quantities or discrepancies.
type CountSessionHandler struct {
	*BaseHandler
	service *counting.Service
}

// NewCountSessionHandler creates a count session handler.
func NewCountSessionHandler(base *BaseHandler, service *counting.Service) *CountSessionHandler {
	return &CountSessionHandler{BaseHandler: base, service: service}
}

// List handles GET /count-sessions
func (h *CountSessionHandler) List(c *gin.Context) {
	var q dto.CountSessionListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.service.ListSessions(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewPage(res, counting.ViewSessions(ctx, res.Items)))
}

// Create handles POST /count-sessions
func (h *CountSessionHandler) Create(c *gin.Context) {
	var req dto.CreateCountSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.service.Create(ctx, req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, counting.ViewSession(ctx, sess))
}

// Get handles GET /count-sessions/:id
func (h *CountSessionHandler) Get(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewSession(ctx, sess))
}

// ListLines handles GET /count-sessions/:id/lines
func (h *CountSessionHandler) ListLines(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var q dto.CountLineListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.service.ListLines(ctx, sessionID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewPage(res, counting.ViewLines(ctx, res.Items)))
}

// EnterCount handles POST /count-sessions/:id/lines/:lineId/count
func (h *CountSessionHandler) EnterCount(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	var req dto.EnterCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	line, err := h.service.EnterCount(ctx, req.ToRequest(sessionID, lineID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewLine(ctx, line))
}

// EnterCountByItem handles POST /count-sessions/:id/count, addressing the
// line by item, location and lot.
func (h *CountSessionHandler) EnterCountByItem(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.LookupCountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := req.ToRequest(sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	line, err := h.service.EnterCount(ctx, entry)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewLine(ctx, line))
}

// Submit handles POST /count-sessions/:id/submit
func (h *CountSessionHandler) Submit(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.service.Submit(ctx, sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewSession(ctx, sess))
}

// Approve handles POST /count-sessions/:id/approve
func (h *CountSessionHandler) Approve(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Approve(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromApproval(res))
}

// Cancel handles POST /count-sessions/:id/cancel
func (h *CountSessionHandler) Cancel(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelCountSessionRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.service.Cancel(ctx, sessionID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewSession(ctx, sess))
}

// Recount handles POST /count-sessions/:id/lines/:lineId/recount
func (h *CountSessionHandler) Recount(c *gin.Context) {
	sessionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	line, err := h.service.Recount(ctx, sessionID, lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, counting.ViewLine(ctx, line))
}
