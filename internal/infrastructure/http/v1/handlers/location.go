package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/location"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LocationHandler serves the location directory.
type LocationHandler struct {
	*BaseHandler
	service *location.Service
}

// NewLocationHandler creates a location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	return &LocationHandler{BaseHandler: base, service: service}
}

// List handles GET /locations
func (h *LocationHandler) List(c *gin.Context) {
	var q dto.LocationListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	res, err := h.service.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(res, dto.FromLocation))
}

// Create handles POST /locations
func (h *LocationHandler) Create(c *gin.Context) {
	var req dto.CreateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	loc := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), loc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromLocation(loc))
}

// Get handles GET /locations/:id
func (h *LocationHandler) Get(c *gin.Context) {
	locID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	loc, err := h.service.GetByID(c.Request.Context(), locID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLocation(loc))
}

// Update handles PUT /locations/:id
func (h *LocationHandler) Update(c *gin.Context) {
	locID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	loc, err := h.service.GetByID(ctx, locID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(loc)
	if err := h.service.Update(ctx, loc); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLocation(loc))
}

// Delete handles DELETE /locations/:id
func (h *LocationHandler) Delete(c *gin.Context) {
	locID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), locID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
