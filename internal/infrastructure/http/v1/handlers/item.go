package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ItemHandler serves stock items and the single-item ledger operations.
type ItemHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewItemHandler creates an item handler.
func NewItemHandler(base *BaseHandler, service *ledger.Service) *ItemHandler {
	return &ItemHandler{BaseHandler: base, service: service}
}

// List handles GET /items
func (h *ItemHandler) List(c *gin.Context) {
	var q dto.ItemListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	res, err := h.service.ListItems(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(res, dto.FromItem))
}

// Create handles POST /items
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item := req.ToEntity()
	if err := h.service.CreateItem(c.Request.Context(), item); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromItem(item))
}

// Get handles GET /items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromItem(item))
}

// Update handles PUT /items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	item, err := h.service.GetItem(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(item)
	if err := h.service.UpdateItem(ctx, item); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromItem(item))
}

type ledgerOp func(ctx context.Context, cmd ledger.Command) (*ledger.Result, error)

// Receipt handles POST /items/:id/receipt
func (h *ItemHandler) Receipt(c *gin.Context) { h.post(c, h.service.Receipt) }

// Issue handles POST /items/:id/issue
func (h *ItemHandler) Issue(c *gin.Context) { h.post(c, h.service.Issue) }

// Transfer handles POST /items/:id/transfer
func (h *ItemHandler) Transfer(c *gin.Context) { h.post(c, h.service.Transfer) }

// Adjustment handles POST /items/:id/adjustment
func (h *ItemHandler) Adjustment(c *gin.Context) { h.post(c, h.service.Adjustment) }

func (h *ItemHandler) post(c *gin.Context, op ledgerOp) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.ItemMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := op(c.Request.Context(), req.ToCommand(itemID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromResult(res))
}
