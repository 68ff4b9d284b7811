package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
)

// auditEntities lists the entity types that write audit entries.
var auditEntities = map[string]bool{
	ledger.AggregateStockItem:      true,
	ledger.AggregateMovement:       true,
	counting.AggregateCountSession: true,
}

// AuditHandler serves the change history of ledger entities.
type AuditHandler struct {
	*BaseHandler
	reader domain.AuditReader
}

func NewAuditHandler(base *BaseHandler, reader domain.AuditReader) *AuditHandler {
	return &AuditHandler{BaseHandler: base, reader: reader}
}

// History handles GET /audit/:entity/:id?limit=N
func (h *AuditHandler) History(c *gin.Context) {
	entity := c.Param("entity")
	if !auditEntities[entity] {
		h.Error(c, apperror.NewValidation("unknown audit entity").WithDetail("entity", entity))
		return
	}
	entityID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		h.Error(c, apperror.NewValidation("limit must be an integer").WithDetail("field", "limit"))
		return
	}

	entries, err := h.reader.History(c.Request.Context(), entity, entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	h.OK(c, gin.H{"items": entries})
}
