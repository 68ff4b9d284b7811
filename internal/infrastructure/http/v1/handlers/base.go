package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// BaseHandler is embedded by every resource handler. Errors are attached
// to the gin context and rendered by middleware.ErrorHandler; successful
// responses are also recorded for idempotent replay.
type BaseHandler struct{}

func NewBaseHandler() *BaseHandler { return &BaseHandler{} }

// BindJSON decodes the body into obj, failing the request on error.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	return h.bind(c, c.ShouldBindJSON(obj), "invalid request body")
}

// BindQuery decodes query parameters into obj, failing the request on error.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	return h.bind(c, c.ShouldBindQuery(obj), "invalid query parameters")
}

func (h *BaseHandler) bind(c *gin.Context, err error, msg string) bool {
	if err == nil {
		return true
	}
	h.Error(c, apperror.NewValidation(msg).WithDetail("error", err.Error()))
	return false
}

// ParseID reads the UUID path parameter param.
func (h *BaseHandler) ParseID(c *gin.Context, param string) (id.ID, bool) {
	v, err := id.Parse(c.Param(param))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+param).WithDetail("field", param))
		return id.ID{}, false
	}
	return v, true
}

func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func (h *BaseHandler) OK(c *gin.Context, data any) { h.respond(c, http.StatusOK, data) }

func (h *BaseHandler) Created(c *gin.Context, data any) { h.respond(c, http.StatusCreated, data) }

// NoContent replays as an empty 204.
func (h *BaseHandler) NoContent(c *gin.Context) {
	middleware.CompleteIdempotency(c, http.StatusNoContent, "", nil)
	c.Status(http.StatusNoContent)
}

func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	middleware.CompleteIdempotency(c, status, "application/json", data)
	c.JSON(status, data)
}
