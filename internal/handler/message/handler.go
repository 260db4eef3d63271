package message

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/middleware"
	"github.com/fieldserve/sms-engine/internal/service/trigger"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

type Handler struct {
	engine *trigger.Service
}

func NewHandler(engine *trigger.Service) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/messages/manual", h.SendManual)
}

type sendManualRequest struct {
	CustomerID uuid.UUID `json:"customer_id" binding:"required"`
	Body       string    `json:"body" binding:"required"`
}

// SendManual bypasses dedup: manual sends are intentionally
// repeatable.
func (h *Handler) SendManual(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	var req sendManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.SendManual(c.Request.Context(), tenantID, req.CustomerID, req.Body)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case apperrors.HasCode(err, apperrors.ErrBadRequest):
			status = http.StatusBadRequest
		case apperrors.HasCode(err, apperrors.ErrNotFound):
			status = http.StatusNotFound
		}
		handler.Error(c, status, err.Error())
		return
	}

	handler.Success(c, http.StatusCreated, msg)
}
