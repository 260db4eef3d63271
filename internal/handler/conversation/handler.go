package conversation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/middleware"
	"github.com/fieldserve/sms-engine/internal/service/conversation"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

type Handler struct {
	service conversation.Service
}

func NewHandler(service conversation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.ListConversations)
		conversations.GET("/:customer_id", h.GetConversation)
		conversations.POST("/:customer_id/read", h.MarkRead)
	}
}

func (h *Handler) ListConversations(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.service.List(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, conversations)
}

func (h *Handler) GetConversation(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	customerID, err := uuid.Parse(c.Param("customer_id"))
	if err != nil {
		handler.Error(c, http.StatusBadRequest, "invalid customer ID")
		return
	}

	conv, messages, err := h.service.Get(c.Request.Context(), tenantID, customerID)
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		handler.Error(c, status, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, gin.H{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *Handler) MarkRead(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	customerID, err := uuid.Parse(c.Param("customer_id"))
	if err != nil {
		handler.Error(c, http.StatusBadRequest, "invalid customer ID")
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), tenantID, customerID); err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, nil)
}
