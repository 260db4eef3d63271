package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/service/dispatch"
	"github.com/fieldserve/sms-engine/internal/service/trigger"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
	"github.com/fieldserve/sms-engine/pkg/logger"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("trigger_type", func(fl validator.FieldLevel) bool {
			return model.TriggerType(fl.Field().String()).Valid()
		})
	}
}

// Handler is the inbound collaborator surface: lifecycle events from
// the scheduling system, delivery receipts and replies from the
// carrier.
type Handler struct {
	engine     *trigger.Service
	dispatcher *dispatch.Service
	logger     *logger.Logger
}

func NewHandler(engine *trigger.Service, dispatcher *dispatch.Service, log *logger.Logger) *Handler {
	return &Handler{
		engine:     engine,
		dispatcher: dispatcher,
		logger:     log.WithComponent("webhook"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/events", h.RegisterEvent)
		webhooks.POST("/receipts", h.ApplyReceipt)
		webhooks.POST("/inbound", h.InboundMessage)
	}
}

// RegisterEvent evaluates a lifecycle event. The response always
// carries a plain outcome; duplicate and suppressed deliveries are
// 200s, not errors, so the emitter never retries them.
func (h *Handler) RegisterEvent(c *gin.Context) {
	var event model.TriggerEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.engine.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrBadRequest) {
			c.JSON(http.StatusBadRequest, handler.Response{
				Status:  "error",
				Message: err.Error(),
				Data:    gin.H{"outcome": outcome},
			})
			return
		}
		h.logger.Error(err, "event handling failed",
			"trigger_type", string(event.TriggerType),
			"fingerprint", event.EventFingerprint)
	}

	handler.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// ApplyReceipt accepts a carrier delivery callback and hands it to the
// tracker queue. Unknown or late receipts are absorbed downstream.
func (h *Handler) ApplyReceipt(c *gin.Context) {
	var receipt model.DeliveryReceipt
	if err := c.ShouldBindJSON(&receipt); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if receipt.ProviderRef == "" {
		handler.Error(c, http.StatusBadRequest, "provider_ref is required")
		return
	}

	if err := h.dispatcher.EnqueueReceipt(c.Request.Context(), receipt); err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusAccepted, nil)
}

func (h *Handler) InboundMessage(c *gin.Context) {
	var inbound model.InboundMessage
	if err := c.ShouldBindJSON(&inbound); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.HandleInbound(c.Request.Context(), &inbound); err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, nil)
}
