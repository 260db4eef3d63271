package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/middleware"
	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/service/settings"
)

type Handler struct {
	service settings.Service
}

func NewHandler(service settings.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
}

func (h *Handler) GetSettings(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	current, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, current)
}

type updateSettingsRequest struct {
	SMSEnabled        *bool   `json:"sms_enabled"`
	AutoScheduled     *bool   `json:"auto_scheduled"`
	AutoReminder      *bool   `json:"auto_reminder"`
	AutoEnroute       *bool   `json:"auto_enroute"`
	Auto15Min         *bool   `json:"auto_15_min"`
	AutoArrived       *bool   `json:"auto_arrived"`
	AutoComplete      *bool   `json:"auto_complete"`
	ReminderLeadHours *int    `json:"reminder_lead_hours" binding:"omitempty,min=1,max=72"`
	OptOutBody        *string `json:"opt_out_body"`
}

// UpdateSettings applies a partial update on top of the stored
// settings; omitted fields keep their current values.
func (h *Handler) UpdateSettings(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	current, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	applyUpdates(current, &req)

	if err := h.service.Update(c.Request.Context(), current); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrReminderLeadOutOfRange) {
			status = http.StatusBadRequest
		}
		handler.Error(c, status, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, current)
}

func applyUpdates(s *model.TriggerSettings, req *updateSettingsRequest) {
	if req.SMSEnabled != nil {
		s.SMSEnabled = *req.SMSEnabled
	}
	if req.AutoScheduled != nil {
		s.AutoScheduled = *req.AutoScheduled
	}
	if req.AutoReminder != nil {
		s.AutoReminder = *req.AutoReminder
	}
	if req.AutoEnroute != nil {
		s.AutoEnroute = *req.AutoEnroute
	}
	if req.Auto15Min != nil {
		s.Auto15Min = *req.Auto15Min
	}
	if req.AutoArrived != nil {
		s.AutoArrived = *req.AutoArrived
	}
	if req.AutoComplete != nil {
		s.AutoComplete = *req.AutoComplete
	}
	if req.ReminderLeadHours != nil {
		s.ReminderLeadHours = *req.ReminderLeadHours
	}
	if req.OptOutBody != nil {
		s.OptOutBody = *req.OptOutBody
	}
}
