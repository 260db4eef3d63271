package template

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/middleware"
	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/service/render"
	"github.com/fieldserve/sms-engine/internal/service/template"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

type Handler struct {
	service template.Service
}

func NewHandler(service template.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	templates := r.Group("/templates")
	{
		templates.GET("", h.ListTemplates)
		templates.PUT("/:trigger_type", h.UpdateTemplate)
		templates.POST("/:id/activate", h.ActivateTemplate)
		templates.POST("/:id/deactivate", h.DeactivateTemplate)
		templates.POST("/preview", h.PreviewTemplate)
		templates.POST("/seed", h.SeedTemplates)
	}
}

// SeedTemplates installs the stock template set for the tenant,
// skipping trigger types that already have one. Called at tenant
// provisioning.
func (h *Handler) SeedTemplates(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	if err := h.service.SeedDefaults(c.Request.Context(), tenantID); err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusCreated, nil)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	templates, err := h.service.List(c.Request.Context(), tenantID)
	if err != nil {
		handler.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, templates)
}

type updateTemplateRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	trigger := model.TriggerType(c.Param("trigger_type"))

	var req updateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := h.service.Upsert(c.Request.Context(), tenantID, trigger, req.Body)
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.HasCode(err, apperrors.ErrBadRequest) {
			status = http.StatusBadRequest
		}
		handler.Error(c, status, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, tmpl)
}

func (h *Handler) ActivateTemplate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) DeactivateTemplate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, http.StatusBadRequest, "invalid template ID")
		return
	}

	if err := h.service.SetActive(c.Request.Context(), id, active); err != nil {
		status := http.StatusInternalServerError
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		handler.Error(c, status, err.Error())
		return
	}

	handler.Success(c, http.StatusOK, nil)
}

type previewRequest struct {
	Body    string            `json:"body" binding:"required"`
	Context map[string]string `json:"context"`
}

// PreviewTemplate renders a draft body with a sample context using the
// exact send-time renderer.
func (h *Handler) PreviewTemplate(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	rendered := h.service.Preview(req.Body, render.Context(req.Context))
	handler.Success(c, http.StatusOK, gin.H{
		"rendered":  rendered,
		"variables": model.ExtractPlaceholders(req.Body),
	})
}
