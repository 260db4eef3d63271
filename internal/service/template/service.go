package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
	"github.com/fieldserve/sms-engine/internal/service/render"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

type Service interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]*model.Template, error)
	GetActive(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType) (*model.Template, error)
	Upsert(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType, body string) (*model.Template, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Preview(body string, sampleContext render.Context) string
	SeedDefaults(ctx context.Context, tenantID uuid.UUID) error
}

type service struct {
	repo repository.TemplateRepository
}

func NewService(repo repository.TemplateRepository) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID) ([]*model.Template, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *service) GetActive(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType) (*model.Template, error) {
	return s.repo.GetActive(ctx, tenantID, trigger)
}

// Upsert creates or replaces the tenant override for a trigger type
// and recomputes the derived variable list from the body.
func (s *service) Upsert(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType, body string) (*model.Template, error) {
	if !trigger.Valid() || trigger == model.TriggerReply {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid trigger type %q", trigger), nil)
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewBadRequest("template body must not be empty", nil)
	}

	existing, err := s.repo.GetActive(ctx, tenantID, trigger)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrNoActiveTemplate) {
		return nil, err
	}

	tmpl := &model.Template{
		TenantID:    tenantID,
		TriggerType: trigger,
		Body:        body,
		Variables:   pq.StringArray(model.ExtractPlaceholders(body)),
	}
	// Editing the active template in place keeps it active; otherwise
	// the new body lands inactive until the admin flips it on.
	if existing != nil && !existing.IsDefault {
		tmpl.ID = existing.ID
		tmpl.CreatedAt = existing.CreatedAt
		tmpl.IsActive = existing.IsActive
	}

	if err := s.repo.Upsert(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// Preview runs the exact send-time renderer so the editor shows what
// the customer will receive, unresolved placeholders included.
func (s *service) Preview(body string, sampleContext render.Context) string {
	rendered, _ := render.Render(body, sampleContext)
	rendered, _ = render.Truncate(rendered, model.MaxBodyLength)
	return rendered
}

func (s *service) SeedDefaults(ctx context.Context, tenantID uuid.UUID) error {
	return s.repo.SeedDefaults(ctx, tenantID)
}
