package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

type templateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) repository.TemplateRepository {
	return &templateRepository{db: db}
}

const selectTemplateColumns = `
	id, tenant_id, trigger_type, body, is_active, is_default,
	variables, created_at, updated_at
`

func (r *templateRepository) GetActive(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType) (*model.Template, error) {
	query := `
		SELECT ` + selectTemplateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND trigger_type = $2 AND is_active = TRUE
	`
	var tmpl model.Template
	if err := r.db.GetContext(ctx, &tmpl, query, tenantID, trigger); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NoActiveTemplate(string(trigger))
		}
		return nil, fmt.Errorf("failed to get active template: %w", err)
	}
	return &tmpl, nil
}

func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	query := `SELECT ` + selectTemplateColumns + ` FROM templates WHERE id = $1`

	var tmpl model.Template
	if err := r.db.GetContext(ctx, &tmpl, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("template", err)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tmpl, nil
}

func (r *templateRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*model.Template, error) {
	query := `
		SELECT ` + selectTemplateColumns + `
		FROM templates
		WHERE tenant_id = $1
		ORDER BY trigger_type, is_active DESC, updated_at DESC
	`
	var templates []*model.Template
	if err := r.db.SelectContext(ctx, &templates, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) Upsert(ctx context.Context, tmpl *model.Template) error {
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
		tmpl.CreatedAt = time.Now()
	}
	tmpl.UpdatedAt = time.Now()

	query := `
		INSERT INTO templates (
			id, tenant_id, trigger_type, body, is_active, is_default,
			variables, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			body = EXCLUDED.body,
			is_default = EXCLUDED.is_default,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		tmpl.ID,
		tmpl.TenantID,
		tmpl.TriggerType,
		tmpl.Body,
		tmpl.IsActive,
		tmpl.IsDefault,
		tmpl.Variables,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	return nil
}

// SetActive swaps activation in one transaction: deactivate whatever
// is active for the (tenant, trigger_type) pair, then activate the
// target. No window with zero or two active templates is observable.
func (r *templateRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var tmpl model.Template
	if err := tx.GetContext(ctx, &tmpl,
		`SELECT `+selectTemplateColumns+` FROM templates WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFound("template", err)
		}
		return fmt.Errorf("failed to lock template: %w", err)
	}

	if active {
		_, err = tx.ExecContext(ctx, `
			UPDATE templates
			SET is_active = FALSE, updated_at = NOW()
			WHERE tenant_id = $1 AND trigger_type = $2 AND is_active = TRUE AND id <> $3
		`, tmpl.TenantID, tmpl.TriggerType, id)
		if err != nil {
			return fmt.Errorf("failed to deactivate prior template: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE templates SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set template activation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template activation: %w", err)
	}
	return nil
}

func (r *templateRepository) SeedDefaults(ctx context.Context, tenantID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, trigger := range model.AutomatedTriggers {
		body, ok := model.DefaultTemplateBodies[trigger]
		if !ok {
			continue
		}

		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM templates WHERE tenant_id = $1 AND trigger_type = $2)`,
			tenantID, trigger); err != nil {
			return fmt.Errorf("failed to check existing template: %w", err)
		}
		if exists {
			continue
		}

		now := time.Now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO templates (
				id, tenant_id, trigger_type, body, is_active, is_default,
				variables, created_at, updated_at
			) VALUES ($1, $2, $3, $4, TRUE, TRUE, $5, $6, $6)
		`, uuid.New(), tenantID, trigger, body, pq.StringArray(model.ExtractPlaceholders(body)), now)
		if err != nil {
			return fmt.Errorf("failed to seed template for %s: %w", trigger, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default templates: %w", err)
	}
	return nil
}
