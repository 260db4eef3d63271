package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
)

type settingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) repository.SettingsRepository {
	return &settingsRepository{db: db}
}

// Get returns stored settings, falling back to defaults for tenants
// provisioned before the settings table existed.
func (r *settingsRepository) Get(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error) {
	query := `
		SELECT tenant_id, sms_enabled, auto_scheduled, auto_reminder,
			   auto_enroute, auto_15_min, auto_arrived, auto_complete,
			   reminder_lead_hours, opt_out_body, updated_at
		FROM trigger_settings
		WHERE tenant_id = $1
	`
	var settings model.TriggerSettings
	if err := r.db.GetContext(ctx, &settings, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DefaultTriggerSettings(tenantID), nil
		}
		return nil, fmt.Errorf("failed to get trigger settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings *model.TriggerSettings) error {
	settings.UpdatedAt = time.Now()

	query := `
		INSERT INTO trigger_settings (
			tenant_id, sms_enabled, auto_scheduled, auto_reminder,
			auto_enroute, auto_15_min, auto_arrived, auto_complete,
			reminder_lead_hours, opt_out_body, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id) DO UPDATE SET
			sms_enabled = EXCLUDED.sms_enabled,
			auto_scheduled = EXCLUDED.auto_scheduled,
			auto_reminder = EXCLUDED.auto_reminder,
			auto_enroute = EXCLUDED.auto_enroute,
			auto_15_min = EXCLUDED.auto_15_min,
			auto_arrived = EXCLUDED.auto_arrived,
			auto_complete = EXCLUDED.auto_complete,
			reminder_lead_hours = EXCLUDED.reminder_lead_hours,
			opt_out_body = EXCLUDED.opt_out_body,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		settings.TenantID,
		settings.SMSEnabled,
		settings.AutoScheduled,
		settings.AutoReminder,
		settings.AutoEnroute,
		settings.Auto15Min,
		settings.AutoArrived,
		settings.AutoComplete,
		settings.ReminderLeadHours,
		settings.OptOutBody,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trigger settings: %w", err)
	}
	return nil
}
