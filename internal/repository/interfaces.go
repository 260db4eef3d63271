package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/sms-engine/internal/model"
)

// All repository interfaces in one file
type (
	// MessageRepository owns message rows and the conversation
	// projection rows they feed. Inserts update the projection in the
	// same transaction so the inbox list is never staler than the last
	// committed message write.
	MessageRepository interface {
		// Reserve atomically inserts a message, enforcing the dedup
		// uniqueness constraint for automated trigger types. Returns an
		// AppError with ErrDuplicateEvent when the key is already taken.
		Reserve(ctx context.Context, msg *model.Message) error
		// Insert stores a message without dedup (manual sends, inbound).
		Insert(ctx context.Context, msg *model.Message) error
		Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
		GetByProviderRef(ctx context.Context, providerRef string) (*model.Message, error)
		// MarkSent transitions queued -> sent. Returns false when the
		// message was not in queued status.
		MarkSent(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) (bool, error)
		// MarkFailed transitions queued|sent -> failed. Returns false
		// when the message was already terminal.
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)
		// MarkDelivered transitions sent -> delivered by provider ref.
		MarkDelivered(ctx context.Context, providerRef string, at time.Time) (bool, error)
		// MarkFailedByRef transitions sent -> failed by provider ref.
		MarkFailedByRef(ctx context.Context, providerRef, errMsg string) (bool, error)
		IncrementRetry(ctx context.Context, id uuid.UUID) error
		ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, limit, offset int) ([]*model.Message, error)
	}

	TemplateRepository interface {
		GetActive(ctx context.Context, tenantID uuid.UUID, trigger model.TriggerType) (*model.Template, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Template, error)
		List(ctx context.Context, tenantID uuid.UUID) ([]*model.Template, error)
		Upsert(ctx context.Context, tmpl *model.Template) error
		// SetActive flips activation in a single transaction,
		// deactivating any prior active template for the same
		// (tenant, trigger_type) so exactly one remains active.
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
		// SeedDefaults inserts the stock template set for a tenant,
		// skipping trigger types that already have one.
		SeedDefaults(ctx context.Context, tenantID uuid.UUID) error
	}

	SettingsRepository interface {
		Get(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error)
		Upsert(ctx context.Context, settings *model.TriggerSettings) error
	}

	ConversationRepository interface {
		List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*model.Conversation, error)
		Get(ctx context.Context, tenantID, customerID uuid.UUID) (*model.Conversation, error)
		MarkRead(ctx context.Context, tenantID, customerID uuid.UUID) error
	}

	CustomerRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
		SetOptedOut(ctx context.Context, id uuid.UUID, optedOut bool) error
	}

	TenantRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	}

	// JobRepository reads the jobs table owned by the scheduling
	// system. Only existence matters here: events for deleted jobs are
	// suppressed.
	JobRepository interface {
		Exists(ctx context.Context, id uuid.UUID) (bool, error)
	}
)
