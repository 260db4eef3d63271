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

// dedupConstraint is the partial unique index on
// (tenant_id, customer_id, job_id, trigger_type, event_fingerprint)
// for automated trigger types. The insert races through it; the loser
// sees a unique violation, not a read-then-write window.
const dedupConstraint = "messages_dedup_key"

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &messageRepository{db: db}
}

const insertMessageQuery = `
	INSERT INTO messages (
		id, tenant_id, customer_id, job_id, technician_id,
		trigger_type, direction, body, status, provider_ref,
		error, render_warning, event_fingerprint, retry_count,
		created_at, sent_at, delivered_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

func (r *messageRepository) Reserve(ctx context.Context, msg *model.Message) error {
	return r.insert(ctx, msg, true)
}

func (r *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	return r.insert(ctx, msg, false)
}

func (r *messageRepository) insert(ctx context.Context, msg *model.Message, dedup bool) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertMessageQuery,
		msg.ID,
		msg.TenantID,
		msg.CustomerID,
		msg.JobID,
		msg.TechnicianID,
		msg.TriggerType,
		msg.Direction,
		msg.Body,
		msg.Status,
		msg.ProviderRef,
		msg.Error,
		msg.RenderWarning,
		msg.EventFingerprint,
		msg.RetryCount,
		msg.CreatedAt,
		msg.SentAt,
		msg.DeliveredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if dedup && errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == dedupConstraint {
			return apperrors.DuplicateEvent(msg.EventFingerprint)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := r.projectConversation(ctx, tx, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message insert: %w", err)
	}
	return nil
}

// projectConversation keeps the inbox projection in lockstep with the
// message write. Inbound messages bump the unread counter.
func (r *messageRepository) projectConversation(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	unread := 0
	if msg.Direction == model.DirectionInbound {
		unread = 1
	}

	query := `
		INSERT INTO conversations (
			tenant_id, customer_id, last_message, last_message_at,
			unread_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, customer_id) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			unread_count = conversations.unread_count + $5,
			updated_at = NOW()
	`
	_, err := tx.ExecContext(ctx, query,
		msg.TenantID,
		msg.CustomerID,
		msg.Body,
		msg.CreatedAt,
		unread,
	)
	if err != nil {
		return fmt.Errorf("failed to project conversation: %w", err)
	}
	return nil
}

const selectMessageColumns = `
	id, tenant_id, customer_id, job_id, technician_id,
	trigger_type, direction, body, status, provider_ref,
	error, render_warning, event_fingerprint, retry_count,
	created_at, sent_at, delivered_at
`

func (r *messageRepository) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	query := `SELECT ` + selectMessageColumns + ` FROM messages WHERE id = $1`

	var msg model.Message
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("message", err)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (r *messageRepository) GetByProviderRef(ctx context.Context, providerRef string) (*model.Message, error) {
	query := `SELECT ` + selectMessageColumns + ` FROM messages WHERE provider_ref = $1`

	var msg model.Message
	if err := r.db.GetContext(ctx, &msg, query, providerRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("message", err)
		}
		return nil, fmt.Errorf("failed to get message by provider ref: %w", err)
	}
	return &msg, nil
}

// Status transitions are conditional updates so the monotonic state
// machine holds under concurrent receipt processing: a transition that
// finds the row already past the expected status affects zero rows.

func (r *messageRepository) MarkSent(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET status = $1, provider_ref = $2, sent_at = $3, error = NULL
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		model.MessageStatusSent, providerRef, at, id, model.MessageStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark message sent: %w", err)
	}
	return oneRowAffected(result)
}

func (r *messageRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	query := `
		UPDATE messages
		SET status = $1, error = $2
		WHERE id = $3 AND status IN ($4, $5)
	`
	result, err := r.db.ExecContext(ctx, query,
		model.MessageStatusFailed, errMsg, id,
		model.MessageStatusQueued, model.MessageStatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to mark message failed: %w", err)
	}
	return oneRowAffected(result)
}

func (r *messageRepository) MarkDelivered(ctx context.Context, providerRef string, at time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET status = $1, delivered_at = $2
		WHERE provider_ref = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.MessageStatusDelivered, at, providerRef, model.MessageStatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return oneRowAffected(result)
}

func (r *messageRepository) MarkFailedByRef(ctx context.Context, providerRef, errMsg string) (bool, error) {
	query := `
		UPDATE messages
		SET status = $1, error = $2
		WHERE provider_ref = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.MessageStatusFailed, errMsg, providerRef, model.MessageStatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to mark message failed by ref: %w", err)
	}
	return oneRowAffected(result)
}

func (r *messageRepository) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE messages SET retry_count = retry_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

func (r *messageRepository) ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, limit, offset int) ([]*model.Message, error) {
	query := `
		SELECT ` + selectMessageColumns + `
		FROM messages
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	var messages []*model.Message
	if err := r.db.SelectContext(ctx, &messages, query, tenantID, customerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func oneRowAffected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
