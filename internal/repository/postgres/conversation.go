package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

// Conversation rows are written by the message repository inside the
// message insert transaction; this repository is the read path plus
// the unread-count reset.
type conversationRepository struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*model.Conversation, error) {
	query := `
		SELECT tenant_id, customer_id, last_message, last_message_at,
			   unread_count, updated_at
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`
	var conversations []*model.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, tenantID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (r *conversationRepository) Get(ctx context.Context, tenantID, customerID uuid.UUID) (*model.Conversation, error) {
	query := `
		SELECT tenant_id, customer_id, last_message, last_message_at,
			   unread_count, updated_at
		FROM conversations
		WHERE tenant_id = $1 AND customer_id = $2
	`
	var conversation model.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, tenantID, customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", err)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

func (r *conversationRepository) MarkRead(ctx context.Context, tenantID, customerID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET unread_count = 0, updated_at = NOW()
		WHERE tenant_id = $1 AND customer_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, customerID); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}
