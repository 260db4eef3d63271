package conversation

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
)

const defaultPageSize = 50

// Service is the read side of the inbox. The projection rows are
// maintained transactionally with message writes, so reads here are
// never staler than the last committed message.
type Service interface {
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*model.Conversation, error)
	Get(ctx context.Context, tenantID, customerID uuid.UUID) (*model.Conversation, []*model.Message, error)
	MarkRead(ctx context.Context, tenantID, customerID uuid.UUID) error
}

type service struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

func NewService(conversations repository.ConversationRepository, messages repository.MessageRepository) Service {
	return &service{conversations: conversations, messages: messages}
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*model.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.conversations.List(ctx, tenantID, limit, offset)
}

func (s *service) Get(ctx context.Context, tenantID, customerID uuid.UUID) (*model.Conversation, []*model.Message, error) {
	conv, err := s.conversations.Get(ctx, tenantID, customerID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.messages.ListByCustomer(ctx, tenantID, customerID, defaultPageSize, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

func (s *service) MarkRead(ctx context.Context, tenantID, customerID uuid.UUID) error {
	return s.conversations.MarkRead(ctx, tenantID, customerID)
}
