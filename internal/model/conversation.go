package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the per-customer inbox projection, rebuilt
// incrementally from message writes. Owned by the projector; the
// trigger engine never mutates it directly.
type Conversation struct {
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	CustomerID    uuid.UUID  `json:"customer_id" db:"customer_id"`
	LastMessage   string     `json:"last_message" db:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	UnreadCount   int        `json:"unread_count" db:"unread_count"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
