package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength is the carrier limit for a single message body.
const MaxBodyLength = 1600

type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerReminder  TriggerType = "reminder"
	TriggerEnroute   TriggerType = "enroute"
	Trigger15Min     TriggerType = "15_min"
	TriggerArrived   TriggerType = "arrived"
	TriggerComplete  TriggerType = "complete"
	TriggerManual    TriggerType = "manual"
	TriggerReply     TriggerType = "reply"
)

// AutomatedTriggers are the trigger types the engine originates itself.
// manual bypasses dedup, reply only ever arrives from the carrier webhook.
var AutomatedTriggers = []TriggerType{
	TriggerScheduled,
	TriggerReminder,
	TriggerEnroute,
	Trigger15Min,
	TriggerArrived,
	TriggerComplete,
}

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerScheduled, TriggerReminder, TriggerEnroute, Trigger15Min,
		TriggerArrived, TriggerComplete, TriggerManual, TriggerReply:
		return true
	}
	return false
}

// Deduplicated reports whether the trigger type is subject to the
// dedup-key uniqueness constraint.
func (t TriggerType) Deduplicated() bool {
	return t != TriggerManual && t != TriggerReply
}

type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusReceived  MessageStatus = "received"
)

// Terminal reports whether no further status transition is allowed.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed || s == MessageStatusReceived
}

// CanTransition enforces the monotonic delivery state machine:
// queued -> sent -> {delivered, failed}, queued -> failed.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	switch s {
	case MessageStatusQueued:
		return to == MessageStatusSent || to == MessageStatusFailed
	case MessageStatusSent:
		return to == MessageStatusDelivered || to == MessageStatusFailed
	}
	return false
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Message is one row per attempted send (or received reply).
type Message struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	TenantID         uuid.UUID     `json:"tenant_id" db:"tenant_id"`
	CustomerID       uuid.UUID     `json:"customer_id" db:"customer_id"`
	JobID            *uuid.UUID    `json:"job_id,omitempty" db:"job_id"`
	TechnicianID     *uuid.UUID    `json:"technician_id,omitempty" db:"technician_id"`
	TriggerType      TriggerType   `json:"trigger_type" db:"trigger_type"`
	Direction        Direction     `json:"direction" db:"direction"`
	Body             string        `json:"body" db:"body"`
	Status           MessageStatus `json:"status" db:"status"`
	ProviderRef      *string       `json:"provider_ref,omitempty" db:"provider_ref"`
	Error            *string       `json:"error,omitempty" db:"error"`
	RenderWarning    *string       `json:"render_warning,omitempty" db:"render_warning"`
	EventFingerprint string        `json:"event_fingerprint" db:"event_fingerprint"`
	RetryCount       int           `json:"retry_count" db:"retry_count"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	SentAt           *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
}

// DeliveryReceipt is the payload the carrier posts back after a send.
type DeliveryReceipt struct {
	ProviderRef string        `json:"provider_ref"`
	Status      MessageStatus `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
}
