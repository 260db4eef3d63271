package model

import (
	"time"

	"github.com/google/uuid"
)

// TriggerEvent is one lifecycle occurrence delivered by the
// scheduling/dispatch system. EventFingerprint must be stable across
// redeliveries of the same occurrence and distinct across re-triggers
// (a reschedule fires scheduled again with a new fingerprint).
type TriggerEvent struct {
	TenantID         uuid.UUID         `json:"tenant_id" binding:"required"`
	CustomerID       uuid.UUID         `json:"customer_id" binding:"required"`
	JobID            *uuid.UUID        `json:"job_id,omitempty"`
	TechnicianID     *uuid.UUID        `json:"technician_id,omitempty"`
	TriggerType      TriggerType       `json:"trigger_type" binding:"required,trigger_type"`
	EventFingerprint string            `json:"event_fingerprint" binding:"required"`
	Context          map[string]string `json:"context,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

// Outcome is the only thing HandleEvent reports back to the event
// emitter; callers never see internal retryable errors.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// InboundMessage is a reply relayed by the carrier webhook.
type InboundMessage struct {
	TenantID    uuid.UUID `json:"tenant_id" binding:"required"`
	CustomerID  uuid.UUID `json:"customer_id" binding:"required"`
	From        string    `json:"from"`
	Body        string    `json:"body" binding:"required"`
	ProviderRef string    `json:"provider_ref"`
	ReceivedAt  time.Time `json:"received_at"`
}
