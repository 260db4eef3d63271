package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrReminderLeadOutOfRange = errors.New("reminder_lead_hours must be between 1 and 72")

const (
	MinReminderLeadHours = 1
	MaxReminderLeadHours = 72

	DefaultReminderLeadHours = 24
	DefaultOptOutBody        = "You have been unsubscribed and will no longer receive messages from us."
)

// TriggerSettings gates which lifecycle events produce a message for a
// tenant. One row per tenant, created with defaults at provisioning.
type TriggerSettings struct {
	TenantID          uuid.UUID `json:"tenant_id" db:"tenant_id"`
	SMSEnabled        bool      `json:"sms_enabled" db:"sms_enabled"`
	AutoScheduled     bool      `json:"auto_scheduled" db:"auto_scheduled"`
	AutoReminder      bool      `json:"auto_reminder" db:"auto_reminder"`
	AutoEnroute       bool      `json:"auto_enroute" db:"auto_enroute"`
	Auto15Min         bool      `json:"auto_15_min" db:"auto_15_min"`
	AutoArrived       bool      `json:"auto_arrived" db:"auto_arrived"`
	AutoComplete      bool      `json:"auto_complete" db:"auto_complete"`
	ReminderLeadHours int       `json:"reminder_lead_hours" db:"reminder_lead_hours"`
	OptOutBody        string    `json:"opt_out_body" db:"opt_out_body"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultTriggerSettings returns the settings a freshly provisioned
// tenant starts with.
func DefaultTriggerSettings(tenantID uuid.UUID) *TriggerSettings {
	return &TriggerSettings{
		TenantID:          tenantID,
		SMSEnabled:        true,
		AutoScheduled:     true,
		AutoReminder:      true,
		AutoEnroute:       true,
		Auto15Min:         false,
		AutoArrived:       true,
		AutoComplete:      true,
		ReminderLeadHours: DefaultReminderLeadHours,
		OptOutBody:        DefaultOptOutBody,
	}
}

// EnabledFor reports whether the given trigger type is switched on.
// manual sends are always allowed; reply never originates here.
func (s *TriggerSettings) EnabledFor(t TriggerType) bool {
	if !s.SMSEnabled {
		return t == TriggerManual
	}
	switch t {
	case TriggerScheduled:
		return s.AutoScheduled
	case TriggerReminder:
		return s.AutoReminder
	case TriggerEnroute:
		return s.AutoEnroute
	case Trigger15Min:
		return s.Auto15Min
	case TriggerArrived:
		return s.AutoArrived
	case TriggerComplete:
		return s.AutoComplete
	case TriggerManual:
		return true
	}
	return false
}

// Validate enforces the admin-editable bounds.
func (s *TriggerSettings) Validate() error {
	if s.ReminderLeadHours < MinReminderLeadHours || s.ReminderLeadHours > MaxReminderLeadHours {
		return ErrReminderLeadOutOfRange
	}
	return nil
}
