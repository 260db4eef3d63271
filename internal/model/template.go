package model

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PlaceholderPattern is the whole template grammar: {{identifier}}
// only, no expressions or loops.
var PlaceholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// ExtractPlaceholders returns the distinct placeholder names found in
// a template body, in order of first appearance.
func ExtractPlaceholders(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range PlaceholderPattern.FindAllStringSubmatch(body, -1) {
		if name := match[1]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Template is the tenant-customizable message body for one trigger type.
// At most one template is active per (tenant, trigger_type).
type Template struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TenantID    uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	TriggerType TriggerType    `json:"trigger_type" db:"trigger_type"`
	Body        string         `json:"body" db:"body"`
	IsActive    bool           `json:"is_active" db:"is_active"`
	IsDefault   bool           `json:"is_default" db:"is_default"`
	Variables   pq.StringArray `json:"variables" db:"variables"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// VariableCatalog lists every placeholder name the renderer resolves.
// Anything else in a template body is left as literal text.
var VariableCatalog = []string{
	"customer_first_name",
	"customer_last_name",
	"company_name",
	"company_phone",
	"tech_first_name",
	"tech_phone",
	"scheduled_date",
	"scheduled_time",
	"job_type",
	"job_total",
	"eta_minutes",
	"eta_time",
	"invoice_link",
}

// DefaultTemplateBodies seed each tenant with a working template per
// automated trigger type.
var DefaultTemplateBodies = map[TriggerType]string{
	TriggerScheduled: "Hi {{customer_first_name}}, your {{job_type}} appointment with {{company_name}} is booked for {{scheduled_date}} at {{scheduled_time}}. Reply STOP to opt out.",
	TriggerReminder:  "Reminder from {{company_name}}: your {{job_type}} appointment is on {{scheduled_date}} at {{scheduled_time}}. Questions? Call {{company_phone}}.",
	TriggerEnroute:   "{{tech_first_name}} from {{company_name}} is on the way and should arrive around {{eta_time}}.",
	Trigger15Min:     "{{tech_first_name}} from {{company_name}} is about {{eta_minutes}} minutes away.",
	TriggerArrived:   "{{tech_first_name}} from {{company_name}} has arrived for your {{job_type}} appointment.",
	TriggerComplete:  "Thanks {{customer_first_name}}! Your {{job_type}} job is complete. Total: {{job_total}}. Invoice: {{invoice_link}}",
}
