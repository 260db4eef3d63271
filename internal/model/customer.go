package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer holds the recipient fields the engine needs for the render
// context plus the opt-out flag. The full customer record is owned by
// the CRM side of the platform.
type Customer struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Phone     string    `json:"phone" db:"phone"`
	OptedOut  bool      `json:"opted_out" db:"opted_out"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Tenant carries the business identity fields exposed to templates.
type Tenant struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CompanyName  string    `json:"company_name" db:"company_name"`
	CompanyPhone string    `json:"company_phone" db:"company_phone"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
