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

type customerRepository struct {
	db *sqlx.DB
}

type tenantRepository struct {
	db *sqlx.DB
}

type jobRepository struct {
	db *sqlx.DB
}

func NewCustomerRepository(db *sqlx.DB) repository.CustomerRepository {
	return &customerRepository{db: db}
}

func NewTenantRepository(db *sqlx.DB) repository.TenantRepository {
	return &tenantRepository{db: db}
}

func NewJobRepository(db *sqlx.DB) repository.JobRepository {
	return &jobRepository{db: db}
}

func (r *customerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	query := `
		SELECT id, tenant_id, first_name, last_name, phone, opted_out,
			   created_at, updated_at
		FROM customers
		WHERE id = $1
	`
	var customer model.Customer
	if err := r.db.GetContext(ctx, &customer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("customer", err)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

func (r *customerRepository) SetOptedOut(ctx context.Context, id uuid.UUID, optedOut bool) error {
	query := `UPDATE customers SET opted_out = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, optedOut, id)
	if err != nil {
		return fmt.Errorf("failed to set customer opt-out: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("customer", nil)
	}
	return nil
}

func (r *tenantRepository) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT id, company_name, company_phone, created_at FROM tenants WHERE id = $1`

	var tenant model.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("tenant", err)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

func (r *jobRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1 AND deleted_at IS NULL)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return exists, nil
}
