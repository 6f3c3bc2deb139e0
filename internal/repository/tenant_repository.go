package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// TenantRepository exposes tenant-level configuration the engine needs.
// Tenant CRUD itself lives elsewhere.
type TenantRepository interface {
	GetSLAPolicy(ctx context.Context, tenantID string) (*domain.SLAPolicy, error)
}

type tenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository builds the postgres-backed repository.
func NewTenantRepository(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepository{pool: pool}
}

func (r *tenantRepository) GetSLAPolicy(ctx context.Context, tenantID string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT tenant_id, response_time_hours, resolution_time_hours
        FROM tenant_sla_policies WHERE tenant_id=$1`
	var policy domain.SLAPolicy
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&policy.TenantID,
		&policy.ResponseTimeHours,
		&policy.ResolutionTimeHours,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}
