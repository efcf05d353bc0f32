package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrTenantNotFound is returned when a booking references a tenant that
// no longer exists.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantRepository looks up tenants by id.
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a tenant repository.
func NewTenantRepository(db *DB, logger *zap.Logger) *TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a tenant by id.
func (r *TenantRepository) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, name FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return &t, nil
}
