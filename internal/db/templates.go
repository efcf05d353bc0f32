package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TemplateRepository reads notification templates. Templates are created
// and edited by tenant admins through the CRUD app; this service never
// writes them.
type TemplateRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTemplateRepository creates a template repository.
func NewTemplateRepository(db *DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `
	id, tenant_id, subject, body, trigger_type, recipient_type,
	location_id, offset_hours, is_active, created_at, updated_at
`

func scanTemplate(row interface{ Scan(dest ...any) error }) (*Template, error) {
	var (
		t        Template
		isActive *bool
		offset   *int
	)
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.Subject,
		&t.Body,
		&t.TriggerType,
		&t.RecipientType,
		&t.LocationID,
		&offset,
		&isActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if offset != nil {
		t.OffsetHours = *offset
	}
	t.Activation = ActivationFromPtr(isActive)
	return &t, nil
}

// ActiveForTrigger returns the tenant's templates for a trigger type,
// scoped to a location. A template with a location only matches that
// location; a template without one matches every location. Explicitly
// inactive templates are excluded. An empty result is not an error.
func (r *TemplateRepository) ActiveForTrigger(ctx context.Context, tenantID uuid.UUID, triggerType string, locationID uuid.UUID) ([]*Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM booking_templates
		WHERE tenant_id = $1 AND trigger_type = $2
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if !t.Activation.Enabled() {
			continue
		}
		// Location filter happens here rather than in SQL so that
		// NULL-location templates match every location.
		if t.LocationID != nil && *t.LocationID != locationID {
			continue
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	return templates, nil
}

// Scheduled returns every reminder and follow-up template across all
// tenants in one query. The sweep engine groups the result by tenant
// itself.
func (r *TemplateRepository) Scheduled(ctx context.Context) ([]*Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM booking_templates
		WHERE trigger_type = $1 OR trigger_type = $2
	`

	rows, err := r.db.Pool().Query(ctx, query, TriggerReminderBefore, TriggerFollowUpAfter)
	if err != nil {
		return nil, fmt.Errorf("query scheduled templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	return templates, nil
}
