package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryRepository is the append-only delivery ledger. It answers
// "was this already sent" and records every attempt, successful or not.
//
// Deduplication rides on a partial unique index:
//
//	CREATE UNIQUE INDEX ... ON email_deliveries (booking_id, template_id, recipient_email)
//	WHERE status = 'sent';
//
// so recording a sent row is a single conditional insert, and two
// concurrent sweeps cannot both win for the same triple.
type DeliveryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDeliveryRepository creates a delivery ledger repository.
func NewDeliveryRepository(db *DB, logger *zap.Logger) *DeliveryRepository {
	return &DeliveryRepository{
		db:     db,
		logger: logger,
	}
}

// WasSent reports whether a sent ledger row exists for the
// (booking, template, recipient) triple. Failed attempts do not count:
// they never block a retry.
func (r *DeliveryRepository) WasSent(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_deliveries
			WHERE booking_id = $1 AND template_id = $2
			  AND recipient_email = $3 AND status = 'sent'
		)
	`, bookingID, templateID, recipientEmail).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query delivery ledger: %w", err)
	}
	return exists, nil
}

// RecordSent inserts the sent row for a triple. Returns false when
// another writer already holds the sent row: the caller lost the race
// and must not treat the send as its own.
func (r *DeliveryRepository) RecordSent(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail, triggerType string, actorID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		INSERT INTO email_deliveries (
			id, booking_id, template_id, recipient_email, trigger_type,
			status, sent_at, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, 'sent', $6, $7, $7)
		ON CONFLICT (booking_id, template_id, recipient_email) WHERE status = 'sent'
		DO NOTHING
	`, uuid.New(), bookingID, templateID, recipientEmail, triggerType, time.Now().UTC(), actorID)
	if err != nil {
		return false, fmt.Errorf("record sent delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFailure appends a failed attempt with the transport error.
// Duplicates are expected: every retry leaves its own row for audit.
func (r *DeliveryRepository) RecordFailure(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail, triggerType string, actorID uuid.UUID, sendErr string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO email_deliveries (
			id, booking_id, template_id, recipient_email, trigger_type,
			status, error, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, 'failed', $6, $7, $7)
	`, uuid.New(), bookingID, templateID, recipientEmail, triggerType, sendErr, actorID)
	if err != nil {
		return fmt.Errorf("record failed delivery: %w", err)
	}
	return nil
}

const deliveryColumns = `
	id, booking_id, template_id, recipient_email, trigger_type,
	status, sent_at, error, created_by, updated_by, created_at
`

func scanDelivery(row interface{ Scan(dest ...any) error }) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID,
		&d.BookingID,
		&d.TemplateID,
		&d.RecipientEmail,
		&d.TriggerType,
		&d.Status,
		&d.SentAt,
		&d.Error,
		&d.CreatedBy,
		&d.UpdatedBy,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListForBooking returns every ledger row for a booking, newest first.
// Support uses this to answer "did the customer get their reminder".
func (r *DeliveryRepository) ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]*Delivery, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM email_deliveries
		WHERE booking_id = $1
		ORDER BY created_at DESC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListForTenant returns a page of the tenant's ledger rows, newest first.
// Tenant scoping goes through the booking join since ledger rows do not
// carry a tenant column themselves.
func (r *DeliveryRepository) ListForTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Delivery, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+qualifyDeliveryColumns("d")+`
		FROM email_deliveries d
		JOIN bookings b ON d.booking_id = b.id
		WHERE b.tenant_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query tenant deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func qualifyDeliveryColumns(alias string) string {
	return alias + `.id, ` + alias + `.booking_id, ` + alias + `.template_id, ` +
		alias + `.recipient_email, ` + alias + `.trigger_type, ` + alias + `.status, ` +
		alias + `.sent_at, ` + alias + `.error, ` + alias + `.created_by, ` +
		alias + `.updated_by, ` + alias + `.created_at`
}

func collectDeliveries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*Delivery, error) {
	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}
