package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// BookingRepository reads bookings joined with their location and owner.
// Booking rows are owned by the booking CRUD subsystem.
type BookingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewBookingRepository creates a booking repository.
func NewBookingRepository(db *DB, logger *zap.Logger) *BookingRepository {
	return &BookingRepository{
		db:     db,
		logger: logger,
	}
}

const bookingSelect = `
	SELECT
		b.id, b.tenant_id, b.location_id, b.owner_id, b.date, b.slots, b.status,
		COALESCE(u.name, ''), COALESCE(u.email, ''),
		COALESCE(l.name, ''), COALESCE(l.address, '')
	FROM bookings b
	LEFT JOIN users u ON b.owner_id = u.id
	LEFT JOIN locations l ON b.location_id = l.id
`

func scanBooking(row interface{ Scan(dest ...any) error }) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.LocationID,
		&b.OwnerID,
		&b.Date,
		&b.Slots,
		&b.Status,
		&b.OwnerName,
		&b.OwnerEmail,
		&b.LocationName,
		&b.LocationAddress,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Get retrieves one booking with joined owner and location data.
func (r *BookingRepository) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.Pool().QueryRow(ctx, bookingSelect+` WHERE b.id = $1`, id)

	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	return b, nil
}

// FindConfirmedInWindow returns the tenant's confirmed bookings whose date
// falls inside [start, end]. Both bounds are inclusive: a booking exactly
// on a window boundary matches. locationID narrows the search when the
// template is location-scoped; pass nil for tenant-wide templates.
//
// No pagination: a sweep loads every match and works through them in the
// same run.
func (r *BookingRepository) FindConfirmedInWindow(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID, start, end time.Time) ([]*Booking, error) {
	query := bookingSelect + `
		WHERE b.tenant_id = $1
		  AND b.status = 'confirmed'
		  AND b.date >= $2
		  AND b.date <= $3
	`
	args := []any{tenantID, start, end}

	if locationID != nil {
		query += ` AND b.location_id = $4`
		args = append(args, *locationID)
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings in window: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return bookings, nil
}
