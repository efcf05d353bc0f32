package db

import (
	"time"

	"github.com/google/uuid"
)

// Trigger types describe the booking lifecycle event or time-relative
// condition that fires a template.
const (
	TriggerBookingConfirmed = "booking_confirmed"
	TriggerReminderBefore   = "reminder_before"
	TriggerBookingCancelled = "booking_cancelled"
	TriggerFollowUpAfter    = "follow_up_after"
)

// Recipient types
const (
	RecipientCustomer = "customer"
	RecipientAdmin    = "admin"
	RecipientBoth     = "both"
)

// Delivery status constants
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Dispatch job status constants
const (
	JobPending      = "pending"
	JobProcessing   = "processing"
	JobDone         = "done"
	JobDeadLettered = "dead_lettered"
)

// ValidTrigger reports whether s is a known trigger type.
func ValidTrigger(s string) bool {
	switch s {
	case TriggerBookingConfirmed, TriggerReminderBefore, TriggerBookingCancelled, TriggerFollowUpAfter:
		return true
	}
	return false
}

// ScheduledTrigger reports whether s is a time-windowed trigger type,
// i.e. one the sweep engine processes. OffsetHours is only meaningful
// for these.
func ScheduledTrigger(s string) bool {
	return s == TriggerReminderBefore || s == TriggerFollowUpAfter
}

// Activation is the tri-state active flag on templates. Templates created
// before the is_active column existed have it unset, and unset must behave
// as active so legacy templates keep firing.
type Activation int

const (
	ActivationUnset Activation = iota
	ActivationActive
	ActivationInactive
)

// Enabled reports whether a template with this activation state should be
// processed. Only an explicit inactive flag disables a template.
func (a Activation) Enabled() bool {
	return a != ActivationInactive
}

// ActivationFromPtr maps a nullable boolean column to the tri-state.
func ActivationFromPtr(b *bool) Activation {
	switch {
	case b == nil:
		return ActivationUnset
	case *b:
		return ActivationActive
	default:
		return ActivationInactive
	}
}

// Template is a tenant-owned notification template. Subject and body carry
// {{variable}} placeholders resolved at send time. A template with a
// LocationID only applies to bookings at that location; without one it
// applies tenant-wide.
type Template struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	TriggerType   string     `json:"trigger_type"`
	RecipientType string     `json:"recipient_type"`
	LocationID    *uuid.UUID `json:"location_id,omitempty"`
	OffsetHours   int        `json:"offset_hours"`
	Activation    Activation `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Booking is the read-side view of a booking, joined with its location and
// owning user. The booking CRUD subsystem owns the rows; this service only
// reads them.
type Booking struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	LocationID uuid.UUID  `json:"location_id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Date       *time.Time `json:"date,omitempty"`
	Slots      []string   `json:"slots,omitempty"`
	Status     string     `json:"status"`

	// Joined data, empty when the related row is missing.
	OwnerName       string `json:"owner_name,omitempty"`
	OwnerEmail      string `json:"owner_email,omitempty"`
	LocationName    string `json:"location_name,omitempty"`
	LocationAddress string `json:"location_address,omitempty"`
}

// Tenant identifies an isolated team owning templates, bookings, and
// locations.
type Tenant struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Delivery is one row of the append-only delivery ledger. Rows are never
// updated or deleted: each send attempt inserts a new row, so failed
// attempts stay visible for audit. At most one row per
// (booking, template, recipient) may have status sent, enforced by a
// partial unique index.
type Delivery struct {
	ID             uuid.UUID  `json:"id"`
	BookingID      uuid.UUID  `json:"booking_id"`
	TemplateID     uuid.UUID  `json:"template_id"`
	RecipientEmail string     `json:"recipient_email"`
	TriggerType    string     `json:"trigger_type"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	UpdatedBy      uuid.UUID  `json:"updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DispatchJob is a queued immediate-trigger dispatch. Booking lifecycle
// handlers enqueue a job and return; the background worker picks it up,
// runs the dispatcher, and records the outcome. Failures stay observable
// on the row instead of vanishing with a detached goroutine.
type DispatchJob struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	BookingID   uuid.UUID  `json:"booking_id"`
	TriggerType string     `json:"trigger_type"`
	AdminEmail  *string    `json:"admin_email,omitempty"`
	Status      string     `json:"status"`
	Attempt     int        `json:"attempt"`
	LastError   *string    `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
