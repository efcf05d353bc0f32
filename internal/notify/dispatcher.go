package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/mailer"
	"github.com/lmoretti/bookpulse/internal/metrics"
)

// TemplateSource supplies active templates for a trigger, scoped to the
// booking's location.
type TemplateSource interface {
	ActiveForTrigger(ctx context.Context, tenantID uuid.UUID, triggerType string, locationID uuid.UUID) ([]*db.Template, error)
}

// TenantSource resolves the tenant a booking belongs to.
type TenantSource interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Tenant, error)
}

// Ledger is the delivery ledger surface the dispatcher needs.
type Ledger interface {
	WasSent(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail string) (bool, error)
	RecordSent(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail, triggerType string, actorID uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail, triggerType string, actorID uuid.UUID, sendErr string) error
}

// Outcome describes one recipient-level delivery outcome, published to
// downstream consumers when an event producer is configured.
type Outcome struct {
	BookingID      uuid.UUID
	TemplateID     uuid.UUID
	RecipientEmail string
	TriggerType    string
	Status         string
	Error          string
}

// OutcomePublisher fans delivery outcomes out to an external queue.
type OutcomePublisher interface {
	Publish(ctx context.Context, outcome Outcome) error
}

// Result aggregates recipient-level counts for one dispatch call.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Dispatcher resolves recipients, renders content, consults the ledger,
// sends, and records the outcome, for both immediate triggers and
// scheduled sweeps.
type Dispatcher struct {
	templates TemplateSource
	tenants   TenantSource
	ledger    Ledger
	mail      mailer.Mailer
	events    OutcomePublisher // nil when event fan-out is not configured
	logger    *zap.Logger

	// sendTimeout bounds one transport call so a slow provider cannot
	// stall a whole sweep. Zero means no dispatcher-imposed deadline.
	sendTimeout time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(templates TemplateSource, tenants TenantSource, ledger Ledger, mail mailer.Mailer, logger *zap.Logger, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		templates:   templates,
		tenants:     tenants,
		ledger:      ledger,
		mail:        mail,
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

// WithEvents attaches an outcome publisher. Publish failures are logged
// and never affect dispatch results.
func (d *Dispatcher) WithEvents(events OutcomePublisher) *Dispatcher {
	d.events = events
	return d
}

// Dispatch sends every matching template for the booking and trigger and
// returns recipient-level counts. Per-recipient problems are absorbed
// into the counts; the returned error is reserved for infrastructure
// failures (the template query), which callers may retry.
//
// A missing tenant is treated as a data inconsistency: logged, all-zero
// counts, no error. One tenant's bad data must not fail a caller
// working through many tenants.
func (d *Dispatcher) Dispatch(ctx context.Context, booking *db.Booking, triggerType string, adminEmail string) (Result, error) {
	var result Result

	tenant, err := d.tenants.Get(ctx, booking.TenantID)
	if err != nil {
		d.logger.Error("tenant not found for booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("tenant_id", booking.TenantID.String()),
		)
		return result, nil
	}

	templates, err := d.templates.ActiveForTrigger(ctx, booking.TenantID, triggerType, booking.LocationID)
	if err != nil {
		return result, fmt.Errorf("load templates: %w", err)
	}

	if len(templates) == 0 {
		d.logger.Debug("no active templates for trigger",
			zap.String("trigger_type", triggerType),
			zap.String("tenant_id", booking.TenantID.String()),
		)
		return result, nil
	}

	// One variable bag per booking; identical across its templates.
	vars := Variables(booking, tenant.Name)

	for _, template := range templates {
		recipients := Recipients(booking, template.RecipientType, adminEmail)

		if len(recipients) == 0 {
			d.logger.Debug("no recipients for template",
				zap.String("template_id", template.ID.String()),
				zap.String("recipient_type", template.RecipientType),
			)
			result.Skipped++
			continue
		}

		subject := Render(template.Subject, vars)
		body := Render(template.Body, vars)

		for _, recipient := range recipients {
			d.sendOne(ctx, booking, template, triggerType, recipient, subject, body, &result)
		}
	}

	return result, nil
}

// sendOne handles a single (template, recipient) pair. Failures are
// absorbed into the counts so siblings keep going.
func (d *Dispatcher) sendOne(ctx context.Context, booking *db.Booking, template *db.Template, triggerType, recipient, subject, body string, result *Result) {
	alreadySent, err := d.ledger.WasSent(ctx, booking.ID, template.ID, recipient)
	if err != nil {
		d.logger.Error("ledger lookup failed",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("template_id", template.ID.String()),
		)
		result.Failed++
		return
	}
	if alreadySent {
		d.logger.Debug("email already sent, skipping",
			zap.String("booking_id", booking.ID.String()),
			zap.String("template_id", template.ID.String()),
			zap.String("recipient", recipient),
		)
		result.Skipped++
		return
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	sendErr := d.mail.Send(sendCtx, mailer.Message{
		To:      recipient,
		Subject: subject,
		HTML:    body,
	})
	metrics.ObserveSendDuration(triggerType, time.Since(start))

	if sendErr != nil {
		if err := d.ledger.RecordFailure(ctx, booking.ID, template.ID, recipient, triggerType, booking.OwnerID, sendErr.Error()); err != nil {
			d.logger.Error("failed to record delivery failure", zap.Error(err))
		}
		d.logger.Error("failed to send email",
			zap.Error(sendErr),
			zap.String("booking_id", booking.ID.String()),
			zap.String("recipient", recipient),
		)
		metrics.RecordDelivery(triggerType, db.DeliveryFailed)
		result.Failed++
		d.publish(ctx, booking, template, triggerType, recipient, db.DeliveryFailed, sendErr.Error())
		return
	}

	inserted, err := d.ledger.RecordSent(ctx, booking.ID, template.ID, recipient, triggerType, booking.OwnerID)
	if err != nil {
		// The mail went out; a ledger write failure only risks a future
		// duplicate, so the send still counts.
		d.logger.Error("failed to record sent delivery",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("template_id", template.ID.String()),
		)
	}
	if err == nil && !inserted {
		// A concurrent dispatcher recorded the sent row first.
		d.logger.Warn("lost conditional insert race, counting as skipped",
			zap.String("booking_id", booking.ID.String()),
			zap.String("template_id", template.ID.String()),
			zap.String("recipient", recipient),
		)
		result.Skipped++
		return
	}

	d.logger.Info("email sent",
		zap.String("booking_id", booking.ID.String()),
		zap.String("template_id", template.ID.String()),
		zap.String("recipient", recipient),
		zap.String("trigger_type", triggerType),
	)
	metrics.RecordDelivery(triggerType, db.DeliverySent)
	result.Sent++
	d.publish(ctx, booking, template, triggerType, recipient, db.DeliverySent, "")
}

func (d *Dispatcher) publish(ctx context.Context, booking *db.Booking, template *db.Template, triggerType, recipient, status, errMsg string) {
	if d.events == nil {
		return
	}
	err := d.events.Publish(ctx, Outcome{
		BookingID:      booking.ID,
		TemplateID:     template.ID,
		RecipientEmail: recipient,
		TriggerType:    triggerType,
		Status:         status,
		Error:          errMsg,
	})
	if err != nil {
		d.logger.Warn("failed to publish delivery outcome", zap.Error(err))
	}
}
