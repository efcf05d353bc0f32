// Package sweep implements the periodic batch job that matches bookings
// against reminder and follow-up template windows and drives the
// dispatcher for each match.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/metrics"
	"github.com/lmoretti/bookpulse/internal/notify"
)

// ErrSweepInProgress is returned when another sweep holds the run lock.
var ErrSweepInProgress = errors.New("a sweep is already running")

// DefaultWindowRadius is the half-width of the booking match window.
// The external scheduler must fire at least once per full window width
// (2 × radius) or eligible bookings can fall between runs.
const DefaultWindowRadius = 30 * time.Minute

// TemplateSource loads every scheduled (reminder/follow-up) template
// across all tenants.
type TemplateSource interface {
	Scheduled(ctx context.Context) ([]*db.Template, error)
}

// BookingSource finds confirmed bookings inside a time window.
type BookingSource interface {
	FindConfirmedInWindow(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID, start, end time.Time) ([]*db.Booking, error)
}

// Ledger answers the pre-flight "was this already sent" check, saving a
// redundant render and transport call before the dispatcher's own check.
type Ledger interface {
	WasSent(ctx context.Context, bookingID, templateID uuid.UUID, recipientEmail string) (bool, error)
}

// Dispatcher sends the notifications for one booking and trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, booking *db.Booking, triggerType string, adminEmail string) (notify.Result, error)
}

// Locker serializes sweep runs across instances. Optional: without one,
// overlapping cron invocations race on the ledger's conditional insert
// instead, which still prevents duplicate mail but wastes work.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Result is one per-(booking, template) outcome row of a sweep run.
type Result struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	BookingID   uuid.UUID `json:"booking_id"`
	TemplateID  uuid.UUID `json:"template_id"`
	TriggerType string    `json:"trigger_type"`
	Status      string    `json:"status"` // sent | skipped | failed
	Error       string    `json:"error,omitempty"`
}

// Result statuses
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Summary holds the run's aggregate counts.
type Summary struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report is the structured outcome of one complete sweep.
type Report struct {
	Processed int      `json:"processed"`
	Summary   Summary  `json:"summary"`
	Results   []Result `json:"results"`
}

// Engine runs sweeps. One Run call is one complete sweep; the only state
// carried between runs is the delivery ledger.
type Engine struct {
	templates TemplateSource
	bookings  BookingSource
	ledger    Ledger
	disp      Dispatcher
	locker    Locker // nil = unlocked (single-instance deployments)
	logger    *zap.Logger

	windowRadius time.Duration
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker guards runs with a distributed lock.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithWindowRadius overrides the match window half-width.
func WithWindowRadius(r time.Duration) Option {
	return func(e *Engine) { e.windowRadius = r }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a sweep engine.
func NewEngine(templates TemplateSource, bookings BookingSource, ledger Ledger, disp Dispatcher, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		templates:    templates,
		bookings:     bookings,
		ledger:       ledger,
		disp:         disp,
		logger:       logger,
		windowRadius: DefaultWindowRadius,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window returns the match interval for a template at reference time now.
// Both bounds are inclusive. reminder_before looks offset hours ahead,
// follow_up_after offset hours back.
func Window(triggerType string, offsetHours int, now time.Time, radius time.Duration) (start, end time.Time) {
	offset := time.Duration(offsetHours) * time.Hour
	var center time.Time
	if triggerType == db.TriggerReminderBefore {
		center = now.Add(offset)
	} else {
		center = now.Add(-offset)
	}
	return center.Add(-radius), center.Add(radius)
}

// Run executes one complete sweep and returns its report. Only the
// initial template load is fatal; every per-booking problem is absorbed
// into the result list so one bad booking cannot starve the rest of the
// run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.locker != nil {
		acquired, err := e.locker.Acquire(ctx)
		if err != nil {
			e.logger.Warn("sweep lock unavailable, running unlocked", zap.Error(err))
		} else if !acquired {
			return nil, ErrSweepInProgress
		} else {
			defer func() {
				if err := e.locker.Release(context.WithoutCancel(ctx)); err != nil {
					e.logger.Warn("failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	started := e.now()
	defer func() {
		metrics.RecordSweepRun(e.now().Sub(started))
	}()

	templates, err := e.templates.Scheduled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduled templates: %w", err)
	}

	if len(templates) == 0 {
		e.logger.Info("no scheduled templates, nothing to sweep")
		return &Report{Results: []Result{}}, nil
	}

	e.logger.Info("sweep started", zap.Int("templates", len(templates)))

	// Group by tenant, keeping first-seen order so runs are reproducible.
	byTenant := make(map[uuid.UUID][]*db.Template)
	var tenantOrder []uuid.UUID
	for _, t := range templates {
		if _, ok := byTenant[t.TenantID]; !ok {
			tenantOrder = append(tenantOrder, t.TenantID)
		}
		byTenant[t.TenantID] = append(byTenant[t.TenantID], t)
	}

	now := e.now()
	var results []Result

	for _, tenantID := range tenantOrder {
		tenantTemplates := byTenant[tenantID]
		e.logger.Debug("processing tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("templates", len(tenantTemplates)),
		)

		for _, template := range tenantTemplates {
			if !template.Activation.Enabled() {
				e.logger.Debug("skipping inactive template",
					zap.String("template_id", template.ID.String()),
				)
				continue
			}

			results = append(results, e.runTemplate(ctx, tenantID, template, now)...)
		}
	}

	report := &Report{
		Processed: len(results),
		Results:   results,
	}
	if report.Results == nil {
		report.Results = []Result{}
	}
	for _, r := range results {
		switch r.Status {
		case StatusSent:
			report.Summary.Sent++
		case StatusSkipped:
			report.Summary.Skipped++
		case StatusFailed:
			report.Summary.Failed++
		}
		metrics.RecordSweepResult(r.Status)
	}

	e.logger.Info("sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("sent", report.Summary.Sent),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", report.Summary.Failed),
	)

	return report, nil
}

// runTemplate matches and processes every booking for one template.
func (e *Engine) runTemplate(ctx context.Context, tenantID uuid.UUID, template *db.Template, now time.Time) []Result {
	start, end := Window(template.TriggerType, template.OffsetHours, now, e.windowRadius)

	bookings, err := e.bookings.FindConfirmedInWindow(ctx, tenantID, template.LocationID, start, end)
	if err != nil {
		e.logger.Error("booking query failed",
			zap.Error(err),
			zap.String("template_id", template.ID.String()),
		)
		return []Result{{
			TenantID:    tenantID,
			TemplateID:  template.ID,
			TriggerType: template.TriggerType,
			Status:      StatusFailed,
			Error:       err.Error(),
		}}
	}

	e.logger.Debug("bookings matched window",
		zap.String("template_id", template.ID.String()),
		zap.String("trigger_type", template.TriggerType),
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("bookings", len(bookings)),
	)

	var results []Result
	for _, booking := range bookings {
		if r, ok := e.processBooking(ctx, tenantID, template, booking); ok {
			results = append(results, r)
		}
	}
	return results
}

// processBooking handles one (booking, template) pair. The second return
// is false when the dispatcher did nothing at all (no result row, same
// as the immediate path reporting zero counts).
func (e *Engine) processBooking(ctx context.Context, tenantID uuid.UUID, template *db.Template, booking *db.Booking) (Result, bool) {
	result := Result{
		TenantID:    tenantID,
		BookingID:   booking.ID,
		TemplateID:  template.ID,
		TriggerType: template.TriggerType,
	}

	recipientEmail := booking.OwnerEmail
	if recipientEmail == "" {
		e.logger.Warn("no email for booking, skipping",
			zap.String("booking_id", booking.ID.String()),
		)
		result.Status = StatusSkipped
		result.Error = "No recipient email"
		return result, true
	}

	// Pre-flight dedup check before the dispatcher renders anything.
	alreadySent, err := e.ledger.WasSent(ctx, booking.ID, template.ID, recipientEmail)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, true
	}
	if alreadySent {
		result.Status = StatusSkipped
		result.Error = "Already sent"
		return result, true
	}

	counts, err := e.disp.Dispatch(ctx, booking, template.TriggerType, "")
	if err != nil {
		e.logger.Error("dispatch failed for booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, true
	}

	// A booking can fan out to several templates and recipients inside
	// the dispatcher, but the sweep records one row per (booking,
	// template) pair: sent beats skipped beats failed.
	switch {
	case counts.Sent > 0:
		result.Status = StatusSent
	case counts.Skipped > 0:
		result.Status = StatusSkipped
		result.Error = "Skipped by dispatcher"
	case counts.Failed > 0:
		result.Status = StatusFailed
		result.Error = "Failed to send"
	default:
		return Result{}, false
	}
	return result, true
}
