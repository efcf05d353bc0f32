package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/sweep"
)

// SweepRunner runs one complete sweep.
type SweepRunner interface {
	Run(ctx context.Context) (*sweep.Report, error)
}

// BookingReader loads bookings for request validation.
type BookingReader interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Booking, error)
}

// JobQueue enqueues immediate-trigger dispatch jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job *db.DispatchJob) error
}

// DeliveryReader reads the delivery ledger.
type DeliveryReader interface {
	ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]*db.Delivery, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Delivery, error)
}

// TriggerRequest represents the incoming request body for an immediate
// notification dispatch.
type TriggerRequest struct {
	TriggerType string `json:"trigger_type"`
	AdminEmail  string `json:"admin_email,omitempty"`
}

// TriggerResponse is returned after enqueueing a dispatch job.
type TriggerResponse struct {
	JobID string `json:"job_id"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger     *zap.Logger
	sweeper    SweepRunner
	bookings   BookingReader
	jobs       JobQueue
	deliveries DeliveryReader
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, sweeper SweepRunner, bookings BookingReader, jobs JobQueue, deliveries DeliveryReader) *Handler {
	return &Handler{
		logger:     logger,
		sweeper:    sweeper,
		bookings:   bookings,
		jobs:       jobs,
		deliveries: deliveries,
	}
}

// RunSweep handles POST /v1/sweep/run
// Invoked by the external cron scheduler; one call is one complete sweep.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.sweeper.Run(ctx)
	if err != nil {
		if errors.Is(err, sweep.ErrSweepInProgress) {
			h.writeError(w, http.StatusConflict, "sweep_in_progress",
				"A sweep is already running",
				"Another instance holds the sweep run lock")
			return
		}
		h.logger.Error("sweep run failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "sweep_error", "Sweep run failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}

// TriggerNotifications handles POST /v1/bookings/{id}/notifications
// Enqueues a dispatch job for an immediate trigger; the background worker
// performs the actual sends, so this returns 202 before any email moves.
func (h *Handler) TriggerNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	bookingID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid booking ID", "ID must be a valid UUID")
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if !db.ValidTrigger(req.TriggerType) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid trigger_type",
			"trigger_type must be one of: booking_confirmed, reminder_before, booking_cancelled, follow_up_after")
		return
	}

	booking, err := h.bookings.Get(ctx, bookingID)
	if err != nil {
		h.logger.Error("failed to get booking",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusNotFound, "not_found", "Booking not found", "")
		return
	}

	job := &db.DispatchJob{
		ID:          uuid.New(),
		TenantID:    booking.TenantID,
		BookingID:   booking.ID,
		TriggerType: req.TriggerType,
	}
	if req.AdminEmail != "" {
		job.AdminEmail = &req.AdminEmail
	}

	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed to enqueue dispatch job",
			zap.Error(err),
			zap.String("booking_id", idStr),
			zap.String("trigger_type", req.TriggerType),
		)
		h.writeError(w, http.StatusInternalServerError, "enqueue_error", "Failed to enqueue notification job", "")
		return
	}

	h.logger.Info("dispatch job accepted",
		zap.String("job_id", job.ID.String()),
		zap.String("booking_id", idStr),
		zap.String("trigger_type", req.TriggerType),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(TriggerResponse{JobID: job.ID.String()})
}

// ListBookingDeliveries handles GET /v1/bookings/{id}/deliveries
func (h *Handler) ListBookingDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	bookingID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid booking ID", "ID must be a valid UUID")
		return
	}

	deliveries, err := h.deliveries.ListForBooking(ctx, bookingID)
	if err != nil {
		h.logger.Error("failed to list booking deliveries",
			zap.Error(err),
			zap.String("booking_id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list deliveries", "")
		return
	}
	if deliveries == nil {
		deliveries = []*db.Delivery{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  deliveries,
		"count": len(deliveries),
	})
}

// ListDeliveries handles GET /v1/deliveries?tenant_id=xxx&limit=20&offset=0
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantIDStr := r.URL.Query().Get("tenant_id")
	if tenantIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing tenant_id", "tenant_id query parameter is required")
		return
	}

	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant_id", "tenant_id must be a valid UUID")
		return
	}

	// Parse pagination parameters with defaults
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	deliveries, err := h.deliveries.ListForTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list deliveries",
			zap.Error(err),
			zap.String("tenant_id", tenantIDStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list deliveries", "")
		return
	}
	if deliveries == nil {
		deliveries = []*db.Delivery{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   deliveries,
		"limit":  limit,
		"offset": offset,
		"count":  len(deliveries),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
