// Package worker drains the dispatch job queue. Booking lifecycle
// handlers enqueue jobs instead of sending inline, and the worker
// retries transient failures with backoff before dead-lettering.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/metrics"
	"github.com/lmoretti/bookpulse/internal/notify"
)

// JobQueue is the queue surface the worker needs.
type JobQueue interface {
	ClaimPending(ctx context.Context, limit int) ([]*db.DispatchJob, error)
	MarkDone(ctx context.Context, id uuid.UUID, attempt int) error
	Reschedule(ctx context.Context, id uuid.UUID, attempt int, lastError string, nextRetryAt time.Time) error
	DeadLetter(ctx context.Context, id uuid.UUID, attempt int, lastError string) error
}

// BookingSource loads the booking a job refers to.
type BookingSource interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Booking, error)
}

// Dispatcher runs the notification pipeline for one booking and trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, booking *db.Booking, triggerType string, adminEmail string) (notify.Result, error)
}

type Worker struct {
	jobs       JobQueue
	bookings   BookingSource
	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

func New(jobs JobQueue, bookings BookingSource, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Worker {

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &Worker{
		jobs:       jobs,
		bookings:   bookings,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	jobs, err := w.jobs.ClaimPending(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim dispatch jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *db.DispatchJob) {
	newAttempt := job.Attempt + 1

	booking, err := w.bookings.Get(ctx, job.BookingID)
	if err != nil {
		w.fail(ctx, job, newAttempt, err)
		return
	}

	adminEmail := ""
	if job.AdminEmail != nil {
		adminEmail = *job.AdminEmail
	}

	result, err := w.dispatcher.Dispatch(ctx, booking, job.TriggerType, adminEmail)
	if err != nil {
		w.fail(ctx, job, newAttempt, err)
		return
	}

	if err := w.jobs.MarkDone(ctx, job.ID, newAttempt); err != nil {
		w.logger.Error("failed to mark dispatch job done",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}

	metrics.RecordDispatchJob(db.JobDone)
	w.logger.Info("dispatch job done",
		zap.String("job_id", job.ID.String()),
		zap.String("booking_id", job.BookingID.String()),
		zap.String("trigger_type", job.TriggerType),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
}

// fail reschedules the job with backoff, or dead-letters it once the
// retry budget is spent. Per-recipient send failures never land here;
// they are absorbed into dispatch counts and only infrastructure
// errors (booking lookup, template query) trigger a retry.
func (w *Worker) fail(ctx context.Context, job *db.DispatchJob, newAttempt int, cause error) {
	w.logger.Error("dispatch job failed",
		zap.Error(cause),
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", newAttempt),
	)

	if newAttempt >= w.config.MaxRetries {
		if err := w.jobs.DeadLetter(ctx, job.ID, newAttempt, cause.Error()); err != nil {
			w.logger.Error("failed to dead-letter dispatch job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			return
		}
		metrics.RecordDispatchJob(db.JobDeadLettered)
		w.logger.Info("dispatch job dead-lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", newAttempt),
		)
		return
	}

	nextRetry := w.calculateNextRetry(newAttempt)
	if err := w.jobs.Reschedule(ctx, job.ID, newAttempt, cause.Error(), nextRetry); err != nil {
		w.logger.Error("failed to reschedule dispatch job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}
	metrics.RecordDispatchJob("retried")
}

// Calculate next retry time based on attempt
func (w *Worker) calculateNextRetry(attempt int) time.Time {
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}

	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}

	return time.Now().Add(delays[idx])
}
