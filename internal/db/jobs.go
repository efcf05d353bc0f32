package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobRepository is the dispatch job queue. Immediate triggers (booking
// created, booking cancelled) enqueue a row here and the background
// worker drains it, so the request that caused the notification never
// waits on email delivery.
type JobRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewJobRepository creates a dispatch job repository.
func NewJobRepository(db *DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts a pending dispatch job.
func (r *JobRepository) Enqueue(ctx context.Context, job *DispatchJob) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO dispatch_jobs (
			id, tenant_id, booking_id, trigger_type, admin_email, status, attempt
		) VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING created_at, updated_at
	`, job.ID, job.TenantID, job.BookingID, job.TriggerType, job.AdminEmail, JobPending,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue dispatch job: %w", err)
	}

	r.logger.Info("dispatch job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("booking_id", job.BookingID.String()),
		zap.String("trigger_type", job.TriggerType),
	)
	return nil
}

// ClaimPending atomically claims up to limit due jobs, marking them
// processing so a second worker cannot pick them up. FOR UPDATE SKIP
// LOCKED keeps concurrent workers from blocking each other.
func (r *JobRepository) ClaimPending(ctx context.Context, limit int) ([]*DispatchJob, error) {
	rows, err := r.db.Pool().Query(ctx, `
		UPDATE dispatch_jobs
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM dispatch_jobs
			WHERE status = $2 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, booking_id, trigger_type, admin_email,
		          status, attempt, last_error, next_retry_at, created_at, updated_at
	`, JobProcessing, JobPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim dispatch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*DispatchJob
	for rows.Next() {
		var j DispatchJob
		err := rows.Scan(
			&j.ID,
			&j.TenantID,
			&j.BookingID,
			&j.TriggerType,
			&j.AdminEmail,
			&j.Status,
			&j.Attempt,
			&j.LastError,
			&j.NextRetryAt,
			&j.CreatedAt,
			&j.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch job: %w", err)
		}
		jobs = append(jobs, &j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch jobs: %w", err)
	}

	return jobs, nil
}

// MarkDone finishes a job successfully.
func (r *JobRepository) MarkDone(ctx context.Context, id uuid.UUID, attempt int) error {
	return r.setStatus(ctx, id, JobDone, attempt, nil, nil)
}

// Reschedule puts a failed job back in the queue for a later retry.
func (r *JobRepository) Reschedule(ctx context.Context, id uuid.UUID, attempt int, lastError string, nextRetryAt time.Time) error {
	return r.setStatus(ctx, id, JobPending, attempt, &lastError, &nextRetryAt)
}

// DeadLetter parks a job that exhausted its retries. The row stays
// visible so an operator can inspect and re-enqueue it.
func (r *JobRepository) DeadLetter(ctx context.Context, id uuid.UUID, attempt int, lastError string) error {
	return r.setStatus(ctx, id, JobDeadLettered, attempt, &lastError, nil)
}

func (r *JobRepository) setStatus(ctx context.Context, id uuid.UUID, status string, attempt int, lastError *string, nextRetryAt *time.Time) error {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE dispatch_jobs
		SET status = $1, attempt = $2, last_error = $3, next_retry_at = $4, updated_at = NOW()
		WHERE id = $5
	`, status, attempt, lastError, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("update dispatch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch job not found: %s", id)
	}
	return nil
}
