package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/notify"
)

type fakeQueue struct {
	jobs []*db.DispatchJob

	done         []uuid.UUID
	rescheduled  []uuid.UUID
	deadLettered []uuid.UUID
	lastError    string
	lastRetryAt  time.Time
}

func (q *fakeQueue) ClaimPending(ctx context.Context, limit int) ([]*db.DispatchJob, error) {
	if limit < len(q.jobs) {
		return q.jobs[:limit], nil
	}
	return q.jobs, nil
}

func (q *fakeQueue) MarkDone(ctx context.Context, id uuid.UUID, attempt int) error {
	q.done = append(q.done, id)
	return nil
}

func (q *fakeQueue) Reschedule(ctx context.Context, id uuid.UUID, attempt int, lastError string, nextRetryAt time.Time) error {
	q.rescheduled = append(q.rescheduled, id)
	q.lastError = lastError
	q.lastRetryAt = nextRetryAt
	return nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, id uuid.UUID, attempt int, lastError string) error {
	q.deadLettered = append(q.deadLettered, id)
	q.lastError = lastError
	return nil
}

type fakeBookings struct {
	booking *db.Booking
	err     error
}

func (b *fakeBookings) Get(ctx context.Context, id uuid.UUID) (*db.Booking, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.booking, nil
}

type fakeDispatcher struct {
	result   notify.Result
	err      error
	calls    int
	triggers []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, booking *db.Booking, triggerType string, adminEmail string) (notify.Result, error) {
	d.calls++
	d.triggers = append(d.triggers, triggerType)
	if d.err != nil {
		return notify.Result{}, d.err
	}
	return d.result, nil
}

func newJob(attempt int) *db.DispatchJob {
	return &db.DispatchJob{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		BookingID:   uuid.New(),
		TriggerType: db.TriggerBookingConfirmed,
		Status:      db.JobPending,
		Attempt:     attempt,
	}
}

func newWorker(q *fakeQueue, b *fakeBookings, d *fakeDispatcher) *Worker {
	return New(q, b, d, Config{MaxRetries: 3}, zap.NewNop())
}

func TestProcessBatchMarksDone(t *testing.T) {
	job := newJob(0)
	queue := &fakeQueue{jobs: []*db.DispatchJob{job}}
	bookings := &fakeBookings{booking: &db.Booking{ID: job.BookingID, TenantID: job.TenantID}}
	dispatcher := &fakeDispatcher{result: notify.Result{Sent: 1}}

	w := newWorker(queue, bookings, dispatcher)
	w.processBatch(context.Background())

	if dispatcher.calls != 1 {
		t.Fatalf("expected 1 dispatch call, got %d", dispatcher.calls)
	}
	if dispatcher.triggers[0] != db.TriggerBookingConfirmed {
		t.Errorf("unexpected trigger: %s", dispatcher.triggers[0])
	}
	if len(queue.done) != 1 || queue.done[0] != job.ID {
		t.Errorf("expected job %s marked done, got %v", job.ID, queue.done)
	}
	if len(queue.rescheduled) != 0 || len(queue.deadLettered) != 0 {
		t.Error("successful job should not be rescheduled or dead-lettered")
	}
}

func TestProcessBatchReschedulesOnDispatchError(t *testing.T) {
	job := newJob(0)
	queue := &fakeQueue{jobs: []*db.DispatchJob{job}}
	bookings := &fakeBookings{booking: &db.Booking{ID: job.BookingID}}
	dispatcher := &fakeDispatcher{err: errors.New("load templates: connection refused")}

	w := newWorker(queue, bookings, dispatcher)
	before := time.Now()
	w.processBatch(context.Background())

	if len(queue.rescheduled) != 1 {
		t.Fatalf("expected 1 rescheduled job, got %d", len(queue.rescheduled))
	}
	if queue.lastError == "" {
		t.Error("expected last error recorded")
	}
	// First retry waits one minute.
	wait := queue.lastRetryAt.Sub(before)
	if wait < 50*time.Second || wait > 70*time.Second {
		t.Errorf("unexpected first retry delay: %v", wait)
	}
}

func TestProcessBatchDeadLettersAfterMaxRetries(t *testing.T) {
	job := newJob(2)
	queue := &fakeQueue{jobs: []*db.DispatchJob{job}}
	bookings := &fakeBookings{err: errors.New("booking lookup failed")}
	dispatcher := &fakeDispatcher{}

	w := newWorker(queue, bookings, dispatcher)
	w.processBatch(context.Background())

	if dispatcher.calls != 0 {
		t.Error("dispatcher should not run when booking lookup fails")
	}
	if len(queue.deadLettered) != 1 || queue.deadLettered[0] != job.ID {
		t.Fatalf("expected job dead-lettered, got %v", queue.deadLettered)
	}
	if queue.lastError != "booking lookup failed" {
		t.Errorf("unexpected last error: %s", queue.lastError)
	}
}

func TestProcessBatchRespectsBatchSize(t *testing.T) {
	queue := &fakeQueue{jobs: []*db.DispatchJob{newJob(0), newJob(0), newJob(0)}}
	bookings := &fakeBookings{booking: &db.Booking{}}
	dispatcher := &fakeDispatcher{}

	w := New(queue, bookings, dispatcher, Config{BatchSize: 2, MaxRetries: 3}, zap.NewNop())
	w.processBatch(context.Background())

	if dispatcher.calls != 2 {
		t.Errorf("expected 2 dispatch calls, got %d", dispatcher.calls)
	}
}

func TestCalculateNextRetryBackoff(t *testing.T) {
	w := newWorker(&fakeQueue{}, &fakeBookings{}, &fakeDispatcher{})

	cases := []struct {
		attempt int
		delay   time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{7, 15 * time.Minute},
	}

	for _, tc := range cases {
		got := time.Until(w.calculateNextRetry(tc.attempt))
		if got < tc.delay-time.Second || got > tc.delay+time.Second {
			t.Errorf("attempt %d: expected delay ~%v, got %v", tc.attempt, tc.delay, got)
		}
	}
}
