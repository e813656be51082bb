// Package queue implements the durable job queue and worker scheduler:
// enqueue/claim/complete/fail/cancel against internal/store's SQLite
// tables, a NATS-backed wake-up notification, and the three cooperating
// background tasks (poll, heartbeat, recovery) the teacher's
// internal/daemon build queue runs as goroutines reading from a shared
// retry.Policy and emitting through an event bus — reworked here against
// a durable backing store instead of an in-process channel.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/store"
)

// Queue is the durable job queue: persistence plus the wake-up notifier.
type Queue struct {
	store    *store.Store
	notifier *Notifier
}

// New builds a Queue over store s, publishing wake-ups through notifier.
func New(s *store.Store, notifier *Notifier) *Queue {
	return &Queue{store: s, notifier: notifier}
}

// Enqueue inserts a PENDING job and publishes a wake-up notification.
func (q *Queue) Enqueue(ctx context.Context, jobType domain.JobType, payload map[string]any) (string, error) {
	id := uuid.NewString()
	if err := q.store.Enqueue(ctx, id, jobType, payload); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	if q.notifier != nil {
		q.notifier.Publish(string(jobType))
	}
	return id, nil
}

// Claim atomically claims the oldest PENDING job, optionally filtered by
// type. Returns store.ErrNotFound when nothing is available.
func (q *Queue) Claim(ctx context.Context, workerID string, typeFilter domain.JobType) (domain.Job, error) {
	return q.store.Claim(ctx, workerID, typeFilter)
}

// Complete marks a job COMPLETED with its result.
func (q *Queue) Complete(ctx context.Context, jobID string, result map[string]any) error {
	return q.store.Complete(ctx, jobID, result)
}

// Fail marks a job FAILED with an error message.
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	return q.store.Fail(ctx, jobID, cause.Error())
}

// Cancel cancels a PENDING or RUNNING job. Returns false if the job was
// already terminal.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	return q.store.Cancel(ctx, jobID)
}

// Get fetches a job by id.
func (q *Queue) Get(ctx context.Context, jobID string) (domain.Job, error) {
	return q.store.GetJob(ctx, jobID)
}
