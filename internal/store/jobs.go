package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inful/docgen/internal/domain"
)

// Enqueue inserts a PENDING job row and returns its id. Callers are
// expected to publish a wake-up notification after a successful enqueue
// (internal/queue does this over NATS); persistence and notification are
// deliberately separate so an enqueue never blocks on pub/sub delivery.
func (s *Store) Enqueue(ctx context.Context, id string, jobType domain.JobType, payload map[string]any) error {
	body, err := marshalJSON(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, jobType, domain.JobPending, body, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim atomically selects the oldest PENDING job — optionally filtered
// by type — and transitions it to RUNNING, stamping workerID and
// started-at. It is built on SQLite's BEGIN IMMEDIATE, which takes the
// write lock for the duration of the transaction: SQLite has no row-level
// locks, so there is no literal "SELECT ... FOR UPDATE SKIP LOCKED", but
// BEGIN IMMEDIATE serializes writers the same way — two concurrent
// claimers can never observe and update the same PENDING row, because
// the second claimer's BEGIN IMMEDIATE blocks until the first commits,
// and by then the row it claimed is no longer PENDING.
//
// Returns ErrNotFound if no PENDING job (of the requested type, if any)
// is available.
func (s *Store) Claim(ctx context.Context, workerID string, typeFilter domain.JobType) (domain.Job, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.Job{}, fmt.Errorf("acquire claim connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return domain.Job{}, fmt.Errorf("begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	var id, jobType string
	var payload string
	row := conn.QueryRowContext(ctx, selectClaimCandidate(typeFilter), claimArgs(typeFilter)...)
	if err := row.Scan(&id, &jobType, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("select claim candidate: %w", err)
	}

	now := time.Now()
	res, err := conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, worker_id = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.JobRunning, workerID, now.Unix(), now.Unix(), id, domain.JobPending,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("claim update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Job{}, fmt.Errorf("claim rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race to another claimer between SELECT and UPDATE.
		return domain.Job{}, ErrNotFound
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return domain.Job{}, fmt.Errorf("commit claim: %w", err)
	}
	committed = true

	job := domain.Job{
		ID:        id,
		Type:      domain.JobType(jobType),
		Status:    domain.JobRunning,
		WorkerID:  workerID,
		StartedAt: &now,
	}
	if job.Payload, err = unmarshalJSONMap(payload); err != nil {
		return domain.Job{}, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return job, nil
}

func selectClaimCandidate(typeFilter domain.JobType) string {
	if typeFilter == "" {
		return `SELECT id, type, payload FROM jobs WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT 1`
	}
	return `SELECT id, type, payload FROM jobs WHERE status = 'PENDING' AND type = ? ORDER BY created_at ASC LIMIT 1`
}

func claimArgs(typeFilter domain.JobType) []any {
	if typeFilter == "" {
		return nil
	}
	return []any{string(typeFilter)}
}

// Complete transitions a RUNNING job to COMPLETED, storing its result.
func (s *Store) Complete(ctx context.Context, jobID string, result map[string]any) error {
	body, err := marshalJSON(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.JobCompleted, body, now, now, jobID, domain.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail transitions a PENDING or RUNNING job to FAILED, storing the error.
func (s *Store) Fail(ctx context.Context, jobID, errMsg string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.JobFailed, errMsg, now, now, jobID, domain.JobPending, domain.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel transitions a PENDING or RUNNING job to FAILED with the fixed
// "Cancelled by user" error. Returns false if the job is already
// terminal (COMPLETED or FAILED).
func (s *Store) Cancel(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.JobFailed, "Cancelled by user", now, now, jobID, domain.JobPending, domain.JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return n > 0, nil
}

// GetJob fetches a Job by id.
func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, payload, worker_id, started_at, completed_at, result, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func scanJob(row *sql.Row) (domain.Job, error) {
	var j domain.Job
	var payload, result string
	var startedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&j.ID, &j.Type, &j.Status, &payload, &j.WorkerID, &startedAt, &completedAt,
		&result, &j.Error, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		j.CompletedAt = &t
	}
	j.CreatedAt = time.Unix(createdAt, 0)
	j.UpdatedAt = time.Unix(updatedAt, 0)
	if j.Payload, err = unmarshalJSONMap(payload); err != nil {
		return domain.Job{}, fmt.Errorf("unmarshal job payload: %w", err)
	}
	if j.Result, err = unmarshalJSONMap(result); err != nil {
		return domain.Job{}, fmt.Errorf("unmarshal job result: %w", err)
	}
	return j, nil
}

// FindStuckRunning returns ids of jobs that have been RUNNING for longer
// than maxAge — candidates for the recovery task to reset to PENDING.
func (s *Store) FindStuckRunning(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		domain.JobRunning, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("find stuck running: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stuck job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetToPending resets a RUNNING job back to PENDING, clearing its
// worker assignment and recording reason in the job's error column —
// used by the recovery task on jobs whose worker appears to have died
// mid-run (spec §4.2's reset-stuck(job-id, reason)).
func (s *Store) ResetToPending(ctx context.Context, jobID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, worker_id = '', started_at = NULL, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.JobPending, reason, time.Now().Unix(), jobID, domain.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("reset to pending: %w", err)
	}
	return nil
}
