package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobQueue = (*JobQueue)(nil)

// JobQueue is a durable invocation queue stored in the review_jobs table.
// Claims go through the single writer connection, so two workers can never
// take the same job.
type JobQueue struct {
	db  *DB
	now func() time.Time
}

// NewJobQueue creates a new JobQueue backed by the given DB.
func NewJobQueue(db *DB) *JobQueue {
	return &JobQueue{db: db, now: time.Now}
}

// Enqueue adds an invocation that is immediately available.
func (q *JobQueue) Enqueue(ctx context.Context, inv model.Invocation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invocation %s: %w", inv.TaskID, err)
	}

	now := formatTime(q.now())
	const query = `INSERT INTO review_jobs (task_id, payload, status, available_at, created_at, updated_at)
		VALUES (?, ?, 'queued', ?, ?, ?)`

	if _, err := q.db.Writer.ExecContext(ctx, query, inv.TaskID, string(payload), now, now, now); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("enqueue %s: %w", inv.TaskID, driven.ErrTaskExists)
		}
		return fmt.Errorf("enqueue %s: %w", inv.TaskID, err)
	}
	return nil
}

// Claim takes the oldest available job, or returns nil, nil.
func (q *JobQueue) Claim(ctx context.Context) (*model.ReviewJob, error) {
	now := formatTime(q.now())
	const query = `UPDATE review_jobs SET status = 'running', attempts = attempts + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM review_jobs
			WHERE status = 'queued' AND available_at <= ?
			ORDER BY available_at, id
			LIMIT 1
		)
		RETURNING id, payload, attempts, last_error, available_at, created_at`

	var job model.ReviewJob
	var payload, availableAt, createdAt string
	err := q.db.Writer.QueryRowContext(ctx, query, now, now).Scan(
		&job.ID, &payload, &job.Attempts, &job.LastError, &availableAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	job.Status = model.JobRunning
	if err := json.Unmarshal([]byte(payload), &job.Invocation); err != nil {
		return nil, fmt.Errorf("decode job %d payload: %w", job.ID, err)
	}
	if job.AvailableAt, err = parseTime(availableAt); err != nil {
		return nil, fmt.Errorf("parse available_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &job, nil
}

// Complete marks a job done.
func (q *JobQueue) Complete(ctx context.Context, jobID int64) error {
	return q.setStatus(ctx, jobID, model.JobDone, "")
}

// Fail marks a job permanently failed.
func (q *JobQueue) Fail(ctx context.Context, jobID int64, errMsg string) error {
	return q.setStatus(ctx, jobID, model.JobFailed, errMsg)
}

func (q *JobQueue) setStatus(ctx context.Context, jobID int64, status model.JobStatus, errMsg string) error {
	const query = `UPDATE review_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`

	res, err := q.db.Writer.ExecContext(ctx, query, string(status), errMsg, formatTime(q.now()), jobID)
	if err != nil {
		return fmt.Errorf("set job %d %s: %w", jobID, status, err)
	}
	return expectOneRow(res, fmt.Sprintf("set job %d %s", jobID, status), fmt.Errorf("job %d not found", jobID))
}

// Requeue returns a job to the queue, available again at availableAt.
func (q *JobQueue) Requeue(ctx context.Context, jobID int64, errMsg string, availableAt time.Time) error {
	const query = `UPDATE review_jobs SET status = 'queued', last_error = ?, available_at = ?, updated_at = ? WHERE id = ?`

	res, err := q.db.Writer.ExecContext(ctx, query, errMsg, formatTime(availableAt), formatTime(q.now()), jobID)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", jobID, err)
	}
	return expectOneRow(res, fmt.Sprintf("requeue job %d", jobID), fmt.Errorf("job %d not found", jobID))
}

// RecoverRunning puts jobs interrupted by a crash back in the queue.
func (q *JobQueue) RecoverRunning(ctx context.Context) (int, error) {
	now := formatTime(q.now())
	res, err := q.db.Writer.ExecContext(ctx,
		`UPDATE review_jobs SET status = 'queued', available_at = ?, updated_at = ? WHERE status = 'running'`, now, now)
	if err != nil {
		return 0, fmt.Errorf("recover running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}
