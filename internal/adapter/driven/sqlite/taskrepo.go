package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskStore = (*TaskRepo)(nil)

// nonTerminal guards every mutation so terminal tasks stay immutable.
const nonTerminal = `status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

// TaskRepo is the SQLite implementation of the TaskStore port interface.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new TaskRepo backed by the given DB.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Create inserts a new task. Returns ErrTaskExists when the task id is taken.
func (r *TaskRepo) Create(ctx context.Context, task model.ReviewTask) error {
	status := task.Status
	if status == "" {
		status = model.TaskPending
	}
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const query = `INSERT INTO review_tasks (
		task_id, repository_id, branch, status, current_step, trigger_mode, triggered_by, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		task.TaskID, task.RepositoryID, task.Branch, string(status), task.CurrentStep,
		string(task.TriggerMode), task.TriggeredBy, formatTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create task %s: %w", task.TaskID, driven.ErrTaskExists)
		}
		return fmt.Errorf("create task %s: %w", task.TaskID, err)
	}
	return nil
}

const taskColumns = `t.id, t.task_id, t.repository_id, COALESCE(r.name, ''), t.branch, t.status, t.current_step,
	t.progress, t.total_commits, t.processed_commits, t.trigger_mode, t.triggered_by,
	t.high_risk_count, t.medium_risk_count, t.low_risk_count, t.notified_count, t.error_message,
	t.created_at, t.started_at, t.completed_at`

const taskFrom = ` FROM review_tasks t LEFT JOIN repositories r ON r.id = t.repository_id`

// Get returns the task with the given id, or ErrTaskNotFound.
func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.ReviewTask, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.task_id = ?`

	task, err := scanTask(r.db.Reader.QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s: %w", taskID, driven.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

// ListRecent returns the newest tasks first.
func (r *TaskRepo) ListRecent(ctx context.Context, limit int) ([]model.ReviewTask, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + taskFrom + ` ORDER BY t.id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ReviewTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Transition sets status and step text; progress only ever moves forward.
func (r *TaskRepo) Transition(ctx context.Context, taskID string, status model.TaskStatus, step string, progress int) error {
	const query = `UPDATE review_tasks SET status = ?, current_step = ?,
		progress = CASE WHEN ? > progress THEN MIN(?, 100) ELSE progress END
		WHERE task_id = ? AND ` + nonTerminal

	res, err := r.db.Writer.ExecContext(ctx, query, string(status), step, progress, progress, taskID)
	if err != nil {
		return fmt.Errorf("transition task %s to %s: %w", taskID, status, err)
	}
	return r.checkGuarded(ctx, res, taskID)
}

// Start moves the task to RUNNING. started_at is set only on the first start
// so retried attempts keep the original start time.
func (r *TaskRepo) Start(ctx context.Context, taskID string) error {
	const query = `UPDATE review_tasks SET status = 'RUNNING', current_step = ?,
		started_at = COALESCE(started_at, ?)
		WHERE task_id = ? AND ` + nonTerminal

	res, err := r.db.Writer.ExecContext(ctx, query, "Task started", formatTime(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("start task %s: %w", taskID, err)
	}
	return r.checkGuarded(ctx, res, taskID)
}

// SetTotal records how many commits the task will walk.
func (r *TaskRepo) SetTotal(ctx context.Context, taskID string, total int) error {
	const query = `UPDATE review_tasks SET total_commits = ? WHERE task_id = ? AND ` + nonTerminal

	res, err := r.db.Writer.ExecContext(ctx, query, total, taskID)
	if err != nil {
		return fmt.Errorf("set total for task %s: %w", taskID, err)
	}
	return r.checkGuarded(ctx, res, taskID)
}

// AdvanceProcessed counts one more processed commit and recomputes progress
// as floor(processed/total*100) without ever lowering it.
func (r *TaskRepo) AdvanceProcessed(ctx context.Context, taskID string, counts model.RiskCounts) error {
	const query = `UPDATE review_tasks SET
		processed_commits = processed_commits + 1,
		progress = MAX(progress, CASE WHEN total_commits > 0
			THEN MIN(100, ((processed_commits + 1) * 100) / total_commits)
			ELSE progress END),
		high_risk_count = high_risk_count + ?,
		medium_risk_count = medium_risk_count + ?,
		low_risk_count = low_risk_count + ?,
		notified_count = notified_count + ?
		WHERE task_id = ? AND ` + nonTerminal

	res, err := r.db.Writer.ExecContext(ctx, query,
		counts.High, counts.Medium, counts.Low, counts.Notified, taskID)
	if err != nil {
		return fmt.Errorf("advance task %s: %w", taskID, err)
	}
	return r.checkGuarded(ctx, res, taskID)
}

// Complete marks the task COMPLETED with full progress.
func (r *TaskRepo) Complete(ctx context.Context, taskID string) error {
	return r.finish(ctx, taskID, model.TaskCompleted, "Review completed", "")
}

// Fail marks the task FAILED and records the error text.
func (r *TaskRepo) Fail(ctx context.Context, taskID string, errMsg string) error {
	return r.finish(ctx, taskID, model.TaskFailed, "Task failed", errMsg)
}

// Cancel marks the task CANCELLED. The running pipeline notices between commits.
func (r *TaskRepo) Cancel(ctx context.Context, taskID string, step string) error {
	return r.finish(ctx, taskID, model.TaskCancelled, step, "")
}

func (r *TaskRepo) finish(ctx context.Context, taskID string, status model.TaskStatus, step, errMsg string) error {
	const query = `UPDATE review_tasks SET status = ?, current_step = ?, error_message = ?,
		progress = CASE WHEN ? = 'COMPLETED' THEN 100 ELSE progress END,
		completed_at = ?
		WHERE task_id = ? AND ` + nonTerminal

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(status), step, errMsg, string(status), formatTime(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("finish task %s as %s: %w", taskID, status, err)
	}
	return r.checkGuarded(ctx, res, taskID)
}

// checkGuarded tells a missing task apart from a terminal one when a guarded
// update matched no rows.
func (r *TaskRepo) checkGuarded(ctx context.Context, res sql.Result, taskID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.Writer.QueryRowContext(ctx, `SELECT status FROM review_tasks WHERE task_id = ?`, taskID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %s: %w", taskID, driven.ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	return fmt.Errorf("task %s is %s: %w", taskID, status, driven.ErrTaskTerminal)
}

func scanTask(s scanner) (*model.ReviewTask, error) {
	var task model.ReviewTask
	var status, mode, createdAt string
	var startedAt, completedAt sql.NullString

	err := s.Scan(
		&task.ID, &task.TaskID, &task.RepositoryID, &task.RepositoryName, &task.Branch, &status, &task.CurrentStep,
		&task.Progress, &task.TotalCommits, &task.ProcessedCommits, &mode, &task.TriggeredBy,
		&task.Counts.High, &task.Counts.Medium, &task.Counts.Low, &task.Counts.Notified, &task.ErrorMessage,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = model.TaskStatus(status)
	task.TriggerMode = model.TriggerMode(mode)

	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if task.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if task.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	return &task, nil
}
