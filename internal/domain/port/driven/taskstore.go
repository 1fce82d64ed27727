package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// Sentinel errors returned by TaskStore implementations.
var (
	ErrTaskNotFound = errors.New("review task not found")

	// ErrTaskExists is returned by Create when the task id is already taken.
	ErrTaskExists = errors.New("review task already exists")

	// ErrTaskTerminal is returned by any mutation of a COMPLETED, FAILED or
	// CANCELLED task.
	ErrTaskTerminal = errors.New("review task is in a terminal state")
)

// TaskStore persists review tasks. Every mutation is rejected with
// ErrTaskTerminal once the task has reached a terminal state, and progress
// never decreases.
type TaskStore interface {
	Create(ctx context.Context, task model.ReviewTask) error
	Get(ctx context.Context, taskID string) (*model.ReviewTask, error)
	ListRecent(ctx context.Context, limit int) ([]model.ReviewTask, error)

	// Transition moves a task to status with the given step text. progress is
	// applied as max(current, progress); pass a negative value to leave it.
	Transition(ctx context.Context, taskID string, status model.TaskStatus, step string, progress int) error

	// Start moves the task to RUNNING and stamps started_at on first start.
	Start(ctx context.Context, taskID string) error

	SetTotal(ctx context.Context, taskID string, total int) error

	// AdvanceProcessed increments processed_commits by one, recomputes progress
	// and adds counts to the per-level counters.
	AdvanceProcessed(ctx context.Context, taskID string, counts model.RiskCounts) error

	Complete(ctx context.Context, taskID string) error
	Fail(ctx context.Context, taskID string, errMsg string) error

	// Cancel requests cancellation of a non-terminal task.
	Cancel(ctx context.Context, taskID string, step string) error
}
