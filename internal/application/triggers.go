package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// ErrManualDisabled is returned when manual review is turned off for a repository.
var ErrManualDisabled = errors.New("manual review is disabled for this repository")

// Webhook trigger outcomes.
const (
	WebhookAlreadyReviewed = "already_reviewed"
	WebhookTriggered       = "triggered"
)

const (
	pendingStep     = "Task created, waiting to execute"
	allBranchesName = "all"
)

// Waker is notified when new work has been enqueued.
type Waker interface {
	Wake()
}

// Dispatcher records a PENDING task for an invocation and hands it to the
// durable queue.
type Dispatcher struct {
	tasks driven.TaskStore
	queue driven.JobQueue
	waker Waker
}

// NewDispatcher creates a Dispatcher. waker may be nil.
func NewDispatcher(tasks driven.TaskStore, queue driven.JobQueue, waker Waker) *Dispatcher {
	return &Dispatcher{tasks: tasks, queue: queue, waker: waker}
}

// Dispatch creates the task and enqueues the invocation. It returns
// driven.ErrTaskExists untouched when the task id is already taken.
func (d *Dispatcher) Dispatch(ctx context.Context, inv model.Invocation) error {
	if err := createTask(ctx, d.tasks, inv); err != nil {
		return err
	}

	if err := d.queue.Enqueue(ctx, inv); err != nil {
		if failErr := d.tasks.Fail(ctx, inv.TaskID, "enqueue failed: "+err.Error()); failErr != nil {
			slog.Error("failed to mark undispatched task failed", "task_id", inv.TaskID, "error", failErr)
		}
		return fmt.Errorf("enqueue task %s: %w", inv.TaskID, err)
	}

	if d.waker != nil {
		d.waker.Wake()
	}
	slog.Info("task dispatched", "task_id", inv.TaskID, "trigger", inv.TriggerMode, "scope", inv.Scope)
	return nil
}

func createTask(ctx context.Context, tasks driven.TaskStore, inv model.Invocation) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}

	branch := inv.Branch
	if inv.Scope == model.ScopeAllBranches {
		branch = allBranchesName
	}

	return tasks.Create(ctx, model.ReviewTask{
		TaskID:       inv.TaskID,
		RepositoryID: inv.RepositoryID,
		Branch:       branch,
		Status:       model.TaskPending,
		CurrentStep:  pendingStep,
		TriggerMode:  inv.TriggerMode,
		TriggeredBy:  inv.TriggeredBy,
	})
}

// newTaskID mints "<mode>_<repo>_<branch>_<suffix>".
func newTaskID(mode model.TriggerMode, repoID int64, branch, suffix string) string {
	if branch == "" {
		branch = allBranchesName
	}
	branch = strings.NewReplacer("/", "-", " ", "-").Replace(branch)
	return fmt.Sprintf("%s_%d_%s_%s", mode.TaskIDPrefix(), repoID, branch, suffix)
}

func randomSuffix() string {
	return uuid.NewString()[:8]
}

// ManualRequest asks for a review of one branch, or of every branch.
type ManualRequest struct {
	RepositoryID int64
	Branch       string
	AllBranches  bool
	TriggeredBy  string
}

// WebhookRequest describes a single pushed commit.
type WebhookRequest struct {
	RepositoryID  int64
	CommitHash    string
	Branch        string
	Author        string
	AuthorEmail   string
	CommitMessage string
	TriggeredBy   string
}

// Triggers turns manual and webhook requests into dispatched invocations.
type Triggers struct {
	repos      driven.RepositoryStore
	tasks      driven.TaskStore
	reviews    driven.ReviewStore
	dispatcher *Dispatcher
	runner     Runner
	debugSync  bool
}

// NewTriggers creates Triggers. When debugSync is set, manual invocations run
// inline on runner instead of going through the queue.
func NewTriggers(
	repos driven.RepositoryStore,
	tasks driven.TaskStore,
	reviews driven.ReviewStore,
	dispatcher *Dispatcher,
	runner Runner,
	debugSync bool,
) *Triggers {
	return &Triggers{
		repos:      repos,
		tasks:      tasks,
		reviews:    reviews,
		dispatcher: dispatcher,
		runner:     runner,
		debugSync:  debugSync,
	}
}

// Manual validates the repository, creates a PENDING task and dispatches it.
// It returns the new task id.
func (t *Triggers) Manual(ctx context.Context, req ManualRequest) (string, error) {
	repo, err := t.activeRepo(ctx, req.RepositoryID)
	if err != nil {
		return "", err
	}
	if !repo.ManualEnabled {
		return "", ErrManualDisabled
	}

	inv := model.Invocation{
		RepositoryID: repo.ID,
		TriggerMode:  model.TriggerManual,
		TriggeredBy:  req.TriggeredBy,
	}
	if req.AllBranches {
		inv.Scope = model.ScopeAllBranches
		inv.AllBranches = true
	} else {
		inv.Scope = model.ScopeBranch
		inv.Branch = req.Branch
		if inv.Branch == "" {
			inv.Branch = repo.ReviewBranch()
		}
	}
	inv.TaskID = newTaskID(model.TriggerManual, repo.ID, inv.Branch, randomSuffix())

	if t.debugSync {
		return inv.TaskID, t.runInline(ctx, inv)
	}
	if err := t.dispatcher.Dispatch(ctx, inv); err != nil {
		return "", err
	}
	return inv.TaskID, nil
}

// runInline executes the invocation on the caller's goroutine and fails the
// task if the pipeline returns an error.
func (t *Triggers) runInline(ctx context.Context, inv model.Invocation) error {
	if err := createTask(ctx, t.tasks, inv); err != nil {
		return err
	}
	if err := t.runner.Run(ctx, inv); err != nil {
		if failErr := t.tasks.Fail(ctx, inv.TaskID, err.Error()); failErr != nil && !errors.Is(failErr, driven.ErrTaskTerminal) {
			slog.Error("failed to mark task failed", "task_id", inv.TaskID, "error", failErr)
		}
		return err
	}
	return nil
}

// Webhook dispatches a single-commit review unless the commit has already
// been reviewed. The task id is derived from the commit, so a redelivered
// webhook finds the in-flight task and is not dispatched twice.
func (t *Triggers) Webhook(ctx context.Context, req WebhookRequest) (string, error) {
	if req.CommitHash == "" {
		return "", errors.New("commit hash is required")
	}

	repo, err := t.activeRepo(ctx, req.RepositoryID)
	if err != nil {
		return "", err
	}

	exists, err := t.reviews.Exists(ctx, repo.ID, req.CommitHash)
	if err != nil {
		return "", fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return WebhookAlreadyReviewed, nil
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = req.Author
	}

	inv := model.Invocation{
		RepositoryID: repo.ID,
		Branch:       req.Branch,
		Scope:        model.ScopeCommit,
		TaskID:       fmt.Sprintf("%s_%d_%s", model.TriggerWebhook.TaskIDPrefix(), repo.ID, req.CommitHash),
		TriggerMode:  model.TriggerWebhook,
		TriggeredBy:  triggeredBy,
		Commit: &model.CommitRef{
			Hash:        req.CommitHash,
			Branch:      req.Branch,
			Message:     req.CommitMessage,
			Author:      req.Author,
			AuthorEmail: req.AuthorEmail,
		},
	}

	err = t.dispatcher.Dispatch(ctx, inv)
	if errors.Is(err, driven.ErrTaskExists) {
		slog.Info("webhook redelivered for in-flight commit", "task_id", inv.TaskID)
		return WebhookTriggered, nil
	}
	if err != nil {
		return "", err
	}
	return WebhookTriggered, nil
}

func (t *Triggers) activeRepo(ctx context.Context, id int64) (*model.Repository, error) {
	repo, err := t.repos.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !repo.IsActive {
		return nil, ErrRepositoryInactive
	}
	return repo, nil
}
