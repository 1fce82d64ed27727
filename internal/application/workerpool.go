package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// WorkerPoolConfig carries the pool's tunables.
type WorkerPoolConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
}

// WorkerPool claims queued invocations and runs each to completion on one of
// a fixed number of goroutines. A failed run is retried with a constant delay
// up to MaxAttempts before the task is marked FAILED.
type WorkerPool struct {
	queue  driven.JobQueue
	tasks  driven.TaskStore
	runner Runner
	cfg    WorkerPoolConfig
	wake   chan struct{}
}

// NewWorkerPool creates a WorkerPool, filling zero config values with defaults.
func NewWorkerPool(queue driven.JobQueue, tasks driven.TaskStore, runner Runner, cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &WorkerPool{
		queue:  queue,
		tasks:  tasks,
		runner: runner,
		cfg:    cfg,
		wake:   make(chan struct{}, cfg.Workers),
	}
}

// Wake nudges idle workers to claim immediately instead of waiting for the
// next poll.
func (p *WorkerPool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start recovers jobs orphaned by a previous process and runs the workers.
// It blocks until ctx is cancelled and every worker has returned.
func (p *WorkerPool) Start(ctx context.Context) {
	if n, err := p.queue.RecoverRunning(ctx); err != nil {
		slog.Error("failed to recover running jobs", "error", err)
	} else if n > 0 {
		slog.Info("recovered interrupted jobs", "count", n)
	}

	var wg sync.WaitGroup
	for i := range p.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, i)
		}()
	}
	wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			slog.Error("claim failed", "worker", id, "error", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.process(ctx, id, job)
	}
}

// process runs one job with retries and settles both the job and its task.
func (p *WorkerPool) process(ctx context.Context, worker int, job *model.ReviewJob) {
	taskID := job.Invocation.TaskID
	slog.Info("job claimed", "worker", worker, "job_id", job.ID, "task_id", taskID, "attempt", job.Attempts)

	err := p.runWithRetry(ctx, job.Invocation)

	if ctx.Err() != nil {
		// Shutdown mid-run: hand the job back for the next process.
		requeueErr := p.queue.Requeue(context.WithoutCancel(ctx), job.ID, "interrupted by shutdown", time.Now())
		if requeueErr != nil {
			slog.Error("failed to requeue interrupted job", "job_id", job.ID, "error", requeueErr)
		}
		return
	}

	if err == nil {
		if err := p.queue.Complete(ctx, job.ID); err != nil {
			slog.Error("failed to complete job", "job_id", job.ID, "error", err)
		}
		return
	}

	slog.Error("task failed", "task_id", taskID, "error", err)
	if failErr := p.tasks.Fail(ctx, taskID, err.Error()); failErr != nil && !errors.Is(failErr, driven.ErrTaskTerminal) {
		slog.Error("failed to mark task failed", "task_id", taskID, "error", failErr)
	}
	if qErr := p.queue.Fail(ctx, job.ID, err.Error()); qErr != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", qErr)
	}
}

func (p *WorkerPool) runWithRetry(ctx context.Context, inv model.Invocation) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := p.runner.Run(ctx, inv)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.MaxAttempts-1)),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		slog.Warn("task attempt failed, retrying",
			"task_id", inv.TaskID, "attempt", attempt, "retry_in", wait, "error", err)
		step := fmt.Sprintf("Attempt %d failed, retrying: %v", attempt, err)
		if tErr := p.tasks.Transition(ctx, inv.TaskID, model.TaskRunning, step, -1); tErr != nil && !errors.Is(tErr, driven.ErrTaskTerminal) {
			slog.Error("failed to record retry", "task_id", inv.TaskID, "error", tErr)
		}
	}

	return backoff.RetryNotify(operation, policy, notify)
}

// permanent reports whether retrying err cannot succeed.
func permanent(err error) bool {
	var syncErr *model.SyncError
	if errors.As(err, &syncErr) && syncErr.Kind == model.SyncAuth {
		return true
	}
	return errors.Is(err, model.ErrBranchNotFound) ||
		errors.Is(err, driven.ErrRepositoryNotFound) ||
		errors.Is(err, driven.ErrTaskNotFound) ||
		errors.Is(err, ErrRepositoryInactive) ||
		errors.Is(err, ErrInvalidInvocation)
}
