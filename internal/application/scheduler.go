package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// InvocationDispatcher hands an invocation to the execution layer.
// *Dispatcher implements it.
type InvocationDispatcher interface {
	Dispatch(ctx context.Context, inv model.Invocation) error
}

// Scheduler fires cron-driven reviews. Entries come from every active
// ScheduledReviewConfig and from each repository with its own cron
// expression, and are reconciled against the stores on a fixed interval.
type Scheduler struct {
	schedules  driven.ScheduleStore
	repos      driven.RepositoryStore
	dispatcher InvocationDispatcher
	reload     time.Duration
	now        func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a Scheduler. A zero reload interval defaults to one minute.
func NewScheduler(
	schedules driven.ScheduleStore,
	repos driven.RepositoryStore,
	dispatcher InvocationDispatcher,
	reload time.Duration,
) *Scheduler {
	if reload <= 0 {
		reload = time.Minute
	}
	return &Scheduler{
		schedules:  schedules,
		repos:      repos,
		dispatcher: dispatcher,
		reload:     reload,
		now:        time.Now,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads the entries, runs the cron engine and reloads on the configured
// interval. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		slog.Error("initial schedule load failed", "error", err)
	}
	s.cron.Start()

	ticker := time.NewTicker(s.reload)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				slog.Error("schedule reload failed", "error", err)
			}
		}
	}
}

// Reload reconciles cron entries with the stores: new or changed configs are
// added, vanished ones removed. Invalid cron expressions are logged and
// skipped.
func (s *Scheduler) Reload(ctx context.Context) error {
	configs, err := s.schedules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	repos, err := s.repos.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	desired := make(map[string]func())
	specs := make(map[string]string)
	for _, cfg := range configs {
		key := fmt.Sprintf("schedule:%d:%s:%t:%v:%v", cfg.ID, cfg.CronExpression, cfg.AllBranches, cfg.Branches, cfg.RepositoryIDs)
		desired[key] = func() { s.FireSchedule(ctx, cfg) }
		specs[key] = cfg.CronExpression
	}
	for _, repo := range repos {
		if !repo.ScheduledEnabled || repo.CronExpression == "" {
			continue
		}
		key := fmt.Sprintf("repo:%d:%s:%v", repo.ID, repo.CronExpression, repo.MonitoredBranches)
		desired[key] = func() { s.FireRepository(ctx, repo.ID) }
		specs[key] = repo.CronExpression
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, id := range s.entries {
		if _, ok := desired[key]; !ok {
			s.cron.Remove(id)
			delete(s.entries, key)
		}
	}
	for key, fn := range desired {
		if _, ok := s.entries[key]; ok {
			continue
		}
		id, err := s.cron.AddFunc(specs[key], fn)
		if err != nil {
			slog.Error("invalid cron expression", "entry", key, "cron", specs[key], "error", err)
			continue
		}
		s.entries[key] = id
	}
	return nil
}

// EntryCount reports how many cron entries are registered.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FireSchedule fans cfg out across its active repositories: one all-branches
// invocation per repository, or one invocation per configured branch.
func (s *Scheduler) FireSchedule(ctx context.Context, cfg model.ScheduledReviewConfig) {
	slog.Info("scheduled review firing", "schedule_id", cfg.ID, "name", cfg.Name, "repos", len(cfg.RepositoryIDs))

	for _, repoID := range cfg.RepositoryIDs {
		repo, ok := s.activeRepo(ctx, repoID)
		if !ok {
			continue
		}

		if cfg.AllBranches {
			s.dispatch(ctx, allBranchesInvocation(repo.ID))
			continue
		}

		branches := cfg.Branches
		if len(branches) == 0 {
			branches = []string{repo.ReviewBranch()}
		}
		for _, b := range branches {
			s.dispatch(ctx, branchInvocation(model.TriggerScheduled, repo.ID, b, randomSuffix()))
		}
	}

	if err := s.schedules.MarkRun(ctx, cfg.ID, s.now()); err != nil {
		slog.Error("failed to record schedule run", "schedule_id", cfg.ID, "error", err)
	}
}

// FireRepository runs a repository's own cron entry over its monitored
// branches, or its default branch when none are configured.
func (s *Scheduler) FireRepository(ctx context.Context, repoID int64) {
	repo, ok := s.activeRepo(ctx, repoID)
	if !ok || !repo.ScheduledEnabled {
		return
	}

	branches := repo.MonitoredBranches
	if len(branches) == 0 {
		branches = []string{repo.ReviewBranch()}
	}
	for _, b := range branches {
		s.dispatch(ctx, branchInvocation(model.TriggerScheduled, repo.ID, b, randomSuffix()))
	}
}

func (s *Scheduler) activeRepo(ctx context.Context, id int64) (*model.Repository, bool) {
	repo, err := s.repos.Get(ctx, id)
	if errors.Is(err, driven.ErrRepositoryNotFound) {
		slog.Warn("scheduled repository no longer exists", "repo_id", id)
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load scheduled repository", "repo_id", id, "error", err)
		return nil, false
	}
	return repo, repo.IsActive
}

func (s *Scheduler) dispatch(ctx context.Context, inv model.Invocation) {
	if err := s.dispatcher.Dispatch(ctx, inv); err != nil {
		slog.Error("failed to dispatch scheduled review", "task_id", inv.TaskID, "error", err)
	}
}

func branchInvocation(mode model.TriggerMode, repoID int64, branch, suffix string) model.Invocation {
	return model.Invocation{
		RepositoryID: repoID,
		Branch:       branch,
		Scope:        model.ScopeBranch,
		TaskID:       newTaskID(mode, repoID, branch, suffix),
		TriggerMode:  mode,
		TriggeredBy:  "system",
	}
}

func allBranchesInvocation(repoID int64) model.Invocation {
	return model.Invocation{
		RepositoryID: repoID,
		AllBranches:  true,
		Scope:        model.ScopeAllBranches,
		TaskID:       newTaskID(model.TriggerScheduled, repoID, "", randomSuffix()),
		TriggerMode:  model.TriggerScheduled,
		TriggeredBy:  "system",
	}
}
