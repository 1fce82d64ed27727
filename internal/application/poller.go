package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

const defaultCheckInterval = 5 * time.Minute

// Poller watches monitored branches for new tips. Each repository keeps its
// own check interval; the ticker only decides how often due repositories are
// looked for.
type Poller struct {
	monitors   driven.MonitorStore
	repos      driven.RepositoryStore
	mirror     driven.GitMirror
	locks      *RepoLocks
	dispatcher InvocationDispatcher
	tick       time.Duration
	now        func() time.Time

	nextCheck map[int64]time.Time
}

// NewPoller creates a Poller. A zero tick defaults to 30 seconds.
func NewPoller(
	monitors driven.MonitorStore,
	repos driven.RepositoryStore,
	mirror driven.GitMirror,
	locks *RepoLocks,
	dispatcher InvocationDispatcher,
	tick time.Duration,
) *Poller {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Poller{
		monitors:   monitors,
		repos:      repos,
		mirror:     mirror,
		locks:      locks,
		dispatcher: dispatcher,
		tick:       tick,
		now:        time.Now,
		nextCheck:  make(map[int64]time.Time),
	}
}

// Start runs an immediate check, then checks on every tick. It blocks until
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce checks every active monitor whose interval has elapsed.
func (p *Poller) PollOnce(ctx context.Context) {
	monitors, err := p.monitors.ListActive(ctx)
	if err != nil {
		slog.Error("failed to list monitors", "error", err)
		return
	}

	now := p.now()
	var checked, failed int
	for _, mon := range monitors {
		if ctx.Err() != nil {
			return
		}
		if next, ok := p.nextCheck[mon.RepositoryID]; ok && now.Before(next) {
			continue
		}

		repo, err := p.repos.Get(ctx, mon.RepositoryID)
		if err != nil {
			slog.Error("failed to load monitored repository", "repo_id", mon.RepositoryID, "error", err)
			failed++
			continue
		}
		if !repo.IsActive || !repo.RealtimeEnabled {
			continue
		}

		p.nextCheck[mon.RepositoryID] = now.Add(checkInterval(mon, *repo))
		checked++
		if err := p.checkRepo(ctx, mon, *repo); err != nil {
			slog.Error("realtime check failed", "repo_id", repo.ID, "error", err)
			failed++
		}
	}

	if checked > 0 || failed > 0 {
		slog.Info("realtime check complete", "checked", checked, "errors", failed)
	}
}

func checkInterval(mon model.RealtimeMonitorConfig, repo model.Repository) time.Duration {
	switch {
	case mon.CheckInterval > 0:
		return mon.CheckInterval
	case repo.PollInterval > 0:
		return repo.PollInterval
	default:
		return defaultCheckInterval
	}
}

func monitoredBranches(mon model.RealtimeMonitorConfig, repo model.Repository) []string {
	switch {
	case len(mon.MonitoredBranches) > 0:
		return mon.MonitoredBranches
	case len(repo.MonitoredBranches) > 0:
		return repo.MonitoredBranches
	default:
		return []string{repo.ReviewBranch()}
	}
}

// checkRepo syncs the mirror and compares each monitored branch's tip with its
// cursor. A moved cursor is persisted before anything is dispatched.
func (p *Poller) checkRepo(ctx context.Context, mon model.RealtimeMonitorConfig, repo model.Repository) error {
	tips, err := p.tips(ctx, repo, monitoredBranches(mon, repo))
	if err != nil {
		return err
	}

	for _, branch := range monitoredBranches(mon, repo) {
		tip, ok := tips[branch]
		if !ok || mon.BranchCursors[branch] == tip.Hash {
			continue
		}

		slog.Info("new commit on monitored branch", "repo_id", repo.ID, "branch", branch, "commit", tip.ShortHash())
		if err := p.monitors.AdvanceCursor(ctx, repo.ID, branch, tip.Hash, p.now()); err != nil {
			return err
		}

		if !mon.AutoReview {
			continue
		}
		inv := branchInvocation(model.TriggerRealtime, repo.ID, branch, tip.ShortHash())
		err := p.dispatcher.Dispatch(ctx, inv)
		if errors.Is(err, driven.ErrTaskExists) {
			continue
		}
		if err != nil {
			slog.Error("failed to dispatch realtime review", "task_id", inv.TaskID, "error", err)
		}
	}

	return p.monitors.Touch(ctx, repo.ID, p.now())
}

// tips syncs the mirror under the repository lock and reads each branch tip.
// Branches that cannot be resolved are logged and left out.
func (p *Poller) tips(ctx context.Context, repo model.Repository, branches []string) (map[string]model.CommitRef, error) {
	unlock := p.locks.Lock(repo.ID)
	defer unlock()

	if _, err := p.mirror.Ensure(ctx, repo); err != nil {
		return nil, err
	}

	tips := make(map[string]model.CommitRef, len(branches))
	for _, b := range branches {
		tip, err := p.mirror.TipCommit(ctx, repo, b)
		if err != nil {
			slog.Warn("failed to read branch tip", "repo_id", repo.ID, "branch", b, "error", err)
			continue
		}
		tips[b] = tip
	}
	return tips, nil
}
