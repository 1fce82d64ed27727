package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// ErrRepositoryInactive is returned when a trigger or task targets a
// repository that has been deactivated.
var ErrRepositoryInactive = errors.New("repository is inactive")

// ErrInvalidInvocation wraps invocation validation failures.
var ErrInvalidInvocation = errors.New("invalid invocation")

// CommitReviewer reviews one commit's diff. *ReviewEngine implements it.
type CommitReviewer interface {
	Review(ctx context.Context, diff string, files []model.FileChange, commitMessage string) model.ReviewResult
}

// Runner executes one invocation to completion.
type Runner interface {
	Run(ctx context.Context, inv model.Invocation) error
}

// Progress checkpoints reported before any commit has been processed.
const (
	progressCloning  = 5
	progressFetching = 10
)

// PipelineConfig carries the pipeline's tunables.
type PipelineConfig struct {
	LookbackDays  int
	PublicBaseURL string
}

// Pipeline drives one invocation through sync, enumeration, review,
// persistence and notification, recording progress on the task as it goes.
type Pipeline struct {
	repos    driven.RepositoryStore
	tasks    driven.TaskStore
	reviews  driven.ReviewStore
	mirror   driven.GitMirror
	engine   CommitReviewer
	notifier driven.Notifier
	locks    *RepoLocks
	cfg      PipelineConfig
	now      func() time.Time
}

// NewPipeline creates a Pipeline with all required dependencies.
func NewPipeline(
	repos driven.RepositoryStore,
	tasks driven.TaskStore,
	reviews driven.ReviewStore,
	mirror driven.GitMirror,
	engine CommitReviewer,
	notifier driven.Notifier,
	locks *RepoLocks,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		repos:    repos,
		tasks:    tasks,
		reviews:  reviews,
		mirror:   mirror,
		engine:   engine,
		notifier: notifier,
		locks:    locks,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes inv. A returned error is task-fatal and may be retried by the
// caller; per-commit failures are absorbed. Run returns nil without doing
// anything further once the task reaches a terminal state, including
// operator cancellation.
func (p *Pipeline) Run(ctx context.Context, inv model.Invocation) error {
	err := p.run(ctx, inv)
	if errors.Is(err, driven.ErrTaskTerminal) {
		slog.Info("task reached terminal state, stopping", "task_id", inv.TaskID)
		return nil
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, inv model.Invocation) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}

	repo, err := p.repos.Get(ctx, inv.RepositoryID)
	if err != nil {
		return fmt.Errorf("load repository %d: %w", inv.RepositoryID, err)
	}
	if !repo.IsActive {
		return fmt.Errorf("repository %d: %w", repo.ID, ErrRepositoryInactive)
	}

	if err := p.tasks.Start(ctx, inv.TaskID); err != nil {
		return err
	}

	commits, err := p.collect(ctx, *repo, inv)
	if err != nil {
		return err
	}

	if err := p.tasks.SetTotal(ctx, inv.TaskID, len(commits)); err != nil {
		return err
	}

	slog.Info("reviewing commits",
		"task_id", inv.TaskID,
		"repo_id", repo.ID,
		"scope", inv.Scope,
		"commits", len(commits),
	)

	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cancelled, err := p.cancelled(ctx, inv.TaskID); err != nil {
			return err
		} else if cancelled {
			slog.Info("task cancelled between commits", "task_id", inv.TaskID)
			return nil
		}

		counts, err := p.reviewCommit(ctx, *repo, inv, c)
		if err != nil {
			return err
		}
		if err := p.tasks.AdvanceProcessed(ctx, inv.TaskID, counts); err != nil {
			return err
		}
	}

	return p.tasks.Complete(ctx, inv.TaskID)
}

// collect syncs the mirror and lists the commits to review under the
// repository lock.
func (p *Pipeline) collect(ctx context.Context, repo model.Repository, inv model.Invocation) ([]model.CommitRef, error) {
	unlock := p.locks.Lock(repo.ID)
	defer unlock()

	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskCloning, "Syncing repository", progressCloning); err != nil {
		return nil, err
	}
	firstClone, err := p.mirror.Ensure(ctx, repo)
	if err != nil {
		return nil, err
	}
	if firstClone {
		slog.Info("mirror cloned", "repo_id", repo.ID, "path", repo.LocalPath)
	}

	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskFetching, "Enumerating commits", progressFetching); err != nil {
		return nil, err
	}

	switch inv.Scope {
	case model.ScopeCommit:
		c, err := p.mirror.ResolveCommit(ctx, repo, inv.Commit.Hash)
		if err != nil {
			return nil, fmt.Errorf("resolve commit %s: %w", model.ShortHash(inv.Commit.Hash), err)
		}
		return []model.CommitRef{mergeCommitRef(c, *inv.Commit, inv.Branch)}, nil
	case model.ScopeAllBranches:
		return p.mirror.ListNewCommits(ctx, repo, "", true, p.cfg.LookbackDays)
	case model.ScopeBranch:
		return p.mirror.ListNewCommits(ctx, repo, inv.Branch, false, p.cfg.LookbackDays)
	default:
		return nil, fmt.Errorf("unknown scope %q", inv.Scope)
	}
}

// mergeCommitRef prefers metadata read from the mirror and fills gaps from
// what the trigger supplied.
func mergeCommitRef(fromMirror, supplied model.CommitRef, branch string) model.CommitRef {
	c := fromMirror
	if c.Branch == "" {
		c.Branch = branch
	}
	if c.Branch == "" {
		c.Branch = supplied.Branch
	}
	if c.Message == "" {
		c.Message = supplied.Message
	}
	if c.Author == "" {
		c.Author = supplied.Author
	}
	if c.AuthorEmail == "" {
		c.AuthorEmail = supplied.AuthorEmail
	}
	if c.CommittedAt.IsZero() {
		c.CommittedAt = supplied.CommittedAt
	}
	return c
}

func (p *Pipeline) cancelled(ctx context.Context, taskID string) (bool, error) {
	task, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.Status == model.TaskCancelled, nil
}

// reviewCommit runs diff, review, save and notify for one commit and returns
// the counters to add for it. Counters are non-zero only when this call
// created the record.
func (p *Pipeline) reviewCommit(ctx context.Context, repo model.Repository, inv model.Invocation, c model.CommitRef) (model.RiskCounts, error) {
	var counts model.RiskCounts
	short := c.ShortHash()

	exists, err := p.reviews.Exists(ctx, repo.ID, c.Hash)
	if err != nil {
		return counts, fmt.Errorf("check review of %s: %w", short, err)
	}
	if exists {
		slog.Debug("commit already reviewed", "task_id", inv.TaskID, "commit", short)
		return counts, nil
	}

	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskDiffing, "Extracting diff for "+short, -1); err != nil {
		return counts, err
	}
	diff, files, err := p.diff(ctx, repo, c.Hash)
	if err != nil {
		slog.Error("diff failed, skipping commit", "task_id", inv.TaskID, "commit", short, "error", err)
		step := fmt.Sprintf("Skipped %s: %v", short, err)
		return counts, p.tasks.Transition(ctx, inv.TaskID, model.TaskDiffing, step, -1)
	}

	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskReviewing, "Reviewing "+short, -1); err != nil {
		return counts, err
	}
	result := p.engine.Review(ctx, diff, files, c.Message)

	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskSaving, "Saving review of "+short, -1); err != nil {
		return counts, err
	}
	record := buildRecord(repo, inv, c, diff, files, result)
	id, err := p.reviews.Create(ctx, record)
	if errors.Is(err, driven.ErrReviewExists) {
		slog.Info("review created concurrently, skipping", "task_id", inv.TaskID, "commit", short)
		return counts, nil
	}
	if err != nil {
		return counts, fmt.Errorf("save review of %s: %w", short, err)
	}
	record.ID = id
	counts.Add(record.RiskLevel)

	if !shouldNotify(repo, result.Score) {
		return counts, nil
	}
	if err := p.tasks.Transition(ctx, inv.TaskID, model.TaskNotifying, "Notifying for "+short, -1); err != nil {
		return counts, err
	}
	if p.notifier.Notify(ctx, repo.WebhookURL, repo.WebhookSecret, p.notification(repo, record, result)) {
		if err := p.reviews.MarkNotified(ctx, id, p.now()); err != nil {
			slog.Error("failed to mark review notified", "review_id", id, "error", err)
		} else {
			counts.Notified++
		}
	}
	return counts, nil
}

// diff reads the mirror under the repository lock; a commit whose parent lies
// past the shallow boundary makes the mirror fetch more history.
func (p *Pipeline) diff(ctx context.Context, repo model.Repository, hash string) (string, []model.FileChange, error) {
	unlock := p.locks.Lock(repo.ID)
	defer unlock()
	return p.mirror.Diff(ctx, repo, hash)
}

func buildRecord(
	repo model.Repository,
	inv model.Invocation,
	c model.CommitRef,
	diff string,
	files []model.FileChange,
	result model.ReviewResult,
) model.CodeReviewRecord {
	added, deleted := model.CountLines(diff)
	branch := c.Branch
	if branch == "" {
		branch = inv.Branch
	}

	return model.CodeReviewRecord{
		RepositoryID:  repo.ID,
		CommitHash:    c.Hash,
		Branch:        branch,
		CommitMessage: c.Message,
		Author:        c.Author,
		AuthorEmail:   c.AuthorEmail,
		CommittedAt:   c.CommittedAt,
		TriggerMode:   inv.TriggerMode,
		TriggeredBy:   inv.TriggeredBy,
		RiskScore:     result.Score,
		RiskLevel:     result.Level,
		AIContent:     result.Content,
		AIModel:       result.Model,
		Summary:       result.Summary,
		Issues:        result.Issues,
		Praise:        result.Praise,
		Files:         files,
		DiffText:      diff,
		LinesAdded:    added,
		LinesDeleted:  deleted,
		LinesChanged:  added + deleted,
		Feedback:      model.FeedbackPending,
	}
}

// shouldNotify gates notifications on the repository's flag, endpoint and
// minimum level, using the repository's own thresholds.
func shouldNotify(repo model.Repository, score float64) bool {
	if !repo.NotifyOnComplete || repo.WebhookURL == "" {
		return false
	}
	minLevel := repo.MinNotifyLevel
	if !minLevel.Valid() {
		minLevel = model.RiskLow
	}
	return repo.NotifyLevel(score).AtLeast(minLevel)
}

func (p *Pipeline) notification(repo model.Repository, record model.CodeReviewRecord, result model.ReviewResult) driven.ReviewNotification {
	excerpt := result.Summary
	if result.FreeForm || result.Degraded {
		excerpt = result.Content
	}

	var link string
	if base := strings.TrimRight(p.cfg.PublicBaseURL, "/"); base != "" {
		link = fmt.Sprintf("%s/reviews/%d", base, record.ID)
	}

	return driven.ReviewNotification{
		RepositoryName: repo.Name,
		Record:         record,
		Excerpt:        excerpt,
		Link:           link,
	}
}
