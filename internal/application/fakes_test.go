package application_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeRepoStore struct {
	repos map[int64]*model.Repository
}

func newFakeRepoStore(repos ...model.Repository) *fakeRepoStore {
	s := &fakeRepoStore{repos: make(map[int64]*model.Repository)}
	for i := range repos {
		r := repos[i]
		s.repos[r.ID] = &r
	}
	return s
}

func (s *fakeRepoStore) Create(_ context.Context, repo model.Repository) (int64, error) {
	repo.ID = int64(len(s.repos) + 1)
	s.repos[repo.ID] = &repo
	return repo.ID, nil
}

func (s *fakeRepoStore) Get(_ context.Context, id int64) (*model.Repository, error) {
	r, ok := s.repos[id]
	if !ok {
		return nil, driven.ErrRepositoryNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRepoStore) ListActive(_ context.Context) ([]model.Repository, error) {
	var out []model.Repository
	for _, r := range s.repos {
		if r.IsActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRepoStore) Update(_ context.Context, repo model.Repository) error {
	s.repos[repo.ID] = &repo
	return nil
}

func (s *fakeRepoStore) Deactivate(_ context.Context, id int64) error {
	if r, ok := s.repos[id]; ok {
		r.IsActive = false
	}
	return nil
}

// fakeTaskStore mirrors the sqlite store's guards: terminal tasks are
// immutable and progress never decreases.
type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]*model.ReviewTask
	statuses map[string][]model.TaskStatus

	// cancelAfterAdvance cancels the task once processed reaches this count.
	cancelAfterAdvance int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:    make(map[string]*model.ReviewTask),
		statuses: make(map[string][]model.TaskStatus),
	}
}

func (s *fakeTaskStore) Create(_ context.Context, task model.ReviewTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.TaskID]; ok {
		return driven.ErrTaskExists
	}
	s.tasks[task.TaskID] = &task
	s.statuses[task.TaskID] = []model.TaskStatus{task.Status}
	return nil
}

func (s *fakeTaskStore) Get(_ context.Context, taskID string) (*model.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, driven.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTaskStore) ListRecent(_ context.Context, _ int) ([]model.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReviewTask
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeTaskStore) mutate(taskID string, fn func(t *model.ReviewTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return driven.ErrTaskNotFound
	}
	if t.Status.IsTerminal() {
		return driven.ErrTaskTerminal
	}
	before := t.Status
	fn(t)
	if t.Status != before {
		s.statuses[taskID] = append(s.statuses[taskID], t.Status)
	}
	return nil
}

func (s *fakeTaskStore) Transition(_ context.Context, taskID string, status model.TaskStatus, step string, progress int) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.Status = status
		t.CurrentStep = step
		if progress > t.Progress {
			t.Progress = progress
		}
	})
}

func (s *fakeTaskStore) Start(_ context.Context, taskID string) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.Status = model.TaskRunning
		t.CurrentStep = "Task started"
		if t.StartedAt == nil {
			now := time.Now()
			t.StartedAt = &now
		}
	})
}

func (s *fakeTaskStore) SetTotal(_ context.Context, taskID string, total int) error {
	return s.mutate(taskID, func(t *model.ReviewTask) { t.TotalCommits = total })
}

func (s *fakeTaskStore) AdvanceProcessed(_ context.Context, taskID string, counts model.RiskCounts) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.ProcessedCommits++
		if p := model.ProgressFor(t.ProcessedCommits, t.TotalCommits); p > t.Progress {
			t.Progress = p
		}
		t.Counts.High += counts.High
		t.Counts.Medium += counts.Medium
		t.Counts.Low += counts.Low
		t.Counts.Notified += counts.Notified
		if s.cancelAfterAdvance > 0 && t.ProcessedCommits == s.cancelAfterAdvance {
			t.Status = model.TaskCancelled
		}
	})
}

func (s *fakeTaskStore) Complete(_ context.Context, taskID string) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.Status = model.TaskCompleted
		t.CurrentStep = "Review completed"
		t.Progress = 100
	})
}

func (s *fakeTaskStore) Fail(_ context.Context, taskID string, errMsg string) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.Status = model.TaskFailed
		t.CurrentStep = "Task failed"
		t.ErrorMessage = errMsg
	})
}

func (s *fakeTaskStore) Cancel(_ context.Context, taskID string, step string) error {
	return s.mutate(taskID, func(t *model.ReviewTask) {
		t.Status = model.TaskCancelled
		t.CurrentStep = step
	})
}

func (s *fakeTaskStore) task(taskID string) model.ReviewTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[taskID]
}

type fakeReviewStore struct {
	mu       sync.Mutex
	records  []model.CodeReviewRecord
	notified map[int64]bool

	// createErr, when set, is returned by Create instead of storing.
	createErr error
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{notified: make(map[int64]bool)}
}

func (s *fakeReviewStore) Exists(_ context.Context, repositoryID int64, commitHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.RepositoryID == repositoryID && r.CommitHash == commitHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeReviewStore) Create(ctx context.Context, record model.CodeReviewRecord) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	if ok, _ := s.Exists(ctx, record.RepositoryID, record.CommitHash); ok {
		return 0, driven.ErrReviewExists
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = int64(len(s.records) + 1)
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *fakeReviewStore) Get(_ context.Context, id int64) (*model.CodeReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, driven.ErrReviewNotFound
}

func (s *fakeReviewStore) ListByRepository(_ context.Context, repositoryID int64, _ int) ([]model.CodeReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CodeReviewRecord
	for _, r := range s.records {
		if r.RepositoryID == repositoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeReviewStore) CountByRepository(ctx context.Context, repositoryID int64) (int, error) {
	list, _ := s.ListByRepository(ctx, repositoryID, 0)
	return len(list), nil
}

func (s *fakeReviewStore) MarkNotified(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[id] = true
	return nil
}

func (s *fakeReviewStore) SetFeedback(_ context.Context, _ int64, _ model.Feedback) error {
	return nil
}

type fakeMirror struct {
	mu sync.Mutex

	ensureErr error
	listErr   error
	commits   []model.CommitRef
	diffs     map[string]string
	diffErrs  map[string]error
	tips      map[string]model.CommitRef

	// locks, when set, is checked on every Diff.
	locks        *application.RepoLocks
	unlockedDiff int

	ensureCalls int
	listCalls   []bool
}

func (m *fakeMirror) Ensure(_ context.Context, _ model.Repository) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	return m.ensureCalls == 1, m.ensureErr
}

func (m *fakeMirror) ListNewCommits(_ context.Context, _ model.Repository, _ string, allBranches bool, _ int) ([]model.CommitRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls = append(m.listCalls, allBranches)
	return m.commits, m.listErr
}

func (m *fakeMirror) TipCommit(_ context.Context, _ model.Repository, branch string) (model.CommitRef, error) {
	tip, ok := m.tips[branch]
	if !ok {
		return model.CommitRef{}, fmt.Errorf("%s: %w", branch, model.ErrBranchNotFound)
	}
	return tip, nil
}

func (m *fakeMirror) ResolveCommit(_ context.Context, _ model.Repository, hash string) (model.CommitRef, error) {
	for _, c := range m.commits {
		if c.Hash == hash {
			c.Branch = ""
			return c, nil
		}
	}
	return model.CommitRef{}, fmt.Errorf("commit %s not found", hash)
}

func (m *fakeMirror) Diff(_ context.Context, repo model.Repository, hash string) (string, []model.FileChange, error) {
	if m.locks != nil && lockFree(m.locks, repo.ID) {
		m.mu.Lock()
		m.unlockedDiff++
		m.mu.Unlock()
	}
	if err, ok := m.diffErrs[hash]; ok {
		return "", nil, &model.DiffError{Commit: hash, Err: err}
	}
	diff := m.diffs[hash]
	if diff == "" {
		diff = "--- a/main.go\n+++ b/main.go\n+added line\n-removed line\n"
	}
	return diff, []model.FileChange{{ChangeType: model.ChangeModified, Path: "main.go"}}, nil
}

// lockFree reports whether the repository lock can be taken within a short
// wait. A held lock is acquired and released by the goroutine once freed.
func lockFree(locks *application.RepoLocks, repoID int64) bool {
	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock(repoID)
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

type fakeNotifier struct {
	mu    sync.Mutex
	ok    bool
	calls []driven.ReviewNotification
}

func (n *fakeNotifier) Notify(_ context.Context, _ string, _ string, payload driven.ReviewNotification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, payload)
	return n.ok
}

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []model.Invocation
	enqueueErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, inv model.Invocation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	for _, e := range q.enqueued {
		if e.TaskID == inv.TaskID {
			return driven.ErrTaskExists
		}
	}
	q.enqueued = append(q.enqueued, inv)
	return nil
}

func (q *fakeQueue) Claim(_ context.Context) (*model.ReviewJob, error) { return nil, nil }
func (q *fakeQueue) Complete(_ context.Context, _ int64) error { return nil }
func (q *fakeQueue) Fail(_ context.Context, _ int64, _ string) error { return nil }
func (q *fakeQueue) Requeue(_ context.Context, _ int64, _ string, _ time.Time) error { return nil }
func (q *fakeQueue) RecoverRunning(_ context.Context) (int, error) { return 0, nil }

type fakeDispatcher struct {
	mu   sync.Mutex
	invs []model.Invocation
}

func (d *fakeDispatcher) Dispatch(_ context.Context, inv model.Invocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invs = append(d.invs, inv)
	return nil
}

func (d *fakeDispatcher) dispatched() []model.Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Invocation(nil), d.invs...)
}

type fakeScheduleStore struct {
	configs []model.ScheduledReviewConfig
	runs    map[int64]int
}

func (s *fakeScheduleStore) Create(_ context.Context, cfg model.ScheduledReviewConfig) (int64, error) {
	cfg.ID = int64(len(s.configs) + 1)
	s.configs = append(s.configs, cfg)
	return cfg.ID, nil
}

func (s *fakeScheduleStore) ListActive(_ context.Context) ([]model.ScheduledReviewConfig, error) {
	return s.configs, nil
}

func (s *fakeScheduleStore) MarkRun(_ context.Context, id int64, _ time.Time) error {
	if s.runs == nil {
		s.runs = make(map[int64]int)
	}
	s.runs[id]++
	return nil
}

type cursorAdvance struct {
	RepositoryID int64
	Branch       string
	Hash         string
}

type fakeMonitorStore struct {
	monitors []model.RealtimeMonitorConfig
	advances []cursorAdvance
	touches  int
}

func (s *fakeMonitorStore) Upsert(_ context.Context, cfg model.RealtimeMonitorConfig) error {
	s.monitors = append(s.monitors, cfg)
	return nil
}

func (s *fakeMonitorStore) ListActive(_ context.Context) ([]model.RealtimeMonitorConfig, error) {
	return s.monitors, nil
}

func (s *fakeMonitorStore) AdvanceCursor(_ context.Context, repositoryID int64, branch, hash string, _ time.Time) error {
	s.advances = append(s.advances, cursorAdvance{RepositoryID: repositoryID, Branch: branch, Hash: hash})
	for i := range s.monitors {
		if s.monitors[i].RepositoryID == repositoryID {
			if s.monitors[i].BranchCursors == nil {
				s.monitors[i].BranchCursors = make(map[string]string)
			}
			s.monitors[i].BranchCursors[branch] = hash
		}
	}
	return nil
}

func (s *fakeMonitorStore) Touch(_ context.Context, _ int64, _ time.Time) error {
	s.touches++
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ driven.RepositoryStore = (*fakeRepoStore)(nil)
	_ driven.TaskStore       = (*fakeTaskStore)(nil)
	_ driven.ReviewStore     = (*fakeReviewStore)(nil)
	_ driven.GitMirror       = (*fakeMirror)(nil)
	_ driven.Notifier        = (*fakeNotifier)(nil)
	_ driven.JobQueue        = (*fakeQueue)(nil)
	_ driven.ScheduleStore   = (*fakeScheduleStore)(nil)
	_ driven.MonitorStore    = (*fakeMonitorStore)(nil)
)
