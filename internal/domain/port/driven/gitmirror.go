package driven

import (
	"context"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// GitMirror maintains local mirrors of remote repositories and reads commits
// and diffs from them. Sync failures are *model.SyncError; diff failures are
// *model.DiffError.
type GitMirror interface {
	// Ensure clones the mirror if absent or fetches it otherwise. The stored
	// remote URL never carries credentials once Ensure returns.
	Ensure(ctx context.Context, repo model.Repository) (firstClone bool, err error)

	// ListNewCommits returns commits within the lookback window, newest first,
	// de-duplicated by hash and tagged with the first branch they were seen on.
	ListNewCommits(ctx context.Context, repo model.Repository, branch string, allBranches bool, lookbackDays int) ([]model.CommitRef, error)

	// TipCommit returns the tip of origin/<branch>.
	TipCommit(ctx context.Context, repo model.Repository, branch string) (model.CommitRef, error)

	// ResolveCommit loads metadata for a single commit.
	ResolveCommit(ctx context.Context, repo model.Repository, hash string) (model.CommitRef, error)

	// Diff returns the unified diff of a commit against its first parent and
	// the list of changed files.
	Diff(ctx context.Context, repo model.Repository, hash string) (string, []model.FileChange, error)
}
