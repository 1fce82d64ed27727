package gitmirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// DefaultLookbackDays bounds enumeration when the caller passes zero.
const DefaultLookbackDays = 7

// ListNewCommits walks origin/<branch>, or every origin branch when
// allBranches is set, and returns commits inside the lookback window newest
// first. A failure on one branch of an all-branches walk is logged and the
// branch is skipped.
func (m *Mirror) ListNewCommits(ctx context.Context, repo model.Repository, branch string, allBranches bool, lookbackDays int) ([]model.CommitRef, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	since := m.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	if allBranches {
		m.deepen(ctx, repo, "--unshallow")
	} else if isShallow(repo.LocalPath) {
		m.deepen(ctx, repo, "--shallow-since="+since.UTC().Format(time.RFC3339))
		// One generation past the window so its oldest commit has a parent to
		// diff against.
		m.deepen(ctx, repo, "--deepen=1")
	}

	r, err := git.PlainOpen(repo.LocalPath)
	if err != nil {
		return nil, &model.SyncError{Kind: model.SyncCorrupt, Op: "open", Err: err}
	}

	var branches []string
	if allBranches {
		branches, err = remoteBranches(r, repo.ReviewBranch())
		if err != nil {
			return nil, &model.SyncError{Kind: model.SyncCorrupt, Op: "list-branches", Err: err}
		}
	} else {
		if _, err := r.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true); err != nil {
			return nil, fmt.Errorf("%s: %w", branch, model.ErrBranchNotFound)
		}
		branches = []string{branch}
	}

	seen := make(map[string]bool)
	var commits []model.CommitRef
	for _, b := range branches {
		found, err := walkBranch(ctx, r, b, since)
		if err != nil {
			if !allBranches {
				return nil, &model.SyncError{Kind: model.SyncCorrupt, Op: "log", Err: err}
			}
			slog.Warn("skipping branch", "repo_id", repo.ID, "branch", b, "error", err)
			continue
		}
		for _, c := range found {
			if seen[c.Hash] {
				continue
			}
			seen[c.Hash] = true
			commits = append(commits, c)
		}
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].CommittedAt.After(commits[j].CommittedAt)
	})
	return commits, nil
}

// deepen fetches more history of a shallow mirror under the credentialed
// scope. Failures are logged only; callers proceed with whatever history is
// present.
func (m *Mirror) deepen(ctx context.Context, repo model.Repository, flag string) {
	if !isShallow(repo.LocalPath) {
		return
	}
	err := m.withCredentials(ctx, repo, func(ctx context.Context) error {
		_, err := m.run(ctx, repo, repo.LocalPath, "fetch", flag, remoteName)
		return err
	})
	if err != nil {
		slog.Warn("deepening mirror failed", "repo_id", repo.ID, "flag", flag, "error", err)
	}
}

func isShallow(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git", "shallow"))
	return err == nil
}

// remoteBranches lists origin's branches with the default branch first so it
// wins first-seen tagging, then the rest alphabetically.
func remoteBranches(r *git.Repository, defaultBranch string) ([]string, error) {
	refs, err := r.References()
	if err != nil {
		return nil, err
	}

	prefix := "refs/remotes/" + remoteName + "/"
	var names []string
	hasDefault := false
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name().String()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		short := strings.TrimPrefix(name, prefix)
		if short == "HEAD" {
			return nil
		}
		if short == defaultBranch {
			hasDefault = true
			return nil
		}
		names = append(names, short)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	if hasDefault {
		names = append([]string{defaultBranch}, names...)
	}
	return names, nil
}

// walkBranch returns commits reachable from origin/<branch> committed at or
// after since. A parent missing from a shallow mirror ends that line of
// history; the commit that references it is still returned.
func walkBranch(ctx context.Context, r *git.Repository, branch string, since time.Time) ([]model.CommitRef, error) {
	ref, err := r.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve origin/%s: %w", branch, err)
	}
	tip, err := r.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load origin/%s: %w", branch, err)
	}

	seen := map[plumbing.Hash]bool{tip.Hash: true}
	pending := []*object.Commit{tip}
	var commits []model.CommitRef
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if c.Committer.When.Before(since) {
			continue
		}
		commits = append(commits, toCommitRef(c, branch))

		for _, h := range c.ParentHashes {
			if seen[h] {
				continue
			}
			seen[h] = true
			parent, err := r.CommitObject(h)
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("walk origin/%s: %w", branch, err)
			}
			pending = append(pending, parent)
		}
	}
	return commits, nil
}

// TipCommit returns the commit at origin/<branch>.
func (m *Mirror) TipCommit(_ context.Context, repo model.Repository, branch string) (model.CommitRef, error) {
	r, err := git.PlainOpen(repo.LocalPath)
	if err != nil {
		return model.CommitRef{}, &model.SyncError{Kind: model.SyncCorrupt, Op: "open", Err: err}
	}

	ref, err := r.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return model.CommitRef{}, fmt.Errorf("%s: %w", branch, model.ErrBranchNotFound)
	}

	c, err := r.CommitObject(ref.Hash())
	if err != nil {
		return model.CommitRef{}, fmt.Errorf("load tip of origin/%s: %w", branch, err)
	}
	return toCommitRef(c, branch), nil
}

// ResolveCommit loads one commit by full or abbreviated hash, deepening a
// shallow mirror once if the commit is not present yet.
func (m *Mirror) ResolveCommit(ctx context.Context, repo model.Repository, hash string) (model.CommitRef, error) {
	ref, err := resolve(repo.LocalPath, hash)
	if err == nil {
		return ref, nil
	}
	if !isShallow(repo.LocalPath) {
		return model.CommitRef{}, err
	}

	m.deepen(ctx, repo, "--unshallow")
	return resolve(repo.LocalPath, hash)
}

func resolve(path, hash string) (model.CommitRef, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return model.CommitRef{}, &model.SyncError{Kind: model.SyncCorrupt, Op: "open", Err: err}
	}

	h, err := r.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return model.CommitRef{}, fmt.Errorf("resolve commit %s: %w", model.ShortHash(hash), err)
	}
	c, err := r.CommitObject(*h)
	if err != nil {
		return model.CommitRef{}, fmt.Errorf("load commit %s: %w", model.ShortHash(hash), err)
	}
	return toCommitRef(c, ""), nil
}

func toCommitRef(c *object.Commit, branch string) model.CommitRef {
	return model.CommitRef{
		Hash:        c.Hash.String(),
		Branch:      branch,
		Message:     strings.TrimSpace(c.Message),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		CommittedAt: c.Committer.When,
	}
}
