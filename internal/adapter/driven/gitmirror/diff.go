package gitmirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// errParentMissing reports a first parent that lies past the shallow boundary.
var errParentMissing = errors.New("parent commit not present in mirror")

// Diff returns the unified diff of hash against its first parent, or against
// the empty tree for a root commit. A parent past the shallow boundary is
// fetched first; if it still cannot be loaded the diff fails. Files matching
// the repository's ignore patterns are dropped from both the file list and
// the diff text; the rest are flagged against its critical patterns.
func (m *Mirror) Diff(ctx context.Context, repo model.Repository, hash string) (string, []model.FileChange, error) {
	text, files, err := diffCommit(ctx, repo, hash)
	if errors.Is(err, errParentMissing) && isShallow(repo.LocalPath) {
		slog.Info("parent past shallow boundary, deepening mirror", "repo_id", repo.ID, "commit", model.ShortHash(hash))
		m.deepen(ctx, repo, "--deepen=1")
		text, files, err = diffCommit(ctx, repo, hash)
	}
	if err != nil {
		return "", nil, &model.DiffError{Commit: hash, Err: err}
	}
	return text, files, nil
}

func diffCommit(ctx context.Context, repo model.Repository, hash string) (string, []model.FileChange, error) {
	r, err := git.PlainOpen(repo.LocalPath)
	if err != nil {
		return "", nil, fmt.Errorf("open mirror: %w", err)
	}

	commit, err := r.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", nil, fmt.Errorf("load commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", nil, fmt.Errorf("load tree: %w", err)
	}

	parentTree, err := firstParentTree(commit)
	if err != nil {
		return "", nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", nil, fmt.Errorf("diff trees: %w", err)
	}

	var kept object.Changes
	var files []model.FileChange
	for _, ch := range changes {
		fc, err := toFileChange(ch)
		if err != nil {
			return "", nil, err
		}
		if matchAny(repo.IgnorePatterns, fc.Path) {
			continue
		}
		fc.IsCritical = matchAny(repo.CriticalPatterns, fc.Path)
		files = append(files, fc)
		kept = append(kept, ch)
	}

	if len(kept) == 0 {
		return "", files, nil
	}

	patch, err := kept.PatchContext(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("build patch: %w", err)
	}
	return patch.String(), files, nil
}

// firstParentTree returns nil for a root commit.
func firstParentTree(c *object.Commit) (*object.Tree, error) {
	if c.NumParents() == 0 {
		return nil, nil
	}
	parent, err := c.Parent(0)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", errParentMissing, model.ShortHash(c.ParentHashes[0].String()))
	}
	if err != nil {
		return nil, fmt.Errorf("load parent: %w", err)
	}
	t, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("load parent tree: %w", err)
	}
	return t, nil
}

func toFileChange(ch *object.Change) (model.FileChange, error) {
	action, err := ch.Action()
	if err != nil {
		return model.FileChange{}, fmt.Errorf("classify change: %w", err)
	}

	switch action {
	case merkletrie.Insert:
		return model.FileChange{ChangeType: model.ChangeAdded, Path: ch.To.Name}, nil
	case merkletrie.Delete:
		return model.FileChange{ChangeType: model.ChangeDeleted, Path: ch.From.Name}, nil
	default:
		if ch.From.Name != ch.To.Name {
			return model.FileChange{ChangeType: model.ChangeRenamed, Path: ch.To.Name, OldPath: ch.From.Name}, nil
		}
		return model.FileChange{ChangeType: model.ChangeModified, Path: ch.To.Name}, nil
	}
}
