package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// Sentinel errors returned by RepositoryStore implementations.
var (
	// ErrRepositoryNotFound indicates the requested repository does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrRepositoryExists indicates a repository with the same name already exists.
	ErrRepositoryExists = errors.New("repository already exists")
)

// RepositoryStore defines the driven port for repository persistence.
// Credentials cross this boundary in plaintext; adapters encrypt at rest.
type RepositoryStore interface {
	// Create inserts a repository and returns its id. Returns ErrRepositoryExists
	// when the name is taken.
	Create(ctx context.Context, repo model.Repository) (int64, error)

	// Get returns ErrRepositoryNotFound if no repository has the given id.
	// Inactive repositories are returned; callers check IsActive.
	Get(ctx context.Context, id int64) (*model.Repository, error)

	ListActive(ctx context.Context) ([]model.Repository, error)
	Update(ctx context.Context, repo model.Repository) error

	// Deactivate soft-deletes a repository by clearing is_active.
	Deactivate(ctx context.Context, id int64) error
}
