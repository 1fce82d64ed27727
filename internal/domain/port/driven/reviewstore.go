package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// Sentinel errors returned by ReviewStore implementations.
var (
	ErrReviewNotFound = errors.New("code review record not found")

	// ErrReviewExists is returned by Create when a record already exists for
	// the (repository, commit) pair.
	ErrReviewExists = errors.New("code review record already exists")
)

// ReviewStore persists code review records, one per (repository, commit).
type ReviewStore interface {
	Exists(ctx context.Context, repositoryID int64, commitHash string) (bool, error)
	Create(ctx context.Context, record model.CodeReviewRecord) (int64, error)
	Get(ctx context.Context, id int64) (*model.CodeReviewRecord, error)
	ListByRepository(ctx context.Context, repositoryID int64, limit int) ([]model.CodeReviewRecord, error)
	CountByRepository(ctx context.Context, repositoryID int64) (int, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	SetFeedback(ctx context.Context, id int64, fb model.Feedback) error
}
