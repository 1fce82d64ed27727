package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// JobQueue is a durable FIFO of pipeline invocations.
type JobQueue interface {
	Enqueue(ctx context.Context, inv model.Invocation) error

	// Claim atomically takes the oldest available queued job and marks it
	// running. Returns nil, nil when nothing is available.
	Claim(ctx context.Context) (*model.ReviewJob, error)

	Complete(ctx context.Context, jobID int64) error
	Fail(ctx context.Context, jobID int64, errMsg string) error

	// Requeue puts a running job back in the queue after a failed attempt.
	Requeue(ctx context.Context, jobID int64, errMsg string, availableAt time.Time) error

	// RecoverRunning returns jobs left running by a previous process to the
	// queue and reports how many were recovered.
	RecoverRunning(ctx context.Context) (int, error)
}
