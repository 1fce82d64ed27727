package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// ScheduleStore persists cron-driven review configurations.
type ScheduleStore interface {
	Create(ctx context.Context, cfg model.ScheduledReviewConfig) (int64, error)
	ListActive(ctx context.Context) ([]model.ScheduledReviewConfig, error)
	MarkRun(ctx context.Context, id int64, at time.Time) error
}

// MonitorStore persists realtime polling configurations and branch cursors.
type MonitorStore interface {
	Upsert(ctx context.Context, cfg model.RealtimeMonitorConfig) error
	ListActive(ctx context.Context) ([]model.RealtimeMonitorConfig, error)

	// AdvanceCursor records hash as the last seen tip of branch.
	AdvanceCursor(ctx context.Context, repositoryID int64, branch, hash string, at time.Time) error

	// Touch records a check without moving any cursor.
	Touch(ctx context.Context, repositoryID int64, at time.Time) error
}
