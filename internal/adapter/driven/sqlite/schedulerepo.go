package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ScheduleStore = (*ScheduleRepo)(nil)
	_ driven.MonitorStore  = (*MonitorRepo)(nil)
)

// ScheduleRepo is the SQLite implementation of the ScheduleStore port interface.
type ScheduleRepo struct {
	db *DB
}

// NewScheduleRepo creates a new ScheduleRepo backed by the given DB.
func NewScheduleRepo(db *DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// Create inserts a scheduled review configuration.
func (r *ScheduleRepo) Create(ctx context.Context, cfg model.ScheduledReviewConfig) (int64, error) {
	branches, err := encodeJSON(cfg.Branches)
	if err != nil {
		return 0, fmt.Errorf("encode branches: %w", err)
	}
	repoIDs, err := encodeJSON(cfg.RepositoryIDs)
	if err != nil {
		return 0, fmt.Errorf("encode repository ids: %w", err)
	}

	const query = `INSERT INTO scheduled_reviews (name, cron_expression, branches, all_branches, repository_ids, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Writer.ExecContext(ctx, query,
		cfg.Name, cfg.CronExpression, branches, boolToInt(cfg.AllBranches), repoIDs,
		boolToInt(cfg.IsActive), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("create schedule %q: %w", cfg.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read schedule id: %w", err)
	}
	return id, nil
}

// ListActive returns every active schedule.
func (r *ScheduleRepo) ListActive(ctx context.Context) ([]model.ScheduledReviewConfig, error) {
	const query = `SELECT id, name, cron_expression, branches, all_branches, repository_ids, is_active, last_run_at, created_at
		FROM scheduled_reviews WHERE is_active = 1 ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var cfgs []model.ScheduledReviewConfig
	for rows.Next() {
		var cfg model.ScheduledReviewConfig
		var branches, repoIDs, createdAt string
		var allBranches, active int
		var lastRun sql.NullString

		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.CronExpression, &branches, &allBranches, &repoIDs,
			&active, &lastRun, &createdAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}

		cfg.AllBranches = allBranches == 1
		cfg.IsActive = active == 1
		if err := decodeJSON(branches, &cfg.Branches); err != nil {
			return nil, fmt.Errorf("decode branches for schedule %d: %w", cfg.ID, err)
		}
		if err := decodeJSON(repoIDs, &cfg.RepositoryIDs); err != nil {
			return nil, fmt.Errorf("decode repository ids for schedule %d: %w", cfg.ID, err)
		}
		if cfg.LastRunAt, err = parseNullTime(lastRun); err != nil {
			return nil, fmt.Errorf("parse last_run_at: %w", err)
		}
		if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		cfgs = append(cfgs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return cfgs, nil
}

// MarkRun records when a schedule last fired.
func (r *ScheduleRepo) MarkRun(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.Writer.ExecContext(ctx,
		`UPDATE scheduled_reviews SET last_run_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark schedule %d run: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("mark schedule %d run", id), fmt.Errorf("schedule %d not found", id))
}

// MonitorRepo is the SQLite implementation of the MonitorStore port interface.
// Branch cursors live in monitor_cursors, one row per (repository, branch).
type MonitorRepo struct {
	db *DB
}

// NewMonitorRepo creates a new MonitorRepo backed by the given DB.
func NewMonitorRepo(db *DB) *MonitorRepo {
	return &MonitorRepo{db: db}
}

// Upsert creates or replaces the monitor configuration for a repository.
// Cursors are left untouched.
func (r *MonitorRepo) Upsert(ctx context.Context, cfg model.RealtimeMonitorConfig) error {
	branches, err := encodeJSON(cfg.MonitoredBranches)
	if err != nil {
		return fmt.Errorf("encode monitored branches: %w", err)
	}

	const query = `INSERT INTO realtime_monitors (repository_id, is_active, monitored_branches, check_interval_seconds, auto_review)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repository_id) DO UPDATE SET
			is_active = excluded.is_active,
			monitored_branches = excluded.monitored_branches,
			check_interval_seconds = excluded.check_interval_seconds,
			auto_review = excluded.auto_review`

	_, err = r.db.Writer.ExecContext(ctx, query,
		cfg.RepositoryID, boolToInt(cfg.IsActive), branches,
		int64(cfg.CheckInterval/time.Second), boolToInt(cfg.AutoReview))
	if err != nil {
		return fmt.Errorf("upsert monitor for repository %d: %w", cfg.RepositoryID, err)
	}
	return nil
}

// ListActive returns every active monitor with its branch cursors loaded.
func (r *MonitorRepo) ListActive(ctx context.Context) ([]model.RealtimeMonitorConfig, error) {
	const query = `SELECT id, repository_id, is_active, monitored_branches, check_interval_seconds, auto_review,
		last_checked_commit, last_checked_at
		FROM realtime_monitors WHERE is_active = 1 ORDER BY repository_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var cfgs []model.RealtimeMonitorConfig
	for rows.Next() {
		var cfg model.RealtimeMonitorConfig
		var active, autoReview int
		var branches string
		var intervalSeconds int64
		var lastChecked sql.NullString

		if err := rows.Scan(&cfg.ID, &cfg.RepositoryID, &active, &branches, &intervalSeconds, &autoReview,
			&cfg.LastCheckedCommit, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}

		cfg.IsActive = active == 1
		cfg.AutoReview = autoReview == 1
		cfg.CheckInterval = time.Duration(intervalSeconds) * time.Second
		if err := decodeJSON(branches, &cfg.MonitoredBranches); err != nil {
			return nil, fmt.Errorf("decode monitored branches: %w", err)
		}
		if cfg.LastCheckedAt, err = parseNullTime(lastChecked); err != nil {
			return nil, fmt.Errorf("parse last_checked_at: %w", err)
		}
		cfgs = append(cfgs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitors: %w", err)
	}
	rows.Close()

	for i := range cfgs {
		cursors, err := r.cursors(ctx, cfgs[i].RepositoryID)
		if err != nil {
			return nil, err
		}
		cfgs[i].BranchCursors = cursors
	}
	return cfgs, nil
}

func (r *MonitorRepo) cursors(ctx context.Context, repositoryID int64) (map[string]string, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT branch, commit_hash FROM monitor_cursors WHERE repository_id = ?`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list cursors for repository %d: %w", repositoryID, err)
	}
	defer rows.Close()

	cursors := make(map[string]string)
	for rows.Next() {
		var branch, hash string
		if err := rows.Scan(&branch, &hash); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		cursors[branch] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}
	return cursors, nil
}

// AdvanceCursor stores hash as the tip last seen on branch and mirrors it
// into last_checked_commit.
func (r *MonitorRepo) AdvanceCursor(ctx context.Context, repositoryID int64, branch, hash string, at time.Time) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cursor update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := formatTime(at)
	const upsertCursor = `INSERT INTO monitor_cursors (repository_id, branch, commit_hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (repository_id, branch) DO UPDATE SET commit_hash = excluded.commit_hash, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsertCursor, repositoryID, branch, hash, ts); err != nil {
		return fmt.Errorf("advance cursor %d/%s: %w", repositoryID, branch, err)
	}

	const touch = `UPDATE realtime_monitors SET last_checked_commit = ?, last_checked_at = ? WHERE repository_id = ?`
	if _, err := tx.ExecContext(ctx, touch, hash, ts, repositoryID); err != nil {
		return fmt.Errorf("update monitor %d: %w", repositoryID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cursor update: %w", err)
	}
	return nil
}

// Touch records a poll that found nothing new.
func (r *MonitorRepo) Touch(ctx context.Context, repositoryID int64, at time.Time) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE realtime_monitors SET last_checked_at = ? WHERE repository_id = ?`, formatTime(at), repositoryID)
	if err != nil {
		return fmt.Errorf("touch monitor %d: %w", repositoryID, err)
	}
	return nil
}
