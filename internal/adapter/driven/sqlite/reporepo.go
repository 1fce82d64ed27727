package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepositoryStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepositoryStore port interface.
// The git password and the notification signing secret are sealed with
// AES-256-GCM before write.
type RepoRepo struct {
	db     *DB
	sealer sealer
}

// NewRepoRepo creates a new RepoRepo backed by the given DB. key may be nil,
// in which case repositories without secrets can still be stored.
func NewRepoRepo(db *DB, key []byte) *RepoRepo {
	return &RepoRepo{db: db, sealer: sealer{key: key}}
}

const repoColumns = `id, name, git_url, auth_mode, username, password_enc, local_path, default_branch,
	high_risk_threshold, medium_risk_threshold, critical_patterns, ignore_patterns,
	manual_enabled, scheduled_enabled, realtime_enabled, cron_expression, poll_interval_seconds,
	monitored_branches, auto_review, notify_on_complete, min_notify_level, webhook_url,
	webhook_secret_enc, is_active, created_at, updated_at`

// repoRow holds the column values shared by insert and update.
type repoRow struct {
	passwordEnc, secretEnc      string
	critical, ignore, monitored string
	authMode                    model.AuthMode
	minLevel                    model.RiskLevel
}

func (r *RepoRepo) encodeRow(repo model.Repository) (repoRow, error) {
	var row repoRow
	var err error

	row.authMode = repo.AuthMode
	if row.authMode == "" {
		row.authMode = model.AuthModePassword
	}
	row.minLevel = repo.MinNotifyLevel
	if !row.minLevel.Valid() {
		row.minLevel = model.RiskLow
	}

	if row.passwordEnc, err = r.sealer.seal(repo.Password); err != nil {
		return row, fmt.Errorf("seal password: %w", err)
	}
	if row.secretEnc, err = r.sealer.seal(repo.WebhookSecret); err != nil {
		return row, fmt.Errorf("seal webhook secret: %w", err)
	}
	if row.critical, err = encodeJSON(repo.CriticalPatterns); err != nil {
		return row, fmt.Errorf("encode critical patterns: %w", err)
	}
	if row.ignore, err = encodeJSON(repo.IgnorePatterns); err != nil {
		return row, fmt.Errorf("encode ignore patterns: %w", err)
	}
	if row.monitored, err = encodeJSON(repo.MonitoredBranches); err != nil {
		return row, fmt.Errorf("encode monitored branches: %w", err)
	}
	return row, nil
}

// Create inserts a new repository and returns its id.
func (r *RepoRepo) Create(ctx context.Context, repo model.Repository) (int64, error) {
	row, err := r.encodeRow(repo)
	if err != nil {
		return 0, fmt.Errorf("create repository %s: %w", repo.Name, err)
	}

	now := formatTime(time.Now())
	const query = `INSERT INTO repositories (
		name, git_url, auth_mode, username, password_enc, local_path, default_branch,
		high_risk_threshold, medium_risk_threshold, critical_patterns, ignore_patterns,
		manual_enabled, scheduled_enabled, realtime_enabled, cron_expression, poll_interval_seconds,
		monitored_branches, auto_review, notify_on_complete, min_notify_level, webhook_url,
		webhook_secret_enc, is_active, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Writer.ExecContext(ctx, query,
		repo.Name, repo.GitURL, string(row.authMode), repo.Username, row.passwordEnc, repo.LocalPath, repo.ReviewBranch(),
		repo.HighRiskThreshold, repo.MediumRiskThreshold, row.critical, row.ignore,
		boolToInt(repo.ManualEnabled), boolToInt(repo.ScheduledEnabled), boolToInt(repo.RealtimeEnabled),
		repo.CronExpression, int64(repo.PollInterval/time.Second),
		row.monitored, boolToInt(repo.AutoReview), boolToInt(repo.NotifyOnComplete), string(row.minLevel), repo.WebhookURL,
		row.secretEnc, boolToInt(repo.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create repository %s: %w", repo.Name, driven.ErrRepositoryExists)
		}
		return 0, fmt.Errorf("create repository %s: %w", repo.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read repository id: %w", err)
	}
	return id, nil
}

// Get retrieves a repository by id.
func (r *RepoRepo) Get(ctx context.Context, id int64) (*model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE id = ?`

	repo, err := r.scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get repository %d: %w", id, driven.ErrRepositoryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}
	return repo, nil
}

// ListActive returns all active repositories ordered by name.
func (r *RepoRepo) ListActive(ctx context.Context) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE is_active = 1 ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := r.scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// Update overwrites every mutable column of an existing repository.
func (r *RepoRepo) Update(ctx context.Context, repo model.Repository) error {
	row, err := r.encodeRow(repo)
	if err != nil {
		return fmt.Errorf("update repository %d: %w", repo.ID, err)
	}

	const query = `UPDATE repositories SET
		name = ?, git_url = ?, auth_mode = ?, username = ?, password_enc = ?, local_path = ?, default_branch = ?,
		high_risk_threshold = ?, medium_risk_threshold = ?, critical_patterns = ?, ignore_patterns = ?,
		manual_enabled = ?, scheduled_enabled = ?, realtime_enabled = ?, cron_expression = ?, poll_interval_seconds = ?,
		monitored_branches = ?, auto_review = ?, notify_on_complete = ?, min_notify_level = ?, webhook_url = ?,
		webhook_secret_enc = ?, is_active = ?, updated_at = ?
		WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query,
		repo.Name, repo.GitURL, string(row.authMode), repo.Username, row.passwordEnc, repo.LocalPath, repo.ReviewBranch(),
		repo.HighRiskThreshold, repo.MediumRiskThreshold, row.critical, row.ignore,
		boolToInt(repo.ManualEnabled), boolToInt(repo.ScheduledEnabled), boolToInt(repo.RealtimeEnabled),
		repo.CronExpression, int64(repo.PollInterval/time.Second),
		row.monitored, boolToInt(repo.AutoReview), boolToInt(repo.NotifyOnComplete), string(row.minLevel), repo.WebhookURL,
		row.secretEnc, boolToInt(repo.IsActive), formatTime(time.Now()),
		repo.ID,
	)
	if err != nil {
		return fmt.Errorf("update repository %d: %w", repo.ID, err)
	}
	return expectOneRow(res, fmt.Sprintf("update repository %d", repo.ID), driven.ErrRepositoryNotFound)
}

// Deactivate soft-deletes a repository. Reviews keep referencing it.
func (r *RepoRepo) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE repositories SET is_active = 0, updated_at = ? WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("deactivate repository %d: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("deactivate repository %d", id), driven.ErrRepositoryNotFound)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *RepoRepo) scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var authMode, minLevel, passwordEnc, secretEnc string
	var critical, ignore, monitored string
	var manual, scheduled, realtime, autoReview, notify, active int
	var pollSeconds int64
	var createdAt, updatedAt string

	err := s.Scan(
		&repo.ID, &repo.Name, &repo.GitURL, &authMode, &repo.Username, &passwordEnc, &repo.LocalPath, &repo.DefaultBranch,
		&repo.HighRiskThreshold, &repo.MediumRiskThreshold, &critical, &ignore,
		&manual, &scheduled, &realtime, &repo.CronExpression, &pollSeconds,
		&monitored, &autoReview, &notify, &minLevel, &repo.WebhookURL,
		&secretEnc, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.AuthMode = model.AuthMode(authMode)
	repo.MinNotifyLevel = model.RiskLevel(minLevel)
	repo.ManualEnabled = manual == 1
	repo.ScheduledEnabled = scheduled == 1
	repo.RealtimeEnabled = realtime == 1
	repo.AutoReview = autoReview == 1
	repo.NotifyOnComplete = notify == 1
	repo.IsActive = active == 1
	repo.PollInterval = time.Duration(pollSeconds) * time.Second

	if err := decodeJSON(critical, &repo.CriticalPatterns); err != nil {
		return nil, fmt.Errorf("decode critical patterns: %w", err)
	}
	if err := decodeJSON(ignore, &repo.IgnorePatterns); err != nil {
		return nil, fmt.Errorf("decode ignore patterns: %w", err)
	}
	if err := decodeJSON(monitored, &repo.MonitoredBranches); err != nil {
		return nil, fmt.Errorf("decode monitored branches: %w", err)
	}

	if repo.Password, err = r.sealer.open(passwordEnc); err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}
	if repo.WebhookSecret, err = r.sealer.open(secretEnc); err != nil {
		return nil, fmt.Errorf("decrypt webhook secret: %w", err)
	}

	if repo.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if repo.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}

// expectOneRow maps a zero-row update to notFound.
func expectOneRow(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: check rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}
