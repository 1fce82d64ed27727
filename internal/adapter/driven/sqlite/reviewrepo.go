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
var _ driven.ReviewStore = (*ReviewRepo)(nil)

// ReviewRepo is the SQLite implementation of the ReviewStore port interface.
// Issues, praise and file changes are stored as JSON columns.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new ReviewRepo backed by the given DB.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// Exists reports whether a record already exists for the commit.
func (r *ReviewRepo) Exists(ctx context.Context, repositoryID int64, commitHash string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM code_reviews WHERE repository_id = ? AND commit_hash = ?)`

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, repositoryID, commitHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check review %d/%s: %w", repositoryID, model.ShortHash(commitHash), err)
	}
	return exists, nil
}

// Create inserts a record. A second record for the same (repository, commit)
// fails with ErrReviewExists.
func (r *ReviewRepo) Create(ctx context.Context, rec model.CodeReviewRecord) (int64, error) {
	issues, err := encodeJSON(nonNilIssues(rec.Issues))
	if err != nil {
		return 0, fmt.Errorf("encode issues: %w", err)
	}
	praise, err := encodeJSON(nonNilStrings(rec.Praise))
	if err != nil {
		return 0, fmt.Errorf("encode praise: %w", err)
	}
	files, err := encodeJSON(rec.Files)
	if err != nil {
		return 0, fmt.Errorf("encode files: %w", err)
	}

	feedback := rec.Feedback
	if feedback == "" {
		feedback = model.FeedbackPending
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var committedAt *time.Time
	if !rec.CommittedAt.IsZero() {
		committedAt = &rec.CommittedAt
	}

	const query = `INSERT INTO code_reviews (
		repository_id, commit_hash, branch, commit_message, author, author_email, committed_at,
		trigger_mode, triggered_by, risk_score, risk_level, ai_content, ai_model, summary,
		issues, praise, files, diff_text, lines_added, lines_deleted, lines_changed,
		feedback_status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Writer.ExecContext(ctx, query,
		rec.RepositoryID, rec.CommitHash, rec.Branch, rec.CommitMessage, rec.Author, rec.AuthorEmail, nullTime(committedAt),
		string(rec.TriggerMode), rec.TriggeredBy, rec.RiskScore, string(rec.RiskLevel), rec.AIContent, rec.AIModel, rec.Summary,
		issues, praise, files, rec.DiffText, rec.LinesAdded, rec.LinesDeleted, rec.LinesChanged,
		string(feedback), formatTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create review %s: %w", model.ShortHash(rec.CommitHash), driven.ErrReviewExists)
		}
		return 0, fmt.Errorf("create review %s: %w", model.ShortHash(rec.CommitHash), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read review id: %w", err)
	}
	return id, nil
}

const reviewColumns = `id, repository_id, commit_hash, branch, commit_message, author, author_email, committed_at,
	trigger_mode, triggered_by, risk_score, risk_level, ai_content, ai_model, summary,
	issues, praise, files, diff_text, lines_added, lines_deleted, lines_changed,
	feedback_status, feedback_comment, feedback_by, feedback_at, notified, notified_at, created_at`

// Get returns a record by id, or ErrReviewNotFound.
func (r *ReviewRepo) Get(ctx context.Context, id int64) (*model.CodeReviewRecord, error) {
	query := `SELECT ` + reviewColumns + ` FROM code_reviews WHERE id = ?`

	rec, err := scanReview(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get review %d: %w", id, driven.ErrReviewNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return rec, nil
}

// ListByRepository returns the newest records for a repository.
func (r *ReviewRepo) ListByRepository(ctx context.Context, repositoryID int64, limit int) ([]model.CodeReviewRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + reviewColumns + ` FROM code_reviews WHERE repository_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews for repository %d: %w", repositoryID, err)
	}
	defer rows.Close()

	var recs []model.CodeReviewRecord
	for rows.Next() {
		rec, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return recs, nil
}

// CountByRepository returns how many records exist for a repository.
func (r *ReviewRepo) CountByRepository(ctx context.Context, repositoryID int64) (int, error) {
	var n int
	err := r.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM code_reviews WHERE repository_id = ?`, repositoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reviews for repository %d: %w", repositoryID, err)
	}
	return n, nil
}

// MarkNotified records a successful notification delivery.
func (r *ReviewRepo) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE code_reviews SET notified = 1, notified_at = ? WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark review %d notified: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("mark review %d notified", id), driven.ErrReviewNotFound)
}

// SetFeedback stores a human verdict on a record.
func (r *ReviewRepo) SetFeedback(ctx context.Context, id int64, fb model.Feedback) error {
	if !fb.Status.Valid() {
		return fmt.Errorf("set feedback on review %d: invalid status %q", id, fb.Status)
	}

	const query = `UPDATE code_reviews SET feedback_status = ?, feedback_comment = ?, feedback_by = ?, feedback_at = ?
		WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(fb.Status), fb.Comment, fb.By, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set feedback on review %d: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("set feedback on review %d", id), driven.ErrReviewNotFound)
}

func scanReview(s scanner) (*model.CodeReviewRecord, error) {
	var rec model.CodeReviewRecord
	var mode, level, feedback string
	var issues, praise, files string
	var notified int
	var committedAt, feedbackAt, notifiedAt sql.NullString
	var createdAt string

	err := s.Scan(
		&rec.ID, &rec.RepositoryID, &rec.CommitHash, &rec.Branch, &rec.CommitMessage, &rec.Author, &rec.AuthorEmail, &committedAt,
		&mode, &rec.TriggeredBy, &rec.RiskScore, &level, &rec.AIContent, &rec.AIModel, &rec.Summary,
		&issues, &praise, &files, &rec.DiffText, &rec.LinesAdded, &rec.LinesDeleted, &rec.LinesChanged,
		&feedback, &rec.FeedbackComment, &rec.FeedbackBy, &feedbackAt, &notified, &notifiedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.TriggerMode = model.TriggerMode(mode)
	rec.RiskLevel = model.RiskLevel(level)
	rec.Feedback = model.FeedbackStatus(feedback)
	rec.Notified = notified == 1

	if err := decodeJSON(issues, &rec.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	if err := decodeJSON(praise, &rec.Praise); err != nil {
		return nil, fmt.Errorf("decode praise: %w", err)
	}
	if err := decodeJSON(files, &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}

	ts, err := parseNullTime(committedAt)
	if err != nil {
		return nil, fmt.Errorf("parse committed_at: %w", err)
	}
	if ts != nil {
		rec.CommittedAt = *ts
	}
	if rec.FeedbackAt, err = parseNullTime(feedbackAt); err != nil {
		return nil, fmt.Errorf("parse feedback_at: %w", err)
	}
	if rec.NotifiedAt, err = parseNullTime(notifiedAt); err != nil {
		return nil, fmt.Errorf("parse notified_at: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &rec, nil
}

func nonNilIssues(v []model.Issue) []model.Issue {
	if v == nil {
		return []model.Issue{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
