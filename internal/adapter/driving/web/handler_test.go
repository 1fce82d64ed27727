package web_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/adapter/driving/web"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockReviewStore struct {
	mu       sync.Mutex
	records  map[int64]model.CodeReviewRecord
	feedback map[int64]model.Feedback
	getErr   error
}

func (m *mockReviewStore) Exists(context.Context, int64, string) (bool, error) { return false, nil }
func (m *mockReviewStore) Create(context.Context, model.CodeReviewRecord) (int64, error) {
	return 0, nil
}
func (m *mockReviewStore) ListByRepository(context.Context, int64, int) ([]model.CodeReviewRecord, error) {
	return nil, nil
}
func (m *mockReviewStore) CountByRepository(context.Context, int64) (int, error) { return 0, nil }
func (m *mockReviewStore) MarkNotified(context.Context, int64, time.Time) error  { return nil }

func (m *mockReviewStore) Get(_ context.Context, id int64) (*model.CodeReviewRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, driven.ErrReviewNotFound
	}
	return &rec, nil
}

func (m *mockReviewStore) SetFeedback(_ context.Context, id int64, fb model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return driven.ErrReviewNotFound
	}
	if m.feedback == nil {
		m.feedback = make(map[int64]model.Feedback)
	}
	m.feedback[id] = fb
	return nil
}

type mockRepoStore struct {
	repos map[int64]model.Repository
}

func (m *mockRepoStore) Create(context.Context, model.Repository) (int64, error) { return 0, nil }
func (m *mockRepoStore) ListActive(context.Context) ([]model.Repository, error) { return nil, nil }
func (m *mockRepoStore) Update(context.Context, model.Repository) error          { return nil }
func (m *mockRepoStore) Deactivate(context.Context, int64) error                 { return nil }

func (m *mockRepoStore) Get(_ context.Context, id int64) (*model.Repository, error) {
	repo, ok := m.repos[id]
	if !ok {
		return nil, driven.ErrRepositoryNotFound
	}
	return &repo, nil
}

// --- Helpers ---

func sampleRecord() model.CodeReviewRecord {
	return model.CodeReviewRecord{
		ID:            12,
		RepositoryID:  7,
		CommitHash:    "0123456789abcdef0123456789abcdef01234567",
		Branch:        "main",
		CommitMessage: "fix: validate token expiry",
		Author:        "dev",
		AuthorEmail:   "dev@example.com",
		CommittedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		TriggerMode:   model.TriggerWebhook,
		RiskScore:     0.72,
		RiskLevel:     model.RiskHigh,
		AIModel:       "deepseek-coder",
		AIContent:     "## Findings\n\n**token** check is missing\n\n<script>alert(1)</script>",
		Summary:       "Token expiry is not enforced",
		Issues: []model.Issue{{
			Type: "security", Severity: "high", File: "auth/token.go", Line: 42,
			Description: "expiry not checked", Suggestion: "compare exp with now",
		}},
		Praise:       []string{"clear naming"},
		Files:        []model.FileChange{{ChangeType: model.ChangeModified, Path: "auth/token.go", IsCritical: true}},
		DiffText:     "diff --git a/auth/token.go b/auth/token.go\n@@ -1 +1 @@\n-old\n+<b>new</b>\n",
		LinesAdded:   1,
		LinesDeleted: 1,
	}
}

type fixture struct {
	reviews *mockReviewStore
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reviews := &mockReviewStore{records: map[int64]model.CodeReviewRecord{12: sampleRecord()}}
	repos := &mockRepoStore{repos: map[int64]model.Repository{7: {ID: 7, Name: "payments"}}}

	h, err := web.NewHandler(reviews, repos, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	mux := http.NewServeMux()
	web.RegisterRoutes(mux, h)
	return &fixture{reviews: reviews, mux: mux}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) postFeedback(path string, form url.Values, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: cookie})
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestReviewPage_RendersRecord(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/reviews/12")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "payments")
	assert.Contains(t, body, "01234567")
	assert.Contains(t, body, "HIGH (72%)")
	assert.Contains(t, body, "auth/token.go:42")
	assert.Contains(t, body, "clear naming")
	assert.Contains(t, body, "<strong>token</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, `<span class="diff-add">+&lt;b&gt;new&lt;/b&gt;</span>`)
	assert.Contains(t, body, `<option value="PENDING" selected>`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrf_token", cookies[0].Name)
	assert.Contains(t, body, `value="`+cookies[0].Value+`"`)
}

func TestReviewPage_UnknownRepositoryFallsBackToID(t *testing.T) {
	f := newFixture(t)
	r := sampleRecord()
	r.ID = 13
	r.RepositoryID = 99
	f.reviews.records[13] = r

	rec := f.get("/reviews/13")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<dd>99</dd>")
}

func TestReviewPage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		getErr error
		want   int
	}{
		{name: "not found", path: "/reviews/404", want: http.StatusNotFound},
		{name: "bad id", path: "/reviews/abc", want: http.StatusBadRequest},
		{name: "zero id", path: "/reviews/0", want: http.StatusBadRequest},
		{name: "store failure", path: "/reviews/12", getErr: errors.New("disk"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.reviews.getErr = tt.getErr

			rec := f.get(tt.path)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSubmitFeedback_StoresAndRedirects(t *testing.T) {
	f := newFixture(t)
	form := url.Values{
		"csrf_token": {"tok"},
		"feedback":   {"false_positive"},
		"comment":    {" expiry is checked upstream "},
		"by":         {"alice"},
	}

	rec := f.postFeedback("/reviews/12/feedback", form, "tok")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/reviews/12", rec.Header().Get("Location"))
	assert.Equal(t, model.Feedback{
		Status:  model.FeedbackFalsePositive,
		Comment: "expiry is checked upstream",
		By:      "alice",
	}, f.reviews.feedback[12])
}

func TestSubmitFeedback_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		token  string
		cookie string
		value  string
		want   int
	}{
		{name: "missing cookie", path: "/reviews/12/feedback", token: "tok", value: "CORRECT", want: http.StatusForbidden},
		{name: "token mismatch", path: "/reviews/12/feedback", token: "other", cookie: "tok", value: "CORRECT", want: http.StatusForbidden},
		{name: "invalid verdict", path: "/reviews/12/feedback", token: "tok", cookie: "tok", value: "MAYBE", want: http.StatusBadRequest},
		{name: "unknown review", path: "/reviews/404/feedback", token: "tok", cookie: "tok", value: "CORRECT", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := url.Values{"csrf_token": {tt.token}, "feedback": {tt.value}}

			rec := f.postFeedback(tt.path, form, tt.cookie)

			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, f.reviews.feedback)
		})
	}
}

func TestStaticStylesheet(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/static/review.css")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".diff-add")
}
