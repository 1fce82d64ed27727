package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

func makeRepo(name string) model.Repository {
	return model.Repository{
		Name:                name,
		GitURL:              "https://git.example.com/team/" + name + ".git",
		AuthMode:            model.AuthModePassword,
		Username:            "bot",
		Password:            "p@ss word",
		LocalPath:           "/var/lib/mirrors/" + name,
		DefaultBranch:       "main",
		HighRiskThreshold:   0.8,
		MediumRiskThreshold: 0.5,
		CriticalPatterns:    []string{"**/auth/**", "*.sql"},
		IgnorePatterns:      []string{"vendor/**"},
		ManualEnabled:       true,
		RealtimeEnabled:     true,
		PollInterval:        2 * time.Minute,
		MonitoredBranches:   []string{"main", "release"},
		AutoReview:          true,
		NotifyOnComplete:    true,
		MinNotifyLevel:      model.RiskMedium,
		WebhookURL:          "https://oapi.example.com/robot/send?access_token=abc",
		WebhookSecret:       "SECxyz",
		IsActive:            true,
	}
}

// createRepo inserts a repository and returns its id.
func createRepo(t *testing.T, db *DB, name string) int64 {
	t.Helper()
	id, err := NewRepoRepo(db, testKey).Create(context.Background(), makeRepo(name))
	require.NoError(t, err)
	return id
}

func TestRepoRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewRepoRepo(db, testKey)
	ctx := context.Background()

	id, err := store.Create(ctx, makeRepo("payments"))
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "payments", got.Name)
	assert.Equal(t, "p@ss word", got.Password)
	assert.Equal(t, "SECxyz", got.WebhookSecret)
	assert.Equal(t, []string{"**/auth/**", "*.sql"}, got.CriticalPatterns)
	assert.Equal(t, []string{"vendor/**"}, got.IgnorePatterns)
	assert.Equal(t, []string{"main", "release"}, got.MonitoredBranches)
	assert.Equal(t, 2*time.Minute, got.PollInterval)
	assert.Equal(t, model.RiskMedium, got.MinNotifyLevel)
	assert.InDelta(t, 0.8, got.HighRiskThreshold, 1e-9)
	assert.True(t, got.RealtimeEnabled)
	assert.False(t, got.ScheduledEnabled)
	assert.True(t, got.IsActive)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRepoRepo_SecretsEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	id := createRepo(t, db, "payments")

	var password, secret string
	require.NoError(t, db.Reader.QueryRow(
		`SELECT password_enc, webhook_secret_enc FROM repositories WHERE id = ?`, id).Scan(&password, &secret))
	assert.NotContains(t, password, "p@ss")
	assert.NotContains(t, secret, "SECxyz")
}

func TestRepoRepo_Create_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	store := NewRepoRepo(db, testKey)
	ctx := context.Background()

	_, err := store.Create(ctx, makeRepo("payments"))
	require.NoError(t, err)

	_, err = store.Create(ctx, makeRepo("payments"))
	assert.ErrorIs(t, err, driven.ErrRepositoryExists)
}

func TestRepoRepo_Create_SecretWithoutKey(t *testing.T) {
	db := setupTestDB(t)
	store := NewRepoRepo(db, nil)

	_, err := store.Create(context.Background(), makeRepo("payments"))
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	anon := makeRepo("public")
	anon.Password = ""
	anon.WebhookSecret = ""
	_, err = store.Create(context.Background(), anon)
	assert.NoError(t, err)
}

func TestRepoRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewRepoRepo(db, testKey)

	_, err := store.Get(context.Background(), 999)
	assert.ErrorIs(t, err, driven.ErrRepositoryNotFound)
}

func TestRepoRepo_UpdateAndDeactivate(t *testing.T) {
	db := setupTestDB(t)
	store := NewRepoRepo(db, testKey)
	ctx := context.Background()

	id := createRepo(t, db, "payments")
	createRepo(t, db, "billing")

	repo, err := store.Get(ctx, id)
	require.NoError(t, err)
	repo.CronExpression = "0 3 * * *"
	repo.ScheduledEnabled = true
	require.NoError(t, store.Update(ctx, *repo))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", got.CronExpression)
	assert.True(t, got.ScheduledEnabled)
	assert.Equal(t, "p@ss word", got.Password)

	require.NoError(t, store.Deactivate(ctx, id))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "billing", active[0].Name)

	// Soft delete keeps the row readable.
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, store.Deactivate(ctx, 999), driven.ErrRepositoryNotFound)
}
