package sqlite

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func TestCredentialRepo_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "llm", "api_key", "sk-abc123"))

	val, err := repo.Get(ctx, "llm", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", val)
}

func TestCredentialRepo_StoredValueIsEncrypted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "llm", "api_key", "sk-abc123"))

	var raw string
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE service = 'llm' AND key = 'api_key'`).Scan(&raw))
	assert.NotContains(t, raw, "sk-abc123")
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	val, err := repo.Get(context.Background(), "llm", "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestCredentialRepo_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "github", "webhook_secret", "old-value"))
	require.NoError(t, repo.Set(ctx, "github", "webhook_secret", "new-value"))

	val, err := repo.Get(ctx, "github", "webhook_secret")
	require.NoError(t, err)
	assert.Equal(t, "new-value", val)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCredentialRepo_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "llm", "api_key", "sk-1"))
	require.NoError(t, repo.Set(ctx, "github", "webhook_secret", "s3cret"))

	creds, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "github", creds[0].Service)
	assert.Equal(t, "s3cret", creds[0].Value)
	assert.Equal(t, "llm", creds[1].Service)
	assert.False(t, creds[1].UpdatedAt.IsZero())
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "llm", "api_key", "sk-1"))
	require.NoError(t, repo.Delete(ctx, "llm", "api_key"))

	val, err := repo.Get(ctx, "llm", "api_key")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestCredentialRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Set(ctx, "llm", "api_key", "x"), driven.ErrEncryptionKeyNotSet)

	_, err := repo.Get(ctx, "llm", "api_key")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.List(ctx)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}
