package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// --- Mock implementations ---

type stubCredentials struct {
	value string
	err   error
}

func (s stubCredentials) Set(context.Context, string, string, string) error { return nil }
func (s stubCredentials) Get(context.Context, string, string) (string, error) {
	return s.value, s.err
}
func (s stubCredentials) List(context.Context) ([]model.Credential, error) { return nil, nil }
func (s stubCredentials) Delete(context.Context, string, string) error     { return nil }

// --- Helpers ---

// execute runs the root command against a fresh database in a temp dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("COMMITREVIEW_DB_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("COMMITREVIEW_MIRROR_ROOT", filepath.Join(dir, "mirrors"))
	t.Setenv("COMMITREVIEW_LLM_PROVIDER", "openai")
	t.Setenv("COMMITREVIEW_SECRET_KEY", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "absent.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func defaultRepoFlags() repoFlags {
	return repoFlags{
		authMode:       string(model.AuthModePassword),
		branch:         "main",
		high:           model.HighRiskScore,
		medium:         model.MediumRiskScore,
		manual:         true,
		pollInterval:   5 * time.Minute,
		autoReview:     true,
		notify:         true,
		minNotifyLevel: "medium",
	}
}

// --- Tests ---

func TestMirrorPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "payments", want: filepath.Join("/m", "payments")},
		{name: "team/api service", want: filepath.Join("/m", "team-api-service")},
		{name: "../escape", want: filepath.Join("/m", "escape")},
		{name: "///", want: filepath.Join("/m", "repo")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mirrorPath("/m", tt.name))
		})
	}
}

func TestRepoFlags_Repository(t *testing.T) {
	f := defaultRepoFlags()
	f.cronExpr = "0 2 * * *"
	f.webhookURL = "https://oapi.dingtalk.com/robot/send?access_token=x"

	repo, err := f.repository(" payments ", "https://git.example.com/payments.git", "/m")

	require.NoError(t, err)
	assert.Equal(t, "payments", repo.Name)
	assert.Equal(t, filepath.Join("/m", "payments"), repo.LocalPath)
	assert.Equal(t, model.RiskMedium, repo.MinNotifyLevel)
	assert.True(t, repo.ScheduledEnabled)
	assert.True(t, repo.NotifyOnComplete)
	assert.True(t, repo.IsActive)
}

func TestRepoFlags_NotifyNeedsWebhook(t *testing.T) {
	repo, err := defaultRepoFlags().repository("payments", "https://git.example.com/p.git", "/m")

	require.NoError(t, err)
	assert.False(t, repo.NotifyOnComplete)
}

func TestRepoFlags_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *repoFlags)
	}{
		{name: "auth mode", mutate: func(f *repoFlags) { f.authMode = "token" }},
		{name: "threshold range", mutate: func(f *repoFlags) { f.high = 1.5 }},
		{name: "threshold order", mutate: func(f *repoFlags) { f.medium = 0.9 }},
		{name: "notify level", mutate: func(f *repoFlags) { f.minNotifyLevel = "urgent" }},
		{name: "cron", mutate: func(f *repoFlags) { f.cronExpr = "every night" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := defaultRepoFlags()
			tt.mutate(&f)

			_, err := f.repository("payments", "https://git.example.com/p.git", "/m")

			assert.Error(t, err)
		})
	}
}

func TestScheduleConfig(t *testing.T) {
	cfg, err := scheduleConfig("nightly", "@daily", []int64{1, 2}, []string{"main"}, false)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, cfg.RepositoryIDs)
	assert.True(t, cfg.IsActive)

	_, err = scheduleConfig("nightly", "61 * * * *", []int64{1}, nil, false)
	assert.Error(t, err)

	_, err = scheduleConfig("nightly", "@daily", []int64{0}, nil, false)
	assert.Error(t, err)
}

func TestStoredCredential(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "stored", storedCredential(ctx, stubCredentials{value: "stored"}, "llm", "api_key", "env"))
	assert.Equal(t, "env", storedCredential(ctx, stubCredentials{}, "llm", "api_key", "env"))
	assert.Equal(t, "env", storedCredential(ctx, stubCredentials{err: driven.ErrEncryptionKeyNotSet}, "llm", "api_key", "env"))
	assert.Equal(t, "env", storedCredential(ctx, stubCredentials{err: errors.New("disk")}, "llm", "api_key", "env"))
}

func TestCLI_RegisterRepositoryAndSchedule(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date")

	out, err = execute(t, dir, "repo", "add", "payments", "https://git.example.com/payments.git",
		"--branch", "main", "--realtime", "--monitor", "main,release")
	require.NoError(t, err)
	assert.Contains(t, out, "repository 1 registered")

	out, err = execute(t, dir, "schedule", "add", "nightly", "0 2 * * *", "--repos", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schedule 1 created for 1 repositories")

	_, err = execute(t, dir, "repo", "add", "payments", "https://git.example.com/payments.git")
	assert.ErrorIs(t, err, driven.ErrRepositoryExists)
}

func TestCLI_CredentialNeedsSecretKey(t *testing.T) {
	_, err := execute(t, t.TempDir(), "credential", "set", "llm", "api_key", "sk-test")

	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}
