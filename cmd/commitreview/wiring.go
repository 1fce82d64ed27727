package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/commitreview/internal/adapter/driven/dingtalk"
	"github.com/ericfisherdev/commitreview/internal/adapter/driven/gitmirror"
	"github.com/ericfisherdev/commitreview/internal/adapter/driven/llm"
	sqliteadapter "github.com/ericfisherdev/commitreview/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/config"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Credential store keys that override the environment.
const (
	credServiceLLM    = "llm"
	credKeyAPIKey     = "api_key"
	credServiceGitHub = "github"
	credKeyHookSecret = "webhook_secret"
)

// openDB opens the database and applies pending migrations.
func openDB(ctx context.Context, cfg *config.Config) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")
	return db, nil
}

func closeDB(db *sqliteadapter.DB) {
	if err := db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

type stores struct {
	repos       *sqliteadapter.RepoRepo
	tasks       *sqliteadapter.TaskRepo
	reviews     *sqliteadapter.ReviewRepo
	schedules   *sqliteadapter.ScheduleRepo
	monitors    *sqliteadapter.MonitorRepo
	queue       *sqliteadapter.JobQueue
	credentials *sqliteadapter.CredentialRepo
}

func newStores(db *sqliteadapter.DB, key []byte) stores {
	return stores{
		repos:       sqliteadapter.NewRepoRepo(db, key),
		tasks:       sqliteadapter.NewTaskRepo(db),
		reviews:     sqliteadapter.NewReviewRepo(db),
		schedules:   sqliteadapter.NewScheduleRepo(db),
		monitors:    sqliteadapter.NewMonitorRepo(db),
		queue:       sqliteadapter.NewJobQueue(db),
		credentials: sqliteadapter.NewCredentialRepo(db, key),
	}
}

type services struct {
	mirror    *gitmirror.Mirror
	locks     *application.RepoLocks
	pipeline  *application.Pipeline
	pool      *application.WorkerPool
	triggers  *application.Triggers
	scheduler *application.Scheduler
	poller    *application.Poller
}

// newServices wires the application layer. debugSync makes manual triggers
// run inline on the caller's goroutine.
func newServices(ctx context.Context, cfg *config.Config, st stores, debugSync bool) (*services, error) {
	apiKey := storedCredential(ctx, st.credentials, credServiceLLM, credKeyAPIKey, cfg.LLMAPIKey)

	reviewer, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   apiKey,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create reviewer: %w", err)
	}
	if apiKey == "" {
		slog.Warn("no LLM API key configured, reviews will be degraded")
	}

	svc := &services{
		mirror: gitmirror.NewMirror(cfg.GitTimeout),
		locks:  application.NewRepoLocks(),
	}
	svc.pipeline = application.NewPipeline(
		st.repos,
		st.tasks,
		st.reviews,
		svc.mirror,
		application.NewReviewEngine(reviewer, cfg.LLMTimeout),
		dingtalk.NewNotifier(cfg.NotifyTimeout),
		svc.locks,
		application.PipelineConfig{
			LookbackDays:  cfg.LookbackDays,
			PublicBaseURL: cfg.PublicBaseURL,
		},
	)
	svc.pool = application.NewWorkerPool(st.queue, st.tasks, svc.pipeline, application.WorkerPoolConfig{
		Workers:      cfg.Workers,
		PollInterval: cfg.QueuePollInterval,
		MaxAttempts:  cfg.TaskMaxAttempts,
		RetryDelay:   cfg.TaskRetryDelay,
	})

	dispatcher := application.NewDispatcher(st.tasks, st.queue, svc.pool)
	svc.triggers = application.NewTriggers(st.repos, st.tasks, st.reviews, dispatcher, svc.pipeline, debugSync)
	svc.scheduler = application.NewScheduler(st.schedules, st.repos, dispatcher, 0)
	svc.poller = application.NewPoller(st.monitors, st.repos, svc.mirror, svc.locks, dispatcher, cfg.PollerTick)
	return svc, nil
}

// storedCredential returns the credential store's value for service/key, or
// fallback when none is stored or the store is unavailable.
func storedCredential(ctx context.Context, creds driven.CredentialStore, service, key, fallback string) string {
	v, err := creds.Get(ctx, service, key)
	switch {
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return fallback
	case err != nil:
		slog.Warn("failed to read stored credential", "service", service, "key", key, "error", err)
		return fallback
	case v != "":
		slog.Info("using stored credential", "service", service, "key", key)
		return v
	default:
		return fallback
	}
}
