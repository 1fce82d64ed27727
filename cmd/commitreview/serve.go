package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/commitreview/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/commitreview/internal/adapter/driving/web"
	"github.com/ericfisherdev/commitreview/internal/config"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, worker pool, scheduler and poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), c.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"mirror_root", cfg.MirrorRoot,
		"workers", cfg.Workers,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"debug_sync", cfg.DebugSync,
	)

	// 1. Open database and apply migrations.
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)

	// 2. Wire stores and services.
	st := newStores(db, cfg.SecretKey)
	svc, err := newServices(ctx, cfg, st, cfg.DebugSync)
	if err != nil {
		return err
	}

	// 3. Start background workers. The pool must drain before the database closes.
	var wg sync.WaitGroup
	wg.Go(func() { svc.pool.Start(ctx) })
	wg.Go(func() { svc.scheduler.Start(ctx) })
	wg.Go(func() { svc.poller.Start(ctx) })

	// 4. HTTP API and review pages on one mux.
	hookSecret := storedCredential(ctx, st.credentials, credServiceGitHub, credKeyHookSecret, cfg.GitHubWebhookSecret)
	if hookSecret == "" {
		slog.Info("no github webhook secret configured, github push endpoint disabled")
	}
	apiHandler := httphandler.NewHandler(svc.triggers, st.tasks, st.reviews, hookSecret, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	webHandler, err := webhandler.NewHandler(st.reviews, st.repos, cfg.SecureCookies(), slog.Default())
	if err != nil {
		return err
	}
	webhandler.RegisterRoutes(mux, webHandler)

	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	// Inline manual reviews hold the request open for the whole pipeline.
	writeTimeout := 30 * time.Second
	if cfg.DebugSync {
		writeTimeout = 0
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("commitreview started", "listen_addr", cfg.ListenAddr, "workers", cfg.Workers)

	// 5. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}
