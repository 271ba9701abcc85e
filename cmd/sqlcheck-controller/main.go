// sqlcheck is a SQL-quality-analysis orchestration service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command sqlcheck-controller runs the HTTP control plane: the Control API,
// the Job Service, and the Task Service, backed by the shared SQLite store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sqlcheck/internal/api"
	"sqlcheck/internal/bus"
	"sqlcheck/internal/config"
	"sqlcheck/internal/filestore"
	"sqlcheck/internal/jobservice"
	"sqlcheck/internal/lock"
	"sqlcheck/internal/metrics"
	"sqlcheck/internal/middleware"
	"sqlcheck/internal/store"
	"sqlcheck/internal/taskservice"
)

func main() {
	logger := newLogger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logConfig(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	files := filestore.New(cfg.SharedRoot, cfg.MaxFileBytes, cfg.MaxArchiveEntries)
	locks := lock.New(st.DB())
	b := bus.New()

	jobs := jobservice.New(st, files, locks, b, logger.With("component", "jobservice"), cfg.DialectDefault)
	tasks := taskservice.New(st, files, jobs, logger.With("component", "taskservice"))
	jobs.SetTasks(tasks)

	ap := api.New(st, jobs, tasks, logger.With("component", "api"))

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
		Log:               logger.With("component", "ratelimit"),
	})
	defer limiter.Stop()

	mux := http.NewServeMux()
	ap.Register(mux)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           limiter.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped gracefully")
	}
}

func newLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("service", "sqlcheck-controller")
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"shared_root", cfg.SharedRoot,
		"dialect_default", cfg.DialectDefault,
		"max_file_bytes", cfg.MaxFileBytes,
		"max_archive_entries", cfg.MaxArchiveEntries,
		"worker_concurrency", cfg.WorkerConcurrency,
	)
}
