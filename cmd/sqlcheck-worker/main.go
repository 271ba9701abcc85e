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

// Command sqlcheck-worker runs one Worker process: it polls the shared
// Repository for PENDING tasks, analyzes one file per Task under the Lock
// Service, and reports back via the results topic. Polling the database
// rather than subscribing to the in-process bus is what lets this binary
// run on a different host than sqlcheck-controller.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sqlcheck/internal/analyzer"
	"sqlcheck/internal/bus"
	"sqlcheck/internal/config"
	"sqlcheck/internal/filestore"
	"sqlcheck/internal/jobservice"
	"sqlcheck/internal/lock"
	"sqlcheck/internal/store"
	"sqlcheck/internal/taskservice"
	"sqlcheck/internal/worker"
)

var supportedDialects = []string{"ansi", "mysql", "postgres", "bigquery"}

func main() {
	logger := newLogger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

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
	an := analyzer.New(supportedDialects)
	// jobs here only derives Job status from the shared store (spec §4.8); it
	// is never used to accept submissions, so it needs no HTTP surface of its
	// own in this process.
	jobs := jobservice.New(st, files, locks, b, logger.With("component", "jobservice"), cfg.DialectDefault)
	tasks := taskservice.New(st, files, jobs, logger.With("component", "taskservice"))

	wcfg := worker.Config{
		WorkerID:          worker.DefaultWorkerID(),
		Concurrency:       cfg.WorkerConcurrency,
		PollInterval:      cfg.WorkerPollInterval(),
		TaskLockTTL:       cfg.TaskLockTTL(),
		RetryMax:          cfg.TaskRetryMax,
		RetryBaseBackoff:  cfg.TaskRetryBaseBackoff(),
		SoftTimeout:       cfg.TaskSoftTimeout(),
		HardTimeout:       cfg.TaskHardTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}.WithDefaults()

	w := worker.New(st, files, an, locks, b, tasks, wcfg, logger.With("component", "worker"))

	logger.Info("worker starting", "worker_id", wcfg.WorkerID, "concurrency", wcfg.Concurrency)
	if err := w.Run(ctx); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func newLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("service", "sqlcheck-worker")
}
