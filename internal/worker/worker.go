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

// Package worker implements the Worker process: an intake loop over a
// bounded pool, per-task execution gated by the Lock Service, retry with
// exponential backoff, and a periodic heartbeat.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"sqlcheck/internal/analyzer"
	"sqlcheck/internal/bus"
	"sqlcheck/internal/events"
	"sqlcheck/internal/filestore"
	"sqlcheck/internal/ids"
	"sqlcheck/internal/lock"
	"sqlcheck/internal/model"
	"sqlcheck/internal/store"
	"sqlcheck/internal/taskservice"
)

// Config controls worker pool sizing, lock TTLs, retry policy, and timeouts.
type Config struct {
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	TaskLockTTL       time.Duration
	RetryMax          int
	RetryBaseBackoff  time.Duration
	SoftTimeout       time.Duration
	HardTimeout       time.Duration
	HeartbeatInterval time.Duration
	TerminationGrace  time.Duration
}

// WithDefaults fills zero-valued fields with the spec §6.4 defaults.
func (c Config) WithDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = DefaultWorkerID()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.TaskLockTTL <= 0 {
		c.TaskLockTTL = 300 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBaseBackoff <= 0 {
		c.RetryBaseBackoff = 60 * time.Second
	}
	if c.SoftTimeout <= 0 {
		c.SoftTimeout = 1800 * time.Second
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 2100 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.TerminationGrace <= 0 {
		c.TerminationGrace = 30 * time.Second
	}
	return c
}

// DefaultWorkerID composes a stable worker id from hostname and pid.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Worker polls the shared Repository for PENDING tasks and analyzes one
// file per Task. Polling rather than subscribing to the Bus is what lets
// Worker and the control plane run as independent processes on separate
// hosts (spec §5): the Bus is in-process only, but the Repository's SQLite
// file is the one store every process actually shares.
type Worker struct {
	store    *store.Store
	files    *filestore.Store
	analyzer *analyzer.Adapter
	locks    *lock.Service
	bus      *bus.Bus
	tasks    *taskservice.Service
	cfg      Config
	log      *slog.Logger
	now      func() time.Time

	inFlight       int64
	totalProcessed int64
	startedAt      time.Time
}

// New constructs a Worker. tasks is the Task Service (C9); every status
// transition the worker makes is routed through it so batch validation and
// job re-derivation stay in one place instead of being duplicated here.
func New(st *store.Store, files *filestore.Store, an *analyzer.Adapter, locks *lock.Service, b *bus.Bus, tasks *taskservice.Service, cfg Config, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		store: st, files: files, analyzer: an, locks: locks, bus: b, tasks: tasks,
		cfg: cfg.WithDefaults(), log: log, now: time.Now,
	}
}

// Run drives a PendingTasks poll loop, a bounded worker pool, and a
// heartbeat loop, until ctx is canceled. On cancellation it stops admitting
// new work and waits up to TerminationGrace for in-flight tasks to finish
// before returning.
func (w *Worker) Run(ctx context.Context) error {
	w.startedAt = w.now()

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.cfg.Concurrency)

	var inflightMu sync.Mutex
	inflight := make(map[string]struct{}, w.cfg.Concurrency)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.heartbeatLoop(ctx)
	}()

	w.log.Info("worker started", "worker_id", w.cfg.WorkerID, "concurrency", w.cfg.Concurrency)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-ctx.Done():
			break poll
		case <-ticker.C:
			pending, err := w.store.PendingTasks(ctx, w.cfg.Concurrency*2)
			if err != nil {
				w.log.Error("poll pending tasks", "err", err)
				continue
			}
			for _, task := range pending {
				inflightMu.Lock()
				if _, busy := inflight[task.TaskID]; busy {
					inflightMu.Unlock()
					continue
				}
				inflight[task.TaskID] = struct{}{}
				inflightMu.Unlock()

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					inflightMu.Lock()
					delete(inflight, task.TaskID)
					inflightMu.Unlock()
					break poll
				}
				wg.Add(1)
				atomic.AddInt64(&w.inFlight, 1)
				go func(task model.Task) {
					defer func() {
						<-sem
						atomic.AddInt64(&w.inFlight, -1)
						atomic.AddInt64(&w.totalProcessed, 1)
						inflightMu.Lock()
						delete(inflight, task.TaskID)
						inflightMu.Unlock()
						wg.Done()
					}()
					w.handleTask(context.WithoutCancel(ctx), task)
				}(task)
			}
		}
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(w.cfg.TerminationGrace):
		w.log.Warn("worker termination grace period elapsed with tasks still in flight")
	}

	<-heartbeatDone
	w.log.Info("worker stopped", "worker_id", w.cfg.WorkerID)
	return nil
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.publishHeartbeat(ctx)
		}
	}
}

func (w *Worker) publishHeartbeat(ctx context.Context) {
	current := atomic.LoadInt64(&w.inFlight)
	status := events.HeartbeatIdle
	if current > 0 {
		status = events.HeartbeatBusy
	}
	payload := events.HeartbeatPayload{
		WorkerID:       w.cfg.WorkerID,
		CurrentTasks:   int(current),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		UptimeSeconds:  w.now().Sub(w.startedAt).Seconds(),
		Status:         status,
	}
	env, err := events.New(events.WorkerHeartbeat, "", payload)
	if err != nil {
		w.log.Error("build heartbeat envelope", "err", err)
		return
	}
	if err := w.bus.Publish(ctx, events.TopicResults, env); err != nil {
		w.log.Error("publish heartbeat", "err", err)
	}
}

// handleTask builds the request payload for a task discovered by the
// PendingTasks poll (§4.10) and runs it under the hard timeout.
func (w *Worker) handleTask(ctx context.Context, task model.Task) {
	dialect, userID, productName := "", "", ""
	if job, err := w.store.GetJob(ctx, task.JobID); err == nil {
		dialect, userID, productName = job.Dialect, job.UserID, job.ProductName
	}
	req := events.RequestPayload{
		JobID:       task.JobID,
		TaskID:      task.TaskID,
		FileName:    task.FileName,
		SQLFilePath: task.SourceFilePath,
		Dialect:     dialect,
		UserID:      userID,
		ProductName: productName,
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.HardTimeout)
	defer cancel()
	w.executeTask(ctx, ids.New(ids.PrefixReq), req)
}

// executeTask implements spec §4.10's per-task execution under a task lock,
// including retry with exponential backoff and the invalid-SQL-skip path.
func (w *Worker) executeTask(ctx context.Context, correlationID string, req events.RequestPayload) {
	lockKey := "task_lock:" + req.TaskID
	if _, err := w.locks.Acquire(ctx, lockKey, w.cfg.WorkerID, w.cfg.TaskLockTTL); err != nil {
		if errors.Is(err, lock.ErrBusy) {
			return // another worker owns this task; drop the duplicate delivery
		}
		w.log.Error("acquire task lock", "task_id", req.TaskID, "err", err)
		return
	}
	defer func() { _ = w.locks.Release(context.WithoutCancel(ctx), lockKey, w.cfg.WorkerID) }()

	start := w.now()

	task, err := w.store.GetTask(ctx, req.TaskID)
	if err != nil || task.Status != model.TaskPending {
		return // NotActionable: missing or already claimed by a prior attempt
	}
	if err := w.tasks.UpdateStatus(ctx, req.TaskID, model.TaskInProgress, nil, nil); err != nil {
		w.log.Error("transition task to in-progress", "task_id", req.TaskID, "err", err)
		return
	}

	dialect := req.Dialect
	if dialect == "" {
		if job, err := w.store.GetJob(ctx, req.JobID); err == nil {
			dialect = job.Dialect
		}
	}

	var (
		result  analyzer.AnalysisResult
		sqlText string
		lastErr error
		skipped bool
	)
retry:
	for attempt := 0; attempt <= w.cfg.RetryMax; attempt++ {
		sqlText, lastErr = w.files.ReadText(task.SourceFilePath)
		if lastErr == nil {
			if !w.files.IsValidSQL(task.SourceFilePath) {
				skipped = true
				break
			}
			result, lastErr = w.analyzeWithTimeout(ctx, sqlText, task.FileName, dialect, analyzer.Options{
				Rules: req.Rules, ExcludeRules: req.ExcludeRules,
			})
		}
		if lastErr == nil {
			break
		}
		if attempt == w.cfg.RetryMax {
			break
		}
		backoff := time.Duration(float64(w.cfg.RetryBaseBackoff) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(backoff):
		}
	}

	if skipped {
		msg := model.InvalidSQLSkipMarker + ": " + task.FileName
		_ = w.tasks.UpdateStatus(ctx, req.TaskID, model.TaskFailure, nil, &msg)
		w.publishFailed(ctx, correlationID, req, msg, "INVALID_SQL_SKIP", false)
		return
	}

	if lastErr != nil {
		msg := lastErr.Error()
		kind := "ANALYZER"
		if errors.Is(lastErr, context.DeadlineExceeded) {
			kind = "TIMEOUT"
		}
		// After a hard timeout ctx is already expired, so the failure is
		// recorded on a context detached from it.
		reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.TaskLockTTL)
		defer cancelReport()
		_ = w.tasks.UpdateStatus(reportCtx, req.TaskID, model.TaskFailure, nil, &msg)
		w.publishFailed(reportCtx, correlationID, req, msg, kind, true)
		return
	}

	resultPath := resultPathFor(req.JobID, task)
	if err := w.files.WriteJSON(resultPath, result); err != nil {
		msg := err.Error()
		_ = w.tasks.UpdateStatus(ctx, req.TaskID, model.TaskFailure, nil, &msg)
		w.publishFailed(ctx, correlationID, req, msg, "FILE_ACCESS", true)
		return
	}
	if err := w.tasks.UpdateStatus(ctx, req.TaskID, model.TaskSuccess, &resultPath, nil); err != nil {
		w.log.Error("transition task to success", "task_id", req.TaskID, "err", err)
		return
	}

	w.publishCompleted(ctx, correlationID, req, result, resultPath, w.now().Sub(start))
}

// analyzeWithTimeout runs the (non-context-aware) Analyze call in a
// goroutine and enforces SoftTimeout around it, classifying an expiry as
// context.DeadlineExceeded so executeTask can report it as a TIMEOUT rather
// than an ANALYZER failure. The goroutine is left to finish on its own if
// the deadline fires; the library gives no way to cancel it mid-flight.
func (w *Worker) analyzeWithTimeout(ctx context.Context, sqlText, fileName, dialect string, opts analyzer.Options) (analyzer.AnalysisResult, error) {
	type outcome struct {
		result analyzer.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := w.analyzer.Analyze(sqlText, fileName, dialect, opts)
		done <- outcome{result, err}
	}()
	select {
	case out := <-done:
		return out.result, out.err
	case <-time.After(w.cfg.SoftTimeout):
		return analyzer.AnalysisResult{}, context.DeadlineExceeded
	case <-ctx.Done():
		return analyzer.AnalysisResult{}, ctx.Err()
	}
}

func resultPathFor(jobID string, t model.Task) string {
	name := t.FileName
	if name == "" {
		name = t.TaskID
	}
	return path.Join("results", jobID, name+"_result.json")
}

func (w *Worker) publishCompleted(ctx context.Context, correlationID string, req events.RequestPayload, result analyzer.AnalysisResult, resultPath string, duration time.Duration) {
	raw := map[string]any{
		"violations":        result.Violations,
		"summary":           result.Summary,
		"file_info":         result.FileInfo,
		"analysis_metadata": result.Metadata,
	}
	payload := events.CompletedPayload{
		JobID:              req.JobID,
		TaskID:             req.TaskID,
		FileName:           req.FileName,
		Result:             raw,
		ResultFilePath:     resultPath,
		ProcessingDuration: duration.Seconds(),
		WorkerID:           w.cfg.WorkerID,
		BatchTriplet:       req.BatchTriplet,
	}
	env, err := events.New(events.SqlCheckCompleted, correlationID, payload)
	if err != nil {
		w.log.Error("build completed envelope", "task_id", req.TaskID, "err", err)
		return
	}
	if err := w.bus.Publish(ctx, events.TopicResults, env); err != nil {
		w.log.Error("publish completed event", "task_id", req.TaskID, "err", err)
	}
}

func (w *Worker) publishFailed(ctx context.Context, correlationID string, req events.RequestPayload, message, kind string, retriesExhausted bool) {
	payload := events.FailedPayload{
		JobID:            req.JobID,
		TaskID:           req.TaskID,
		FileName:         req.FileName,
		Error:            events.ErrorDetail{Code: kind, Message: message, Kind: kind},
		WorkerID:         w.cfg.WorkerID,
		RetriesExhausted: retriesExhausted,
		BatchTriplet:     req.BatchTriplet,
	}
	env, err := events.New(events.SqlCheckFailed, correlationID, payload)
	if err != nil {
		w.log.Error("build failed envelope", "task_id", req.TaskID, "err", err)
		return
	}
	if err := w.bus.Publish(ctx, events.TopicResults, env); err != nil {
		w.log.Error("publish failed event", "task_id", req.TaskID, "err", err)
	}
}
