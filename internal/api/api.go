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

// Package api implements the Control API (spec §6.1): the HTTP surface
// fronting the Job and Task Services. Every response carries the request's
// correlation id echoed as X-Request-ID; JSON error responses are classified
// through the §7 error taxonomy in internal/apierr, while unknown paths and
// methods get net/http's plain-text 404.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"sqlcheck/internal/apierr"
	"sqlcheck/internal/ctxkeys"
	"sqlcheck/internal/jobservice"
	"sqlcheck/internal/metrics"
	"sqlcheck/internal/model"
	"sqlcheck/internal/store"
	"sqlcheck/internal/taskservice"
)

const maxRetryBatch = 100

// API is the HTTP layer for the Control API.
type API struct {
	store *store.Store
	jobs  *jobservice.Service
	tasks *taskservice.Service
	log   *slog.Logger
}

// New constructs an API with its required dependencies.
func New(st *store.Store, jobs *jobservice.Service, tasks *taskservice.Service, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{store: st, jobs: jobs, tasks: tasks, log: log}
}

// Mux builds an http.ServeMux with every Control API route registered.
func (a *API) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

// Register attaches the API handlers to mux, wrapping every handler with
// the correlation-id middleware.
func (a *API) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/jobs/statistics", a.withCorrelation(a.handleJobStatistics))
	mux.Handle("/api/v1/jobs", a.withCorrelation(a.handleJobsCollection))
	mux.Handle("/api/v1/jobs/", a.withCorrelation(a.handleJobsByPath))
	mux.Handle("/api/v1/tasks/retry", a.withCorrelation(a.handleRetryTasks))
	mux.Handle("/api/v1/tasks", a.withCorrelation(a.handleTasksCollection))
	mux.Handle("/api/v1/tasks/", a.withCorrelation(a.handleTasksByPath))
}

// --------------- Correlation middleware ---------------

func (a *API) withCorrelation(fn func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get("X-Request-ID"); incoming != "" {
			ctx = ctxkeys.WithCorrelationID(ctx, incoming)
		}
		ctx, id := ctxkeys.EnsureCorrelationID(ctx)
		w.Header().Set("X-Request-ID", id)
		fn(w, r.WithContext(ctx))
	})
}

// --------------- Wire models ---------------

type createJobRequest struct {
	SQLContent  *string `json:"sql_content,omitempty"`
	ArchivePath *string `json:"archive_path,omitempty"`
	Dialect     string  `json:"dialect,omitempty"`
	UserID      string  `json:"user_id"`
	ProductName string  `json:"product_name"`
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

// jobSummary is the list-view projection of a Job.
type jobSummary struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	SubmissionType string     `json:"submission_type"`
	Dialect        string     `json:"dialect"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	TaskCounts     taskCounts `json:"task_counts"`
}

type taskCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Success    int `json:"success"`
	Failure    int `json:"failure"`
}

type jobDetail struct {
	jobSummary
	SourcePath string       `json:"source_path"`
	UserID     string       `json:"user_id"`
	Product    string       `json:"product_name"`
	SubTasks   pageEnvelope `json:"sub_tasks"`
}

type taskSummary struct {
	TaskID    string `json:"task_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	FileName  string `json:"file_name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type taskDetail struct {
	taskSummary
	SourceFilePath string  `json:"source_file_path"`
	ResultFilePath *string `json:"result_file_path,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

type pageEnvelope struct {
	Items      []any `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalCount int   `json:"total_count"`
}

type jobStatisticsResponse struct {
	TotalJobs        int            `json:"total_jobs"`
	ByStatus         map[string]int `json:"by_status"`
	BySubmissionType map[string]int `json:"by_submission_type"`
	TotalTasks       int            `json:"total_tasks"`
	SuccessfulTasks  int            `json:"successful_tasks"`
}

type retryRequest struct {
	TaskIDs []string `json:"task_ids"`
}

type retryResponse struct {
	SubmittedTasks    []string                   `json:"submitted_tasks"`
	FailedSubmissions []jobservice.RejectedRetry `json:"failed_submissions"`
}

// --------------- Handlers: Jobs ---------------

func (a *API) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreateJob(w, r)
	case http.MethodGet:
		a.handleListJobs(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.New(apierr.Validation, "request body could not be parsed as JSON"))
		return
	}

	jobID, err := a.jobs.CreateJob(r.Context(), jobservice.CreateJobRequest{
		SQLContent:  req.SQLContent,
		ArchivePath: req.ArchivePath,
		Dialect:     req.Dialect,
		UserID:      req.UserID,
		ProductName: req.ProductName,
	})
	if err != nil {
		if errors.Is(err, jobservice.ErrValidation) {
			writeErr(w, apierr.New(apierr.Validation, err.Error()))
			return
		}
		a.log.Error("create job", "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to create job"))
		return
	}

	writeJSON(w, http.StatusAccepted, createJobResponse{JobID: jobID})
}

func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size := pagingParams(q)
	jobs, total, err := a.store.ListJobs(r.Context(), store.JobFilter{
		Status:         model.JobStatus(q.Get("status")),
		SubmissionType: model.SubmissionType(q.Get("submission_type")),
		Page:           page,
		Size:           size,
	})
	if err != nil {
		a.log.Error("list jobs", "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to list jobs"))
		return
	}

	items := make([]any, 0, len(jobs))
	for _, j := range jobs {
		counts, err := a.store.JobTaskCounts(r.Context(), j.JobID)
		if err != nil {
			a.log.Error("job task counts", "job_id", j.JobID, "err", err)
			continue
		}
		items = append(items, toJobSummary(j, counts))
	}
	writeJSON(w, http.StatusOK, pageEnvelope{Items: items, Page: page, Size: size, TotalCount: total})
}

func (a *API) handleJobStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.JobStatistics(r.Context())
	if err != nil {
		a.log.Error("job statistics", "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to compute job statistics"))
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for k, v := range stats.ByStatus {
		byStatus[string(k)] = v
		metrics.SetJobsByStatus(string(k), v)
	}
	bySubmission := make(map[string]int, len(stats.BySubmissionType))
	for k, v := range stats.BySubmissionType {
		bySubmission[string(k)] = v
	}

	writeJSON(w, http.StatusOK, jobStatisticsResponse{
		TotalJobs:        stats.TotalJobs,
		ByStatus:         byStatus,
		BySubmissionType: bySubmission,
		TotalTasks:       stats.TotalTasks,
		SuccessfulTasks:  stats.SuccessfulTasks,
	})
}

// handleJobsByPath dispatches /api/v1/jobs/{id} and /api/v1/jobs/{id}/tasks.
func (a *API) handleJobsByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/tasks"); ok {
		a.handleJobTaskIDs(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	a.handleGetJob(w, r, rest)
}

func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := a.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeStoreErr(w, err, "job %s not found", jobID)
		return
	}
	counts, err := a.store.JobTaskCounts(r.Context(), jobID)
	if err != nil {
		a.log.Error("job task counts", "job_id", jobID, "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to load task counts"))
		return
	}

	page, size := pagingParams(r.URL.Query())
	tasks, total, err := a.store.ListTasksByJob(r.Context(), jobID, store.TaskFilter{Page: page, Size: size})
	if err != nil {
		a.log.Error("list tasks by job", "job_id", jobID, "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to list job tasks"))
		return
	}

	items := make([]any, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskSummary(t))
	}

	writeJSON(w, http.StatusOK, jobDetail{
		jobSummary: toJobSummary(job, counts),
		SourcePath: job.SourcePath,
		UserID:     job.UserID,
		Product:    job.ProductName,
		SubTasks:   pageEnvelope{Items: items, Page: page, Size: size, TotalCount: total},
	})
}

func (a *API) handleJobTaskIDs(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := a.store.GetJob(r.Context(), jobID); err != nil {
		writeStoreErr(w, err, "job %s not found", jobID)
		return
	}
	tasks, total, err := a.store.ListTasksByJob(r.Context(), jobID, store.TaskFilter{Page: 1, Size: 100000})
	if err != nil {
		a.log.Error("list job task ids", "job_id", jobID, "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to list job tasks"))
		return
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.TaskID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      jobID,
		"task_ids":    ids,
		"total_count": total,
	})
}

// --------------- Handlers: Tasks ---------------

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	page, size := pagingParams(q)
	tasks, total, err := a.store.ListTasks(r.Context(), store.TaskFilter{
		JobID:  q.Get("job_id"),
		Status: model.TaskStatus(q.Get("status")),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		a.log.Error("list tasks", "err", err)
		writeErr(w, apierr.New(apierr.Repository, "failed to list tasks"))
		return
	}
	items := make([]any, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskSummary(t))
	}
	writeJSON(w, http.StatusOK, pageEnvelope{Items: items, Page: page, Size: size, TotalCount: total})
}

func (a *API) handleTasksByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/result/download"); ok {
		a.handleDownloadResult(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/result"); ok {
		a.handleTaskResult(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	a.handleGetTask(w, r, rest)
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := a.store.GetTask(r.Context(), taskID)
	if err != nil {
		writeStoreErr(w, err, "task %s not found", taskID)
		return
	}
	writeJSON(w, http.StatusOK, taskDetail{
		taskSummary:    toTaskSummary(task),
		SourceFilePath: task.SourceFilePath,
		ResultFilePath: task.ResultFilePath,
		ErrorMessage:   task.ErrorMessage,
	})
}

func (a *API) handleTaskResult(w http.ResponseWriter, r *http.Request, taskID string) {
	result, err := a.resultFor(r.Context(), taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDownloadResult(w http.ResponseWriter, r *http.Request, taskID string) {
	result, err := a.resultFor(r.Context(), taskID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+taskID+`_result.json"`)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (a *API) resultFor(ctx context.Context, taskID string) (map[string]any, *apierr.Error) {
	if _, err := a.store.GetTask(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "task "+taskID+" not found")
		}
		return nil, apierr.New(apierr.Repository, "failed to load task")
	}
	result, err := a.tasks.Result(ctx, taskID)
	if err != nil {
		if errors.Is(err, taskservice.ErrResultNotReady) {
			return nil, apierr.New(apierr.Conflict, "task result not ready")
		}
		return nil, apierr.New(apierr.Repository, "failed to load task result")
	}
	return result, nil
}

func (a *API) handleRetryTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.New(apierr.Validation, "request body could not be parsed as JSON"))
		return
	}
	if len(req.TaskIDs) == 0 || len(req.TaskIDs) > maxRetryBatch {
		writeErr(w, apierr.New(apierr.Validation, "task_ids must contain between 1 and 100 entries"))
		return
	}

	accepted, rejected := a.jobs.RetryFailedTasks(r.Context(), req.TaskIDs)
	writeJSON(w, http.StatusOK, retryResponse{SubmittedTasks: accepted, FailedSubmissions: rejected})
}

// --------------- Helpers ---------------

func toJobSummary(j model.Job, counts model.TaskCounts) jobSummary {
	return jobSummary{
		JobID:          j.JobID,
		Status:         string(j.Status),
		SubmissionType: string(j.SubmissionType),
		Dialect:        j.Dialect,
		CreatedAt:      j.CreatedAt.Format(rfc3339Micro),
		UpdatedAt:      j.UpdatedAt.Format(rfc3339Micro),
		ErrorMessage:   j.ErrorMessage,
		TaskCounts: taskCounts{
			Total:      counts.Total,
			Pending:    counts.Pending,
			InProgress: counts.InProgress,
			Success:    counts.Success,
			Failure:    counts.Failure,
		},
	}
}

func toTaskSummary(t model.Task) taskSummary {
	return taskSummary{
		TaskID:    t.TaskID,
		JobID:     t.JobID,
		Status:    string(t.Status),
		FileName:  t.FileName,
		CreatedAt: t.CreatedAt.Format(rfc3339Micro),
		UpdatedAt: t.UpdatedAt.Format(rfc3339Micro),
	}
}

const rfc3339Micro = "2006-01-02T15:04:05.000000Z07:00"

func pagingParams(q map[string][]string) (page, size int) {
	page = 1
	size = 20
	if v := firstOrEmpty(q, "page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := firstOrEmpty(q, "size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	return page, size
}

func firstOrEmpty(q map[string][]string, key string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err *apierr.Error) {
	writeJSON(w, apierr.StatusCode(err.Kind), map[string]string{
		"error":   strings.ToLower(string(err.Kind)),
		"message": err.Message,
	})
}

func writeStoreErr(w http.ResponseWriter, err error, messageFmt string, args ...any) {
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, apierr.New(apierr.NotFound, fmt.Sprintf(messageFmt, args...)))
		return
	}
	writeErr(w, apierr.New(apierr.Repository, "internal error"))
}
