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

// Package jobservice implements the control-plane Job lifecycle: creation,
// decomposition into Tasks, pure status derivation from child Tasks, and
// bulk retry of failed Tasks.
package jobservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"sqlcheck/internal/bus"
	"sqlcheck/internal/events"
	"sqlcheck/internal/filestore"
	"sqlcheck/internal/ids"
	"sqlcheck/internal/lock"
	"sqlcheck/internal/model"
	"sqlcheck/internal/store"
)

// taskCreator is the subset of taskservice.Service that jobservice depends
// on, kept as an interface so the two packages do not import each other:
// taskservice.New takes a derivator satisfied by *Service, so Service must
// exist before the Task Service does. Callers wire the Task Service back in
// with SetTasks once both are constructed.
type taskCreator interface {
	CreateBatch(ctx context.Context, tasks []model.Task) ([]string, error)
}

// ErrValidation marks a malformed create-job request.
var ErrValidation = errors.New("jobservice: validation")

const decompositionLockTTL = 10 * time.Minute

// CreateJobRequest is the input to CreateJob. Exactly one of SQLContent or
// ArchivePath must be set.
type CreateJobRequest struct {
	SQLContent  *string
	ArchivePath *string
	Dialect     string
	UserID      string
	ProductName string
}

// RejectedRetry explains why one task id in a bulk retry request was refused.
type RejectedRetry struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// Service is the Job Service (spec C8).
type Service struct {
	store   *store.Store
	files   *filestore.Store
	locks   *lock.Service
	bus     *bus.Bus
	log     *slog.Logger
	dialect string
	tasks   taskCreator
}

// New constructs a Job Service. defaultDialect is used when a request omits one.
func New(st *store.Store, files *filestore.Store, locks *lock.Service, b *bus.Bus, log *slog.Logger, defaultDialect string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, files: files, locks: locks, bus: b, log: log, dialect: defaultDialect}
}

// SetTasks wires the Task Service (C9) in after construction, once it has
// been built from this same Service acting as its derivator. Decomposition
// routes batch creation through it when set.
func (s *Service) SetTasks(tasks taskCreator) {
	s.tasks = tasks
}

// CreateJob persists a new Job in ACCEPTED status and schedules
// decomposition asynchronously, returning the new job id immediately.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	if (req.SQLContent == nil) == (req.ArchivePath == nil) {
		return "", fmt.Errorf("%w: exactly one of sql_content or archive_path is required", ErrValidation)
	}

	dialect := req.Dialect
	if dialect == "" {
		dialect = s.dialect
	}

	jobID := ids.New(ids.PrefixJob)
	var submissionType model.SubmissionType
	var sourcePath string

	if req.SQLContent != nil {
		submissionType = model.SubmissionSingleFile
		sourcePath = path.Join("jobs", jobID, "sources", fmt.Sprintf("single_sql_%s.sql", jobID))
		if err := s.files.WriteText(sourcePath, *req.SQLContent); err != nil {
			return "", fmt.Errorf("jobservice: write single-file source: %w", err)
		}
	} else {
		if !s.files.Exists(*req.ArchivePath) {
			return "", fmt.Errorf("%w: archive_path %s does not exist", ErrValidation, *req.ArchivePath)
		}
		submissionType = model.SubmissionArchive
		sourcePath = *req.ArchivePath
	}

	job := model.NewJob(jobID, submissionType, sourcePath, dialect, req.UserID, req.ProductName)
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("jobservice: create job: %w", err)
	}

	go s.decompose(context.WithoutCancel(ctx), jobID)

	return jobID, nil
}

// decompose runs under a lock keyed by expand_zip_<job_id>: it moves the Job
// to PROCESSING, creates one Task per source file, and publishes one
// SqlCheckRequested per Task.
func (s *Service) decompose(ctx context.Context, jobID string) {
	lockKey := "expand_zip_" + jobID
	owner := "jobservice-" + ids.New(ids.PrefixWorker)
	if _, err := s.locks.Acquire(ctx, lockKey, owner, decompositionLockTTL); err != nil {
		s.log.Warn("decomposition lock busy, skipping", "job_id", jobID, "err", err)
		return
	}
	defer func() { _ = s.locks.Release(ctx, lockKey, owner) }()

	if err := s.store.SetJobStatus(ctx, jobID, model.JobProcessing, nil); err != nil {
		s.log.Error("decompose: set job processing", "job_id", jobID, "err", err)
		return
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.log.Error("decompose: reload job", "job_id", jobID, "err", err)
		return
	}

	var tasks []model.Task
	var batchID string
	if job.SubmissionType == model.SubmissionSingleFile {
		taskID := ids.New(ids.PrefixTask)
		tasks = append(tasks, model.NewTask(taskID, jobID, job.SourcePath, path.Base(job.SourcePath)))
	} else {
		into := path.Join("jobs", jobID, "extracted")
		_, validRelpaths, err := s.files.ExpandArchive(job.SourcePath, into)
		if err != nil {
			msg := fmt.Sprintf("archive could not be expanded: %v", err)
			s.failJob(ctx, jobID, msg)
			return
		}
		if len(validRelpaths) == 0 {
			s.failJob(ctx, jobID, "no valid SQL files")
			return
		}
		batchID = ids.New(ids.PrefixBatch)
		for _, relpath := range validRelpaths {
			base := path.Base(relpath)
			canonical := path.Join("jobs", jobID, base)
			if err := s.files.Copy(relpath, canonical); err != nil {
				s.log.Error("decompose: canonicalize extracted file", "job_id", jobID, "file", relpath, "err", err)
				continue
			}
			taskID := ids.New(ids.PrefixTask)
			tasks = append(tasks, model.NewTask(taskID, jobID, canonical, base))
		}
		if len(tasks) == 0 {
			s.failJob(ctx, jobID, "no valid SQL files")
			return
		}
	}

	createdIDs, err := s.createTasks(ctx, tasks)
	if err != nil {
		s.log.Error("decompose: create tasks", "job_id", jobID, "err", err)
		return
	}
	if len(createdIDs) == 0 {
		s.failJob(ctx, jobID, "no valid SQL files")
		return
	}
	if len(createdIDs) != len(tasks) {
		created := make(map[string]bool, len(createdIDs))
		for _, id := range createdIDs {
			created[id] = true
		}
		effective := make([]model.Task, 0, len(createdIDs))
		for _, t := range tasks {
			if created[t.TaskID] {
				effective = append(effective, t)
			}
		}
		tasks = effective
	}

	total := len(tasks)
	for i, t := range tasks {
		payload := events.RequestPayload{
			JobID:       jobID,
			TaskID:      t.TaskID,
			FileName:    t.FileName,
			SQLFilePath: t.SourceFilePath,
			Dialect:     job.Dialect,
			UserID:      job.UserID,
			ProductName: job.ProductName,
		}
		if batchID != "" {
			payload.BatchTriplet = events.BatchTriplet{BatchID: batchID, FileIndex: i + 1, TotalFiles: total}
		}
		env, err := events.New(events.SqlCheckRequested, ids.New(ids.PrefixReq), payload)
		if err != nil {
			s.log.Error("decompose: build request envelope", "task_id", t.TaskID, "err", err)
			continue
		}
		if err := s.bus.Publish(ctx, events.TopicRequests, env); err != nil {
			s.log.Error("decompose: publish request", "task_id", t.TaskID, "err", err)
		}
	}
}

// createTasks routes batch creation through the Task Service (C9) when one
// has been wired in via SetTasks, falling back to the Repository directly
// otherwise (kept for callers that construct a bare Service, e.g. tests).
func (s *Service) createTasks(ctx context.Context, tasks []model.Task) ([]string, error) {
	if s.tasks != nil {
		return s.tasks.CreateBatch(ctx, tasks)
	}
	return s.store.CreateTasksBatch(ctx, tasks)
}

func (s *Service) failJob(ctx context.Context, jobID, message string) {
	if err := s.store.SetJobStatus(ctx, jobID, model.JobFailed, &message); err != nil {
		s.log.Error("failJob: set status", "job_id", jobID, "err", err)
	}
}

// DeriveJobStatus recomputes and, if changed, persists jobID's status from
// its current child Tasks (spec §4.8 steps 1-9).
func (s *Service) DeriveJobStatus(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("jobservice: derive status: load job: %w", err)
	}

	// ListTasksByJob caps a page at 200 rows, so collect every page.
	var tasks []model.Task
	for page := 1; ; page++ {
		batch, total, err := s.store.ListTasksByJob(ctx, jobID, store.TaskFilter{Page: page, Size: 200})
		if err != nil {
			return fmt.Errorf("jobservice: derive status: list tasks: %w", err)
		}
		tasks = append(tasks, batch...)
		if len(batch) == 0 || len(tasks) >= total {
			break
		}
	}

	derived, message := deriveFromTasks(tasks)
	if derived == job.Status {
		return nil
	}
	if !model.CanTransitionJob(job.Status, derived) {
		s.log.Warn("derive status: no permitted edge, leaving as-is", "job_id", jobID, "from", job.Status, "to", derived)
		return nil
	}
	return s.store.SetJobStatus(ctx, jobID, derived, message)
}

// deriveFromTasks implements the pure derivation algorithm of spec §4.8.
func deriveFromTasks(tasks []model.Task) (model.JobStatus, *string) {
	if len(tasks) == 0 {
		return model.JobAccepted, nil
	}

	var effective []model.Task
	for _, t := range tasks {
		if !t.IsInvalidSQLSkip() {
			effective = append(effective, t)
		}
	}
	if len(effective) == 0 {
		msg := "no valid SQL files"
		return model.JobFailed, &msg
	}

	allSuccess, anySuccess, allFailure := true, false, true
	for _, t := range effective {
		switch t.Status {
		case model.TaskSuccess:
			anySuccess = true
			allFailure = false
		case model.TaskFailure:
			allSuccess = false
		default:
			allSuccess = false
			allFailure = false
		}
	}

	switch {
	case allSuccess:
		return model.JobCompleted, nil
	case anySuccess:
		return model.JobPartiallyCompleted, nil
	case allFailure:
		return model.JobFailed, nil
	default:
		return model.JobProcessing, nil
	}
}

// RetryFailedTasks transitions each FAILURE task in taskIDs back to PENDING,
// clears its result/error fields, and republishes a request for it.
// Ids that do not exist or are not currently FAILURE are reported rejected.
func (s *Service) RetryFailedTasks(ctx context.Context, taskIDs []string) (accepted []string, rejected []RejectedRetry) {
	for _, taskID := range taskIDs {
		task, err := s.store.GetTask(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			rejected = append(rejected, RejectedRetry{TaskID: taskID, Reason: "task not found"})
			continue
		}
		if err != nil {
			rejected = append(rejected, RejectedRetry{TaskID: taskID, Reason: err.Error()})
			continue
		}
		if task.Status != model.TaskFailure {
			rejected = append(rejected, RejectedRetry{TaskID: taskID, Reason: fmt.Sprintf("task status is %s, not FAILURE", task.Status)})
			continue
		}

		if err := s.store.SetTaskStatus(ctx, taskID, model.TaskPending, nil, nil); err != nil {
			rejected = append(rejected, RejectedRetry{TaskID: taskID, Reason: err.Error()})
			continue
		}

		job, err := s.store.GetJob(ctx, task.JobID)
		dialect := s.dialect
		if err == nil {
			dialect = job.Dialect
		}
		payload := events.RequestPayload{
			JobID:       task.JobID,
			TaskID:      task.TaskID,
			FileName:    task.FileName,
			SQLFilePath: task.SourceFilePath,
			Dialect:     dialect,
		}
		env, err := events.New(events.SqlCheckRequested, ids.New(ids.PrefixReq), payload)
		if err == nil {
			if err := s.bus.Publish(ctx, events.TopicRequests, env); err != nil {
				s.log.Error("retry: publish request", "task_id", taskID, "err", err)
			}
		}
		if err := s.DeriveJobStatus(ctx, task.JobID); err != nil {
			s.log.Error("retry: derive job status", "job_id", task.JobID, "err", err)
		}
		accepted = append(accepted, taskID)
	}
	return accepted, rejected
}
