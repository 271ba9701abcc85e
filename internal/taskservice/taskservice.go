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

// Package taskservice implements the Task-facing half of the control
// plane: batch creation with per-file existence validation, status update
// routing through the Repository with Job re-derivation, and result
// retrieval.
package taskservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"sqlcheck/internal/filestore"
	"sqlcheck/internal/model"
	"sqlcheck/internal/store"
)

// ErrResultNotReady is returned by Result when the task has not reached SUCCESS.
var ErrResultNotReady = errors.New("taskservice: result not ready")

// derivator is the subset of jobservice.Service that taskservice depends on,
// kept as an interface so the two packages do not import each other.
type derivator interface {
	DeriveJobStatus(ctx context.Context, jobID string) error
}

// Service is the Task Service (spec C9).
type Service struct {
	store  *store.Store
	files  *filestore.Store
	derive derivator
	log    *slog.Logger
}

// New constructs a Task Service.
func New(st *store.Store, files *filestore.Store, derive derivator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, files: files, derive: derive, log: log}
}

// CreateBatch validates each task's source path through the file store;
// missing files are logged and omitted rather than failing the whole batch.
func (s *Service) CreateBatch(ctx context.Context, tasks []model.Task) ([]string, error) {
	valid := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !s.files.Exists(t.SourceFilePath) {
			s.log.Warn("taskservice: omitting task with missing source file", "task_id", t.TaskID, "source_file_path", t.SourceFilePath)
			continue
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return s.store.CreateTasksBatch(ctx, valid)
}

// UpdateStatus routes a status change through the Repository's transition
// check and, on success, re-derives the parent Job's status.
func (s *Service) UpdateStatus(ctx context.Context, taskID string, status model.TaskStatus, resultFilePath, errMsg *string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("taskservice: update status: load task: %w", err)
	}
	if err := s.store.SetTaskStatus(ctx, taskID, status, resultFilePath, errMsg); err != nil {
		return fmt.Errorf("taskservice: update status: %w", err)
	}
	if s.derive != nil {
		if err := s.derive.DeriveJobStatus(ctx, task.JobID); err != nil {
			s.log.Error("taskservice: derive job status", "job_id", task.JobID, "err", err)
		}
	}
	return nil
}

// Result reads the JSON artifact at the task's result_file_path and attaches
// the task's source_file_path as file_info.file_path. Requires SUCCESS.
func (s *Service) Result(ctx context.Context, taskID string) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskservice: result: %w", err)
	}
	if task.Status != model.TaskSuccess || task.ResultFilePath == nil {
		return nil, ErrResultNotReady
	}

	raw, err := s.files.ReadText(*task.ResultFilePath)
	if err != nil {
		return nil, fmt.Errorf("taskservice: read result artifact: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("taskservice: decode result artifact: %w", err)
	}
	if fileInfo, ok := result["file_info"].(map[string]any); ok {
		fileInfo["file_path"] = task.SourceFilePath
	}
	return result, nil
}
