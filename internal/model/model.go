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

// Package model contains the shared Job and Task record types used by the
// control plane, the worker, and the repository. These types mirror the
// data model section of the orchestration design.
package model

import "time"

// SubmissionType is how a Job's source SQL was provided.
type SubmissionType string

const (
	SubmissionSingleFile SubmissionType = "SINGLE_FILE"
	SubmissionArchive    SubmissionType = "ARCHIVE"
)

// JobStatus is the lifecycle state of a linting Job.
type JobStatus string

const (
	JobAccepted           JobStatus = "ACCEPTED"
	JobProcessing         JobStatus = "PROCESSING"
	JobCompleted          JobStatus = "COMPLETED"
	JobPartiallyCompleted JobStatus = "PARTIALLY_COMPLETED"
	JobFailed             JobStatus = "FAILED"
)

// Valid reports whether s is one of the allowed Job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobAccepted, JobProcessing, JobCompleted, JobPartiallyCompleted, JobFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a terminal Job state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobPartiallyCompleted, JobFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) String() string { return string(s) }

// jobTransitions enumerates the permitted Job status edges (see spec §3 invariant 4).
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobAccepted:   {JobProcessing: true, JobFailed: true},
	JobProcessing: {JobCompleted: true, JobPartiallyCompleted: true, JobFailed: true},
	JobFailed:     {JobProcessing: true},
}

// CanTransitionJob reports whether from -> to is a permitted Job status edge.
// A no-op transition (from == to) is always permitted.
func CanTransitionJob(from, to JobStatus) bool {
	if from == to {
		return true
	}
	return jobTransitions[from][to]
}

// TaskStatus is the lifecycle state of a per-file Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailure    TaskStatus = "FAILURE"
)

// Valid reports whether s is one of the allowed Task states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskSuccess, TaskFailure:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a terminal Task state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskSuccess, TaskFailure:
		return true
	default:
		return false
	}
}

func (s TaskStatus) String() string { return string(s) }

// taskTransitions enumerates the permitted Task status edges (see spec §3 invariant 3).
// SUCCESS is absorbing: it has no outgoing edges.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending:    {TaskInProgress: true, TaskFailure: true},
	TaskInProgress: {TaskSuccess: true, TaskFailure: true},
	TaskFailure:    {TaskPending: true},
}

// CanTransitionTask reports whether from -> to is a permitted Task status edge.
// A no-op transition (from == to) is always permitted.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	return taskTransitions[from][to]
}

// InvalidSQLSkipMarker is the error-message prefix that marks a Task failure
// as an ignored invalid-SQL skip rather than an effective failure (spec §4.8/§4.10).
const InvalidSQLSkipMarker = "skipped invalid SQL file"

// Job is a submitted unit of work that decomposes into one or more Tasks.
type Job struct {
	JobID          string
	SubmissionType SubmissionType
	SourcePath     string
	Dialect        string
	Status         JobStatus
	UserID         string
	ProductName    string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Task is the analysis of exactly one SQL file belonging to a Job.
type Task struct {
	TaskID         string
	JobID          string
	Status         TaskStatus
	SourceFilePath string
	FileName       string
	ResultFilePath *string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskCounts is the per-status tally of a Job's Tasks (Repository.JobTaskCounts).
type TaskCounts struct {
	Total      int
	Pending    int
	InProgress int
	Success    int
	Failure    int
}

// NewJob constructs a Job in its initial ACCEPTED state.
func NewJob(jobID string, submissionType SubmissionType, sourcePath, dialect, userID, productName string) Job {
	now := Now()
	return Job{
		JobID:          jobID,
		SubmissionType: submissionType,
		SourcePath:     sourcePath,
		Dialect:        dialect,
		Status:         JobAccepted,
		UserID:         userID,
		ProductName:    productName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTask constructs a Task in its initial PENDING state.
func NewTask(taskID, jobID, sourceFilePath, fileName string) Task {
	now := Now()
	return Task{
		TaskID:         taskID,
		JobID:          jobID,
		Status:         TaskPending,
		SourceFilePath: sourceFilePath,
		FileName:       fileName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsInvalidSQLSkip reports whether t is a FAILURE Task ignored by job derivation
// because its source file was rejected by the is-valid-SQL heuristic.
func (t Task) IsInvalidSQLSkip() bool {
	return t.Status == TaskFailure && t.ErrorMessage != nil && hasPrefix(*t.ErrorMessage, InvalidSQLSkipMarker)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Now mirrors ids.Now (UTC, rounded to microseconds) so callers constructing
// model values do not need to import the ids package solely for its clock.
var Now = func() time.Time { return time.Now().UTC().Round(time.Microsecond) }
