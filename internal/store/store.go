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

// Package store provides a SQLite-backed persistence layer for Job and Task
// records plus the keyed lease table backing the Lock Service, including
// schema migrations and transition-checked mutations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sqlcheck/internal/model"
)

const (
	defaultBusyTimeout = 5 * time.Second
	schemaVersionKey   = "schema_version"
)

var (
	// ErrNotFound indicates no rows matched the query.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status update did not follow a permitted edge.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store wraps a SQLite database connection and provides typed accessors for
// Jobs and Tasks. Its schema also holds the locks table, which the lock
// package reads and writes through DB().
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path, applies connection
// pragmas, runs migrations, and returns a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path, int(defaultBusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetConnMaxLifetime(0)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)

	if err := pingContext(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection for packages (e.g. lock.Service)
// that share the same SQLite file and its migrated schema.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx executes fn inside a serializable transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --------------- Migrations ---------------

func (s *Store) migrate(ctx context.Context) error {
	if err := s.ensureSettingsTable(ctx); err != nil {
		return err
	}
	cur, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	const target = 1
	if cur < 1 {
		if err := s.migrateToV1(ctx); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		if err := s.setSchemaVersion(ctx, 1); err != nil {
			return err
		}
		cur = 1
	}
	_ = target
	return nil
}

func (s *Store) ensureSettingsTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS settings (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	const q = `SELECT value FROM settings WHERE key=?`
	var val string
	err := s.db.QueryRowContext(ctx, q, schemaVersionKey).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	var v int
	if _, err := fmt.Sscanf(val, "%d", &v); err != nil {
		return 0, nil
	}
	return v, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, v int) error {
	const upsert = `INSERT INTO settings(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value;`
	_, err := s.db.ExecContext(ctx, upsert, schemaVersionKey, fmt.Sprintf("%d", v))
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func (s *Store) migrateToV1(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
  id              TEXT PRIMARY KEY,
  submission_type TEXT NOT NULL CHECK (submission_type IN ('SINGLE_FILE','ARCHIVE')),
  source_path     TEXT NOT NULL,
  dialect         TEXT NOT NULL,
  status          TEXT NOT NULL CHECK (status IN ('ACCEPTED','PROCESSING','COMPLETED','PARTIALLY_COMPLETED','FAILED')),
  user_id         TEXT NOT NULL DEFAULT '',
  product_name    TEXT NOT NULL DEFAULT '',
  error_message   TEXT NULL,
  created_at      TIMESTAMP NOT NULL,
  updated_at      TIMESTAMP NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);`,

		`CREATE TABLE IF NOT EXISTS tasks (
  id               TEXT PRIMARY KEY,
  job_id           TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
  status           TEXT NOT NULL CHECK (status IN ('PENDING','IN_PROGRESS','SUCCESS','FAILURE')),
  source_file_path TEXT NOT NULL,
  file_name        TEXT NOT NULL,
  result_file_path TEXT NULL,
  error_message    TEXT NULL,
  created_at       TIMESTAMP NOT NULL,
  updated_at       TIMESTAMP NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_job ON tasks(job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,

		`CREATE TABLE IF NOT EXISTS locks (
  lock_key   TEXT PRIMARY KEY,
  owner      TEXT NOT NULL,
  expires_at TIMESTAMP NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// --------------- Jobs ---------------

// CreateJob inserts a new Job row.
func (s *Store) CreateJob(ctx context.Context, j model.Job) error {
	const ins = `INSERT INTO jobs (id, submission_type, source_path, dialect, status, user_id, product_name, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, ins, j.JobID, string(j.SubmissionType), j.SourcePath, j.Dialect, string(j.Status),
		j.UserID, j.ProductName, nullableStr(j.ErrorMessage), j.CreatedAt.UTC(), j.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob retrieves a Job by id, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (model.Job, error) {
	const q = jobSelectCols + `FROM jobs WHERE id=?`
	return scanJob(s.db.QueryRowContext(ctx, q, jobID))
}

const jobSelectCols = `SELECT id, submission_type, source_path, dialect, status, user_id, product_name, error_message, created_at, updated_at `

func scanJob(row *sql.Row) (model.Job, error) {
	var (
		id, subType, sourcePath, dialect, status, userID, productName string
		errMsg                                                        sql.NullString
		createdAt, updatedAt                                          time.Time
	)
	err := row.Scan(&id, &subType, &sourcePath, &dialect, &status, &userID, &productName, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return model.Job{
		JobID:          id,
		SubmissionType: model.SubmissionType(subType),
		SourcePath:     sourcePath,
		Dialect:        dialect,
		Status:         model.JobStatus(status),
		UserID:         userID,
		ProductName:    productName,
		ErrorMessage:   fromNullStringPtr(errMsg),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}, nil
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status         model.JobStatus
	SubmissionType model.SubmissionType
	Page, Size     int
}

// ListJobs returns a page of jobs sorted by created_at descending.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, int, error) {
	where := "WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, string(f.Status))
	}
	if f.SubmissionType != "" {
		where += " AND submission_type=?"
		args = append(args, string(f.SubmissionType))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	page, size := normalizePage(f.Page, f.Size)
	q := jobSelectCols + "FROM jobs " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

func scanJobRows(rows *sql.Rows) (model.Job, error) {
	var (
		id, subType, sourcePath, dialect, status, userID, productName string
		errMsg                                                        sql.NullString
		createdAt, updatedAt                                          time.Time
	)
	if err := rows.Scan(&id, &subType, &sourcePath, &dialect, &status, &userID, &productName, &errMsg, &createdAt, &updatedAt); err != nil {
		return model.Job{}, fmt.Errorf("scan job row: %w", err)
	}
	return model.Job{
		JobID:          id,
		SubmissionType: model.SubmissionType(subType),
		SourcePath:     sourcePath,
		Dialect:        dialect,
		Status:         model.JobStatus(status),
		UserID:         userID,
		ProductName:    productName,
		ErrorMessage:   fromNullStringPtr(errMsg),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}, nil
}

// SetJobStatus transitions a Job's status, validating the edge against the
// permitted-transition table. A no-op transition always succeeds.
func (s *Store) SetJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg *string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id=?", jobID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read job status: %w", err)
		}
		if !model.CanTransitionJob(model.JobStatus(current), status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}
		const upd = `UPDATE jobs SET status=?, error_message=?, updated_at=? WHERE id=?`
		_, err := tx.ExecContext(ctx, upd, string(status), nullableStr(errMsg), time.Now().UTC(), jobID)
		if err != nil {
			return fmt.Errorf("set job status: %w", err)
		}
		return nil
	})
}

// JobTaskCounts returns the per-status tally of a Job's Tasks.
func (s *Store) JobTaskCounts(ctx context.Context, jobID string) (model.TaskCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE job_id=? GROUP BY status`, jobID)
	if err != nil {
		return model.TaskCounts{}, fmt.Errorf("job task counts: %w", err)
	}
	defer rows.Close()

	var counts model.TaskCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.TaskCounts{}, fmt.Errorf("scan task count: %w", err)
		}
		counts.Total += n
		switch model.TaskStatus(status) {
		case model.TaskPending:
			counts.Pending = n
		case model.TaskInProgress:
			counts.InProgress = n
		case model.TaskSuccess:
			counts.Success = n
		case model.TaskFailure:
			counts.Failure = n
		}
	}
	return counts, rows.Err()
}

// JobStatistics aggregates Job counts by status and submission type, plus
// the total and successful Task counts, for the GET /api/v1/jobs/statistics
// endpoint.
type JobStatistics struct {
	TotalJobs        int
	ByStatus         map[model.JobStatus]int
	BySubmissionType map[model.SubmissionType]int
	TotalTasks       int
	SuccessfulTasks  int
}

// JobStatistics computes the current aggregate Job/Task statistics.
func (s *Store) JobStatistics(ctx context.Context) (JobStatistics, error) {
	stats := JobStatistics{
		ByStatus:         make(map[model.JobStatus]int),
		BySubmissionType: make(map[model.SubmissionType]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, submission_type, COUNT(*) FROM jobs GROUP BY status, submission_type`)
	if err != nil {
		return stats, fmt.Errorf("job statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, subType string
		var n int
		if err := rows.Scan(&status, &subType, &n); err != nil {
			return stats, fmt.Errorf("scan job statistics row: %w", err)
		}
		stats.TotalJobs += n
		stats.ByStatus[model.JobStatus(status)] += n
		stats.BySubmissionType[model.SubmissionType(subType)] += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&stats.TotalTasks); err != nil {
		return stats, fmt.Errorf("count tasks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status=?`, string(model.TaskSuccess)).Scan(&stats.SuccessfulTasks); err != nil {
		return stats, fmt.Errorf("count successful tasks: %w", err)
	}

	return stats, nil
}

// --------------- Tasks ---------------

// CreateTask inserts a new Task row.
func (s *Store) CreateTask(ctx context.Context, t model.Task) error {
	const ins = `INSERT INTO tasks (id, job_id, status, source_file_path, file_name, result_file_path, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, ins, t.TaskID, t.JobID, string(t.Status), t.SourceFilePath, t.FileName,
		nullableStr(t.ResultFilePath), nullableStr(t.ErrorMessage), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateTasksBatch inserts many Task rows atomically, returning their ids in order.
func (s *Store) CreateTasksBatch(ctx context.Context, tasks []model.Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		const ins = `INSERT INTO tasks (id, job_id, status, source_file_path, file_name, result_file_path, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
		for _, t := range tasks {
			if _, err := tx.ExecContext(ctx, ins, t.TaskID, t.JobID, string(t.Status), t.SourceFilePath, t.FileName,
				nullableStr(t.ResultFilePath), nullableStr(t.ErrorMessage), t.CreatedAt.UTC(), t.UpdatedAt.UTC()); err != nil {
				return fmt.Errorf("create task %s: %w", t.TaskID, err)
			}
			ids = append(ids, t.TaskID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

const taskSelectCols = `SELECT id, job_id, status, source_file_path, file_name, result_file_path, error_message, created_at, updated_at `

// GetTask retrieves a Task by id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, taskID string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectCols+"FROM tasks WHERE id=?", taskID)
	return scanTaskRow(row)
}

func scanTaskRow(row *sql.Row) (model.Task, error) {
	var (
		id, jobID, status, srcPath, fileName string
		resultPath, errMsg                   sql.NullString
		createdAt, updatedAt                  time.Time
	)
	err := row.Scan(&id, &jobID, &status, &srcPath, &fileName, &resultPath, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("scan task: %w", err)
	}
	return model.Task{
		TaskID:         id,
		JobID:          jobID,
		Status:         model.TaskStatus(status),
		SourceFilePath: srcPath,
		FileName:       fileName,
		ResultFilePath: fromNullStringPtr(resultPath),
		ErrorMessage:   fromNullStringPtr(errMsg),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}, nil
}

// TaskFilter narrows ListTasksByJob and ListTasks.
type TaskFilter struct {
	JobID      string
	Status     model.TaskStatus
	Page, Size int
}

// ListTasksByJob returns a page of a Job's Tasks sorted by created_at descending.
func (s *Store) ListTasksByJob(ctx context.Context, jobID string, f TaskFilter) ([]model.Task, int, error) {
	f.JobID = jobID
	return s.listTasks(ctx, f)
}

// ListTasks returns a page of Tasks, optionally filtered by job and/or status.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, int, error) {
	return s.listTasks(ctx, f)
}

func (s *Store) listTasks(ctx context.Context, f TaskFilter) ([]model.Task, int, error) {
	where := "WHERE 1=1"
	var args []any
	if f.JobID != "" {
		where += " AND job_id=?"
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	page, size := normalizePage(f.Page, f.Size)
	q := taskSelectCols + "FROM tasks " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var (
			id, jobID, status, srcPath, fileName string
			resultPath, errMsg                   sql.NullString
			createdAt, updatedAt                  time.Time
		)
		if err := rows.Scan(&id, &jobID, &status, &srcPath, &fileName, &resultPath, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, model.Task{
			TaskID:         id,
			JobID:          jobID,
			Status:         model.TaskStatus(status),
			SourceFilePath: srcPath,
			FileName:       fileName,
			ResultFilePath: fromNullStringPtr(resultPath),
			ErrorMessage:   fromNullStringPtr(errMsg),
			CreatedAt:      createdAt.UTC(),
			UpdatedAt:      updatedAt.UTC(),
		})
	}
	return out, total, rows.Err()
}

// PendingTasks returns up to limit PENDING tasks ordered by creation time.
// Internal-only: not exposed over the Control API (see DESIGN.md Open Questions).
func (s *Store) PendingTasks(ctx context.Context, limit int) ([]model.Task, error) {
	q := taskSelectCols + `FROM tasks WHERE status=? ORDER BY created_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, string(model.TaskPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pending tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var (
			id, jobID, status, srcPath, fileName string
			resultPath, errMsg                   sql.NullString
			createdAt, updatedAt                  time.Time
		)
		if err := rows.Scan(&id, &jobID, &status, &srcPath, &fileName, &resultPath, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pending task: %w", err)
		}
		out = append(out, model.Task{
			TaskID: id, JobID: jobID, Status: model.TaskStatus(status), SourceFilePath: srcPath, FileName: fileName,
			ResultFilePath: fromNullStringPtr(resultPath), ErrorMessage: fromNullStringPtr(errMsg),
			CreatedAt: createdAt.UTC(), UpdatedAt: updatedAt.UTC(),
		})
	}
	return out, rows.Err()
}

// SetTaskStatus transitions a Task's status, validating the edge. Setting to
// SUCCESS requires resultFilePath (invariant 5); any other target clears it.
func (s *Store) SetTaskStatus(ctx context.Context, taskID string, status model.TaskStatus, resultFilePath, errMsg *string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id=?", taskID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read task status: %w", err)
		}
		if !model.CanTransitionTask(model.TaskStatus(current), status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}
		if status == model.TaskSuccess && resultFilePath == nil {
			return fmt.Errorf("%w: %s requires a result file path", ErrInvalidTransition, status)
		}
		var rp any
		if status == model.TaskSuccess {
			rp = nullableStr(resultFilePath)
		}
		const upd = `UPDATE tasks SET status=?, result_file_path=?, error_message=?, updated_at=? WHERE id=?`
		_, err := tx.ExecContext(ctx, upd, string(status), rp, nullableStr(errMsg), time.Now().UTC(), taskID)
		if err != nil {
			return fmt.Errorf("set task status: %w", err)
		}
		return nil
	})
}

// --------------- helpers ---------------

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

func pingContext(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}
