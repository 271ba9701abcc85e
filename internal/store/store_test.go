package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sqlcheck/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	j := model.NewJob("job-1", model.SubmissionSingleFile, "jobs/job-1/sources/single_sql_job-1.sql", "mysql", "u1", "p1")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobAccepted || got.Dialect != "mysql" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetJob(context.Background(), "job-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetJobStatusRejectsBadTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	j := model.NewJob("job-1", model.SubmissionSingleFile, "src", "ansi", "", "")
	_ = s.CreateJob(ctx, j)

	if err := s.SetJobStatus(ctx, "job-1", model.JobCompleted, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.SetJobStatus(ctx, "job-1", model.JobProcessing, nil); err != nil {
		t.Fatalf("expected valid transition to succeed: %v", err)
	}
}

func TestTaskLifecycleAndCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	j := model.NewJob("job-1", model.SubmissionArchive, "archive.zip", "ansi", "", "")
	_ = s.CreateJob(ctx, j)

	t1 := model.NewTask("task-1", "job-1", "jobs/job-1/a.sql", "a.sql")
	t2 := model.NewTask("task-2", "job-1", "jobs/job-1/b.sql", "b.sql")
	if _, err := s.CreateTasksBatch(ctx, []model.Task{t1, t2}); err != nil {
		t.Fatalf("CreateTasksBatch: %v", err)
	}

	counts, err := s.JobTaskCounts(ctx, "job-1")
	if err != nil {
		t.Fatalf("JobTaskCounts: %v", err)
	}
	if counts.Total != 2 || counts.Pending != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	if err := s.SetTaskStatus(ctx, "task-1", model.TaskInProgress, nil, nil); err != nil {
		t.Fatalf("transition to in progress: %v", err)
	}
	resultPath := "results/job-1/a.sql_result.json"
	if err := s.SetTaskStatus(ctx, "task-1", model.TaskSuccess, &resultPath, nil); err != nil {
		t.Fatalf("transition to success: %v", err)
	}
	got, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.TaskSuccess || got.ResultFilePath == nil || *got.ResultFilePath != resultPath {
		t.Fatalf("unexpected task after success transition: %+v", got)
	}

	if err := s.SetTaskStatus(ctx, "task-1", model.TaskPending, nil, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected SUCCESS to be absorbing, got %v", err)
	}
}

func TestListTasksPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.CreateJob(ctx, model.NewJob("job-1", model.SubmissionArchive, "a.zip", "ansi", "", ""))
	tasks := make([]model.Task, 0, 5)
	for i := 0; i < 5; i++ {
		tasks = append(tasks, model.NewTask(idFor(i), "job-1", "x.sql", "x.sql"))
	}
	if _, err := s.CreateTasksBatch(ctx, tasks); err != nil {
		t.Fatalf("CreateTasksBatch: %v", err)
	}

	page, total, err := s.ListTasksByJob(ctx, "job-1", TaskFilter{Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("ListTasksByJob: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected total=5 len=2, got total=%d len=%d", total, len(page))
	}
}

func idFor(i int) string {
	return "task-" + string(rune('a'+i))
}

func TestJobStatisticsAggregatesAcrossJobsAndTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.CreateJob(ctx, model.NewJob("job-1", model.SubmissionSingleFile, "a", "ansi", "", ""))
	_ = s.CreateJob(ctx, model.NewJob("job-2", model.SubmissionArchive, "b", "ansi", "", ""))
	_ = s.SetJobStatus(ctx, "job-2", model.JobProcessing, nil)

	t1 := model.NewTask("task-1", "job-1", "x.sql", "x.sql")
	t2 := model.NewTask("task-2", "job-2", "y.sql", "y.sql")
	_, _ = s.CreateTasksBatch(ctx, []model.Task{t1, t2})
	_ = s.SetTaskStatus(ctx, "task-1", model.TaskInProgress, nil, nil)
	resultPath := "results/job-1/x.sql_result.json"
	_ = s.SetTaskStatus(ctx, "task-1", model.TaskSuccess, &resultPath, nil)

	stats, err := s.JobStatistics(ctx)
	if err != nil {
		t.Fatalf("JobStatistics: %v", err)
	}
	if stats.TotalJobs != 2 {
		t.Fatalf("expected TotalJobs=2, got %d", stats.TotalJobs)
	}
	if stats.ByStatus[model.JobAccepted] != 1 || stats.ByStatus[model.JobProcessing] != 1 {
		t.Fatalf("unexpected ByStatus: %+v", stats.ByStatus)
	}
	if stats.BySubmissionType[model.SubmissionSingleFile] != 1 || stats.BySubmissionType[model.SubmissionArchive] != 1 {
		t.Fatalf("unexpected BySubmissionType: %+v", stats.BySubmissionType)
	}
	if stats.TotalTasks != 2 || stats.SuccessfulTasks != 1 {
		t.Fatalf("unexpected task totals: total=%d success=%d", stats.TotalTasks, stats.SuccessfulTasks)
	}
}
