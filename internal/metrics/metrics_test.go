package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveTaskIncrementsCounterAndHistogram(t *testing.T) {
	Reset()
	ObserveTask("ansi", OutcomeSuccess, 250*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `sqlcheck_worker_tasks_processed_total{dialect="ansi",outcome="success"} 1`) {
		t.Fatalf("expected tasks_processed_total metric, got:\n%s", body)
	}
	if !strings.Contains(body, "sqlcheck_worker_task_duration_seconds_bucket") {
		t.Fatalf("expected task_duration_seconds histogram, got:\n%s", body)
	}
}

func TestSanitizeLabelReplacesInvalidCharacters(t *testing.T) {
	Reset()
	ObserveTask("my dialect!", OutcomeFailure, time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `dialect="my_dialect_"`) {
		t.Fatalf("expected sanitized dialect label, got:\n%s", body)
	}
}

func TestSetJobsByStatusReflectsLatestValue(t *testing.T) {
	Reset()
	SetJobsByStatus("PROCESSING", 3)
	SetJobsByStatus("PROCESSING", 5)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `sqlcheck_jobs_by_status{status="processing"} 5`) {
		t.Fatalf("expected latest gauge value, got:\n%s", body)
	}
}

func TestIncLockContentionAndTaskRetry(t *testing.T) {
	Reset()
	IncLockContention("task_lock")
	IncTaskRetry("ansi")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `sqlcheck_lock_contention_total{kind="task_lock"} 1`) {
		t.Fatalf("expected lock contention metric, got:\n%s", body)
	}
	if !strings.Contains(body, `sqlcheck_worker_task_retries_total{dialect="ansi"} 1`) {
		t.Fatalf("expected task retries metric, got:\n%s", body)
	}
}
