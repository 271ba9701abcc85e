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

package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	tasksProcessed  *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	taskRetries     *prometheus.CounterVec
	analyzeDuration *prometheus.HistogramVec
	lockContention  *prometheus.CounterVec
	busQueueDepth   prometheus.Gauge
	jobsByStatus    *prometheus.GaugeVec
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all metrics collectors. Primarily used by
// tests to ensure clean state.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveTask records a completed task execution: its outcome and the
// wall-clock duration of the attempt that produced it.
func ObserveTask(dialect, outcome string, duration time.Duration) {
	d := sanitizeLabel(dialect, "unknown")
	o := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if tasksProcessed != nil {
		tasksProcessed.WithLabelValues(d, o).Inc()
	}
	if taskDuration != nil {
		taskDuration.WithLabelValues(d, o).Observe(durationSeconds(duration))
	}
}

// IncTaskRetry increments the retry counter for a given dialect.
func IncTaskRetry(dialect string) {
	d := sanitizeLabel(dialect, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if taskRetries != nil {
		taskRetries.WithLabelValues(d).Inc()
	}
}

// ObserveAnalyzeDuration records how long the Analyzer Adapter spent linting
// a single file for the given dialect.
func ObserveAnalyzeDuration(dialect string, duration time.Duration) {
	d := sanitizeLabel(dialect, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if analyzeDuration != nil {
		analyzeDuration.WithLabelValues(d).Observe(durationSeconds(duration))
	}
}

// IncLockContention records a failed lock acquisition attempt for the given
// lock kind (e.g. "task_lock", "expand_zip").
func IncLockContention(lockKind string) {
	k := sanitizeLabel(lockKind, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if lockContention != nil {
		lockContention.WithLabelValues(k).Inc()
	}
}

// SetBusQueueDepth records the current number of buffered, undelivered
// envelopes across the in-process bus's subscriber channels.
func SetBusQueueDepth(depth int) {
	mu.RLock()
	defer mu.RUnlock()
	if busQueueDepth != nil {
		busQueueDepth.Set(float64(depth))
	}
}

// SetJobsByStatus records the current count of Jobs in the given status.
func SetJobsByStatus(status string, count int) {
	s := sanitizeLabel(status, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if jobsByStatus != nil {
		jobsByStatus.WithLabelValues(s).Set(float64(count))
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlcheck",
		Subsystem: "worker",
		Name:      "tasks_processed_total",
		Help:      "Total tasks processed, grouped by dialect and outcome.",
	}, []string{"dialect", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sqlcheck",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Duration of a task execution attempt by dialect and outcome.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"dialect", "outcome"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlcheck",
		Subsystem: "worker",
		Name:      "task_retries_total",
		Help:      "Total number of task retry attempts by dialect.",
	}, []string{"dialect"})

	analyze := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sqlcheck",
		Subsystem: "analyzer",
		Name:      "analyze_duration_seconds",
		Help:      "Duration of a single Analyze call by dialect.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"dialect"})

	lockContend := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlcheck",
		Subsystem: "lock",
		Name:      "contention_total",
		Help:      "Total failed lock acquisition attempts by lock kind.",
	}, []string{"kind"})

	busDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sqlcheck",
		Subsystem: "bus",
		Name:      "queue_depth",
		Help:      "Current number of buffered, undelivered envelopes across subscriber channels.",
	})

	jobsStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sqlcheck",
		Subsystem: "jobs",
		Name:      "by_status",
		Help:      "Current count of Jobs in each status.",
	}, []string{"status"})

	registry.MustRegister(processed, duration, retries, analyze, lockContend, busDepth, jobsStatus)

	reg = registry
	tasksProcessed = processed
	taskDuration = duration
	taskRetries = retries
	analyzeDuration = analyze
	lockContention = lockContend
	busQueueDepth = busDepth
	jobsByStatus = jobsStatus
}

func sanitizeLabel(v string, fallback string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func durationSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}
