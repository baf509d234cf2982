// Package metrics records operational metrics for compile and execute runs
// behind a small backend-agnostic interface.
//
// The default backend is a no-op, so instrumentation is always safe to call.
// Concrete metric systems live in subpackages (see metrics/prom).
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "dashspec_step_total"
	StepDuration    = "dashspec_step_duration_seconds"
	RowsTotal       = "dashspec_rows_total"
	ViolationsTotal = "dashspec_violations_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush writes or pushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one pipeline step
// (parse, validate, build, page, ...).
func RecordStep(dashboard, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"dashboard": dashboard,
		"step":      step,
		"status":    status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows counts rows by kind. Typical kinds:
//   - "resolved"
//   - "dq_dropped"
//   - "filtered_out"
//   - "kept"
func RecordRows(dashboard, kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"dashboard": dashboard,
		"kind":      kind,
	})
}

// RecordViolation counts one validation finding.
func RecordViolation(code, severity string) {
	current().IncCounter(ViolationsTotal, 1, Labels{
		"code":     code,
		"severity": severity,
	})
}
