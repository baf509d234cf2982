// Package prom implements a Prometheus backend for the metrics package.
//
// Collectors live on a private registry. Flush writes them in the text
// exposition format to a file, for pickup by a node exporter textfile
// collector; Registry exposes them for an HTTP handler.
package prom

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spektr-org/dashspec/metrics"
)

// Backend is a Prometheus metrics backend.
type Backend struct {
	textfile string
	reg      *prometheus.Registry

	stepCounter    *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	rowCounter     *prometheus.CounterVec
	violationCount *prometheus.CounterVec
}

// NewBackend constructs a backend. textfile may be empty, in which case
// Flush does nothing.
func NewBackend(textfile string) (*Backend, error) {
	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions, partitioned by dashboard, step, and status.",
		},
		[]string{"dashboard", "step", "status"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metrics.StepDuration,
			Help:    "Duration of pipeline steps in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"dashboard", "step", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row counts per kind (resolved, dq_dropped, filtered_out, kept).",
		},
		[]string{"dashboard", "kind"},
	)
	violationCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.ViolationsTotal,
			Help: "Validation findings per code and severity.",
		},
		[]string{"code", "severity"},
	)

	for name, c := range map[string]prometheus.Collector{
		"step counter":    stepCounter,
		"step histogram":  stepDuration,
		"row counter":     rowCounter,
		"violation count": violationCount,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}

	return &Backend{
		textfile:       textfile,
		reg:            reg,
		stepCounter:    stepCounter,
		stepDuration:   stepDuration,
		rowCounter:     rowCounter,
		violationCount: violationCount,
	}, nil
}

// Registry returns the private registry holding the collectors.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["dashboard"], labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rowCounter.WithLabelValues(labels["dashboard"], labels["kind"]).Add(delta)
	case metrics.ViolationsTotal:
		b.violationCount.WithLabelValues(labels["code"], labels["severity"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration {
		return
	}
	b.stepDuration.WithLabelValues(labels["dashboard"], labels["step"], labels["status"]).Observe(value)
}

// Flush writes the registry to the configured textfile.
func (b *Backend) Flush() error {
	if b.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(b.textfile, b.reg); err != nil {
		return fmt.Errorf("prom: write %s: %w", b.textfile, err)
	}
	return nil
}
