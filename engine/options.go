package engine

import "runtime"

// ============================================================================
// ENGINE OPTIONS: Functional options for Execute()
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	Workers      int    // pages executed concurrently
	MetricsLabel string // dashboard label on recorded metrics; empty = dashboard id
	SkipSlices   bool   // compute metrics only
}

// WithWorkers bounds how many pages run at once. Values below 1 fall back
// to the number of CPUs.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.Workers = n
	}
}

// WithMetricsLabel sets the dashboard label attached to recorded metrics.
func WithMetricsLabel(label string) Option {
	return func(c *config) {
		c.MetricsLabel = label
	}
}

// WithoutSlices skips visualization slices; pages carry metrics only.
func WithoutSlices() Option {
	return func(c *config) {
		c.SkipSlices = true
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg
}
