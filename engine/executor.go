package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/metrics"
)

// ============================================================================
// EXECUTOR: per-page pipeline over a built dashboard
// ============================================================================
// Entry point: Execute(ctx, dashboard, inputs, provider, opts...)
//
// Per page, independently:
//   1. Resolve the page's dataset through the Provider
//   2. Apply data quality rules → transformed view
//   3. Apply filters (inputs, else defaults) → SubView
//   4. Compute metrics
//   5. Prepare visualization slices
//
// A failing page carries a PageError; the others are unaffected. Only an
// unreachable provider (ErrProviderUnavailable) fails the whole run.
// Pages run concurrently and results are joined by page index.
// ============================================================================

// ErrProviderUnavailable is returned by a Provider that cannot serve any
// page. It aborts the whole execution.
var ErrProviderUnavailable = errors.New("engine: dataset provider unavailable")

// Provider supplies the rows and metadata of each page. It must be safe for
// concurrent use.
type Provider interface {
	Resolve(ctx context.Context, pageID string) (Dataset, error)
	Metadata(ctx context.Context, pageID string) (map[string]any, error)
}

// StaticProvider serves one dataset to every page.
type StaticProvider struct {
	Data Dataset
	Meta map[string]any
}

func (p StaticProvider) Resolve(context.Context, string) (Dataset, error) {
	if p.Data == nil {
		return nil, ErrProviderUnavailable
	}
	return p.Data, nil
}

func (p StaticProvider) Metadata(context.Context, string) (map[string]any, error) {
	return p.Meta, nil
}

// Execute runs every page of d against the provider. inputs are keyed by
// filter id and apply to every page declaring that filter.
func Execute(ctx context.Context, d *ir.Dashboard, inputs map[string]any, p Provider, opts ...Option) (*Result, error) {
	if d == nil {
		return nil, fmt.Errorf("engine: nil dashboard")
	}
	cfg := applyOptions(opts)
	label := cfg.MetricsLabel
	if label == "" {
		label = d.ID
	}

	logger.Section("Execute " + d.ID)
	start := time.Now()

	res := &Result{
		DashboardID: d.ID,
		Fingerprint: d.FingerprintHex(),
		Pages:       make([]PageResult, len(d.Pages)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range d.Pages {
		g.Go(func() error {
			pr, err := runPage(gctx, d, &d.Pages[i], inputs, p, cfg, label)
			if err != nil {
				return err
			}
			res.Pages[i] = pr
			return nil
		})
	}
	err := g.Wait()
	metrics.RecordStep(label, "execute", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	logger.Debug("dashspec: executed %d pages of %s in %s", len(res.Pages), d.ID, time.Since(start))
	return res, nil
}

// pageRun carries the state of one page execution.
type pageRun struct {
	d     *ir.Dashboard
	page  *ir.Page
	res   PageResult
	label string
}

func (r *pageRun) fail(stage, id string, err error) {
	r.res.Error = &PageError{Page: r.page.ID, Stage: stage, ID: id, Message: err.Error(), Err: err}
	logger.Warn("%s", r.res.Error)
}

func (r *pageRun) warn(ws ...Warning) {
	for _, w := range ws {
		w.Page = r.page.ID
		r.res.Warnings = append(r.res.Warnings, w)
		logger.Warn("%s", w)
	}
}

// runPage executes one page. The returned error is fatal for the run; page
// level failures are recorded in the result instead.
func runPage(ctx context.Context, d *ir.Dashboard, page *ir.Page, inputs map[string]any, p Provider, cfg *config, label string) (PageResult, error) {
	start := time.Now()
	r := &pageRun{
		d:     d,
		page:  page,
		label: label,
		res: PageResult{
			ID:             page.ID,
			Title:          page.Title,
			Metrics:        map[string]Number{},
			Formatted:      map[string]string{},
			Visualizations: map[int]*Slice{},
		},
	}

	err := r.run(ctx, inputs, p, cfg)
	if err != nil {
		return PageResult{}, err
	}

	var pageErr error
	if r.res.Error != nil {
		pageErr = r.res.Error
	}
	metrics.RecordStep(label, "page", pageErr, time.Since(start))
	logger.Debug("dashspec: page %s: %d → %d rows in %s", page.ID, r.res.SourceRows, r.res.Rows, time.Since(start))
	return r.res, nil
}

func (r *pageRun) run(ctx context.Context, inputs map[string]any, p Provider, cfg *config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1. Resolve
	ds, err := p.Resolve(ctx, r.page.ID)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) || ctx.Err() != nil {
			return fmt.Errorf("page %s: %w", r.page.ID, err)
		}
		r.fail(StageResolve, "", err)
		return nil
	}
	meta, err := p.Metadata(ctx, r.page.ID)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return fmt.Errorf("page %s: %w", r.page.ID, err)
		}
		r.fail(StageResolve, "metadata", err)
		return nil
	}
	r.res.Metadata = meta
	r.res.SourceRows = ds.Len()
	metrics.RecordRows(r.label, "resolved", ds.Len())

	// 2. Data quality
	fs := r.d.Schema()
	clean, report := ApplyQuality(ds, r.page.DataQuality, fs)
	r.res.Quality = report
	r.warn(report.Warnings...)
	metrics.RecordRows(r.label, "dq_dropped", ds.Len()-clean.Len())

	// 3. Filters
	active, err := ResolveFilters(r.page.Filters, fs, inputs)
	if err != nil {
		var fe *FilterInputError
		id := ""
		if errors.As(err, &fe) {
			id = fe.FilterID
		}
		r.fail(StageFilter, id, err)
		return nil
	}
	filtered, warnings := ApplyFilters(clean, active)
	r.warn(warnings...)
	r.res.Rows = filtered.Len()
	metrics.RecordRows(r.label, "filtered_out", clean.Len()-filtered.Len())
	metrics.RecordRows(r.label, "kept", filtered.Len())

	// 4. Metrics
	for _, m := range r.page.Metrics {
		if m.Field != "" && !HasField(filtered, m.Field) {
			r.fail(StageMetric, m.ID, fmt.Errorf("field %q not in dataset", m.Field))
			return nil
		}
		v, err := Aggregate(filtered, m.Field, m.Aggregation)
		if err != nil {
			r.fail(StageMetric, m.ID, err)
			return nil
		}
		r.res.Metrics[m.ID] = v
		r.res.Formatted[m.ID] = formatMetric(v, m)
	}

	// 5. Visualization slices
	if cfg.SkipSlices {
		return nil
	}
	for i := range r.page.Visualizations {
		viz := &r.page.Visualizations[i]
		s, warnings, err := BuildSlice(viz, filtered, fs)
		r.warn(warnings...)
		if err != nil {
			r.fail(StageVisualization, fmt.Sprint(viz.Index), err)
			return nil
		}
		r.res.Visualizations[viz.Index] = s
	}
	return nil
}

func formatMetric(v Number, m ir.Metric) string {
	if m.Aggregation == ir.AggCount || m.Aggregation == ir.AggNUnique {
		if !v.Valid {
			return NullDisplay
		}
		return FormatInt(int(v.Value))
	}
	return FormatNumber(v, m.Format)
}
