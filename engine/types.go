package engine

import (
	"fmt"

	"github.com/spektr-org/dashspec/ir"
)

// ============================================================================
// ENGINE TYPES: Execution results
// ============================================================================
// A Result is produced fresh by every Execute call. Only Memo shares one
// between calls, and then the caller must treat it as read-only.
// ============================================================================

// Result is the output of one execution of a dashboard.
type Result struct {
	DashboardID string       `json:"dashboardId"`
	Fingerprint string       `json:"fingerprint"`
	Pages       []PageResult `json:"pages"`
}

// Page returns the result of the page with the given id.
func (r *Result) Page(id string) (*PageResult, bool) {
	for i := range r.Pages {
		if r.Pages[i].ID == id {
			return &r.Pages[i], true
		}
	}
	return nil, false
}

// Failed returns the pages that carry an error marker.
func (r *Result) Failed() []*PageResult {
	var out []*PageResult
	for i := range r.Pages {
		if r.Pages[i].Error != nil {
			out = append(out, &r.Pages[i])
		}
	}
	return out
}

// PageResult is the computed state of one page.
type PageResult struct {
	ID             string            `json:"id"`
	Title          string            `json:"title,omitempty"`
	SourceRows     int               `json:"sourceRows"` // rows the provider returned
	Rows           int               `json:"rows"`       // rows after data quality and filters
	Metrics        map[string]Number `json:"metrics"`
	Formatted      map[string]string `json:"formatted,omitempty"`
	Visualizations map[int]*Slice    `json:"visualizationData"`
	Quality        *QualityReport    `json:"quality,omitempty"`
	Warnings       []Warning         `json:"warnings,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	Error          *PageError        `json:"error,omitempty"`
}

// Stages a page can fail in.
const (
	StageResolve       = "resolve"
	StageFilter        = "filter"
	StageMetric        = "metric"
	StageVisualization = "visualization"
)

// PageError marks a page whose execution failed. Other pages are
// unaffected.
type PageError struct {
	Page    string `json:"page"`
	Stage   string `json:"stage"`
	ID      string `json:"id,omitempty"` // metric id, filter id or visualization index
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *PageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("page %s: %s %s: %s", e.Page, e.Stage, e.ID, e.Message)
	}
	return fmt.Sprintf("page %s: %s: %s", e.Page, e.Stage, e.Message)
}

func (e *PageError) Unwrap() error { return e.Err }

// ============================================================================
// SLICES: visualization-ready data
// ============================================================================

// Slice is the prepared data of one visualization. Which members are set
// depends on the chart family:
//
//	row charts (table, distributions, scatter, line): Columns, Rows, RowIndices
//	grouped charts (bar, pie):                         Series
//	matrix charts (heatmap, corr_heatmap):             Matrix
//	summary:                                           Summary
type Slice struct {
	Index      int                  `json:"index"`
	ID         string               `json:"id,omitempty"`
	Title      string               `json:"title,omitempty"`
	ChartType  ir.ChartType         `json:"chartType"`
	Roles      map[ir.Role]string   `json:"roles,omitempty"`
	Columns    []Column             `json:"columns,omitempty"`
	Rows       [][]any              `json:"rows,omitempty"`
	RowIndices []int                `json:"rowIndices,omitempty"`
	SourceRows int                  `json:"sourceRows"`
	Sampled    bool                 `json:"sampled"`
	Series     []ChartSeries        `json:"series,omitempty"`
	Colors     []string             `json:"colors,omitempty"`
	Matrix     *Matrix              `json:"matrix,omitempty"`
	Summary    []SummaryRow         `json:"summary,omitempty"`
	Formatting map[string]ir.Format `json:"formatting,omitempty"`
	Labels     map[string]string    `json:"labels,omitempty"`
}

// Column describes one column of a row slice.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"` // schema type; empty for generated columns
}

// ChartSeries represents a data series in a chart.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint represents a single data point.
type ChartPoint struct {
	Label string `json:"label"`
	Value Number `json:"value"`
	Count int    `json:"count"`
}

// Matrix is a labelled grid of values.
type Matrix struct {
	Method  string     `json:"method,omitempty"`
	Rows    []string   `json:"rows"`
	Columns []string   `json:"columns"`
	Values  [][]Number `json:"values"`
}

// SummaryRow describes one numeric column, optionally within one group.
type SummaryRow struct {
	Group       string     `json:"group,omitempty"`
	Field       string     `json:"field"`
	Count       int        `json:"count"`
	Mean        Number     `json:"mean"`
	Std         Number     `json:"std"`
	Min         Number     `json:"min"`
	Percentiles []Quantile `json:"percentiles"`
	Max         Number     `json:"max"`
}

// Quantile is one requested percentile of a column.
type Quantile struct {
	P     float64 `json:"p"`
	Value Number  `json:"value"`
}
