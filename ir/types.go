package ir

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// IR TYPES: Typed, normalized dashboard
// ============================================================================
// Built once per spec revision and never mutated afterwards. A *Dashboard is
// shared read-only by any number of concurrent executions. Slices and maps
// hanging off it must be treated as immutable by every consumer.
// ============================================================================

// ErrMalformed is returned by Build for input that cannot describe a
// dashboard at all.
var ErrMalformed = errors.New("ir: malformed document")

// Dashboard is the root of the IR.
type Dashboard struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Version      string            `json:"version"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	DataSource   DataSource        `json:"dataSource"`
	Fields       []schema.Field    `json:"schema"`
	Formatting   map[string]Format `json:"formatting,omitempty"`
	ColumnLabels map[string]string `json:"columnLabels,omitempty"`
	Pages        []Page            `json:"pages"`

	schema schema.FieldSchema
}

// Schema returns the bound field schema.
func (d *Dashboard) Schema() schema.FieldSchema { return d.schema }

// Page returns the page with the given id.
func (d *Dashboard) Page(id string) (*Page, bool) {
	for i := range d.Pages {
		if d.Pages[i].ID == id {
			return &d.Pages[i], true
		}
	}
	return nil, false
}

// Currency returns metadata.currency, if any.
func (d *Dashboard) Currency() string {
	if c, ok := d.Metadata["currency"].(string); ok {
		return c
	}
	return ""
}

// Fingerprint hashes the canonical JSON form of the dashboard. Two builds of
// the same document always produce the same fingerprint.
func (d *Dashboard) Fingerprint() uint64 {
	b, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return xxh3.Hash(b)
}

// FingerprintHex is Fingerprint as 16 hex digits.
func (d *Dashboard) FingerprintHex() string {
	return fmt.Sprintf("%016x", d.Fingerprint())
}

// DataSource describes where a dashboard's rows come from.
type DataSource struct {
	Name      string `json:"name,omitempty"`
	SchemaRef string `json:"schemaRef,omitempty"` // "name@version"; empty for inline schemas
}

// Format describes how a field's values are displayed.
type Format struct {
	Type      string `json:"type"` // "currency", "percent", "integer", "number"
	Precision int    `json:"precision"`
	Thousands bool   `json:"thousands"`
	Currency  string `json:"currency,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
}

// ============================================================================
// PAGE
// ============================================================================

// Page is one independently executed unit of a dashboard.
type Page struct {
	ID             string          `json:"id"`
	Title          string          `json:"title,omitempty"`
	Filters        []Filter        `json:"filters"`
	Metrics        []Metric        `json:"metrics"`
	Visualizations []Visualization `json:"visualizations"`
	DataQuality    DataQuality     `json:"dataQuality"`
}

// Filter restricts the rows of a page.
type Filter struct {
	ID      string       `json:"id"`
	Field   string       `json:"field"`
	Kind    FilterKind   `json:"kind"`
	Label   string       `json:"label,omitempty"`
	Default *FilterValue `json:"default,omitempty"`
}

// Metric is a single aggregated number.
type Metric struct {
	ID          string      `json:"id"`
	Field       string      `json:"field,omitempty"`
	Aggregation Aggregation `json:"aggregation"`
	Label       string      `json:"label,omitempty"`
	Format      *Format     `json:"format,omitempty"`
}

// Visualization is a chart or table bound to fields by role.
type Visualization struct {
	Index        int               `json:"index"`
	ID           string            `json:"id,omitempty"`
	Title        string            `json:"title,omitempty"`
	ChartType    ChartType         `json:"chartType"`
	Roles        map[Role]string   `json:"roles"`
	Params       Params            `json:"params"`
	Limit        int               `json:"limit,omitempty"`
	Formatting   map[string]Format `json:"formatting,omitempty"`
	ColumnLabels map[string]string `json:"columnLabels,omitempty"`
}

// Fields returns the distinct fields the visualization reads, roles first in
// canonical role order, then parameter columns.
func (v *Visualization) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, r := range AllRoles {
		add(v.Roles[r])
	}
	switch p := v.Params.(type) {
	case SummaryParams:
		for _, c := range p.Columns {
			add(c)
		}
		add(p.By)
	case TableParams:
		for _, c := range p.Columns {
			add(c)
		}
	case CorrelationParams:
		for _, c := range p.Columns {
			add(c)
		}
	}
	return out
}

// ============================================================================
// CHART PARAMS: one variant per chart family
// ============================================================================

// Params is the typed parameter set of a visualization. The concrete type is
// determined by the chart type.
type Params interface {
	chartParams()
}

type HistogramParams struct {
	Bins         int  `json:"bins"`
	LogX         bool `json:"logX"`
	LogY         bool `json:"logY"`
	ShowMarginal bool `json:"showMarginal"`
}

type ScatterParams struct {
	Alpha     float64 `json:"alpha"`
	Trendline string  `json:"trendline,omitempty"`
}

type SummaryParams struct {
	Columns     []string  `json:"columns,omitempty"`
	By          string    `json:"by,omitempty"`
	Percentiles []float64 `json:"percentiles"`
}

type TableParams struct {
	Columns []string `json:"columns,omitempty"`
}

type BarParams struct {
	Agg Aggregation `json:"agg"`
}

type LineParams struct {
	RollingWindow int `json:"rollingWindow,omitempty"`
}

type HexbinParams struct {
	Bins int `json:"bins"`
}

type HeatmapParams struct {
	Agg   Aggregation `json:"agg"`
	Annot bool        `json:"annot"`
}

type CorrelationParams struct {
	Columns   []string `json:"columns,omitempty"`
	Method    string   `json:"method"`
	MaskUpper bool     `json:"maskUpper"`
}

// DistributionParams covers charts with no tunable numbers beyond roles.
type DistributionParams struct {
	Inner string `json:"inner,omitempty"`
}

func (HistogramParams) chartParams()    {}
func (ScatterParams) chartParams()      {}
func (SummaryParams) chartParams()      {}
func (TableParams) chartParams()        {}
func (BarParams) chartParams()          {}
func (LineParams) chartParams()         {}
func (HexbinParams) chartParams()       {}
func (HeatmapParams) chartParams()      {}
func (CorrelationParams) chartParams()  {}
func (DistributionParams) chartParams() {}

// ============================================================================
// DATA QUALITY
// ============================================================================

// DataQuality is the rule set applied to a page's rows before filtering.
type DataQuality struct {
	MissingValues MissingValues `json:"missingValues"`
	Duplicates    Duplicates    `json:"duplicates"`
	Outliers      Outliers      `json:"outliers"`
	Validation    Validation    `json:"validation"`
	Reporting     Reporting     `json:"reporting"`
}

// Empty reports whether the rule set does nothing.
func (dq DataQuality) Empty() bool {
	return (dq.MissingValues.Strategy == "" || dq.MissingValues.Strategy == StrategyNone) &&
		len(dq.MissingValues.Rules) == 0 &&
		!dq.Duplicates.Enabled &&
		(!dq.Outliers.Enabled || len(dq.Outliers.Rules) == 0) &&
		len(dq.Validation.Rules) == 0
}

type MissingValues struct {
	Strategy string        `json:"strategy"`
	Rules    []MissingRule `json:"rules,omitempty"`
}

type MissingRule struct {
	Field  string `json:"field"`
	Action string `json:"action"`
	Method string `json:"method,omitempty"`
	Value  any    `json:"value,omitempty"`
}

type Duplicates struct {
	Enabled bool     `json:"enabled"`
	Keys    []string `json:"keys,omitempty"`
}

type Outliers struct {
	Enabled bool          `json:"enabled"`
	Rules   []OutlierRule `json:"rules,omitempty"`
}

// OutlierRule bounds one or more fields. For percentile, Lower and Upper are
// on a 0–100 scale. For iqr, Upper is the fence multiplier k; for zscore it
// is the threshold.
type OutlierRule struct {
	Fields []string `json:"fields"`
	Method string   `json:"method"`
	Lower  float64  `json:"lower"`
	Upper  float64  `json:"upper"`
	Action string   `json:"action"`
}

type Validation struct {
	Rules []ValidationRule `json:"rules,omitempty"`
}

type ValidationRule struct {
	Field      string   `json:"field"`
	Constraint string   `json:"constraint"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	Values     []string `json:"values,omitempty"`
	Action     string   `json:"action"`
}

type Reporting struct {
	LogLevel    string `json:"logLevel,omitempty"`
	ShowSummary bool   `json:"showSummary"`
	ShowDetails bool   `json:"showDetails"`
}
