package ir

import (
	"strings"

	"github.com/spektr-org/dashspec/spec"
)

// ============================================================================
// VOCABULARY: Closed sets the DSL accepts
// ============================================================================
// Every enum-like string in a spec document is parsed through one of the
// functions below. The rule engine uses them to report unknown values; the
// builder uses them to produce typed IR. Aliases are folded here and nowhere
// else.
// ============================================================================

// ── Chart types ─────────────────────────────────────────────────────────────

// ChartType selects a visualization and its parameter variant.
type ChartType string

const (
	ChartTable       ChartType = "table"
	ChartSummary     ChartType = "summary"
	ChartHistogram   ChartType = "histogram"
	ChartECDF        ChartType = "ecdf"
	ChartBoxplot     ChartType = "boxplot"
	ChartViolin      ChartType = "violin"
	ChartKDE         ChartType = "kde"
	ChartScatter     ChartType = "scatter"
	ChartHexbin      ChartType = "hexbin"
	ChartKDE2D       ChartType = "kde2d"
	ChartLine        ChartType = "line"
	ChartBar         ChartType = "bar"
	ChartHeatmap     ChartType = "heatmap"
	ChartCorrelation ChartType = "corr_heatmap"
	ChartPie         ChartType = "pie"
)

var chartTypes = map[string]ChartType{
	"table":        ChartTable,
	"summary":      ChartSummary,
	"histogram":    ChartHistogram,
	"ecdf":         ChartECDF,
	"boxplot":      ChartBoxplot,
	"box":          ChartBoxplot,
	"violin":       ChartViolin,
	"kde":          ChartKDE,
	"scatter":      ChartScatter,
	"hexbin":       ChartHexbin,
	"kde2d":        ChartKDE2D,
	"line":         ChartLine,
	"bar":          ChartBar,
	"heatmap":      ChartHeatmap,
	"corr_heatmap": ChartCorrelation,
	"correlation":  ChartCorrelation,
	"pie":          ChartPie,
}

// ParseChartType resolves a chart_type value, folding aliases.
func ParseChartType(s string) (ChartType, bool) {
	ct, ok := chartTypes[strings.ToLower(strings.TrimSpace(s))]
	return ct, ok
}

// ChartTypes lists the canonical chart types.
func ChartTypes() []ChartType {
	return []ChartType{
		ChartTable, ChartSummary, ChartHistogram, ChartECDF, ChartBoxplot,
		ChartViolin, ChartKDE, ChartScatter, ChartHexbin, ChartKDE2D,
		ChartLine, ChartBar, ChartHeatmap, ChartCorrelation, ChartPie,
	}
}

// ── Roles ───────────────────────────────────────────────────────────────────

// Role is a named slot a visualization binds to a field.
type Role string

const (
	RoleX     Role = "x"
	RoleY     Role = "y"
	RoleColor Role = "color"
	RoleBy    Role = "by"
	RoleSize  Role = "size"
	RoleTime  Role = "time"
	RoleZ     Role = "z"
)

// AllRoles in canonical order.
var AllRoles = []Role{RoleX, RoleY, RoleColor, RoleBy, RoleSize, RoleTime, RoleZ}

// LegacyKeys maps a role to the flat visualization key older specs used.
var LegacyKeys = map[Role]string{
	RoleX:     "x_field",
	RoleY:     "y_field",
	RoleColor: "color_field",
	RoleSize:  "size_field",
	RoleZ:     "z_field",
}

// Requirement is a mandatory role. It is satisfied when Role or any of
// Alternatives is bound.
type Requirement struct {
	Role         Role
	Alternatives []Role
}

var requiredRoles = map[ChartType][]Requirement{
	ChartHistogram: {{Role: RoleX}},
	ChartECDF:      {{Role: RoleX}},
	ChartKDE:       {{Role: RoleX}},
	ChartBoxplot:   {{Role: RoleY}},
	ChartViolin:    {{Role: RoleY}},
	ChartScatter:   {{Role: RoleX}, {Role: RoleY}},
	ChartHexbin:    {{Role: RoleX}, {Role: RoleY}},
	ChartKDE2D:     {{Role: RoleX}, {Role: RoleY}},
	ChartHeatmap:   {{Role: RoleX}, {Role: RoleY}},
	ChartLine:      {{Role: RoleX, Alternatives: []Role{RoleTime}}, {Role: RoleY}},
	ChartBar:       {{Role: RoleX}},
	ChartPie:       {{Role: RoleX}},
}

// RequiredRoles returns the mandatory roles of a chart type.
func RequiredRoles(ct ChartType) []Requirement {
	return requiredRoles[ct]
}

// Satisfied reports whether the requirement is met by roles.
func (r Requirement) Satisfied(roles map[Role]string) bool {
	if roles[r.Role] != "" {
		return true
	}
	for _, alt := range r.Alternatives {
		if roles[alt] != "" {
			return true
		}
	}
	return false
}

// ResolveRoles folds the roles map and legacy flat keys of a visualization
// node into one role → field map. A role named in the roles map always wins
// over its legacy key. The node is not modified.
func ResolveRoles(viz spec.Node) map[Role]string {
	out := make(map[Role]string)
	roles := viz.Get("roles")
	for _, k := range roles.Keys() {
		if f, ok := roles.Get(k).Text(); ok && f != "" {
			out[Role(k)] = f
		}
	}
	for role, key := range LegacyKeys {
		if roles.Has(string(role)) {
			continue
		}
		if f, ok := viz.Get(key).Text(); ok && f != "" {
			out[role] = f
		}
	}
	return out
}

// ── Aggregations ────────────────────────────────────────────────────────────

// Aggregation reduces a field over a set of rows.
type Aggregation string

const (
	AggSum     Aggregation = "sum"
	AggMean    Aggregation = "mean"
	AggCount   Aggregation = "count"
	AggMin     Aggregation = "min"
	AggMax     Aggregation = "max"
	AggMedian  Aggregation = "median"
	AggNUnique Aggregation = "nunique"
	AggStd     Aggregation = "std"
)

var aggregations = map[string]Aggregation{
	"sum":     AggSum,
	"mean":    AggMean,
	"avg":     AggMean,
	"average": AggMean,
	"count":   AggCount,
	"min":     AggMin,
	"max":     AggMax,
	"median":  AggMedian,
	"nunique": AggNUnique,
	"std":     AggStd,
}

// ParseAggregation resolves an aggregation name, folding aliases.
func ParseAggregation(s string) (Aggregation, bool) {
	a, ok := aggregations[strings.ToLower(strings.TrimSpace(s))]
	return a, ok
}

// Numeric reports whether the aggregation needs numeric input.
func (a Aggregation) Numeric() bool {
	return a != AggCount && a != AggNUnique
}

// ── Filters ─────────────────────────────────────────────────────────────────

// FilterKind is the shape of a filter.
type FilterKind string

const (
	FilterRange       FilterKind = "range"
	FilterCategorical FilterKind = "categorical"
	FilterBoolean     FilterKind = "boolean"
)

var filterKinds = map[string]FilterKind{
	"range":       FilterRange,
	"slider":      FilterRange,
	"numeric":     FilterRange,
	"date_range":  FilterRange,
	"categorical": FilterCategorical,
	"category":    FilterCategorical,
	"select":      FilterCategorical,
	"multiselect": FilterCategorical,
	"boolean":     FilterBoolean,
	"bool":        FilterBoolean,
	"checkbox":    FilterBoolean,
	"toggle":      FilterBoolean,
}

// ParseFilterKind resolves a filter kind, folding aliases.
func ParseFilterKind(s string) (FilterKind, bool) {
	k, ok := filterKinds[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// FilterKindOf reads the kind of a filter node. The "kind" key wins over the
// legacy "type" key.
func FilterKindOf(f spec.Node) string {
	if f.Has("kind") {
		return f.Get("kind").Str("")
	}
	return f.Get("type").Str("")
}

// ── Data quality ────────────────────────────────────────────────────────────

const (
	StrategyAuto = "auto"
	StrategyDrop = "drop"
	StrategyNone = "none"

	ActionDrop = "drop"
	ActionFill = "fill"
	ActionFlag = "flag"
	ActionCap  = "cap"

	FillMean     = "mean"
	FillMedian   = "median"
	FillMode     = "mode"
	FillZero     = "zero"
	FillConstant = "constant"

	MethodPercentile = "percentile"
	MethodIQR        = "iqr"
	MethodZScore     = "zscore"

	ConstraintNotNull     = "not_null"
	ConstraintPositive    = "positive"
	ConstraintNonNegative = "non_negative"
	ConstraintRange       = "range"
	ConstraintIn          = "in"
)

var (
	MissingStrategies = set(StrategyAuto, StrategyDrop, StrategyNone)
	MissingActions    = set(ActionDrop, ActionFill, ActionFlag)
	FillMethods       = set(FillMean, FillMedian, FillMode, FillZero, FillConstant)
	OutlierMethods    = set(MethodPercentile, MethodIQR, MethodZScore)
	OutlierActions    = set(ActionCap, ActionDrop, ActionFlag)
	Constraints       = set(ConstraintNotNull, ConstraintPositive, ConstraintNonNegative, ConstraintRange, ConstraintIn)
	ValidationActions = set(ActionDrop, ActionFlag)

	// NumericFills and NumericConstraints only make sense on numeric fields.
	NumericFills       = set(FillMean, FillMedian)
	NumericConstraints = set(ConstraintPositive, ConstraintNonNegative, ConstraintRange)
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
