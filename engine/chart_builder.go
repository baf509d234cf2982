package engine

import (
	"fmt"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// CHART BUILDER: Produces a Slice per visualization
// ============================================================================
// BuildSlice dispatches on chart type. Grouped charts (bar, pie) aggregate
// into series; heatmap pivots into a matrix; everything else carries rows.
// ============================================================================

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// BuildSlice prepares the data of one visualization from the page's
// filtered rows. An error marks an unrecoverable numeric failure.
func BuildSlice(viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) (*Slice, []Warning, error) {
	s := &Slice{
		Index:      viz.Index,
		ID:         viz.ID,
		Title:      viz.Title,
		ChartType:  viz.ChartType,
		Roles:      viz.Roles,
		Formatting: viz.Formatting,
		Labels:     viz.ColumnLabels,
	}

	var warnings []Warning
	var err error
	switch viz.ChartType {
	case ir.ChartTable:
		warnings = BuildTable(s, viz, ds, fs)
	case ir.ChartLine:
		warnings = BuildLine(s, viz, ds, fs)
	case ir.ChartBar, ir.ChartPie:
		warnings, err = buildGrouped(s, viz, ds)
	case ir.ChartHeatmap:
		warnings, err = buildHeatmap(s, viz, ds)
	case ir.ChartSummary:
		warnings = BuildSummary(s, viz, ds, fs)
	case ir.ChartCorrelation:
		warnings = BuildCorrelation(s, viz, ds, fs)
	default:
		warnings = BuildRows(s, viz, ds, fs)
	}
	if err != nil {
		return nil, warnings, err
	}
	return s, warnings, nil
}

// ============================================================================
// GROUPED CHARTS: bar and pie
// ============================================================================

// buildGrouped aggregates y per x (and per color, as separate series, for
// bar). Without y, rows are counted. With a limit, only the top groups by
// value are kept; pie slices are always ordered by value.
func buildGrouped(s *Slice, viz *ir.Visualization, ds Dataset) ([]Warning, error) {
	x, y := viz.Roles[ir.RoleX], viz.Roles[ir.RoleY]
	agg := ir.AggCount
	if p, ok := viz.Params.(ir.BarParams); ok {
		agg = p.Agg
	} else if y != "" {
		agg = ir.AggSum
	}
	if y == "" {
		agg = ir.AggCount
	}

	groupBy := []string{x}
	if c := viz.Roles[ir.RoleColor]; viz.ChartType == ir.ChartBar && c != "" && c != x {
		groupBy = append(groupBy, c)
	}
	wanted := append(append([]string{}, groupBy...), y)
	present, warnings := presentFields(ds, nonEmpty(wanted), viz)
	if len(present) < len(nonEmpty(wanted)) {
		s.SourceRows = ds.Len()
		s.Series = []ChartSeries{}
		return warnings, nil
	}

	sortBy := ""
	if viz.Limit > 0 || viz.ChartType == ir.ChartPie {
		sortBy = "value_desc"
	}
	groups, err := GroupAndAggregate(ds, groupBy, y, agg, sortBy, viz.Limit)
	if err != nil {
		return warnings, err
	}

	s.SourceRows = ds.Len()
	name := LabelForAggregation(agg)
	if y != "" {
		name = fmt.Sprintf("%s %s", name, labelOf(s.Labels, y))
	}
	if len(groupBy) == 2 && hasSubGroups(groups) {
		s.Series = buildMultiSeries(groups)
	} else {
		s.Series = buildSingleSeries(groups, name)
	}
	s.Colors = assignColors(len(s.Series))
	return warnings, nil
}

func nonEmpty(fields []string) []string {
	out := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func labelOf(labels map[string]string, field string) string {
	if l := labels[field]; l != "" {
		return l
	}
	return ir.DefaultLabel(field)
}

// ============================================================================
// SERIES BUILDERS
// ============================================================================

func buildSingleSeries(groups []Group, seriesName string) []ChartSeries {
	if seriesName == "" {
		seriesName = "Value"
	}

	points := make([]ChartPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, ChartPoint{
			Label: g.Label,
			Value: round2(g.Value),
			Count: g.Count,
		})
	}

	return []ChartSeries{{
		Name: seriesName,
		Data: points,
	}}
}

// buildMultiSeries pivots sub-groups into one series per sub-key, in
// first-seen order. A group without a sub-key gets a null point.
func buildMultiSeries(groups []Group) []ChartSeries {
	var subKeys []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if !seen[sg.Label] {
				seen[sg.Label] = true
				subKeys = append(subKeys, sg.Label)
			}
		}
	}

	series := make([]ChartSeries, 0, len(subKeys))
	for i, key := range subKeys {
		points := make([]ChartPoint, 0, len(groups))
		for _, g := range groups {
			p := ChartPoint{Label: g.Label}
			for _, sg := range g.SubGroups {
				if sg.Label == key {
					p.Value, p.Count = round2(sg.Value), sg.Count
					break
				}
			}
			points = append(points, p)
		}
		series = append(series, ChartSeries{
			Name:  key,
			Data:  points,
			Color: defaultColors[i%len(defaultColors)],
		})
	}
	return series
}

func hasSubGroups(groups []Group) bool {
	for _, g := range groups {
		if len(g.SubGroups) > 0 {
			return true
		}
	}
	return false
}

func assignColors(count int) []string {
	colors := make([]string, count)
	for i := 0; i < count; i++ {
		colors[i] = defaultColors[i%len(defaultColors)]
	}
	return colors
}

func round2(n Number) Number {
	if !n.Valid {
		return n
	}
	return Some(RoundTo2(n.Value))
}

// ============================================================================
// HEATMAP: pivot of color (else z) over y (rows) × x (columns)
// ============================================================================

func buildHeatmap(s *Slice, viz *ir.Visualization, ds Dataset) ([]Warning, error) {
	x, y := viz.Roles[ir.RoleX], viz.Roles[ir.RoleY]
	z := viz.Roles[ir.RoleColor]
	if z == "" {
		z = viz.Roles[ir.RoleZ]
	}
	agg := ir.AggMean
	if p, ok := viz.Params.(ir.HeatmapParams); ok {
		agg = p.Agg
	}
	if z == "" {
		agg = ir.AggCount
	}

	s.SourceRows = ds.Len()
	wanted := nonEmpty([]string{x, y, z})
	present, warnings := presentFields(ds, wanted, viz)
	if len(present) < len(wanted) {
		s.Matrix = &Matrix{Rows: []string{}, Columns: []string{}, Values: [][]Number{}}
		return warnings, nil
	}

	groups, err := GroupAndAggregate(ds, []string{y, x}, z, agg, "label_asc", 0)
	if err != nil {
		return warnings, err
	}

	var cols []any
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if !seen[sg.Label] {
				seen[sg.Label] = true
				cols = append(cols, sg.Key)
			}
		}
	}
	sortKeys(cols)

	m := &Matrix{Rows: make([]string, len(groups)), Columns: make([]string, len(cols))}
	colIndex := make(map[string]int, len(cols))
	for j, c := range cols {
		m.Columns[j] = cellText(c)
		colIndex[m.Columns[j]] = j
	}
	m.Values = make([][]Number, len(groups))
	for i, g := range groups {
		m.Rows[i] = g.Label
		m.Values[i] = make([]Number, len(cols))
		for _, sg := range g.SubGroups {
			m.Values[i][colIndex[sg.Label]] = sg.Value
		}
	}
	s.Matrix = m
	return warnings, nil
}

func sortKeys(keys []any) {
	gs := make([]Group, len(keys))
	for i, k := range keys {
		gs[i] = Group{Key: k}
	}
	SortGroups(gs, "label_asc")
	for i := range gs {
		keys[i] = gs[i].Key
	}
}
