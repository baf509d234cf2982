package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

func bigView(t *testing.T, n int) Dataset {
	t.Helper()
	ids := make([]any, n)
	vals := make([]any, n)
	for i := range ids {
		ids[i] = i
		vals[i] = float64(i % 97)
	}
	v, err := NewTableView([]string{"id", "v"}, ids, vals)
	require.NoError(t, err)
	return v
}

func TestTableSamplingIsDeterministic(t *testing.T) {
	ds := bigView(t, 10000)
	viz := &ir.Visualization{Index: 3, ChartType: ir.ChartTable, Limit: 50}

	s1, warnings, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	s2, _, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)

	assert.Equal(t, 3, s1.Index)
	assert.True(t, s1.Sampled)
	assert.Equal(t, 10000, s1.SourceRows)
	require.Len(t, s1.Rows, 50)
	assert.Equal(t, s1.RowIndices, s2.RowIndices)
	assert.IsIncreasing(t, s1.RowIndices)
	for k, i := range s1.RowIndices {
		assert.Equal(t, float64(i), s1.Rows[k][0])
	}
}

func TestTableWithoutLimitKeepsEveryRow(t *testing.T) {
	ds := bigView(t, 20)
	viz := &ir.Visualization{ChartType: ir.ChartTable, Params: ir.TableParams{Columns: []string{"v", "ghost"}}}

	s, warnings, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)
	assert.False(t, s.Sampled)
	assert.Len(t, s.Rows, 20)
	require.Len(t, s.Columns, 1)
	assert.Equal(t, "v", s.Columns[0].Key)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnVizFieldMissing, warnings[0].Code)
}

func TestSamplingFollowsOriginThroughViews(t *testing.T) {
	ds := bigView(t, 100)
	sub := newSubView(ds, []int{10, 20, 30})
	viz := &ir.Visualization{ChartType: ir.ChartScatter, Roles: map[ir.Role]string{ir.RoleX: "id", ir.RoleY: "v"}}

	s, _, err := BuildSlice(viz, sub, schema.FieldSchema{})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, s.RowIndices)
	assert.Equal(t, []any{20.0, 20.0}, s.Rows[1])
}

func TestLineRollingMean(t *testing.T) {
	ds, err := NewRowsView([]string{"t", "v"}, [][]any{{1, 1}, {2, 2}, {3, nil}, {4, 4}, {5, 6}})
	require.NoError(t, err)
	viz := &ir.Visualization{
		ChartType: ir.ChartLine,
		Roles:     map[ir.Role]string{ir.RoleX: "t", ir.RoleY: "v"},
		Params:    ir.LineParams{RollingWindow: 2},
	}

	s, _, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)
	require.Len(t, s.Columns, 3)
	assert.Equal(t, "v_rolling", s.Columns[2].Key)
	var rolling []any
	for _, r := range s.Rows {
		rolling = append(rolling, r[2])
	}
	assert.Equal(t, []any{nil, 1.5, nil, nil, 5.0}, rolling)
}

func TestLineRollingMeanBeforeSampling(t *testing.T) {
	n := 1000
	ts := make([]any, n)
	ys := make([]any, n)
	for i := range ts {
		ts[i] = i
		ys[i] = float64(i)
	}
	ds, err := NewTableView([]string{"t", "y"}, ts, ys)
	require.NoError(t, err)
	viz := &ir.Visualization{
		ChartType: ir.ChartLine,
		Roles:     map[ir.Role]string{ir.RoleX: "t", ir.RoleY: "y"},
		Params:    ir.LineParams{RollingWindow: 3},
		Limit:     50,
	}

	s, _, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)
	assert.True(t, s.Sampled)
	assert.Equal(t, n, s.SourceRows)
	require.Len(t, s.Rows, 50)
	require.Len(t, s.RowIndices, 50)
	assert.IsIncreasing(t, s.RowIndices)
	for k, i := range s.RowIndices {
		row := s.Rows[k]
		assert.Equal(t, float64(i), row[1])
		if i < 2 {
			assert.Nil(t, row[2], "row %d", i)
			continue
		}
		assert.InDelta(t, float64(i-1), row[2], 1e-9, "row %d", i)
	}
}

func TestBarTopGroups(t *testing.T) {
	viz := &ir.Visualization{
		ChartType: ir.ChartBar,
		Roles:     map[ir.Role]string{ir.RoleX: "region", ir.RoleY: "amount"},
		Params:    ir.BarParams{Agg: ir.AggSum},
		Limit:     2,
	}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)

	require.Len(t, s.Series, 1)
	pts := s.Series[0].Data
	require.Len(t, pts, 2)
	assert.Equal(t, "north", pts[0].Label)
	assert.Equal(t, Some(130), pts[0].Value)
	assert.Equal(t, "south", pts[1].Label)
	assert.Len(t, s.Colors, 1)
}

func TestBarColorSeries(t *testing.T) {
	viz := &ir.Visualization{
		ChartType: ir.ChartBar,
		Roles:     map[ir.Role]string{ir.RoleX: "region", ir.RoleY: "amount", ir.RoleColor: "channel"},
		Params:    ir.BarParams{Agg: ir.AggSum},
	}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)

	require.Len(t, s.Series, 2)
	web, store := s.Series[0], s.Series[1]
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, "store", store.Name)
	require.Len(t, web.Data, 4)
	assert.Equal(t, "south", web.Data[1].Label)
	assert.Equal(t, Null(), web.Data[1].Value)
	assert.Equal(t, Some(50), store.Data[1].Value)
}

func TestPieCountsAndSortsByValue(t *testing.T) {
	viz := &ir.Visualization{ChartType: ir.ChartPie, Roles: map[ir.Role]string{ir.RoleX: "channel"}}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)

	pts := s.Series[0].Data
	require.Len(t, pts, 2)
	assert.Equal(t, "web", pts[0].Label)
	assert.Equal(t, Some(4), pts[0].Value)
	assert.Equal(t, Some(2), pts[1].Value)
}

func TestGroupedMissingFieldIsEmpty(t *testing.T) {
	viz := &ir.Visualization{ChartType: ir.ChartBar, Roles: map[ir.Role]string{ir.RoleX: "ghost"}}
	s, warnings, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)
	assert.Empty(t, s.Series)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ghost", warnings[0].Field)
}

func TestHeatmapPivot(t *testing.T) {
	viz := &ir.Visualization{
		ChartType: ir.ChartHeatmap,
		Roles:     map[ir.Role]string{ir.RoleX: "channel", ir.RoleY: "region", ir.RoleZ: "amount"},
		Params:    ir.HeatmapParams{Agg: ir.AggSum},
	}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)

	m := s.Matrix
	require.NotNil(t, m)
	assert.Equal(t, []string{"east", "north", "south", "South"}, m.Rows)
	assert.Equal(t, []string{"store", "web"}, m.Columns)
	assert.Equal(t, []Number{Some(30), Some(100)}, m.Values[1])
	assert.Equal(t, []Number{Null(), Null()}, m.Values[0])
}

func TestHeatmapCountsWithoutValueRole(t *testing.T) {
	viz := &ir.Visualization{
		ChartType: ir.ChartHeatmap,
		Roles:     map[ir.Role]string{ir.RoleX: "channel", ir.RoleY: "region"},
	}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)
	assert.Equal(t, []Number{Some(1), Some(1)}, s.Matrix.Values[1])
}

func TestHeatmapPrefersColorOverZ(t *testing.T) {
	viz := &ir.Visualization{
		ChartType: ir.ChartHeatmap,
		Roles:     map[ir.Role]string{ir.RoleX: "channel", ir.RoleY: "region", ir.RoleColor: "amount", ir.RoleZ: "region"},
		Params:    ir.HeatmapParams{Agg: ir.AggSum},
	}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)
	assert.Equal(t, []Number{Some(30), Some(100)}, s.Matrix.Values[1])
}

func TestSummary(t *testing.T) {
	viz := &ir.Visualization{ChartType: ir.ChartSummary, Params: ir.SummaryParams{Columns: []string{"amount"}}}
	s, _, err := BuildSlice(viz, salesView(t), schema.FieldSchema{})
	require.NoError(t, err)

	require.Len(t, s.Summary, 1)
	row := s.Summary[0]
	assert.Equal(t, "amount", row.Field)
	assert.Equal(t, 5, row.Count)
	assert.Equal(t, Some(41), row.Mean)
	assert.Equal(t, Some(5), row.Min)
	assert.Equal(t, Some(100), row.Max)
	require.Len(t, row.Percentiles, 3)
	assert.Equal(t, Quantile{P: 50, Value: Some(30)}, row.Percentiles[1])
}

func TestSummaryByGroup(t *testing.T) {
	fs := testSchema(t, map[string]string{"region": "category", "channel": "category", "amount": "float"})
	viz := &ir.Visualization{ChartType: ir.ChartSummary, Params: ir.SummaryParams{By: "channel", Percentiles: []float64{50}}}
	s, _, err := BuildSlice(viz, salesView(t), fs)
	require.NoError(t, err)

	require.Len(t, s.Summary, 2)
	assert.Equal(t, "store", s.Summary[0].Group)
	assert.Equal(t, Some(40), s.Summary[0].Mean)
	assert.Equal(t, "web", s.Summary[1].Group)
	assert.Equal(t, 3, s.Summary[1].Count)
}

func TestCorrelationMethods(t *testing.T) {
	ds, err := NewRowsView([]string{"a", "b", "c"}, [][]any{
		{1, 1, 5}, {2, 4, 4}, {3, 9, 3}, {4, 16, 2}, {5, 25, nil},
	})
	require.NoError(t, err)

	for _, method := range []string{CorrSpearman, CorrKendall} {
		viz := &ir.Visualization{ChartType: ir.ChartCorrelation, Params: ir.CorrelationParams{Columns: []string{"a", "b", "c"}, Method: method}}
		s, _, err := BuildSlice(viz, ds, schema.FieldSchema{})
		require.NoError(t, err)
		m := s.Matrix
		assert.Equal(t, method, m.Method)
		assert.InDelta(t, 1, m.Values[0][1].Value, 1e-9, method)
		assert.InDelta(t, -1, m.Values[0][2].Value, 1e-9, method)
		assert.Equal(t, m.Values[1][2], m.Values[2][1])
	}

	viz := &ir.Visualization{ChartType: ir.ChartCorrelation, Params: ir.CorrelationParams{Columns: []string{"a", "b"}, MaskUpper: true}}
	s, _, err := BuildSlice(viz, ds, schema.FieldSchema{})
	require.NoError(t, err)
	assert.Equal(t, CorrPearson, s.Matrix.Method)
	assert.Equal(t, Null(), s.Matrix.Values[0][0])
	assert.Equal(t, Null(), s.Matrix.Values[0][1])
	assert.True(t, s.Matrix.Values[1][0].Valid)
	assert.InDelta(t, 0.9811, s.Matrix.Values[1][0].Value, 1e-3)
}

func TestCorrelateUndefined(t *testing.T) {
	assert.Equal(t, Null(), Correlate(CorrPearson, []float64{1}, []float64{2}))
	assert.Equal(t, Null(), Correlate(CorrPearson, []float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Equal(t, Null(), Correlate("cosine", []float64{1, 2}, []float64{1, 2}))
}
