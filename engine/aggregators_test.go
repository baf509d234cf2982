package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec/ir"
)

func salesView(t *testing.T) Dataset {
	t.Helper()
	v, err := NewRowsView([]string{"region", "channel", "amount"}, [][]any{
		{"north", "web", 100},
		{"south", "store", 50},
		{"north", "store", 30},
		{"east", "web", nil},
		{nil, "web", 5},
		{"South", "web", 20},
	})
	require.NoError(t, err)
	return v
}

func TestAggregate(t *testing.T) {
	ds := salesView(t)

	tests := []struct {
		agg   ir.Aggregation
		field string
		want  Number
	}{
		{ir.AggSum, "amount", Some(205)},
		{ir.AggMean, "amount", Some(41)},
		{ir.AggMin, "amount", Some(5)},
		{ir.AggMax, "amount", Some(100)},
		{ir.AggMedian, "amount", Some(30)},
		{ir.AggCount, "", Some(6)},
		{ir.AggCount, "amount", Some(5)},
		{ir.AggNUnique, "region", Some(4)},
	}
	for _, tt := range tests {
		t.Run(string(tt.agg)+"/"+tt.field, func(t *testing.T) {
			got, err := Aggregate(ds, tt.field, tt.agg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	std, err := Aggregate(ds, "amount", ir.AggStd)
	require.NoError(t, err)
	require.True(t, std.Valid)
	assert.InDelta(t, 36.8103, std.Value, 1e-3)
}

func TestAggregateEmptyIsNull(t *testing.T) {
	empty, err := NewTableView([]string{"amount"}, []any{})
	require.NoError(t, err)

	for _, agg := range []ir.Aggregation{ir.AggSum, ir.AggMean, ir.AggCount, ir.AggNUnique, ir.AggStd} {
		got, err := Aggregate(empty, "amount", agg)
		require.NoError(t, err)
		assert.False(t, got.Valid, agg)
	}

	allNull, err := NewTableView([]string{"amount"}, []any{nil, nil})
	require.NoError(t, err)
	got, err := Aggregate(allNull, "amount", ir.AggMean)
	require.NoError(t, err)
	assert.Equal(t, Null(), got)

	one, err := NewTableView([]string{"amount"}, []any{4})
	require.NoError(t, err)
	got, err = Aggregate(one, "amount", ir.AggStd)
	require.NoError(t, err)
	assert.Equal(t, Null(), got)
}

func TestAggregateErrors(t *testing.T) {
	ds, err := NewTableView([]string{"amount"}, []any{1, "oops"})
	require.NoError(t, err)
	_, err = Aggregate(ds, "amount", ir.AggSum)
	assert.ErrorIs(t, err, ErrNonNumeric)

	big, err := NewTableView([]string{"amount"}, []any{math.MaxFloat64, math.MaxFloat64})
	require.NoError(t, err)
	_, err = Aggregate(big, "amount", ir.AggSum)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestNumberJSON(t *testing.T) {
	b, err := json.Marshal([]Number{Some(1.5), Null()})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(b))

	var back []Number
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []Number{Some(1.5), Null()}, back)
	assert.Equal(t, "null", Null().String())
}

func TestGroupAndAggregate(t *testing.T) {
	ds := salesView(t)

	groups, err := GroupAndAggregate(ds, []string{"region"}, "amount", ir.AggSum, "", 0)
	require.NoError(t, err)
	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = g.Label
	}
	assert.Equal(t, []string{"north", "south", "east", "South"}, labels, "first-seen order, null key skipped")
	assert.Equal(t, Some(130), groups[0].Value)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, Null(), groups[2].Value)

	groups, err = GroupAndAggregate(ds, []string{"region"}, "amount", ir.AggSum, "value_desc", 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "north", groups[0].Label)
	assert.Equal(t, "south", groups[1].Label)

	groups, err = GroupAndAggregate(ds, []string{"region"}, "amount", ir.AggSum, "value_asc", 0)
	require.NoError(t, err)
	assert.Equal(t, "east", groups[len(groups)-1].Label, "nulls sort last")

	groups, err = GroupAndAggregate(ds, []string{"region", "channel"}, "amount", ir.AggSum, "label_asc", 0)
	require.NoError(t, err)
	assert.Equal(t, "east", groups[0].Label)
	north := groups[1]
	require.Len(t, north.SubGroups, 2)
	assert.Equal(t, "web", north.SubGroups[0].Label)
	assert.Equal(t, Some(30), north.SubGroups[1].Value)
}

func TestSortGroupsByNumericLabel(t *testing.T) {
	gs := []Group{{Key: 10.0}, {Key: 9.0}, {Key: 100.0}}
	SortGroups(gs, "label_asc")
	assert.Equal(t, []any{9.0, 10.0, 100.0}, []any{gs[0].Key, gs[1].Key, gs[2].Key})
	SortGroups(gs, "label_desc")
	assert.Equal(t, 100.0, gs[0].Key)
}

func TestUniqueValuesAndLabels(t *testing.T) {
	ds := salesView(t)
	assert.Equal(t, []string{"web", "store"}, UniqueValues(ds, "channel"))
	assert.Equal(t, "Total", LabelForAggregation(ir.AggSum))
	assert.Equal(t, "Count", LabelForAggregation(ir.AggCount))
	assert.Equal(t, 1.24, RoundTo2(1.2449))
}

func TestPercentileInterpolates(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, percentile(s, 0))
	assert.Equal(t, 4.0, percentile(s, 100))
	assert.InDelta(t, 2.5, percentile(s, 50), 1e-9)
	assert.InDelta(t, 1.75, percentile(s, 25), 1e-9)
}
