package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spektr-org/dashspec/ir"
)

// ============================================================================
// AGGREGATORS: Grouping, Aggregation, and Sorting via Dataset
// ============================================================================
// All functions read through Dataset. Grouping produces SubViews (index lists
// into the parent view). Aggregating an empty set yields a null Number, never
// zero and never an error.
// ============================================================================

var (
	// ErrNonNumeric reports a numeric aggregation over a non-numeric cell.
	ErrNonNumeric = errors.New("engine: non-numeric value")
	// ErrNonFinite reports an aggregation whose result is Inf or NaN.
	ErrNonFinite = errors.New("engine: non-finite result")
)

// ============================================================================
// NUMBER: nullable aggregation result
// ============================================================================

// Number is an aggregation result. The zero value is null: "no data" is
// distinct from 0.
type Number struct {
	Value float64
	Valid bool
}

// Null is the empty-set result.
func Null() Number { return Number{} }

// Some wraps a value.
func Some(v float64) Number { return Number{Value: v, Valid: true} }

func (n Number) String() string {
	if !n.Valid {
		return "null"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = Null()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// ============================================================================
// AGGREGATION
// ============================================================================

// Aggregate reduces field over every row of ds. count without a field
// counts rows; with a field it counts non-null cells. Numeric aggregations
// skip nulls and fail on any other non-numeric cell.
func Aggregate(ds Dataset, field string, agg ir.Aggregation) (Number, error) {
	if ds.Len() == 0 {
		return Null(), nil
	}

	switch agg {
	case ir.AggCount:
		if field == "" {
			return Some(float64(ds.Len())), nil
		}
		n := 0
		for i := 0; i < ds.Len(); i++ {
			if ds.Value(i, field) != nil {
				n++
			}
		}
		return Some(float64(n)), nil

	case ir.AggNUnique:
		seen := make(map[uint64][]int)
		h := newRowHasher()
		keys := []string{field}
		n := 0
		for i := 0; i < ds.Len(); i++ {
			if ds.Value(i, field) == nil {
				continue
			}
			hv := h.sum(ds, i, keys)
			dup := false
			for _, j := range seen[hv] {
				if sameRow(ds, i, j, keys) {
					dup = true
					break
				}
			}
			if !dup {
				seen[hv] = append(seen[hv], i)
				n++
			}
		}
		return Some(float64(n)), nil
	}

	vals, err := numbers(ds, field)
	if err != nil {
		return Null(), err
	}
	if len(vals) == 0 {
		return Null(), nil
	}

	var out float64
	switch agg {
	case ir.AggSum:
		out = sum(vals)
	case ir.AggMean:
		out = mean(vals)
	case ir.AggMin:
		out = vals[0]
		for _, v := range vals[1:] {
			out = math.Min(out, v)
		}
	case ir.AggMax:
		out = vals[0]
		for _, v := range vals[1:] {
			out = math.Max(out, v)
		}
	case ir.AggMedian:
		out = percentile(sorted(vals), 50)
	case ir.AggStd:
		if len(vals) < 2 {
			return Null(), nil
		}
		out = stddev(vals)
	default:
		return Null(), fmt.Errorf("engine: unknown aggregation %q", agg)
	}

	if math.IsInf(out, 0) || math.IsNaN(out) {
		return Null(), fmt.Errorf("%w: %s(%s)", ErrNonFinite, agg, field)
	}
	return Some(out), nil
}

// numbers collects the non-null cells of field. Any other non-numeric cell
// is an error.
func numbers(ds Dataset, field string) ([]float64, error) {
	vals := make([]float64, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		v := ds.Value(i, field)
		if v == nil {
			continue
		}
		f, ok := cellFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d is %T", ErrNonNumeric, field, Origin(ds, i), v)
		}
		vals = append(vals, f)
	}
	return vals, nil
}

// looseNumbers collects the numeric cells of field and ignores the rest.
func looseNumbers(ds Dataset, field string) []float64 {
	vals := make([]float64, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if f, ok := cellFloat(ds.Value(i, field)); ok {
			vals = append(vals, f)
		}
	}
	return vals
}

// ============================================================================
// STATISTICS
// ============================================================================

func sum(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return sum(vals) / float64(len(vals))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func sorted(vals []float64) []float64 {
	out := append([]float64(nil), vals...)
	sort.Float64s(out)
	return out
}

// percentile interpolates linearly between closest ranks. p is on a 0–100
// scale and s must be sorted.
func percentile(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 100 {
		return s[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return s[n-1]
	}
	frac := rank - float64(lo)
	return s[lo] + (s[lo+1]-s[lo])*frac
}

// ============================================================================
// GROUPING
// ============================================================================

// Group is one bucket of a grouped aggregation.
type Group struct {
	Key       any     `json:"key"`
	Label     string  `json:"label"`
	Value     Number  `json:"value"`
	Count     int     `json:"count"`
	SubGroups []Group `json:"subGroups,omitempty"`
	View      Dataset `json:"-"` // rows in this group (zero-copy)
}

// GroupAndAggregate is the aggregation pipeline behind grouped charts.
// Pipeline: group → aggregate → sort → limit. Rows whose group key is null
// belong to no group. A second groupBy field produces SubGroups.
func GroupAndAggregate(ds Dataset, groupBy []string, measure string, agg ir.Aggregation, sortBy string, limit int) ([]Group, error) {
	if ds.Len() == 0 {
		return nil, nil
	}

	// 1. Group
	var groups []Group
	switch len(groupBy) {
	case 0:
		groups = []Group{{Key: "all", Label: "Total", View: ds}}
	case 1:
		groups = groupBySingle(ds, groupBy[0])
	default:
		groups = groupBySingle(ds, groupBy[0])
		for i := range groups {
			groups[i].SubGroups = groupBySingle(groups[i].View, groupBy[1])
		}
	}

	// 2. Aggregate
	for i := range groups {
		if err := aggregateGroup(&groups[i], measure, agg); err != nil {
			return nil, err
		}
		for j := range groups[i].SubGroups {
			if err := aggregateGroup(&groups[i].SubGroups[j], measure, agg); err != nil {
				return nil, err
			}
		}
	}

	// 3. Sort
	SortGroups(groups, sortBy)

	// 4. Limit
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

func groupBySingle(ds Dataset, field string) []Group {
	h := newRowHasher()
	keys := []string{field}
	buckets := make(map[uint64][]int) // hash → group positions
	var groups []Group
	var members [][]int

	for i := 0; i < ds.Len(); i++ {
		v := ds.Value(i, field)
		if v == nil {
			continue
		}
		hv := h.sum(ds, i, keys)
		pos := -1
		for _, g := range buckets[hv] {
			if sameCell(groups[g].Key, v) {
				pos = g
				break
			}
		}
		if pos < 0 {
			pos = len(groups)
			buckets[hv] = append(buckets[hv], pos)
			groups = append(groups, Group{Key: v, Label: cellText(v)})
			members = append(members, nil)
		}
		members[pos] = append(members[pos], i)
	}

	for i := range groups {
		groups[i].View = newSubView(ds, members[i])
	}
	return groups
}

func aggregateGroup(g *Group, measure string, agg ir.Aggregation) error {
	g.Count = g.View.Len()
	v, err := Aggregate(g.View, measure, agg)
	if err != nil {
		return fmt.Errorf("group %q: %w", g.Label, err)
	}
	g.Value = v
	return nil
}

// ============================================================================
// SORTING
// ============================================================================

// SortGroups sorts groups in place. Null values sort last in either
// direction. Unknown modes preserve first-seen order.
func SortGroups(groups []Group, sortBy string) {
	switch sortBy {
	case "value_desc":
		sort.SliceStable(groups, func(i, j int) bool { return valueBefore(groups[i].Value, groups[j].Value, true) })
	case "value_asc":
		sort.SliceStable(groups, func(i, j int) bool { return valueBefore(groups[i].Value, groups[j].Value, false) })
	case "label_asc":
		sort.SliceStable(groups, func(i, j int) bool { return lessKey(groups[i].Key, groups[j].Key) })
	case "label_desc":
		sort.SliceStable(groups, func(i, j int) bool { return lessKey(groups[j].Key, groups[i].Key) })
	default:
		// preserve grouping order
	}
}

// valueBefore orders two values with nulls last.
func valueBefore(a, b Number, desc bool) bool {
	switch {
	case !a.Valid:
		return false
	case !b.Valid:
		return true
	case desc:
		return a.Value > b.Value
	}
	return a.Value < b.Value
}

// lessKey orders keys numerically when both are numbers or both are times,
// else by case-insensitive label.
func lessKey(a, b any) bool {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return fa < fb
		}
	}
	if ta, ok := timeOf(a); ok {
		if tb, ok := timeOf(b); ok {
			return ta < tb
		}
	}
	return strings.ToLower(cellText(a)) < strings.ToLower(cellText(b))
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UniqueValues returns distinct non-null labels of a field in first-seen
// order.
func UniqueValues(ds Dataset, field string) []string {
	seen := make(map[string]bool)
	var result []string
	for i := 0; i < ds.Len(); i++ {
		v := ds.Value(i, field)
		if v == nil {
			continue
		}
		s := cellText(v)
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

// LabelForAggregation returns a human-readable label for an aggregation.
func LabelForAggregation(agg ir.Aggregation) string {
	switch agg {
	case ir.AggSum:
		return "Total"
	case ir.AggCount:
		return "Count"
	case ir.AggMean:
		return "Average"
	case ir.AggMax:
		return "Maximum"
	case ir.AggMin:
		return "Minimum"
	case ir.AggMedian:
		return "Median"
	case ir.AggNUnique:
		return "Distinct"
	case ir.AggStd:
		return "Std Dev"
	default:
		return "Value"
	}
}
