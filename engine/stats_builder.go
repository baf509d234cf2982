package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// STATISTICS BUILDERS: summary tables and correlation matrices
// ============================================================================
// Both read every filtered row; limits do not apply.
// ============================================================================

// numericColumns returns the listed columns, or the numeric fields of the
// schema that ds exposes. Without a schema, fields holding any float cell
// count as numeric.
func numericColumns(ds Dataset, fs schema.FieldSchema, listed []string, viz *ir.Visualization) ([]string, []Warning) {
	if len(listed) > 0 {
		return presentFields(ds, listed, viz)
	}
	var out []string
	if fs.Len() > 0 {
		for _, f := range fs.NumericFields() {
			if HasField(ds, f) {
				out = append(out, f)
			}
		}
		return out, nil
	}
	for _, f := range ds.Fields() {
		for i := 0; i < ds.Len(); i++ {
			if _, ok := cellFloat(ds.Value(i, f)); ok {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

// ============================================================================
// SUMMARY
// ============================================================================

// BuildSummary describes each column: count, mean, std, min, the requested
// percentiles and max. With a by field, one row per group and column.
func BuildSummary(s *Slice, viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) []Warning {
	p, _ := viz.Params.(ir.SummaryParams)
	s.SourceRows = ds.Len()
	cols, warnings := numericColumns(ds, fs, p.Columns, viz)

	pcts := p.Percentiles
	if len(pcts) == 0 {
		pcts = []float64{25, 50, 75}
	}

	if p.By == "" || !HasField(ds, p.By) {
		if p.By != "" {
			_, w := presentFields(ds, []string{p.By}, viz)
			warnings = append(warnings, w...)
		}
		for _, c := range cols {
			s.Summary = append(s.Summary, describe(ds, c, "", pcts))
		}
		return warnings
	}

	groups, _ := GroupAndAggregate(ds, []string{p.By}, "", ir.AggCount, "label_asc", 0)
	for _, g := range groups {
		for _, c := range cols {
			s.Summary = append(s.Summary, describe(g.View, c, g.Label, pcts))
		}
	}
	return warnings
}

func describe(ds Dataset, field, group string, pcts []float64) SummaryRow {
	vals := looseNumbers(ds, field)
	row := SummaryRow{Group: group, Field: field, Count: len(vals)}
	row.Percentiles = make([]Quantile, len(pcts))
	for i, p := range pcts {
		row.Percentiles[i] = Quantile{P: p}
	}
	if len(vals) == 0 {
		return row
	}

	srt := sorted(vals)
	row.Mean = finite(mean(vals))
	if len(vals) > 1 {
		row.Std = finite(stddev(vals))
	}
	row.Min, row.Max = Some(srt[0]), Some(srt[len(srt)-1])
	for i, p := range pcts {
		row.Percentiles[i].Value = finite(percentile(srt, p))
	}
	return row
}

func finite(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null()
	}
	return Some(v)
}

// ============================================================================
// CORRELATION
// ============================================================================

// Correlation methods.
const (
	CorrPearson  = "pearson"
	CorrSpearman = "spearman"
	CorrKendall  = "kendall"
)

// BuildCorrelation computes the pairwise correlation matrix of numeric
// columns. Each pair uses the rows where both cells are numeric. With
// MaskUpper, the diagonal and everything above it are null.
func BuildCorrelation(s *Slice, viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) []Warning {
	p, _ := viz.Params.(ir.CorrelationParams)
	s.SourceRows = ds.Len()
	cols, warnings := numericColumns(ds, fs, p.Columns, viz)

	method := strings.ToLower(p.Method)
	if method == "" {
		method = CorrPearson
	}
	m := &Matrix{Method: method, Rows: cols, Columns: cols, Values: make([][]Number, len(cols))}
	for i := range cols {
		m.Values[i] = make([]Number, len(cols))
	}
	for i := range cols {
		for j := i; j < len(cols); j++ {
			xs, ys := pairs(ds, cols[i], cols[j])
			v := Correlate(method, xs, ys)
			m.Values[i][j], m.Values[j][i] = v, v
		}
	}
	if p.MaskUpper {
		for i := range cols {
			for j := i; j < len(cols); j++ {
				m.Values[i][j] = Null()
			}
		}
	}
	s.Matrix = m
	return warnings
}

func pairs(ds Dataset, a, b string) ([]float64, []float64) {
	var xs, ys []float64
	for i := 0; i < ds.Len(); i++ {
		x, ok1 := cellFloat(ds.Value(i, a))
		y, ok2 := cellFloat(ds.Value(i, b))
		if ok1 && ok2 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

// Correlate returns the correlation coefficient of two equal-length
// samples, or null when it is undefined (fewer than two pairs or a constant
// sample). Unknown methods are null.
func Correlate(method string, xs, ys []float64) Number {
	if len(xs) != len(ys) || len(xs) < 2 {
		return Null()
	}
	switch method {
	case CorrPearson:
		return finite(pearson(xs, ys))
	case CorrSpearman:
		return finite(pearson(ranks(xs), ranks(ys)))
	case CorrKendall:
		return finite(kendall(xs, ys))
	}
	return Null()
}

func pearson(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// ranks assigns 1-based ranks, averaging ties.
func ranks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	out := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = r
		}
		i = j + 1
	}
	return out
}

// kendall is tau-b, which corrects for ties. O(n²).
func kendall(xs, ys []float64) float64 {
	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < len(xs); i++ {
		for j := i + 1; j < len(xs); j++ {
			dx, dy := xs[i]-xs[j], ys[i]-ys[j]
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}
	den := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if den == 0 {
		return math.NaN()
	}
	return (concordant - discordant) / den
}
