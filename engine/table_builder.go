package engine

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// ROW SLICES: tables, distributions, scatter and line charts
// ============================================================================
// Row charts carry the raw cells of the fields they read. When a limit is
// set and exceeded, rows are sampled deterministically: every row gets a
// rank from xxh3 over a fixed seed and its index, the lowest ranks win, and
// the winners are put back in their original order.
// ============================================================================

// SampleSeed is mixed into every row rank.
const SampleSeed = 42

// sampleIndices picks limit of n row positions, in ascending order. It
// returns nil when every row is kept.
func sampleIndices(n, limit int) []int {
	if limit <= 0 || n <= limit {
		return nil
	}
	type ranked struct {
		rank uint64
		i    int
	}
	rs := make([]ranked, n)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], SampleSeed)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[8:], uint64(i))
		rs[i] = ranked{rank: xxh3.Hash(buf[:]), i: i}
	}
	sort.Slice(rs, func(a, b int) bool {
		if rs[a].rank != rs[b].rank {
			return rs[a].rank < rs[b].rank
		}
		return rs[a].i < rs[b].i
	})
	out := make([]int, limit)
	for k := range out {
		out[k] = rs[k].i
	}
	sort.Ints(out)
	return out
}

// presentFields splits fields into those ds exposes and warnings for the
// rest.
func presentFields(ds Dataset, fields []string, viz *ir.Visualization) ([]string, []Warning) {
	var out []string
	var warnings []Warning
	for _, f := range fields {
		if HasField(ds, f) {
			out = append(out, f)
			continue
		}
		warnings = append(warnings, Warning{
			Code:    WarnVizFieldMissing,
			Field:   f,
			Message: fmt.Sprintf("visualization %d: field %q not in dataset", viz.Index, f),
		})
	}
	return out, warnings
}

func columnsFor(fields []string, fs schema.FieldSchema, labels map[string]string) []Column {
	cols := make([]Column, 0, len(fields))
	for _, f := range fields {
		ft, _ := fs.TypeOf(f)
		label := labels[f]
		if label == "" {
			label = ir.DefaultLabel(f)
		}
		cols = append(cols, Column{Key: f, Label: label, Type: string(ft)})
	}
	return cols
}

// fillRows copies the cells of fields into s, sampled down to limit.
func fillRows(s *Slice, ds Dataset, fields []string, limit int) {
	s.SourceRows = ds.Len()
	picks := sampleIndices(ds.Len(), limit)
	if picks == nil {
		picks = make([]int, ds.Len())
		for i := range picks {
			picks[i] = i
		}
	} else {
		s.Sampled = true
	}

	s.Rows = make([][]any, 0, len(picks))
	s.RowIndices = make([]int, 0, len(picks))
	for _, i := range picks {
		row := make([]any, len(fields))
		for j, f := range fields {
			row[j] = ds.Value(i, f)
		}
		s.Rows = append(s.Rows, row)
		s.RowIndices = append(s.RowIndices, Origin(ds, i))
	}
}

// BuildTable prepares a table: the listed columns, or every dataset field.
func BuildTable(s *Slice, viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) []Warning {
	fields := ds.Fields()
	var warnings []Warning
	if p, ok := viz.Params.(ir.TableParams); ok && len(p.Columns) > 0 {
		fields, warnings = presentFields(ds, p.Columns, viz)
	}
	s.Columns = columnsFor(fields, fs, s.Labels)
	fillRows(s, ds, fields, viz.Limit)
	return warnings
}

// BuildRows prepares a row chart over the fields the visualization binds.
func BuildRows(s *Slice, viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) []Warning {
	fields, warnings := presentFields(ds, viz.Fields(), viz)
	s.Columns = columnsFor(fields, fs, s.Labels)
	fillRows(s, ds, fields, viz.Limit)
	return warnings
}

// BuildLine is BuildRows plus an optional trailing rolling mean of y,
// appended as "<y>_rolling". A row whose window is incomplete or holds a
// null has no mean. Windows run over consecutive dataset rows; a limit
// samples the finished rows afterwards.
func BuildLine(s *Slice, viz *ir.Visualization, ds Dataset, fs schema.FieldSchema) []Warning {
	fields, warnings := presentFields(ds, viz.Fields(), viz)
	s.Columns = columnsFor(fields, fs, s.Labels)
	p, _ := viz.Params.(ir.LineParams)
	y := viz.Roles[ir.RoleY]
	col := -1
	for j, c := range s.Columns {
		if c.Key == y {
			col = j
		}
	}
	if p.RollingWindow <= 1 || col < 0 {
		fillRows(s, ds, fields, viz.Limit)
		return warnings
	}

	fillRows(s, ds, fields, 0)
	name := y + "_rolling"
	s.Columns = append(s.Columns, Column{Key: name, Label: ir.DefaultLabel(name)})
	for i, row := range s.Rows {
		var out any
		if i+1 >= p.RollingWindow {
			vals := make([]float64, 0, p.RollingWindow)
			for _, prev := range s.Rows[i+1-p.RollingWindow : i+1] {
				if v, ok := cellFloat(prev[col]); ok {
					vals = append(vals, v)
				}
			}
			if len(vals) == p.RollingWindow {
				out = mean(vals)
			}
		}
		s.Rows[i] = append(row, out)
	}

	picks := sampleIndices(len(s.Rows), viz.Limit)
	if picks == nil {
		return warnings
	}
	rows := make([][]any, len(picks))
	origins := make([]int, len(picks))
	for k, i := range picks {
		rows[k] = s.Rows[i]
		origins[k] = s.RowIndices[i]
	}
	s.Rows, s.RowIndices, s.Sampled = rows, origins, true
	return warnings
}
