package engine

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/cases"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// DATA QUALITY: missing values → duplicates → outliers → validation
// ============================================================================
// Each step reads the view the previous step returned and returns a new
// view. Row removal is a SubView; filled, capped and flag columns live in a
// PatchView. The input dataset is never modified.
//
// Bounds and fill values are computed from the rows the step sees, so they
// are fresh for every execution.
// ============================================================================

// Warning codes for non-fatal execution anomalies.
const (
	WarnDQFieldMissing     = "DQ_FIELD_MISSING"
	WarnFilterFieldMissing = "FILTER_FIELD_MISSING"
	WarnVizFieldMissing    = "VIZ_FIELD_MISSING"
)

// Warning is a non-fatal execution anomaly. Execution continues past it.
type Warning struct {
	Code    string `json:"code"`
	Page    string `json:"page,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Page != "" {
		return fmt.Sprintf("%s page %s: %s", w.Code, w.Page, w.Message)
	}
	return w.Code + ": " + w.Message
}

// QualityReport summarizes what the data quality pass did.
type QualityReport struct {
	InputRows         int            `json:"inputRows"`
	OutputRows        int            `json:"outputRows"`
	MissingDropped    int            `json:"missingDropped"`
	Filled            map[string]int `json:"filled,omitempty"`
	Flagged           map[string]int `json:"flagged,omitempty"`
	DuplicatesRemoved int            `json:"duplicatesRemoved"`
	OutliersCapped    map[string]int `json:"outliersCapped,omitempty"`
	OutliersDropped   int            `json:"outliersDropped"`
	InvalidDropped    int            `json:"invalidDropped"`
	Warnings          []Warning      `json:"warnings,omitempty"`
}

// Suffixes of generated flag columns.
const (
	MissingSuffix = "_missing"
	OutlierSuffix = "_outlier"
	InvalidSuffix = "_invalid"
)

// ApplyQuality runs the rule set over ds and returns the transformed view
// with a report. Rules naming a field absent from ds are skipped with a
// warning.
func ApplyQuality(ds Dataset, dq ir.DataQuality, fs schema.FieldSchema) (Dataset, *QualityReport) {
	q := &qualityRun{
		dq:     dq,
		schema: fs,
		report: &QualityReport{
			InputRows:      ds.Len(),
			Filled:         map[string]int{},
			Flagged:        map[string]int{},
			OutliersCapped: map[string]int{},
		},
	}

	out := ds
	if !dq.Empty() {
		out = q.missing(out)
		out = q.duplicates(out)
		out = q.outliers(out)
		out = q.validation(out)
	}
	q.report.OutputRows = out.Len()
	q.log()
	return out, q.report
}

type qualityRun struct {
	dq     ir.DataQuality
	schema schema.FieldSchema
	report *QualityReport
}

func (q *qualityRun) warnMissing(step, field string) {
	w := Warning{
		Code:    WarnDQFieldMissing,
		Field:   field,
		Message: fmt.Sprintf("%s rule skipped: field %q not in dataset", step, field),
	}
	q.report.Warnings = append(q.report.Warnings, w)
	logger.Warn("%s", w)
}

func (q *qualityRun) flag(p *PatchView, name string, col []any) {
	n := 0
	for _, c := range col {
		if c == true {
			n++
		}
	}
	p.set(name, col)
	q.report.Flagged[name] += n
}

// ── Missing values ──────────────────────────────────────────────────────────

// missingPlan resolves the action for each field. Strategy defaults come
// first in schema order; explicit rules replace them per field.
func (q *qualityRun) missingPlan(ds Dataset) ([]string, map[string]ir.MissingRule) {
	var order []string
	plan := make(map[string]ir.MissingRule)

	for _, f := range q.schema.Fields() {
		if !HasField(ds, f.Name) {
			continue
		}
		var r ir.MissingRule
		switch q.dq.MissingValues.Strategy {
		case ir.StrategyAuto:
			switch {
			case f.Type.IsNumeric():
				r = ir.MissingRule{Action: ir.ActionFill, Method: ir.FillMedian}
			case f.Type == schema.TypeDatetime:
				r = ir.MissingRule{Action: ir.ActionDrop}
			default:
				r = ir.MissingRule{Action: ir.ActionFlag}
			}
		case ir.StrategyDrop:
			r = ir.MissingRule{Action: ir.ActionDrop}
		default:
			continue
		}
		r.Field = f.Name
		order = append(order, f.Name)
		plan[f.Name] = r
	}

	for _, r := range q.dq.MissingValues.Rules {
		if !HasField(ds, r.Field) {
			q.warnMissing("missing value", r.Field)
			continue
		}
		if _, ok := plan[r.Field]; !ok {
			order = append(order, r.Field)
		}
		plan[r.Field] = r
	}
	return order, plan
}

func (q *qualityRun) missing(ds Dataset) Dataset {
	order, plan := q.missingPlan(ds)
	if len(order) == 0 {
		return ds
	}

	// Drops first, so fill statistics describe the rows that survive.
	var drops []string
	for _, f := range order {
		if plan[f].Action == ir.ActionDrop {
			drops = append(drops, f)
		}
	}
	if len(drops) > 0 {
		keep := make([]int, 0, ds.Len())
		for i := 0; i < ds.Len(); i++ {
			ok := true
			for _, f := range drops {
				if ds.Value(i, f) == nil {
					ok = false
					break
				}
			}
			if ok {
				keep = append(keep, i)
			}
		}
		if dropped := ds.Len() - len(keep); dropped > 0 {
			q.report.MissingDropped = dropped
			ds = newSubView(ds, keep)
		}
	}

	p := newPatchView(ds)
	for _, f := range order {
		r := plan[f]
		nulls := 0
		for i := 0; i < ds.Len(); i++ {
			if ds.Value(i, f) == nil {
				nulls++
			}
		}
		if nulls == 0 {
			continue
		}

		switch r.Action {
		case ir.ActionFill:
			fill, ok := fillValue(ds, r)
			if !ok {
				logger.Debug("missing values: no %s fill for %q", r.Method, f)
				continue
			}
			col := column(ds, f)
			for i, c := range col {
				if c == nil {
					col[i] = fill
				}
			}
			p.set(f, col)
			q.report.Filled[f] += nulls
		case ir.ActionFlag:
			col := make([]any, ds.Len())
			for i := range col {
				col[i] = ds.Value(i, f) == nil
			}
			q.flag(p, f+MissingSuffix, col)
		}
	}
	if p.empty() {
		return ds
	}
	return p
}

// fillValue computes the replacement for nulls. ok is false when the method
// has nothing to compute from.
func fillValue(ds Dataset, r ir.MissingRule) (any, bool) {
	switch r.Method {
	case ir.FillZero:
		return 0.0, true
	case ir.FillConstant:
		v := Normalize(r.Value)
		return v, v != nil
	case ir.FillMode:
		return mode(ds, r.Field)
	case ir.FillMean, ir.FillMedian, "":
		vals := looseNumbers(ds, r.Field)
		if len(vals) == 0 {
			return nil, false
		}
		if r.Method == ir.FillMean {
			return mean(vals), true
		}
		return percentile(sorted(vals), 50), true
	}
	return nil, false
}

// mode returns the most frequent non-null cell. Ties go to the value seen
// first.
func mode(ds Dataset, field string) (any, bool) {
	h := newRowHasher()
	keys := []string{field}
	buckets := make(map[uint64][]int)
	var firsts []int
	var counts []int

	for i := 0; i < ds.Len(); i++ {
		if ds.Value(i, field) == nil {
			continue
		}
		hv := h.sum(ds, i, keys)
		pos := -1
		for _, c := range buckets[hv] {
			if sameRow(ds, i, firsts[c], keys) {
				pos = c
				break
			}
		}
		if pos < 0 {
			pos = len(firsts)
			buckets[hv] = append(buckets[hv], pos)
			firsts = append(firsts, i)
			counts = append(counts, 0)
		}
		counts[pos]++
	}
	if len(firsts) == 0 {
		return nil, false
	}
	best := 0
	for c := range counts {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return ds.Value(firsts[best], field), true
}

// ── Duplicates ──────────────────────────────────────────────────────────────

func (q *qualityRun) duplicateKeys(ds Dataset) []string {
	var keys []string
	if len(q.dq.Duplicates.Keys) > 0 {
		for _, k := range q.dq.Duplicates.Keys {
			if !HasField(ds, k) {
				q.warnMissing("duplicate", k)
				continue
			}
			keys = append(keys, k)
		}
		return keys
	}
	for _, f := range q.schema.FieldNames() {
		if HasField(ds, f) {
			keys = append(keys, f)
		}
	}
	if len(keys) == 0 {
		keys = ds.Fields()
	}
	return keys
}

func (q *qualityRun) duplicates(ds Dataset) Dataset {
	if !q.dq.Duplicates.Enabled {
		return ds
	}
	keys := q.duplicateKeys(ds)
	if len(keys) == 0 {
		return ds
	}

	h := newRowHasher()
	seen := make(map[uint64][]int, ds.Len())
	keep := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		hv := h.sum(ds, i, keys)
		dup := false
		for _, j := range seen[hv] {
			if sameRow(ds, i, j, keys) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[hv] = append(seen[hv], i)
		keep = append(keep, i)
	}

	removed := ds.Len() - len(keep)
	if removed == 0 {
		return ds
	}
	q.report.DuplicatesRemoved = removed
	return newSubView(ds, keep)
}

// ── Outliers ────────────────────────────────────────────────────────────────

// bounds computes the accepted interval of vals for a rule. ok is false when
// the data cannot support the method.
func bounds(vals []float64, r ir.OutlierRule) (lo, hi float64, ok bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	switch r.Method {
	case ir.MethodIQR:
		s := sorted(vals)
		q1, q3 := percentile(s, 25), percentile(s, 75)
		k := r.Upper
		if k <= 0 {
			k = 1.5
		}
		return q1 - k*(q3-q1), q3 + k*(q3-q1), true
	case ir.MethodZScore:
		if len(vals) < 2 {
			return 0, 0, false
		}
		m, sd := mean(vals), stddev(vals)
		if sd == 0 || math.IsNaN(sd) {
			return 0, 0, false
		}
		t := r.Upper
		if t <= 0 {
			t = 3
		}
		return m - t*sd, m + t*sd, true
	default:
		s := sorted(vals)
		return percentile(s, r.Lower), percentile(s, r.Upper), true
	}
}

func (q *qualityRun) outliers(ds Dataset) Dataset {
	if !q.dq.Outliers.Enabled {
		return ds
	}
	for _, r := range q.dq.Outliers.Rules {
		for _, f := range r.Fields {
			if !HasField(ds, f) {
				q.warnMissing("outlier", f)
				continue
			}
			ds = q.outlierField(ds, f, r)
		}
	}
	return ds
}

func (q *qualityRun) outlierField(ds Dataset, f string, r ir.OutlierRule) Dataset {
	lo, hi, ok := bounds(looseNumbers(ds, f), r)
	if !ok {
		logger.Debug("outliers: %s bounds undefined for %q", r.Method, f)
		return ds
	}
	outside := func(i int) (float64, bool) {
		v, isNum := cellFloat(ds.Value(i, f))
		return v, isNum && (v < lo || v > hi)
	}

	switch r.Action {
	case ir.ActionDrop:
		keep := make([]int, 0, ds.Len())
		for i := 0; i < ds.Len(); i++ {
			if _, out := outside(i); !out {
				keep = append(keep, i)
			}
		}
		if removed := ds.Len() - len(keep); removed > 0 {
			q.report.OutliersDropped += removed
			return newSubView(ds, keep)
		}
		return ds

	case ir.ActionFlag:
		col := make([]any, ds.Len())
		for i := range col {
			_, out := outside(i)
			col[i] = out
		}
		p := newPatchView(ds)
		q.flag(p, f+OutlierSuffix, col)
		return p

	default: // cap
		col := column(ds, f)
		capped := 0
		for i := range col {
			v, out := outside(i)
			if !out {
				continue
			}
			col[i] = math.Max(lo, math.Min(hi, v))
			capped++
		}
		if capped == 0 {
			return ds
		}
		q.report.OutliersCapped[f] += capped
		p := newPatchView(ds)
		p.set(f, col)
		return p
	}
}

// ── Validation ──────────────────────────────────────────────────────────────

// passes reports whether a cell satisfies a constraint. Nulls satisfy every
// constraint except not_null.
func passes(v any, r ir.ValidationRule, allowed map[string]bool, fold cases.Caser) bool {
	if v == nil {
		return r.Constraint != ir.ConstraintNotNull
	}
	switch r.Constraint {
	case ir.ConstraintNotNull:
		return true
	case ir.ConstraintIn:
		return allowed[fold.String(cellText(v))]
	}

	f, ok := cellFloat(v)
	if !ok {
		if t, isTime := timeOf(v); isTime && r.Constraint == ir.ConstraintRange {
			f, ok = t, true
		}
	}
	if !ok {
		return false
	}
	switch r.Constraint {
	case ir.ConstraintPositive:
		return f > 0
	case ir.ConstraintNonNegative:
		return f >= 0
	case ir.ConstraintRange:
		return (r.Min == nil || f >= *r.Min) && (r.Max == nil || f <= *r.Max)
	}
	return true
}

func (q *qualityRun) validation(ds Dataset) Dataset {
	fold := cases.Fold()
	for _, r := range q.dq.Validation.Rules {
		if !HasField(ds, r.Field) {
			q.warnMissing("validation", r.Field)
			continue
		}
		allowed := make(map[string]bool, len(r.Values))
		for _, v := range r.Values {
			allowed[fold.String(v)] = true
		}

		if r.Action == ir.ActionDrop {
			keep := make([]int, 0, ds.Len())
			for i := 0; i < ds.Len(); i++ {
				if passes(ds.Value(i, r.Field), r, allowed, fold) {
					keep = append(keep, i)
				}
			}
			if removed := ds.Len() - len(keep); removed > 0 {
				q.report.InvalidDropped += removed
				ds = newSubView(ds, keep)
			}
			continue
		}

		col := make([]any, ds.Len())
		for i := range col {
			col[i] = !passes(ds.Value(i, r.Field), r, allowed, fold)
		}
		p := newPatchView(ds)
		q.flag(p, r.Field+InvalidSuffix, col)
		ds = p
	}
	return ds
}

// ── Reporting ───────────────────────────────────────────────────────────────

func (q *qualityRun) log() {
	rep := q.dq.Reporting
	if !rep.ShowSummary && !rep.ShowDetails {
		return
	}
	level, ok := logger.ParseLevel(rep.LogLevel)
	if !ok {
		level = logger.LevelInfo
	}
	r := q.report
	if rep.ShowSummary {
		logger.Log(level, "data quality: %d → %d rows (missing dropped %d, duplicates %d, outliers dropped %d, invalid dropped %d)",
			r.InputRows, r.OutputRows, r.MissingDropped, r.DuplicatesRemoved, r.OutliersDropped, r.InvalidDropped)
	}
	if rep.ShowDetails {
		for _, f := range sortedKeys(r.Filled) {
			logger.Log(level, "data quality: filled %d nulls in %s", r.Filled[f], f)
		}
		for _, f := range sortedKeys(r.Flagged) {
			logger.Log(level, "data quality: flagged %d rows in %s", r.Flagged[f], f)
		}
		for _, f := range sortedKeys(r.OutliersCapped) {
			logger.Log(level, "data quality: capped %d outliers in %s", r.OutliersCapped[f], f)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
