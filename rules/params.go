package rules

import (
	"sort"
	"strings"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// ============================================================================
// PARAMETERS: enumerations, numeric ranges, typed defaults
// ============================================================================

var correlationMethods = map[string]bool{"pearson": true, "spearman": true, "kendall": true}

var logLevels = map[string]bool{"debug": true, "info": true, "warning": true, "warn": true, "error": true}

func oneOf(allowed map[string]bool) string {
	keys := make([]string, 0, len(allowed))
	for k := range allowed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "one of " + strings.Join(keys, ", ")
}

func aggregationNames() map[string]bool {
	return map[string]bool{
		"sum": true, "mean": true, "count": true, "min": true,
		"max": true, "median": true, "nunique": true, "std": true,
	}
}

// leaf names the parameter at path: its last key.
func leaf(path spec.Path) string {
	for i := len(path) - 1; i >= 0; i-- {
		if k, ok := path[i].(string); ok {
			return k
		}
	}
	return path.String()
}

func (c *checker) invalid(path spec.Path, expected, format string, args ...any) {
	c.add(CodeInvalidParameter, path, "", facts{"param": leaf(path), "expected": expected}, format, args...)
}

// enum reports a present value outside allowed.
func (c *checker) enum(n spec.Node, path spec.Path, allowed map[string]bool) {
	if n.IsNull() {
		return
	}
	if !allowed[n.Lower()] {
		c.invalid(path, oneOf(allowed), "%s %v is not recognised", leaf(path), n.Value())
	}
}

// positiveInt reports a present value that is not a positive integer.
func (c *checker) positiveInt(n spec.Node, path spec.Path) {
	if n.IsNull() {
		return
	}
	if n.Int(0) <= 0 {
		c.invalid(path, "a positive integer", "%s must be a positive integer, got %v", leaf(path), n.Value())
	}
}

func checkParameters(c *checker) {
	for _, p := range c.pages() {
		for j, f := range p.node.Get("filters").List() {
			c.filterParameters(f, p.path.Key("filters").Index(j))
		}
		for j, m := range p.node.Get("metrics").List() {
			c.metricParameters(m, p.path.Key("metrics").Index(j))
		}
		for _, comp := range ir.Components(p.node, p.path) {
			c.vizParameters(comp)
		}
	}
	for _, b := range c.dqBlocks() {
		c.dqParameters(b)
	}
}

func (c *checker) filterParameters(f spec.Node, path spec.Path) {
	field, _ := f.Get("field").Text()
	ft, known := c.fieldType(field)

	kindKey := "kind"
	if !f.Has("kind") {
		kindKey = "type"
	}
	raw := ir.FilterKindOf(f)
	kind, ok := ir.ParseFilterKind(raw)
	switch {
	case raw != "" && !ok:
		c.invalid(path.Key(kindKey), "one of range, categorical, boolean", "filter kind %q is not recognised", raw)
		return
	case raw == "" && known:
		switch {
		case ft.IsNumeric(), ft == schema.TypeDatetime:
			kind = ir.FilterRange
		case ft == schema.TypeBoolean:
			kind = ir.FilterBoolean
		default:
			kind = ir.FilterCategorical
		}
	case raw == "":
		return
	}

	if kind == ir.FilterRange && known && !ft.IsNumeric() && ft != schema.TypeDatetime {
		c.add(CodeSchemaViolation, path.Key(kindKey), "filter", facts{"field": field, "type": string(ft)},
			"range filter over %s field %q", ft, field)
		return
	}

	if f.Has("default") {
		if _, err := ir.ParseFilterValue(kind, ft, f.Get("default").Clone()); err != nil {
			expected := map[ir.FilterKind]string{
				ir.FilterRange:       "[low, high] or {min, max}",
				ir.FilterCategorical: "a value or a list of values",
				ir.FilterBoolean:     "true or false",
			}[kind]
			c.invalid(path.Key("default"), expected, "filter default: %v", err)
		}
	}
}

func (c *checker) metricParameters(m spec.Node, path spec.Path) {
	field, _ := m.Get("field").Text()
	aggKey := "aggregation"
	if !m.Has(aggKey) && m.Has("agg") {
		aggKey = "agg"
	}

	agg := ir.AggCount
	if field != "" {
		agg = ir.AggSum
	}
	if n := m.Get(aggKey); !n.IsNull() {
		parsed, ok := ir.ParseAggregation(n.Str(""))
		if !ok {
			c.invalid(path.Key(aggKey), oneOf(aggregationNames()), "aggregation %v is not recognised", n.Value())
			return
		}
		agg = parsed
	}

	if !agg.Numeric() {
		return
	}
	if field == "" {
		c.invalid(path.Key("field"), "a numeric field", "%s aggregation needs a field", agg)
		return
	}
	if ft, ok := c.fieldType(field); ok && !ft.IsNumeric() {
		c.add(CodeSchemaViolation, path.Key(aggKey), "agg", facts{"field": field, "type": string(ft)},
			"%s over %s field %q", agg, ft, field)
	}
}

func (c *checker) vizParameters(comp ir.Component) {
	viz := comp.Visualization
	params := viz.Get("params")
	pp := comp.Path.Key("params")

	c.positiveInt(viz.Get("limit"), comp.Path.Key("limit"))
	c.positiveInt(params.Get("limit"), pp.Key("limit"))
	c.positiveInt(params.Get("bins"), pp.Key("bins"))
	c.positiveInt(params.Get("rolling_window"), pp.Key("rolling_window"))

	if a := params.Get("alpha"); !a.IsNull() {
		if f, ok := a.Number(); !ok || f <= 0 || f > 1 {
			c.invalid(pp.Key("alpha"), "a number in (0, 1]", "alpha must be in (0, 1], got %v", a.Value())
		}
	}

	if pl := params.Get("percentiles"); !pl.IsNull() {
		if !pl.IsList() || pl.Len() == 0 {
			c.invalid(pp.Key("percentiles"), "a list of numbers between 0 and 100", "percentiles must be a non-empty list")
		}
		for i, n := range pl.List() {
			if f, ok := n.Number(); !ok || f < 0 || f > 100 {
				c.invalid(pp.Key("percentiles").Index(i), "a number between 0 and 100", "percentile %v is out of range", n.Value())
			}
		}
	}

	c.enum(params.Get("method"), pp.Key("method"), correlationMethods)

	ct, _ := ir.ParseChartType(viz.Get("chart_type").Str(viz.Get("type").Str("")))
	aggKey := "agg"
	if !params.Has(aggKey) && params.Has("aggregation") {
		aggKey = "aggregation"
	}
	if n := params.Get(aggKey); !n.IsNull() {
		if _, ok := ir.ParseAggregation(n.Str("")); !ok {
			c.invalid(pp.Key(aggKey), oneOf(aggregationNames()), "aggregation %v is not recognised", n.Value())
			return
		}
	}

	// Aggregated value fields must be numeric unless counting.
	var valueRole ir.Role
	var def ir.Aggregation
	switch ct {
	case ir.ChartBar:
		valueRole, def = ir.RoleY, ir.AggSum
	case ir.ChartHeatmap:
		valueRole, def = ir.RoleZ, ir.AggMean
	default:
		return
	}
	roles := ir.ResolveRoles(viz)
	field := roles[valueRole]
	if ct == ir.ChartHeatmap && roles[ir.RoleColor] != "" {
		field = roles[ir.RoleColor]
	}
	agg, ok := ir.ParseAggregation(params.Get(aggKey).Str(""))
	if !ok {
		agg = def
	}
	if field == "" || !agg.Numeric() {
		return
	}
	if ft, ok := c.fieldType(field); ok && !ft.IsNumeric() {
		c.add(CodeSchemaViolation, pp.Key(aggKey), "agg", facts{"field": field, "type": string(ft)},
			"%s chart aggregates %s over %s field %q", ct, agg, ft, field)
	}
}

// ============================================================================
// DATA QUALITY PARAMETERS
// ============================================================================

type block struct {
	node spec.Node
	path spec.Path
}

// dqBlocks returns the data source block then each page's override, in
// document order.
func (c *checker) dqBlocks() []block {
	var out []block
	srcPath := dashboardPath.Key("data_source").Key("data_quality")
	if n := c.doc.At(srcPath); n.IsMap() {
		out = append(out, block{node: n, path: srcPath})
	}
	for _, p := range c.pages() {
		if n := p.node.Get("data_quality"); n.IsMap() {
			out = append(out, block{node: n, path: p.path.Key("data_quality")})
		}
	}
	return out
}

func (c *checker) boolean(n spec.Node, path spec.Path) {
	if n.IsNull() {
		return
	}
	if _, ok := n.Value().(bool); !ok {
		c.invalid(path, "true or false", "%s must be a boolean, got %v", leaf(path), n.Value())
	}
}

func (c *checker) dqParameters(b block) {
	mv := b.node.Get("missing_values")
	mp := b.path.Key("missing_values")
	c.enum(mv.Get("strategy"), mp.Key("strategy"), ir.MissingStrategies)
	for i, r := range mv.Get("rules").List() {
		rp := mp.Key("rules").Index(i)
		c.enum(r.Get("action"), rp.Key("action"), ir.MissingActions)
		c.enum(r.Get("method"), rp.Key("method"), ir.FillMethods)
		if r.Get("method").Lower() == ir.FillConstant && !r.Has("value") {
			c.invalid(rp.Key("value"), "a fill value", "constant fill needs a value")
		}
	}

	c.boolean(b.node.Get("duplicates").Get("enabled"), b.path.Key("duplicates").Key("enabled"))

	out := b.node.Get("outliers")
	op := b.path.Key("outliers")
	c.boolean(out.Get("enabled"), op.Key("enabled"))
	for i, r := range out.Get("rules").List() {
		rp := op.Key("rules").Index(i)
		c.enum(r.Get("method"), rp.Key("method"), ir.OutlierMethods)
		c.enum(r.Get("action"), rp.Key("action"), ir.OutlierActions)
		c.outlierBounds(r, rp)
	}

	val := b.node.Get("validation")
	vp := b.path.Key("validation")
	for i, r := range val.Get("rules").List() {
		rp := vp.Key("rules").Index(i)
		c.validationParameters(r, rp)
	}

	c.enum(b.node.Get("reporting").Get("log_level"), b.path.Key("reporting").Key("log_level"), logLevels)
}

func (c *checker) outlierBounds(r spec.Node, rp spec.Path) {
	method := r.Get("method").Lower()
	if method == "" {
		method = ir.MethodPercentile
	}
	bound := func(key string) (float64, bool) {
		n := r.Get(key)
		if n.IsNull() {
			return 0, false
		}
		f, ok := n.Number()
		if !ok {
			c.invalid(rp.Key(key), "a number", "%s must be a number, got %v", key, n.Value())
		}
		return f, ok
	}
	lo, hasLo := bound("lower")
	hi, hasHi := bound("upper")

	switch method {
	case ir.MethodPercentile:
		if hasLo && (lo < 0 || lo > 100) {
			c.invalid(rp.Key("lower"), "a percentile between 0 and 100", "lower percentile %v is out of range", lo)
		}
		if hasHi && (hi < 0 || hi > 100) {
			c.invalid(rp.Key("upper"), "a percentile between 0 and 100", "upper percentile %v is out of range", hi)
		}
		if !hasLo {
			lo = 1
		}
		if !hasHi {
			hi = 99
		}
		if lo >= hi {
			c.invalid(rp.Key("lower"), "a value below upper", "lower percentile %v is not below upper %v", lo, hi)
		}
	case ir.MethodIQR, ir.MethodZScore:
		if hasHi && hi <= 0 {
			c.invalid(rp.Key("upper"), "a positive number", "%s threshold must be positive, got %v", method, hi)
		}
	}
}

func (c *checker) validationParameters(r spec.Node, rp spec.Path) {
	key := "constraint"
	if !r.Has(key) && r.Has("rule") {
		key = "rule"
	}
	cons := r.Get(key).Lower()
	if cons == "" {
		c.invalid(rp.Key(key), oneOf(ir.Constraints), "validation rule has no constraint")
	} else {
		c.enum(r.Get(key), rp.Key(key), ir.Constraints)
	}
	c.enum(r.Get("action"), rp.Key("action"), ir.ValidationActions)

	switch cons {
	case ir.ConstraintRange:
		lo, hasLo := r.Get("min").Number()
		hi, hasHi := r.Get("max").Number()
		switch {
		case !hasLo && !hasHi:
			c.invalid(rp.Key("min"), "a number", "range constraint needs min or max")
		case hasLo && hasHi && lo > hi:
			c.invalid(rp.Key("min"), "a value not above max", "range min %v exceeds max %v", lo, hi)
		}
	case ir.ConstraintIn:
		if len(r.Get("values").Strings()) == 0 {
			c.invalid(rp.Key("values"), "a non-empty list of values", "in constraint needs values")
		}
	}
}
