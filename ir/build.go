package ir

import (
	"fmt"
	"strings"

	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// ============================================================================
// IR BUILDER: validated Document → *Dashboard
// ============================================================================
// Build assumes the document passed rules.Validate with no ERROR or CRITICAL
// violation. On unvalidated input the result is undefined: Build never
// panics, silently skips entries it cannot type (unknown chart types,
// unparseable defaults) and only fails when there is no dashboard mapping or
// no bindable schema.
//
// Responsibilities:
//   1. Role normalization: roles map + legacy x_field/... keys → Roles
//   2. Defaults: bins 30, alpha 0.7, percentiles [25 50 75], hexbin bins 20,
//      correlation method pearson, DQ strategy auto, ...
//   3. Flattening: layout.components (nested depth-first) → Visualizations
//   4. Labels and formatting: dashboard-level, overlaid by viz params
//
// Building is pure: the document is never written to, and the same document
// always yields an identical IR.
// ============================================================================

// Build compiles a document into IR.
func Build(doc *spec.Document, reg *schema.Registry) (*Dashboard, error) {
	dash := doc.At(spec.Root.Key("dashboard"))
	if !dash.IsMap() {
		return nil, fmt.Errorf("%w: no dashboard mapping", ErrMalformed)
	}
	s, ref, errs := BindSchema(doc, reg)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, errs[0])
	}

	ds := dash.Get("data_source")
	id, _ := dash.Get("id").Text()
	version, _ := doc.Root().Get("dsl_version").Text()

	d := &Dashboard{
		ID:         id,
		Title:      dash.Get("title").Str(id),
		Version:    version,
		DataSource: DataSource{Name: ds.Get("name").Str(s.Name()), SchemaRef: ref},
		Fields:     s.Fields(),
		schema:     s,
	}
	if m, ok := dash.Get("metadata").Clone().(map[string]any); ok {
		d.Metadata = m
	}

	b := &builder{schema: s, currency: d.Currency()}
	d.Formatting = b.formats(ds.Get("formatting"), nil)
	d.ColumnLabels = b.labels(ds.Get("column_labels"))

	sourceDQ := ds.Get("data_quality")
	for i, p := range dash.Get("pages").List() {
		if !p.IsMap() {
			continue
		}
		d.Pages = append(d.Pages, b.page(i, p, sourceDQ, d))
	}
	return d, nil
}

type builder struct {
	schema   schema.FieldSchema
	currency string
}

func (b *builder) fieldType(field string) schema.FieldType {
	t, _ := b.schema.TypeOf(field)
	return t
}

// ============================================================================
// PAGES
// ============================================================================

func (b *builder) page(i int, p, sourceDQ spec.Node, d *Dashboard) Page {
	id, ok := p.Get("id").Text()
	if !ok || id == "" {
		id = fmt.Sprintf("page_%d", i+1)
	}
	page := Page{
		ID:             id,
		Title:          p.Get("title").Str(""),
		Filters:        []Filter{},
		Metrics:        []Metric{},
		Visualizations: []Visualization{},
	}

	for j, f := range p.Get("filters").List() {
		if flt, ok := b.filter(j, f, d); ok {
			page.Filters = append(page.Filters, flt)
		}
	}
	for j, m := range p.Get("metrics").List() {
		if met, ok := b.metric(j, m, d); ok {
			page.Metrics = append(page.Metrics, met)
		}
	}
	for _, c := range Components(p, nil) {
		if v, ok := b.visualization(len(page.Visualizations), c, d); ok {
			page.Visualizations = append(page.Visualizations, v)
		}
	}

	dq := sourceDQ
	if p.Get("data_quality").IsMap() {
		dq = p.Get("data_quality")
	}
	page.DataQuality = buildDataQuality(dq)
	return page
}

func (b *builder) filter(j int, f spec.Node, d *Dashboard) (Filter, bool) {
	if !f.IsMap() {
		return Filter{}, false
	}
	field, _ := f.Get("field").Text()
	id, ok := f.Get("id").Text()
	if !ok || id == "" {
		id = field
	}
	if id == "" {
		id = fmt.Sprintf("filter_%d", j+1)
	}

	kind, ok := ParseFilterKind(FilterKindOf(f))
	if !ok {
		kind = inferFilterKind(b.fieldType(field))
	}
	flt := Filter{
		ID:    id,
		Field: field,
		Kind:  kind,
		Label: f.Get("label").Str(d.ColumnLabels[field]),
	}
	if def, err := ParseFilterValue(kind, b.fieldType(field), f.Get("default").Clone()); err == nil {
		flt.Default = def
	}
	return flt, true
}

func inferFilterKind(t schema.FieldType) FilterKind {
	switch {
	case t.IsNumeric(), t == schema.TypeDatetime:
		return FilterRange
	case t == schema.TypeBoolean:
		return FilterBoolean
	default:
		return FilterCategorical
	}
}

func (b *builder) metric(j int, m spec.Node, d *Dashboard) (Metric, bool) {
	if !m.IsMap() {
		return Metric{}, false
	}
	field, _ := m.Get("field").Text()

	agg := AggCount
	if field != "" {
		agg = AggSum
	}
	if raw := m.Get("aggregation").Str(m.Get("agg").Str("")); raw != "" {
		parsed, ok := ParseAggregation(raw)
		if !ok {
			return Metric{}, false
		}
		agg = parsed
	}

	id, ok := m.Get("id").Text()
	if !ok || id == "" {
		id = fmt.Sprintf("metric_%d", j+1)
	}

	met := Metric{ID: id, Field: field, Aggregation: agg}
	met.Label = m.Get("label").Str(m.Get("title").Str(metricLabel(agg, d.ColumnLabels[field], field)))

	if f, ok := b.format(m.Get("format")); ok {
		met.Format = &f
	} else if f, ok := d.Formatting[field]; ok && agg != AggCount && agg != AggNUnique {
		met.Format = &f
	}
	return met, true
}

func metricLabel(agg Aggregation, label, field string) string {
	if field == "" {
		return "Row Count"
	}
	if label == "" {
		label = DefaultLabel(field)
	}
	switch agg {
	case AggSum:
		return "Total " + label
	case AggMean:
		return "Average " + label
	case AggCount:
		return label + " Count"
	case AggMin:
		return "Minimum " + label
	case AggMax:
		return "Maximum " + label
	case AggMedian:
		return "Median " + label
	case AggNUnique:
		return "Distinct " + label
	case AggStd:
		return label + " Std Dev"
	}
	return label
}

// ============================================================================
// VISUALIZATIONS
// ============================================================================

// Component is a visualization node located in its page.
type Component struct {
	Holder        spec.Node // the layout component
	Visualization spec.Node // holder.visualization
	Path          spec.Path // path of the visualization node, relative to the page
}

// Components flattens a page's layout.components depth-first in source
// order. Nested groups are read from a component's own "components" list.
// Components without a visualization are skipped. pagePath prefixes every
// returned path.
func Components(page spec.Node, pagePath spec.Path) []Component {
	var out []Component
	var walk func(list spec.Node, at spec.Path)
	walk = func(list spec.Node, at spec.Path) {
		for i, c := range list.List() {
			cp := at.Index(i)
			if v := c.Get("visualization"); v.IsMap() {
				out = append(out, Component{Holder: c, Visualization: v, Path: cp.Key("visualization")})
			}
			if nested := c.Get("components"); nested.IsList() {
				walk(nested, cp.Key("components"))
			}
		}
	}
	walk(page.Get("layout").Get("components"), pagePath.Key("layout").Key("components"))
	return out
}

func (b *builder) visualization(index int, c Component, d *Dashboard) (Visualization, bool) {
	viz := c.Visualization
	ct, ok := ParseChartType(viz.Get("chart_type").Str(viz.Get("type").Str("")))
	if !ok {
		return Visualization{}, false
	}
	params := viz.Get("params")

	id, _ := viz.Get("id").Text()
	if id == "" {
		id, _ = c.Holder.Get("id").Text()
	}
	v := Visualization{
		Index:     index,
		ID:        id,
		Title:     viz.Get("title").Str(c.Holder.Get("title").Str("")),
		ChartType: ct,
		Roles:     ResolveRoles(viz),
		Limit:     params.Get("limit").Int(viz.Get("limit").Int(0)),
	}
	if v.Limit < 0 {
		v.Limit = 0
	}
	v.Params = b.params(ct, params, v.Roles)
	v.Formatting = b.formats(params.Get("formatting"), d.Formatting)
	v.ColumnLabels = mergeLabels(d.ColumnLabels, params.Get("column_labels"))
	return v, true
}

func (b *builder) params(ct ChartType, p spec.Node, roles map[Role]string) Params {
	switch ct {
	case ChartHistogram:
		return HistogramParams{
			Bins:         positive(p.Get("bins").Int(0), 30),
			LogX:         p.Get("log_x").Bool(false),
			LogY:         p.Get("log_y").Bool(false),
			ShowMarginal: p.Get("show_marginal").Bool(false),
		}
	case ChartScatter:
		return ScatterParams{
			Alpha:     p.Get("alpha").Float(0.7),
			Trendline: p.Get("trendline").Str(""),
		}
	case ChartSummary:
		sp := SummaryParams{
			Columns:     p.Get("columns").Strings(),
			By:          p.Get("by").Str(roles[RoleBy]),
			Percentiles: []float64{25, 50, 75},
		}
		if pl := p.Get("percentiles"); pl.IsList() {
			var ps []float64
			for _, n := range pl.List() {
				if f, ok := n.Number(); ok {
					ps = append(ps, f)
				}
			}
			if len(ps) > 0 {
				sp.Percentiles = ps
			}
		}
		return sp
	case ChartTable:
		return TableParams{Columns: p.Get("columns").Strings()}
	case ChartBar:
		def := AggCount
		if roles[RoleY] != "" {
			def = AggSum
		}
		return BarParams{Agg: parseAggOr(p.Get("agg").Str(p.Get("aggregation").Str("")), def)}
	case ChartLine:
		return LineParams{RollingWindow: positive(p.Get("rolling_window").Int(0), 0)}
	case ChartHexbin:
		return HexbinParams{Bins: positive(p.Get("bins").Int(0), 20)}
	case ChartHeatmap:
		return HeatmapParams{
			Agg:   parseAggOr(p.Get("agg").Str(p.Get("aggregation").Str("")), AggMean),
			Annot: p.Get("annot").Bool(false),
		}
	case ChartCorrelation:
		return CorrelationParams{
			Columns:   p.Get("columns").Strings(),
			Method:    strings.ToLower(p.Get("method").Str("pearson")),
			MaskUpper: p.Get("mask_upper").Bool(false),
		}
	default:
		return DistributionParams{Inner: p.Get("inner").Str("")}
	}
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func parseAggOr(s string, def Aggregation) Aggregation {
	if a, ok := ParseAggregation(s); ok {
		return a
	}
	return def
}

// ============================================================================
// FORMATTING
// ============================================================================

// formats reads a field → format mapping over a base set. The base is not
// modified.
func (b *builder) formats(n spec.Node, base map[string]Format) map[string]Format {
	out := make(map[string]Format, len(base)+n.Len())
	for k, v := range base {
		out[k] = v
	}
	for _, field := range n.Keys() {
		if f, ok := b.format(n.Get(field)); ok {
			out[field] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// format reads one format spec: a type name or a mapping.
func (b *builder) format(n spec.Node) (Format, bool) {
	var f Format
	switch {
	case n.IsString():
		f.Type = strings.ToLower(n.Str(""))
	case n.IsMap():
		f.Type = strings.ToLower(n.Get("type").Str("number"))
	default:
		return Format{}, false
	}

	switch f.Type {
	case "currency":
		f.Precision, f.Thousands, f.Currency = 2, true, b.currency
	case "percent":
		f.Precision = 1
	case "integer":
		f.Precision, f.Thousands = 0, true
	default:
		f.Type = "number"
		f.Precision, f.Thousands = 2, true
	}
	if n.IsMap() {
		f.Precision = n.Get("precision").Int(f.Precision)
		f.Thousands = n.Get("use_thousands_separator").Bool(n.Get("thousands").Bool(f.Thousands))
		f.Currency = n.Get("currency").Str(f.Currency)
		f.Prefix = n.Get("prefix").Str("")
		f.Suffix = n.Get("suffix").Str("")
	}
	if f.Precision < 0 {
		f.Precision = 0
	}
	return f, true
}

// ============================================================================
// DATA QUALITY
// ============================================================================

func buildDataQuality(n spec.Node) DataQuality {
	var dq DataQuality
	if !n.IsMap() {
		dq.MissingValues.Strategy = StrategyNone
		return dq
	}

	mv := n.Get("missing_values")
	dq.MissingValues.Strategy = StrategyNone
	if mv.IsMap() {
		dq.MissingValues.Strategy = lowerOr(mv.Get("strategy"), StrategyAuto)
		for _, r := range mv.Get("rules").List() {
			field, _ := r.Get("field").Text()
			if field == "" {
				continue
			}
			rule := MissingRule{
				Field:  field,
				Method: lowerOr(r.Get("method"), ""),
				Value:  r.Get("value").Clone(),
			}
			def := ActionDrop
			if rule.Method != "" || r.Has("value") {
				def = ActionFill
			}
			rule.Action = lowerOr(r.Get("action"), def)
			if rule.Action == ActionFill && rule.Method == "" {
				rule.Method = FillConstant
				if !r.Has("value") {
					rule.Method = FillMedian
				}
			}
			dq.MissingValues.Rules = append(dq.MissingValues.Rules, rule)
		}
	}

	dup := n.Get("duplicates")
	if dup.IsMap() {
		dq.Duplicates.Enabled = dup.Get("enabled").Bool(false)
		dq.Duplicates.Keys = firstList(dup, "keys", "subset", "fields")
	}

	out := n.Get("outliers")
	if out.IsMap() {
		for _, r := range out.Get("rules").List() {
			fields := firstList(r, "fields", "field")
			if len(fields) == 0 {
				continue
			}
			rule := OutlierRule{
				Fields: fields,
				Method: lowerOr(r.Get("method"), MethodPercentile),
				Action: lowerOr(r.Get("action"), ActionCap),
			}
			switch rule.Method {
			case MethodIQR:
				rule.Upper = r.Get("upper").Float(r.Get("k").Float(1.5))
			case MethodZScore:
				rule.Upper = r.Get("upper").Float(r.Get("threshold").Float(3))
			default:
				rule.Lower = r.Get("lower").Float(1)
				rule.Upper = r.Get("upper").Float(99)
			}
			dq.Outliers.Rules = append(dq.Outliers.Rules, rule)
		}
		dq.Outliers.Enabled = out.Get("enabled").Bool(len(dq.Outliers.Rules) > 0)
	}

	val := n.Get("validation")
	if val.IsMap() {
		for _, r := range val.Get("rules").List() {
			field, _ := r.Get("field").Text()
			if field == "" {
				continue
			}
			rule := ValidationRule{
				Field:      field,
				Constraint: lowerOr(r.Get("constraint"), lowerOr(r.Get("rule"), "")),
				Action:     lowerOr(r.Get("action"), ActionFlag),
				Values:     r.Get("values").Strings(),
			}
			if f, ok := r.Get("min").Number(); ok {
				rule.Min = &f
			}
			if f, ok := r.Get("max").Number(); ok {
				rule.Max = &f
			}
			dq.Validation.Rules = append(dq.Validation.Rules, rule)
		}
	}

	rep := n.Get("reporting")
	if rep.IsMap() {
		dq.Reporting = Reporting{
			LogLevel:    lowerOr(rep.Get("log_level"), "info"),
			ShowSummary: rep.Get("show_summary").Bool(false),
			ShowDetails: rep.Get("show_details").Bool(false),
		}
	}
	return dq
}

func lowerOr(n spec.Node, def string) string {
	if s := n.Lower(); s != "" {
		return s
	}
	return def
}

func firstList(n spec.Node, keys ...string) []string {
	for _, k := range keys {
		if n.Has(k) {
			return n.Get(k).Strings()
		}
	}
	return nil
}
