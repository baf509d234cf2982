package rules

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

const validYAML = `
dsl_version: "1.2.0"
dashboard:
  id: sales
  data_source:
    schema:
      order_id: string
      amount: float
      quantity: integer
      region: category
      refunded: boolean
      ordered_at: datetime
    data_quality:
      missing_values: {strategy: auto}
      duplicates: {enabled: true, keys: [order_id]}
      outliers:
        rules:
          - {fields: [amount], method: percentile, lower: 0.1, upper: 99.9, action: cap}
  pages:
    - id: overview
      filters:
        - {id: region, field: region, kind: categorical, default: [north]}
        - {id: refunded, field: refunded, kind: boolean, default: false}
        - {id: when, field: ordered_at, kind: range, default: ["2024-01-01", "2024-12-31"]}
      metrics:
        - {id: total, field: amount, aggregation: sum}
        - {id: orders, aggregation: count}
      layout:
        components:
          - visualization: {chart_type: histogram, roles: {x: amount}, params: {bins: 20}}
          - visualization: {chart_type: line, roles: {time: ordered_at, y: amount}}
          - visualization: {chart_type: bar, x_field: region, y_field: amount}
    - id: detail
      layout:
        components:
          - visualization: {chart_type: table, params: {columns: [order_id, amount], limit: 50}}
`

// withPage splices one page body under a minimal valid header.
func withPage(page string) string {
	return `
dsl_version: "1.2"
dashboard:
  id: d
  data_source:
    schema:
      order_id: string
      amount: float
      quantity: integer
      region: category
      refunded: boolean
      ordered_at: datetime
  pages:
    - id: p
` + page
}

func validate(t *testing.T, text string, reg *schema.Registry) []Violation {
	t.Helper()
	doc, err := spec.Parse([]byte(text))
	require.NoError(t, err)
	return Validate(doc, reg)
}

func codes(vs []Violation) []Code {
	out := make([]Code, len(vs))
	for i, v := range vs {
		out[i] = v.Code
	}
	return out
}

func only(t *testing.T, vs []Violation, code Code) Violation {
	t.Helper()
	var found []Violation
	for _, v := range vs {
		if v.Code == code {
			found = append(found, v)
		}
	}
	require.Len(t, found, 1, "violations: %v", vs)
	return found[0]
}

func TestValidateCleanDocument(t *testing.T) {
	vs := validate(t, validYAML, nil)
	assert.NotNil(t, vs)
	assert.Empty(t, vs)
	assert.False(t, HasBlocking(vs))
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		ok      bool
	}{
		{"patch", `"1.2.3"`, true},
		{"minor float", `1.1`, true},
		{"one zero", `"1.0"`, true},
		{"future", `"2.0"`, false},
		{"too new minor", `"1.3.0"`, false},
		{"garbage", `"latest"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := validate(t, "dsl_version: "+tt.version+"\ndashboard: {data_source: {schema: {a: float}}}\n", nil)
			if tt.ok {
				assert.NotContains(t, codes(vs), CodeUnsupportedVersion)
				return
			}
			v := only(t, vs, CodeUnsupportedVersion)
			assert.Equal(t, SeverityError, v.Severity)
			assert.Equal(t, "dsl_version", v.Path.String())
			assert.Contains(t, v.Repair, "1.0.x, 1.1.x, 1.2.x")
		})
	}

	vs := validate(t, "dashboard: {data_source: {schema: {a: float}}}\n", nil)
	assert.Equal(t, "dsl_version is missing", only(t, vs, CodeUnsupportedVersion).Message)
}

func TestValidateSchemaBinding(t *testing.T) {
	reg, err := schema.NewRegistry(mustSchema(t, "sales", "1", map[string]string{"amount": "float"}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		source string
		code   Code
		path   string
		repair string
	}{
		{"no data source", `{}`, CodeSchemaNotFound, "dashboard.data_source", "add dashboard.data_source.schema"},
		{"no schema", `{data_source: {name: x}}`, CodeSchemaNotFound, "dashboard.data_source.schema", "add dashboard.data_source.schema"},
		{"unknown ref", `{data_source: {schema: orders@3}}`, CodeSchemaNotFound, "dashboard.data_source.schema", "register schema 'orders@3' or reference one of: sales@1"},
		{"list", `{data_source: {schema: [a, b]}}`, CodeInvalidSchema, "dashboard.data_source.schema", "declare schema as a mapping"},
		{"empty", `{data_source: {schema: {}}}`, CodeInvalidSchema, "dashboard.data_source.schema", "declare at least one field"},
		{"bad type", `{data_source: {schema: {amount: money}}}`, CodeInvalidSchema, "dashboard.data_source.schema.amount", "change the type of field 'amount' to one of string, integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := validate(t, "dsl_version: \"1.2\"\ndashboard: "+tt.source+"\n", reg)
			v := only(t, vs, tt.code)
			assert.Equal(t, SeverityError, v.Severity)
			assert.Equal(t, tt.path, v.Path.String())
			assert.Contains(t, v.Repair, tt.repair)
		})
	}

	vs := validate(t, "dsl_version: \"1.2\"\ndashboard: {data_source: {schema: sales}}\n", reg)
	assert.Empty(t, vs)
}

func TestValidateSkipsReferencesWithoutSchema(t *testing.T) {
	vs := validate(t, `
dsl_version: "1.2"
dashboard:
  data_source: {schema: missing}
  pages:
    - id: p
      metrics: [{id: m, field: anything, aggregation: sum}]
`, nil)
	assert.Equal(t, []Code{CodeSchemaNotFound}, codes(vs))
}

func TestValidateDuplicatePageIDs(t *testing.T) {
	vs := validate(t, `
dsl_version: "1.2"
dashboard:
  data_source: {schema: {a: float}}
  pages:
    - id: p
    - id: q
    - id: p
`, nil)
	v := only(t, vs, CodeDuplicateID)
	assert.Equal(t, "dashboard.pages[2].id", v.Path.String())
	require.Len(t, v.Locations, 2)
	assert.Equal(t, "dashboard.pages[0].id", v.Locations[0].String())
	assert.Equal(t, "dashboard.pages[2].id", v.Locations[1].String())
	assert.Equal(t, "rename page 'p' to a unique id", v.Repair)
	assert.Positive(t, v.Line)
}

func TestValidateDuplicateSiblingIDs(t *testing.T) {
	vs := validate(t, withPage(`
      filters:
        - {field: region}
        - {id: region, field: region}
      metrics:
        - {id: m, aggregation: count}
        - {id: m, aggregation: count}
`), nil)
	assert.Equal(t, []Code{CodeDuplicateID, CodeDuplicateID}, codes(vs))
	assert.Equal(t, "dashboard.pages[0].filters[1].id", vs[0].Path.String())
	assert.Equal(t, "dashboard.pages[0].filters[0].field", vs[0].Locations[0].String())
	assert.Equal(t, "dashboard.pages[0].metrics[1].id", vs[1].Path.String())
}

func TestValidateCharts(t *testing.T) {
	vs := validate(t, withPage(`
      layout:
        components:
          - visualization: {chart_type: histogram}
          - visualization: {chart_type: boxplot, x_field: region}
          - visualization: {chart_type: line, y_field: amount}
          - visualization: {chart_type: line, roles: {time: ordered_at, y: amount}}
          - visualization: {chart_type: sankey}
          - components:
              - visualization: {chart_type: scatter, x_field: amount, roles: {y: quantity}}
`), nil)
	require.Equal(t, []Code{
		CodeMissingRequiredRole, CodeMissingRequiredRole, CodeMissingRequiredRole, CodeUnsupportedChartType,
	}, codes(vs))

	base := "dashboard.pages[0].layout.components"
	assert.Equal(t, base+"[0].visualization.roles.x", vs[0].Path.String())
	assert.Equal(t, "set roles.x (or x_field) for histogram charts", vs[0].Repair)
	assert.Equal(t, base+"[1].visualization.roles.y", vs[1].Path.String())
	assert.Equal(t, "set roles.y (or y_field) for boxplot charts", vs[1].Repair)
	assert.Equal(t, "set roles.x or roles.time for line charts", vs[2].Repair)
	assert.Equal(t, base+"[4].visualization.chart_type", vs[3].Path.String())
	assert.Contains(t, vs[3].Repair, "histogram, ecdf")
}

func TestValidateLegacyAliasSatisfiesRole(t *testing.T) {
	vs := validate(t, withPage(`
      layout:
        components:
          - visualization: {chart_type: histogram, x_field: amount}
          - visualization: {chart_type: histogram, x_field: region, roles: {x: amount}}
`), nil)
	assert.Empty(t, vs)
}

func TestValidateInvalidReferences(t *testing.T) {
	vs := validate(t, withPage(`
      filters:
        - {id: r, field: regoin}
      metrics:
        - {id: m, field: ammount, aggregation: sum}
        - {id: n, field: zzz_unrelated, aggregation: count}
      layout:
        components:
          - visualization:
              chart_type: bar
              x_field: regino
              roles: {y: amount, color: nope}
          - visualization: {chart_type: summary, params: {columns: [amount, qty], by: regionn}}
`), nil)
	for _, v := range vs {
		assert.Equal(t, CodeInvalidReference, v.Code, v.String())
		assert.Equal(t, SeverityCritical, v.Severity)
	}
	require.Len(t, vs, 7)

	assert.Equal(t, "dashboard.pages[0].filters[0].field", vs[0].Path.String())
	assert.Equal(t, "replace 'regoin' with 'region' or add 'regoin' to the schema", vs[0].Repair)
	assert.Equal(t, "replace 'ammount' with 'amount' or add 'ammount' to the schema", vs[1].Repair)
	assert.Contains(t, vs[2].Repair, "add field 'zzz_unrelated' to the schema or reference one of: amount, order_id, ordered_at")

	viz := "dashboard.pages[0].layout.components[0].visualization"
	assert.Equal(t, viz+".x_field", vs[3].Path.String(), "legacy key is reported where it was written")
	assert.Equal(t, viz+".roles.color", vs[4].Path.String())
	assert.Equal(t, "dashboard.pages[0].layout.components[1].visualization.params.columns[1]", vs[5].Path.String())
	assert.Equal(t, "dashboard.pages[0].layout.components[1].visualization.params.by", vs[6].Path.String())
}

func TestValidateParameters(t *testing.T) {
	vs := validate(t, withPage(`
      filters:
        - {id: a, field: region, kind: range}
        - {id: b, field: refunded, default: maybe}
        - {id: c, field: amount, kind: dropdown}
        - {id: d, field: amount, default: [10, 1]}
      metrics:
        - {id: m1, field: amount, aggregation: total}
        - {id: m2, field: region, aggregation: mean}
        - {id: m3, aggregation: sum}
      layout:
        components:
          - visualization: {chart_type: histogram, x_field: amount, params: {bins: 0, limit: -5}}
          - visualization: {chart_type: scatter, x_field: amount, y_field: quantity, params: {alpha: 2}}
          - visualization: {chart_type: summary, params: {percentiles: [5, 150]}}
          - visualization: {chart_type: corr_heatmap, params: {method: cosine}}
          - visualization: {chart_type: bar, x_field: region, y_field: order_id}
`), nil)

	want := []struct {
		code Code
		path string
	}{
		{CodeSchemaViolation, "filters[0].kind"},
		{CodeInvalidParameter, "filters[1].default"},
		{CodeInvalidParameter, "filters[2].kind"},
		{CodeInvalidParameter, "filters[3].default"},
		{CodeInvalidParameter, "metrics[0].aggregation"},
		{CodeSchemaViolation, "metrics[1].aggregation"},
		{CodeInvalidParameter, "metrics[2].field"},
		{CodeInvalidParameter, "layout.components[0].visualization.params.limit"},
		{CodeInvalidParameter, "layout.components[0].visualization.params.bins"},
		{CodeInvalidParameter, "layout.components[1].visualization.params.alpha"},
		{CodeInvalidParameter, "layout.components[2].visualization.params.percentiles[1]"},
		{CodeInvalidParameter, "layout.components[3].visualization.params.method"},
		{CodeSchemaViolation, "layout.components[4].visualization.params.agg"},
	}
	require.Len(t, vs, len(want), "violations: %v", vs)
	for i, w := range want {
		assert.Equal(t, w.code, vs[i].Code, w.path)
		assert.Equal(t, "dashboard.pages[0]."+w.path, vs[i].Path.String())
	}
	assert.Equal(t, "use a categorical filter for field 'region' (category)", vs[0].Repair)
	assert.Equal(t, "set method to one of kendall, pearson, spearman", vs[11].Repair)
	assert.Equal(t, "use count or nunique for field 'region' (category)", vs[5].Repair)
}

func TestValidateDataQuality(t *testing.T) {
	vs := validate(t, withPage(`
      data_quality:
        missing_values:
          rules:
            - {field: quantity, action: fill, method: mean}
            - {field: region, action: fill, method: median}
            - {field: amont, action: drop}
        duplicates: {enabled: false}
        outliers:
          rules:
            - {fields: [amount, refunded, region], method: iqr}
            - {field: quantity, lower: 0, upper: 100}
        validation:
          rules:
            - {field: region, constraint: positive}
            - {field: amount, constraint: range}
`), nil)

	want := []struct {
		code Code
		path string
	}{
		{CodeInvalidParameter, "validation.rules[1].min"},
		{CodeDQInappropriateMethod, "missing_values.rules[0].method"},
		{CodeSchemaViolation, "missing_values.rules[1].method"},
		{CodeDQFieldNotInSchema, "missing_values.rules[2].field"},
		{CodeDQQuestionableMethod, "duplicates"},
		{CodeDQInappropriateMethod, "outliers.rules[0].method"},
		{CodeSchemaViolation, "outliers.rules[0].method"},
		{CodeDQQuestionableMethod, "outliers.rules[1]"},
		{CodeSchemaViolation, "validation.rules[0].constraint"},
	}
	require.Len(t, vs, len(want), "violations: %v", vs)
	for i, w := range want {
		assert.Equal(t, w.code, vs[i].Code, w.path)
		assert.Equal(t, "dashboard.pages[0].data_quality."+w.path, vs[i].Path.String())
	}
	assert.Equal(t, SeverityWarning, vs[1].Severity)
	assert.Equal(t, "use median or mode fill for integer field 'quantity'", vs[1].Repair)
	assert.Equal(t, "replace 'amont' with 'amount' or add 'amont' to the schema", vs[3].Repair)
	assert.Equal(t, "enable duplicates with keys [order_id]", vs[4].Repair)
	assert.Equal(t, "apply positive constraint to a numeric field instead of 'region' (category), or change its type", vs[8].Repair)
}

func TestValidateOrderIsBatteryThenDocument(t *testing.T) {
	vs := validate(t, `
dsl_version: "9"
dashboard:
  data_source: {schema: {amount: float}}
  pages:
    - id: p
      layout:
        components:
          - visualization: {chart_type: histogram}
    - id: p
`, nil)
	assert.Equal(t, []Code{CodeUnsupportedVersion, CodeDuplicateID, CodeMissingRequiredRole}, codes(vs))
	assert.True(t, HasBlocking(vs))
}

func TestValidateIsDeterministic(t *testing.T) {
	text := withPage(`
      metrics:
        - {id: a, field: nope, aggregation: sum}
        - {id: a, field: amount, aggregation: bogus}
`)
	first, err := json.Marshal(validate(t, text, nil))
	require.NoError(t, err)
	second, err := json.Marshal(validate(t, text, nil))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestViolationJSON(t *testing.T) {
	v := Violation{
		Code:     CodeDuplicateID,
		Severity: SeverityError,
		Message:  "dup",
		Path:     spec.Root.Key("dashboard").Key("pages").Index(1),
		Repair:   "rename",
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"DUPLICATE_ID","severity":"ERROR","message":"dup","path":["dashboard","pages",1],"repair":"rename"}`, string(b))
	assert.Equal(t, "ERROR DUPLICATE_ID dashboard.pages[1]: dup", v.String())
}

func mustSchema(t *testing.T, name, version string, fields map[string]string) schema.FieldSchema {
	t.Helper()
	s, err := schema.FromMap(name, version, fields)
	require.NoError(t, err)
	return s
}

func TestHeatmapValueFieldPrefersColor(t *testing.T) {
	aggViolations := func(roles string) []Violation {
		vs := validate(t, withPage(`
      layout:
        components:
          - visualization: {chart_type: heatmap, roles: `+roles+`}
`), nil)
		var out []Violation
		for _, v := range vs {
			if v.Code == CodeSchemaViolation && strings.HasSuffix(v.Path.String(), ".params.agg") {
				out = append(out, v)
			}
		}
		return out
	}

	vs := aggViolations(`{x: region, y: refunded, color: region, z: amount}`)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"region"`)

	assert.Empty(t, aggViolations(`{x: region, y: refunded, color: amount, z: region}`))
}
