package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
dsl_version: "1.2.0"
dashboard:
  id: sales
  title: Sales overview
  data_source:
    schema: sales@2
  pages:
    - id: overview
      filters:
        - id: region
          field: region
          kind: categorical
          default: [north, south]
      metrics:
        - id: total
          field: amount
          aggregation: sum
    - id: 7
      layout:
        components:
          - visualization:
              chart_type: histogram
              x_field: amount
              params: {bins: 12, log_y: true, alpha: 0.5}
  created: 2024-03-01
`

func TestParseYAML(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	root := doc.Root()
	assert.Equal(t, "1.2.0", root.Get("dsl_version").Str(""))

	pages := root.Get("dashboard").Get("pages")
	require.Equal(t, 2, pages.Len())
	assert.Equal(t, "overview", pages.Index(0).Get("id").Str(""))

	// Numeric ids are preserved as ints but readable as text.
	id, ok := pages.Index(1).Get("id").Text()
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	viz := doc.At(ParsePath("dashboard.pages[1].layout.components[0].visualization"))
	assert.Equal(t, "histogram", viz.Get("chart_type").Str(""))
	assert.Equal(t, 12, viz.Get("params").Get("bins").Int(0))
	assert.True(t, viz.Get("params").Get("log_y").Bool(false))
	assert.InDelta(t, 0.5, viz.Get("params").Get("alpha").Float(0), 1e-9)

	// Timestamps are kept as their source text.
	assert.Equal(t, "2024-03-01", root.Get("dashboard").Get("created").Str(""))

	assert.Equal(t, []string{"north", "south"},
		doc.At(ParsePath("dashboard.pages[0].filters[0].default")).Strings())
}

func TestParseJSON(t *testing.T) {
	doc, err := Parse([]byte(`{"dsl_version": "1.0", "dashboard": {"id": "x", "pages": []}}`))
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Root().Get("dashboard").Get("id").Str(""))
	assert.True(t, doc.Root().Get("dashboard").Get("pages").IsList())
}

func TestParsePositions(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	pos, ok := doc.Position(ParsePath("dashboard.pages[0].filters[0].field"))
	require.True(t, ok)
	assert.Equal(t, 12, pos.Line)
}

func TestParseMergeKeys(t *testing.T) {
	src := `
defaults: &d
  kind: range
  field: amount
dashboard:
  filter:
    <<: *d
    field: price
`
	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	f := doc.Root().Get("dashboard").Get("filter")
	assert.Equal(t, "range", f.Get("kind").Str(""))
	assert.Equal(t, "price", f.Get("field").Str(""), "explicit keys win over merged ones")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantMsg  string
	}{
		{name: "empty", input: "", wantMsg: "empty document"},
		{name: "comment only", input: "# nothing\n", wantMsg: "empty document"},
		{name: "explicit null", input: "---\n~\n", wantMsg: "empty document"},
		{name: "scalar root", input: "just text\n", wantLine: 1, wantMsg: "top-level value must be a mapping"},
		{name: "list root", input: "- a\n- b\n", wantLine: 1, wantMsg: "top-level value must be a mapping"},
		{name: "multi doc", input: "a: 1\n---\nb: 2\n", wantLine: 3, wantMsg: "multiple documents in one stream"},
		{name: "duplicate key", input: "a: 1\nb: 2\na: 3\n", wantLine: 3, wantMsg: `mapping key "a" already defined`},
		{name: "bad indent", input: "a:\n  b: 1\n c: 2\n"},
		{name: "unclosed flow", input: "a: [1, 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, pe.Msg)
			}
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, pe.Line)
			}
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	assert.Equal(t, "parse error: empty document", (&ParseError{Msg: "empty document"}).Error())
	assert.Equal(t, "parse error at line 3: bad", (&ParseError{Line: 3, Msg: "bad"}).Error())
	assert.Equal(t, "parse error at line 3, column 2: bad", (&ParseError{Line: 3, Column: 2, Msg: "bad"}).Error())
}

func TestParseDoesNotShareState(t *testing.T) {
	a, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	a.Root().Get("dashboard").Value().(map[string]any)["id"] = "changed"
	assert.Equal(t, "sales", b.Root().Get("dashboard").Get("id").Str(""))
}
