package ir

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spektr-org/dashspec/spec"
)

// Words kept upper-case (or rewritten) after title-casing a field name.
var labelWords = map[string]string{
	"Id":  "ID",
	"Aqi": "AQI",
	"Iso": "ISO",
	"Url": "URL",
	"Api": "API",
	"Pct": "%",
}

// DefaultLabel derives a display label from a field name:
// "customer_id" → "Customer ID", "growth_pct" → "Growth %".
func DefaultLabel(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	caser := cases.Title(language.English)
	for i, w := range words {
		w = caser.String(w)
		if fixed, ok := labelWords[w]; ok {
			w = fixed
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// labels returns a label for every schema field, overlaid by explicit
// column_labels.
func (b *builder) labels(n spec.Node) map[string]string {
	out := make(map[string]string, b.schema.Len())
	for _, name := range b.schema.FieldNames() {
		out[name] = DefaultLabel(name)
	}
	for k, v := range n.StringMap() {
		out[k] = v
	}
	return out
}

func mergeLabels(base map[string]string, n spec.Node) map[string]string {
	over := n.StringMap()
	if len(over) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
