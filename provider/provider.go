// Package provider holds what the SQL-backed engine.Provider implementations
// share: page → table routing and conversion of driver values into cells.
package provider

import (
	"fmt"
	"time"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/helpers"
	"github.com/spektr-org/dashspec/schema"
)

// Tables maps a page id to the table that serves it.
type Tables func(page string) string

// Single routes every page to one table.
func Single(table string) Tables {
	return func(string) string { return table }
}

// Table resolves the table of a page. An empty name is an error.
func (t Tables) Table(page string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("provider: no table configured for page %q", page)
	}
	name := t(page)
	if name == "" {
		return "", fmt.Errorf("provider: no table configured for page %q", page)
	}
	return name, nil
}

// Cell converts a driver value into a cell of the field's declared type.
// Text goes through the same parsing as CSV cells; integers in a boolean
// column become bools. Fields the schema does not declare are normalized
// as-is.
func Cell(v any, t schema.FieldType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return Cell(string(x), t)
	case string:
		if t == "" {
			return x
		}
		return helpers.Cell(x, t)
	case int64:
		if t == schema.TypeBoolean {
			return x != 0
		}
	case time.Time:
		return x
	}
	return engine.Normalize(v)
}

// Build assembles row-major driver values into a view, converting every
// cell by the schema type of its column.
func Build(fields []string, rows [][]any, fs schema.FieldSchema) (*engine.TableView, error) {
	types := make([]schema.FieldType, len(fields))
	for j, f := range fields {
		types[j], _ = fs.TypeOf(f)
	}
	for _, r := range rows {
		for j := range r {
			if j < len(types) {
				r[j] = Cell(r[j], types[j])
			}
		}
	}
	return engine.NewRowsView(fields, rows)
}

// Metadata is the page metadata SQL providers report.
func Metadata(kind, table string) map[string]any {
	return map[string]any{"source": kind, "table": table}
}
