package engine

import (
	"fmt"

	"golang.org/x/text/cases"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// FILTERS: Typed, AND-combined row filtering via Dataset
// ============================================================================
// Single-pass filter: checks ALL active filters per row in one loop.
// Returns a SubView (index list into parent): zero data copy.
// A null cell never passes an active filter.
// ============================================================================

// ActiveFilter is a filter with the value it applies for one execution.
type ActiveFilter struct {
	Filter ir.Filter
	Value  ir.FilterValue
}

// FilterInputError reports a runtime input that does not fit its filter.
type FilterInputError struct {
	FilterID string
	Err      error
}

func (e *FilterInputError) Error() string {
	return fmt.Sprintf("filter %q: %v", e.FilterID, e.Err)
}

func (e *FilterInputError) Unwrap() error { return e.Err }

// ResolveFilters picks the value of every page filter. An input keyed by
// the filter id wins; an explicit nil input disables the filter; otherwise
// the declared default applies. Filters left without a value are inactive.
func ResolveFilters(filters []ir.Filter, fs schema.FieldSchema, inputs map[string]any) ([]ActiveFilter, error) {
	var active []ActiveFilter
	for _, f := range filters {
		v := f.Default
		if raw, ok := inputs[f.ID]; ok {
			ft, _ := fs.TypeOf(f.Field)
			parsed, err := ir.ParseFilterValue(f.Kind, ft, raw)
			if err != nil {
				return nil, &FilterInputError{FilterID: f.ID, Err: err}
			}
			v = parsed
		}
		if v == nil {
			continue
		}
		active = append(active, ActiveFilter{Filter: f, Value: *v})
	}
	return active, nil
}

// ApplyFilters returns a view of the rows matching every active filter.
// A filter whose field is absent from ds is skipped with a warning.
// No active filters = no restriction (returns the original view).
func ApplyFilters(ds Dataset, active []ActiveFilter) (Dataset, []Warning) {
	var warnings []Warning
	fold := cases.Fold()
	var preds []func(any) bool
	var fields []string

	for _, af := range active {
		if !HasField(ds, af.Filter.Field) {
			warnings = append(warnings, Warning{
				Code:    WarnFilterFieldMissing,
				Field:   af.Filter.Field,
				Message: fmt.Sprintf("filter %q skipped: field %q not in dataset", af.Filter.ID, af.Filter.Field),
			})
			continue
		}
		preds = append(preds, predicate(af.Value, fold))
		fields = append(fields, af.Filter.Field)
	}

	if len(preds) == 0 {
		return ds, warnings
	}

	// Single pass: row passes if it matches ALL filters
	n := ds.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pass := true
		for j, p := range preds {
			if !p(ds.Value(i, fields[j])) {
				pass = false
				break
			}
		}
		if pass {
			indices = append(indices, i)
		}
	}
	return newSubView(ds, indices), warnings
}

func predicate(v ir.FilterValue, fold cases.Caser) func(any) bool {
	switch v.Kind {
	case ir.FilterRange:
		return func(c any) bool {
			x, ok := cellFloat(c)
			if !ok {
				x, ok = timeOf(c)
			}
			if !ok {
				return false
			}
			return (v.Min == nil || x >= *v.Min) && (v.Max == nil || x <= *v.Max)
		}

	case ir.FilterCategorical:
		// Pre-build folded lookup set; an empty set matches nothing.
		set := make(map[string]bool, len(v.Values))
		for _, s := range v.Values {
			set[fold.String(s)] = true
		}
		return func(c any) bool {
			return c != nil && set[fold.String(cellText(c))]
		}

	case ir.FilterBoolean:
		want := v.Bool != nil && *v.Bool
		return func(c any) bool {
			if c == nil {
				return false
			}
			b, ok := ir.ParseBoolInput(c)
			return ok && b == want
		}
	}
	return func(any) bool { return false }
}
