package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ============================================================================
// DATASET VIEWS: Zero-Copy Data Access
// ============================================================================
// The engine never owns caller data. It reads through Dataset and every
// transform returns a new view over its input.
//
// Implementations:
//   TableView       : columnar cells (providers, CSV, ad-hoc)
//   DomainView[T]   : reads typed structs via accessor functions (zero-copy)
//   SubView         : row subset (indices into parent, zero-copy)
//   PatchView       : parent plus replaced or added columns
//
// Cells are nil (null), float64, string, bool or time.Time.
// ============================================================================

// Dataset provides indexed, read-only access to tabular rows.
// The engine calls Value in tight loops: keep implementations fast.
type Dataset interface {
	Len() int
	Fields() []string
	Value(i int, field string) any
}

// Originer is implemented by views that know the row index each of their
// rows had in the dataset the provider returned.
type Originer interface {
	Origin(i int) int
}

// Origin returns the provider row index of row i of ds.
func Origin(ds Dataset, i int) int {
	if o, ok := ds.(Originer); ok {
		return o.Origin(i)
	}
	return i
}

// HasField reports whether ds exposes field.
func HasField(ds Dataset, field string) bool {
	for _, f := range ds.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

// Normalize converts a Go value into a cell. Integers become float64; NaN
// becomes null. Unknown types are rendered with fmt.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case float32:
		return Normalize(float64(x))
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case string, bool:
		return x
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// ============================================================================
// TABLE VIEW: columnar cells
// ============================================================================

// TableView holds cells column by column.
type TableView struct {
	fields  []string
	columns map[string][]any
	n       int
}

// NewTableView builds a view from named columns of equal length. Cells are
// normalized.
func NewTableView(fields []string, columns ...[]any) (*TableView, error) {
	if len(fields) != len(columns) {
		return nil, fmt.Errorf("engine: %d fields but %d columns", len(fields), len(columns))
	}
	v := &TableView{fields: append([]string(nil), fields...), columns: make(map[string][]any, len(fields))}
	for j, f := range fields {
		if _, dup := v.columns[f]; dup {
			return nil, fmt.Errorf("engine: duplicate field %q", f)
		}
		if j > 0 && len(columns[j]) != v.n {
			return nil, fmt.Errorf("engine: column %q has %d rows, want %d", f, len(columns[j]), v.n)
		}
		v.n = len(columns[j])
		col := make([]any, len(columns[j]))
		for i, c := range columns[j] {
			col[i] = Normalize(c)
		}
		v.columns[f] = col
	}
	return v, nil
}

// NewRowsView builds a view from row-major cells.
func NewRowsView(fields []string, rows [][]any) (*TableView, error) {
	cols := make([][]any, len(fields))
	for j := range cols {
		cols[j] = make([]any, len(rows))
	}
	for i, r := range rows {
		if len(r) != len(fields) {
			return nil, fmt.Errorf("engine: row %d has %d cells, want %d", i, len(r), len(fields))
		}
		for j, c := range r {
			cols[j][i] = c
		}
	}
	return NewTableView(fields, cols...)
}

// NewSliceView builds a view from map records. Fields appear in first-seen
// order, sorted within each record; keys missing from a record are null.
func NewSliceView(records []map[string]any) *TableView {
	var fields []string
	seen := make(map[string]bool)
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			fields = append(fields, k)
		}
	}
	v := &TableView{fields: fields, columns: make(map[string][]any, len(fields)), n: len(records)}
	for _, f := range fields {
		col := make([]any, len(records))
		for i, r := range records {
			col[i] = Normalize(r[f])
		}
		v.columns[f] = col
	}
	return v
}

func (v *TableView) Len() int         { return v.n }
func (v *TableView) Fields() []string { return v.fields }

func (v *TableView) Value(i int, field string) any {
	col, ok := v.columns[field]
	if !ok || i < 0 || i >= v.n {
		return nil
	}
	return col[i]
}

// ============================================================================
// SUB VIEW: row subset (zero-copy)
// ============================================================================

// SubView is a subset of a parent view's rows, in the order of indices.
type SubView struct {
	parent  Dataset
	indices []int
}

func newSubView(parent Dataset, indices []int) Dataset {
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Len() int         { return len(v.indices) }
func (v *SubView) Fields() []string { return v.parent.Fields() }

func (v *SubView) Value(i int, field string) any {
	if i < 0 || i >= len(v.indices) {
		return nil
	}
	return v.parent.Value(v.indices[i], field)
}

func (v *SubView) Origin(i int) int { return Origin(v.parent, v.indices[i]) }

// ============================================================================
// PATCH VIEW: replaced and added columns
// ============================================================================

// PatchView wraps a parent and overrides whole columns. Columns not patched
// read through to the parent.
type PatchView struct {
	parent  Dataset
	fields  []string
	columns map[string][]any
}

func newPatchView(parent Dataset) *PatchView {
	return &PatchView{
		parent:  parent,
		fields:  append([]string(nil), parent.Fields()...),
		columns: make(map[string][]any),
	}
}

// set replaces or adds a column. col must have parent.Len() cells.
func (v *PatchView) set(field string, col []any) {
	if _, ok := v.columns[field]; !ok && !HasField(v.parent, field) {
		v.fields = append(v.fields, field)
	}
	v.columns[field] = col
}

func (v *PatchView) empty() bool { return len(v.columns) == 0 }

func (v *PatchView) Len() int         { return v.parent.Len() }
func (v *PatchView) Fields() []string { return v.fields }

func (v *PatchView) Value(i int, field string) any {
	if col, ok := v.columns[field]; ok {
		if i < 0 || i >= len(col) {
			return nil
		}
		return col[i]
	}
	return v.parent.Value(i, field)
}

func (v *PatchView) Origin(i int) int { return Origin(v.parent, i) }

// column copies a field out of ds.
func column(ds Dataset, field string) []any {
	col := make([]any, ds.Len())
	for i := range col {
		col[i] = ds.Value(i, field)
	}
	return col
}

// ============================================================================
// DOMAIN ADAPTER: Zero-copy typed struct access
// ============================================================================
//
// Usage:
//
//	adapter := engine.NewDomainAdapter[Order]().
//	    Field("region", func(o Order) any { return o.Region }).
//	    Field("amount", func(o Order) any { return o.Amount })
//
//	ds := adapter.Bind(orders)
//
// ============================================================================

// DomainAdapter builds a Dataset from typed structs.
// Declare once, bind many times.
type DomainAdapter[T any] struct {
	order     []string
	accessors map[string]func(T) any
}

// NewDomainAdapter creates a new adapter for type T.
func NewDomainAdapter[T any]() *DomainAdapter[T] {
	return &DomainAdapter[T]{accessors: make(map[string]func(T) any)}
}

// Field registers an accessor. Registering a name twice replaces the
// accessor and keeps the original position.
func (a *DomainAdapter[T]) Field(name string, fn func(T) any) *DomainAdapter[T] {
	if _, exists := a.accessors[name]; !exists {
		a.order = append(a.order, name)
	}
	a.accessors[name] = fn
	return a
}

// Bind creates a Dataset over data. Zero-copy: holds a reference.
func (a *DomainAdapter[T]) Bind(data []T) Dataset {
	return &DomainView[T]{data: data, fields: a.order, accessors: a.accessors}
}

// DomainView reads typed struct fields via registered accessor functions.
type DomainView[T any] struct {
	data      []T
	fields    []string
	accessors map[string]func(T) any
}

func (v *DomainView[T]) Len() int         { return len(v.data) }
func (v *DomainView[T]) Fields() []string { return v.fields }

func (v *DomainView[T]) Value(i int, field string) any {
	if i < 0 || i >= len(v.data) {
		return nil
	}
	if fn, ok := v.accessors[field]; ok {
		return Normalize(fn(v.data[i]))
	}
	return nil
}
