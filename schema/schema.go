package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// SCHEMA: Declared field types for a data source
// ============================================================================
// A FieldSchema is bound to a dashboard either inline (data_source.schema is
// a mapping) or by reference into a Registry. The rule engine checks every
// field reference against it; the data quality engine uses it to decide how
// missing values and outliers are handled per field.
//
// FieldSchema values are immutable once built. Accessors return copies.
// ============================================================================

// FieldType is the declared primitive type of a field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeCategory FieldType = "category"
)

var knownTypes = map[FieldType]bool{
	TypeString:   true,
	TypeInteger:  true,
	TypeFloat:    true,
	TypeBoolean:  true,
	TypeDatetime: true,
	TypeCategory: true,
}

// typeAliases maps loose spellings seen in older specs to canonical types.
var typeAliases = map[string]FieldType{
	"str":         TypeString,
	"text":        TypeString,
	"int":         TypeInteger,
	"int64":       TypeInteger,
	"number":      TypeFloat,
	"double":      TypeFloat,
	"float64":     TypeFloat,
	"bool":        TypeBoolean,
	"date":        TypeDatetime,
	"timestamp":   TypeDatetime,
	"categorical": TypeCategory,
}

// ParseFieldType resolves a declared type name. The second return is false
// when the name is not a known type or alias.
func ParseFieldType(name string) (FieldType, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if knownTypes[FieldType(n)] {
		return FieldType(n), true
	}
	if t, ok := typeAliases[n]; ok {
		return t, true
	}
	return "", false
}

// TypeNames lists the canonical type names.
func TypeNames() []string {
	return []string{
		string(TypeString), string(TypeInteger), string(TypeFloat),
		string(TypeBoolean), string(TypeDatetime), string(TypeCategory),
	}
}

// IsNumeric reports whether values of this type aggregate as numbers.
func (t FieldType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsDiscrete reports whether the type holds labels rather than quantities.
func (t FieldType) IsDiscrete() bool {
	return t == TypeString || t == TypeCategory || t == TypeBoolean
}

// Field is a single named, typed column.
type Field struct {
	Name string    `json:"name" toml:"name"`
	Type FieldType `json:"type" toml:"type"`
}

// FieldSchema is an ordered set of fields for one data source version.
type FieldSchema struct {
	name    string
	version string
	fields  []Field
	index   map[string]int
}

// New builds a FieldSchema. Field order is preserved; a repeated name or an
// unknown type is an error.
func New(name, version string, fields []Field) (FieldSchema, error) {
	s := FieldSchema{
		name:    name,
		version: version,
		fields:  make([]Field, 0, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		t, ok := ParseFieldType(string(f.Type))
		if !ok {
			return FieldSchema{}, fmt.Errorf("%w: field %q has type %q", ErrInvalidType, f.Name, f.Type)
		}
		if _, dup := s.index[f.Name]; dup {
			return FieldSchema{}, fmt.Errorf("%w: field %q declared twice", ErrDuplicateField, f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, Field{Name: f.Name, Type: t})
	}
	return s, nil
}

// FromMap builds a FieldSchema from a field → type mapping. Map iteration
// order is not stable, so fields are sorted by name.
func FromMap(name, version string, m map[string]string) (FieldSchema, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Name: k, Type: FieldType(m[k])})
	}
	return New(name, version, fields)
}

// Name returns the data source name.
func (s FieldSchema) Name() string { return s.name }

// Version returns the schema version.
func (s FieldSchema) Version() string { return s.version }

// Len returns the number of fields.
func (s FieldSchema) Len() int { return len(s.fields) }

// Has reports whether a field is declared.
func (s FieldSchema) Has(field string) bool {
	_, ok := s.index[field]
	return ok
}

// TypeOf returns the declared type of a field.
func (s FieldSchema) TypeOf(field string) (FieldType, bool) {
	i, ok := s.index[field]
	if !ok {
		return "", false
	}
	return s.fields[i].Type, true
}

// Fields returns a copy of the ordered field list.
func (s FieldSchema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames returns the ordered field names.
func (s FieldSchema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// NumericFields returns the names of integer and float fields.
func (s FieldSchema) NumericFields() []string {
	var names []string
	for _, f := range s.fields {
		if f.Type.IsNumeric() {
			names = append(names, f.Name)
		}
	}
	return names
}

// IdentifierFields returns fields whose names mark them as row identifiers
// ("id" or a "_id" suffix). Dashboards over such fields usually expect
// duplicate rows to be removed.
func (s FieldSchema) IdentifierFields() []string {
	var names []string
	for _, f := range s.fields {
		n := strings.ToLower(f.Name)
		if n == "id" || strings.HasSuffix(n, "_id") {
			names = append(names, f.Name)
		}
	}
	return names
}

// Key returns the registry key "name@version" (or just name when unversioned).
func (s FieldSchema) Key() string {
	return refKey(s.name, s.version)
}
