package ir

import (
	"fmt"

	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// BindReason classifies why a schema could not be bound.
type BindReason int

const (
	// BindMissing: no data source, or no schema on it.
	BindMissing BindReason = iota
	// BindNotFound: a registry reference that resolves to nothing.
	BindNotFound
	// BindInvalid: a schema declaration that is malformed.
	BindInvalid
	// BindEmpty: an inline schema with no fields.
	BindEmpty
)

// BindError describes one schema binding defect.
type BindError struct {
	Reason BindReason
	Path   spec.Path
	Msg    string
	Ref    string // registry reference, for BindNotFound
	Field  string // offending field, for BindInvalid
	Type   string // offending type, for BindInvalid
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

var (
	dataSourcePath = spec.Root.Key("dashboard").Key("data_source")
	schemaPath     = dataSourcePath.Key("schema")
)

// BindSchema resolves dashboard.data_source.schema, either an inline
// field → type mapping or a "name[@version]" registry reference. On failure
// every defect found is returned; an inline schema reports each bad field.
func BindSchema(doc *spec.Document, reg *schema.Registry) (schema.FieldSchema, string, []*BindError) {
	ds := doc.At(dataSourcePath)
	if !ds.IsMap() {
		return schema.FieldSchema{}, "", []*BindError{{
			Reason: BindMissing, Path: dataSourcePath, Msg: "dashboard has no data_source",
		}}
	}
	raw := ds.Get("schema")
	switch {
	case raw.IsNull():
		return schema.FieldSchema{}, "", []*BindError{{
			Reason: BindMissing, Path: schemaPath, Msg: "data_source declares no schema",
		}}

	case raw.IsString():
		ref := raw.Str("")
		if ref == "" {
			return schema.FieldSchema{}, "", []*BindError{{
				Reason: BindInvalid, Path: schemaPath, Msg: "schema reference is empty",
			}}
		}
		s, err := reg.Resolve(ref)
		if err != nil {
			return schema.FieldSchema{}, "", []*BindError{{
				Reason: BindNotFound, Path: schemaPath, Ref: ref,
				Msg: fmt.Sprintf("schema %q is not in the registry", ref),
			}}
		}
		return s, s.Key(), nil

	case raw.IsMap():
		if raw.Len() == 0 {
			return schema.FieldSchema{}, "", []*BindError{{
				Reason: BindEmpty, Path: schemaPath, Msg: "schema declares no fields",
			}}
		}
		var errs []*BindError
		fields := make([]schema.Field, 0, raw.Len())
		for _, name := range raw.Keys() {
			v := raw.Get(name)
			typ := v.Str("")
			if v.IsMap() {
				typ = v.Get("type").Str("")
			}
			ft, ok := schema.ParseFieldType(typ)
			if !ok {
				errs = append(errs, &BindError{
					Reason: BindInvalid, Path: schemaPath.Key(name), Field: name, Type: typ,
					Msg: fmt.Sprintf("field %q has unknown type %q", name, typ),
				})
				continue
			}
			fields = append(fields, schema.Field{Name: name, Type: ft})
		}
		if len(errs) > 0 {
			return schema.FieldSchema{}, "", errs
		}
		name := ds.Get("name").Str(doc.At(spec.Root.Key("dashboard").Key("id")).Str("inline"))
		s, err := schema.New(name, "", fields)
		if err != nil {
			return schema.FieldSchema{}, "", []*BindError{{Reason: BindInvalid, Path: schemaPath, Msg: err.Error()}}
		}
		return s, "", nil
	}

	return schema.FieldSchema{}, "", []*BindError{{
		Reason: BindInvalid, Path: schemaPath,
		Msg: "schema must be a field mapping or a registry reference",
	}}
}
