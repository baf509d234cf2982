package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ============================================================================
// REGISTRY: Versioned schemas keyed by "name@version"
// ============================================================================
// Loaded once (from TOML or in code) and then only read. Lookups never
// mutate, so a single Registry is shared by every validation and execution.
//
// File format:
//
//	[[schema]]
//	name = "sales"
//	version = "2"
//	[schema.fields]
//	amount = "float"
//	region = "category"
// ============================================================================

var (
	ErrInvalidType    = errors.New("schema: invalid field type")
	ErrDuplicateField = errors.New("schema: duplicate field")
	ErrNotFound       = errors.New("schema: not found")
	ErrDuplicate      = errors.New("schema: duplicate schema")
)

// Registry holds immutable FieldSchemas. The zero value is an empty registry.
type Registry struct {
	schemas map[string]FieldSchema
	latest  map[string]string // name → highest version key
}

// NewRegistry builds a registry from already-constructed schemas.
func NewRegistry(schemas ...FieldSchema) (*Registry, error) {
	r := &Registry{
		schemas: make(map[string]FieldSchema, len(schemas)),
		latest:  make(map[string]string),
	}
	for _, s := range schemas {
		if err := r.add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(s FieldSchema) error {
	key := s.Key()
	if _, exists := r.schemas[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	r.schemas[key] = s
	if cur, ok := r.latest[s.name]; !ok || compareVersions(s.version, r.schemas[cur].version) > 0 {
		r.latest[s.name] = key
	}
	return nil
}

// Lookup returns the schema for name at version. An empty version selects
// the highest registered version of name.
func (r *Registry) Lookup(name, version string) (FieldSchema, error) {
	if r == nil || r.schemas == nil {
		return FieldSchema{}, fmt.Errorf("%w: %s", ErrNotFound, refKey(name, version))
	}
	if version == "" {
		if key, ok := r.latest[name]; ok {
			return r.schemas[key], nil
		}
		return FieldSchema{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s, ok := r.schemas[refKey(name, version)]
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %s", ErrNotFound, refKey(name, version))
	}
	return s, nil
}

// Resolve looks up a reference of the form "name" or "name@version".
func (r *Registry) Resolve(ref string) (FieldSchema, error) {
	name, version := SplitRef(ref)
	if name == "" {
		return FieldSchema{}, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	return r.Lookup(name, version)
}

// Keys returns every registered "name@version" key, sorted.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.schemas)
}

// SplitRef splits "name@version" into its parts. The version is empty when
// the reference carries none.
func SplitRef(ref string) (name, version string) {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

func refKey(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

// compareVersions orders dotted versions numerically where both segments
// are numbers and lexically otherwise.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		var xi, yi int
		_, errX := fmt.Sscanf(x, "%d", &xi)
		_, errY := fmt.Sscanf(y, "%d", &yi)
		switch {
		case errX == nil && errY == nil && xi != yi:
			if xi < yi {
				return -1
			}
			return 1
		case (errX != nil || errY != nil) && x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}

// ============================================================================
// TOML LOADING
// ============================================================================

type registryFile struct {
	Schema []schemaEntry `toml:"schema"`
}

type schemaEntry struct {
	Name    string            `toml:"name"`
	Version string            `toml:"version"`
	Fields  map[string]string `toml:"fields"`
}

// ParseRegistry decodes a TOML registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema: decode registry: %w", err)
	}
	r, _ := NewRegistry()
	for i, e := range f.Schema {
		if e.Name == "" {
			return nil, fmt.Errorf("schema: registry entry %d has no name", i)
		}
		s, err := FromMap(e.Name, e.Version, e.Fields)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", refKey(e.Name, e.Version), err)
		}
		if err := r.add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadRegistry reads and merges one or more TOML registry files. A schema
// key defined in two files is an error.
func LoadRegistry(paths ...string) (*Registry, error) {
	merged, _ := NewRegistry()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		r, err := ParseRegistry(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		for _, k := range r.Keys() {
			if err := merged.add(r.schemas[k]); err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	}
	return merged, nil
}

// MarshalRegistry encodes schemas in the registry file format.
func MarshalRegistry(schemas ...FieldSchema) ([]byte, error) {
	f := registryFile{Schema: make([]schemaEntry, 0, len(schemas))}
	for _, s := range schemas {
		fields := make(map[string]string, s.Len())
		for _, fd := range s.fields {
			fields[fd.Name] = string(fd.Type)
		}
		f.Schema = append(f.Schema, schemaEntry{Name: s.name, Version: s.version, Fields: fields})
	}
	return toml.Marshal(f)
}
