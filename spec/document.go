package spec

import (
	"sort"
	"strconv"
	"strings"
)

// ============================================================================
// DOCUMENT: Immutable parsed tree
// ============================================================================
// Values are normalized by the parser: mappings are map[string]any,
// sequences []any, scalars string | int | float64 | bool | nil. Callers read
// through Node, whose getters never panic on an unexpected shape; they fall
// back to the supplied default instead. This is the only untyped view of a
// dashboard; everything after the rule engine works on typed IR.
// ============================================================================

// Pos is a 1-based source position.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Document is the parsed form of one spec file.
type Document struct {
	root      map[string]any
	positions map[string]Pos
}

// NewDocument wraps an already-normalized tree. Used by tests and by callers
// that build documents in code.
func NewDocument(root map[string]any) *Document {
	if root == nil {
		root = map[string]any{}
	}
	return &Document{root: root, positions: map[string]Pos{}}
}

// Root returns the top-level mapping as a Node.
func (d *Document) Root() Node {
	if d == nil {
		return Node{}
	}
	return Node{v: d.root}
}

// At resolves a path from the root.
func (d *Document) At(p Path) Node {
	n := d.Root()
	for _, el := range p {
		switch k := el.(type) {
		case string:
			n = n.Get(k)
		case int:
			n = n.Index(k)
		}
	}
	return n
}

// Position returns the source position of the node at p, when known.
func (d *Document) Position(p Path) (Pos, bool) {
	if d == nil {
		return Pos{}, false
	}
	pos, ok := d.positions[p.String()]
	return pos, ok
}

// ============================================================================
// NODE: Typed access to an untyped value
// ============================================================================

// Node wraps one value of a Document.
type Node struct {
	v any
}

// NodeOf wraps a raw value.
func NodeOf(v any) Node { return Node{v: v} }

// Value returns the raw value.
func (n Node) Value() any { return n.v }

// IsNull reports whether the node is absent or an explicit null.
func (n Node) IsNull() bool { return n.v == nil }

// IsMap reports whether the node is a mapping.
func (n Node) IsMap() bool {
	_, ok := n.v.(map[string]any)
	return ok
}

// IsList reports whether the node is a sequence.
func (n Node) IsList() bool {
	_, ok := n.v.([]any)
	return ok
}

// IsString reports whether the node is a string scalar.
func (n Node) IsString() bool {
	_, ok := n.v.(string)
	return ok
}

// Has reports whether a mapping node defines key (even as null).
func (n Node) Has(key string) bool {
	m, ok := n.v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// Get returns the child at key, or a null node.
func (n Node) Get(key string) Node {
	if m, ok := n.v.(map[string]any); ok {
		return Node{v: m[key]}
	}
	return Node{}
}

// Index returns the i-th element of a sequence, or a null node.
func (n Node) Index(i int) Node {
	if l, ok := n.v.([]any); ok && i >= 0 && i < len(l) {
		return Node{v: l[i]}
	}
	return Node{}
}

// Len returns the number of elements of a sequence or entries of a mapping.
func (n Node) Len() int {
	switch v := n.v.(type) {
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	}
	return 0
}

// List returns the elements of a sequence node.
func (n Node) List() []Node {
	l, ok := n.v.([]any)
	if !ok {
		return nil
	}
	out := make([]Node, len(l))
	for i, v := range l {
		out[i] = Node{v: v}
	}
	return out
}

// Keys returns the keys of a mapping node, sorted.
func (n Node) Keys() []string {
	m, ok := n.v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Str returns the string value or def when the node is not a string.
func (n Node) Str(def string) string {
	if s, ok := n.v.(string); ok {
		return s
	}
	return def
}

// Text renders any scalar as a string: ids written as numbers still compare
// equal to their string form.
func (n Node) Text() (string, bool) {
	switch v := n.v.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// Int returns the integer value or def. Floats with no fractional part are
// accepted.
func (n Node) Int(def int) int {
	switch v := n.v.(type) {
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Float returns the numeric value or def.
func (n Node) Float(def float64) float64 {
	if f, ok := n.Number(); ok {
		return f
	}
	return def
}

// Number returns the numeric value and whether the node is a number.
func (n Node) Number() (float64, bool) {
	switch v := n.v.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Bool returns the boolean value or def.
func (n Node) Bool(def bool) bool {
	if b, ok := n.v.(bool); ok {
		return b
	}
	return def
}

// Strings returns the string elements of a sequence. A single string is
// treated as a one-element list. Non-string elements are skipped.
func (n Node) Strings() []string {
	switch v := n.v.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := (Node{v: x}).Text(); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringMap returns the string-valued entries of a mapping node.
func (n Node) StringMap() map[string]string {
	m, ok := n.v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := (Node{v: v}).Text(); ok {
			out[k] = s
		}
	}
	return out
}

// Clone returns a deep copy of the node's value, so callers can build
// derived structures without aliasing document state.
func (n Node) Clone() any {
	return cloneValue(n.v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

// Lower returns the lower-cased trimmed string value.
func (n Node) Lower() string {
	return strings.ToLower(strings.TrimSpace(n.Str("")))
}
