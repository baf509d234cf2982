package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// PARSER: text → Document
// ============================================================================
// YAML and JSON are both accepted (JSON is a YAML subset). The parser only
// rejects syntax: semantic defects are left for the rule engine so a single
// validation pass reports all of them.
//
// Rejected:
//   - malformed YAML
//   - empty input, or a stream with more than one document
//   - a top-level value that is not a mapping
//   - a mapping that repeats a key
// ============================================================================

// ParseError reports malformed input. Line and Column are 1-based; zero
// means unknown.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	default:
		return "parse error: " + e.Msg
	}
}

// maxNodes bounds alias expansion.
const maxNodes = 1 << 20

var lineRegex = regexp.MustCompile(`line (\d+)`)

// Parse turns spec text into a Document.
func Parse(text []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(text))

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Msg: "empty document"}
		}
		return nil, yamlError(err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		at := &extra
		if len(extra.Content) > 0 {
			at = extra.Content[0]
		}
		return nil, &ParseError{Line: at.Line, Column: at.Column, Msg: "multiple documents in one stream"}
	} else if !errors.Is(err, io.EOF) {
		return nil, yamlError(err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Msg: "empty document"}
	}
	root := doc.Content[0]
	if root.Kind == yaml.AliasNode && root.Alias != nil {
		root = root.Alias
	}
	if root.Kind != yaml.MappingNode {
		if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
			return nil, &ParseError{Line: root.Line, Column: root.Column, Msg: "empty document"}
		}
		return nil, &ParseError{Line: root.Line, Column: root.Column, Msg: "top-level value must be a mapping"}
	}

	c := &converter{positions: make(map[string]Pos)}
	v, err := c.convert(root, Root)
	if err != nil {
		return nil, err
	}
	return &Document{root: v.(map[string]any), positions: c.positions}, nil
}

func yamlError(err error) *ParseError {
	msg := err.Error()
	pe := &ParseError{Msg: msg}
	if m := lineRegex.FindStringSubmatch(msg); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
	}
	return pe
}

// ============================================================================
// NORMALIZATION
// ============================================================================

type converter struct {
	positions map[string]Pos
	nodes     int
}

func (c *converter) convert(n *yaml.Node, path Path) (any, error) {
	c.nodes++
	if c.nodes > maxNodes {
		return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: "document too large after alias expansion"}
	}
	if n.Line > 0 {
		if _, seen := c.positions[path.String()]; !seen {
			c.positions[path.String()] = Pos{Line: n.Line, Column: n.Column}
		}
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, nil
		}
		return c.convert(n.Alias, path)

	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		var merges []*yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
				merges = append(merges, v)
				continue
			}
			key := k.Value
			if _, dup := out[key]; dup {
				return nil, &ParseError{Line: k.Line, Column: k.Column, Msg: fmt.Sprintf("mapping key %q already defined", key)}
			}
			val, err := c.convert(v, path.Key(key))
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		for _, m := range merges {
			if err := c.merge(out, m, path); err != nil {
				return nil, err
			}
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, el := range n.Content {
			val, err := c.convert(el, path.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case yaml.ScalarNode:
		return scalar(n)
	}
	return nil, nil
}

// merge applies a YAML merge key ("<<"): entries already present win.
func (c *converter) merge(dst map[string]any, src *yaml.Node, path Path) error {
	if src.Kind == yaml.AliasNode && src.Alias != nil {
		src = src.Alias
	}
	switch src.Kind {
	case yaml.MappingNode:
		v, err := c.convert(src, path)
		if err != nil {
			return err
		}
		for k, x := range v.(map[string]any) {
			if _, ok := dst[k]; !ok {
				dst[k] = x
			}
		}
		return nil
	case yaml.SequenceNode:
		for _, el := range src.Content {
			if err := c.merge(dst, el, path); err != nil {
				return err
			}
		}
		return nil
	}
	return &ParseError{Line: src.Line, Column: src.Column, Msg: "merge value must be a mapping"}
}

func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: err.Error()}
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Out of int64 range: keep the magnitude as a float.
			var f float64
			if ferr := n.Decode(&f); ferr != nil {
				return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: err.Error()}
			}
			return f, nil
		}
		return int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: err.Error()}
		}
		return f, nil
	default:
		// !!str, !!timestamp, !!binary and custom tags keep their source text.
		return n.Value, nil
	}
}
