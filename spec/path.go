package spec

import (
	"strconv"
	"strings"
)

// Path locates a node in a Document. Elements are string mapping keys or
// int sequence indexes.
type Path []any

// Root is the empty path.
var Root = Path(nil)

// Key returns a new path with a mapping key appended. The receiver is never
// modified, so sibling paths can share a prefix safely.
func (p Path) Key(k string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, k)
}

// Index returns a new path with a sequence index appended.
func (p Path) Index(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, i)
}

// String renders the path as dashboard.pages[1].filters[0].field.
func (p Path) String() string {
	var b strings.Builder
	for _, el := range p {
		switch v := el.(type) {
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}

// Equal reports whether two paths have the same elements.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// ParsePath is the inverse of String. Keys containing '.' or '[' are not
// representable.
func ParsePath(s string) Path {
	var p Path
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			continue
		}
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					p = append(p, part)
				}
				break
			}
			if open > 0 {
				p = append(p, part[:open])
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				p = append(p, part[open:])
				break
			}
			if n, err := strconv.Atoi(part[open+1 : open+end]); err == nil {
				p = append(p, n)
			}
			part = part[open+end+1:]
		}
	}
	return p
}
