package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathString(t *testing.T) {
	p := Root.Key("dashboard").Key("pages").Index(1).Key("filters").Index(0).Key("field")
	assert.Equal(t, "dashboard.pages[1].filters[0].field", p.String())
	assert.Equal(t, "", Root.String())
	assert.True(t, ParsePath(p.String()).Equal(p))
}

func TestPathKeyDoesNotAlias(t *testing.T) {
	base := make(Path, 0, 8).Key("dashboard").Key("pages")
	a := base.Index(0)
	b := base.Index(1)
	assert.Equal(t, "dashboard.pages[0]", a.String())
	assert.Equal(t, "dashboard.pages[1]", b.String())
}

func TestParsePathNested(t *testing.T) {
	p := ParsePath("a[0][2].b")
	assert.Equal(t, Path{"a", 0, 2, "b"}, p)
}

func TestNodeGetters(t *testing.T) {
	n := NodeOf(map[string]any{
		"s":    "text",
		"i":    3,
		"f":    2.5,
		"fi":   4.0,
		"b":    true,
		"nil":  nil,
		"list": []any{"a", 1, true, map[string]any{}},
		"map":  map[string]any{"x": "1", "y": 2},
	})

	assert.True(t, n.IsMap())
	assert.Equal(t, "text", n.Get("s").Str("def"))
	assert.Equal(t, "def", n.Get("i").Str("def"))
	assert.Equal(t, 3, n.Get("i").Int(0))
	assert.Equal(t, 4, n.Get("fi").Int(0))
	assert.Equal(t, -1, n.Get("f").Int(-1), "fractional floats are not ints")
	assert.InDelta(t, 3.0, n.Get("i").Float(0), 1e-9)
	assert.True(t, n.Get("b").Bool(false))
	assert.True(t, n.Has("nil"))
	assert.True(t, n.Get("nil").IsNull())
	assert.False(t, n.Has("absent"))
	assert.True(t, n.Get("absent").IsNull())

	assert.Equal(t, []string{"a", "1", "true"}, n.Get("list").Strings())
	assert.Equal(t, 4, n.Get("list").Len())
	assert.True(t, n.Get("list").Index(9).IsNull())
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, n.Get("map").StringMap())
	assert.Equal(t, []string{"b", "f", "fi", "i", "list", "map", "nil", "s"}, n.Keys())

	// Getters on the wrong shape never panic.
	assert.True(t, n.Get("s").Get("x").IsNull())
	assert.True(t, n.Get("s").Index(0).IsNull())
	assert.Nil(t, n.Get("s").List())
}

func TestNodeClone(t *testing.T) {
	orig := map[string]any{"a": []any{map[string]any{"b": 1}}}
	c := NodeOf(orig).Clone().(map[string]any)
	c["a"].([]any)[0].(map[string]any)["b"] = 2
	assert.Equal(t, 1, orig["a"].([]any)[0].(map[string]any)["b"])
}
