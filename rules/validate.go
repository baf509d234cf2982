package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// ============================================================================
// RULE ENGINE: Document × Registry → []Violation
// ============================================================================
// Validate runs a fixed battery of checks in order. Every check runs, and
// each one reports all of its findings (collect-all), so a single pass gives
// the caller every defect. Output order is battery order, then document
// order within a check.
//
// This is the only place untyped document input is accepted; everything
// downstream (ir, engine) works on typed values.
// ============================================================================

type check struct {
	name string
	run  func(*checker)
}

var battery = []check{
	{"version", checkVersion},
	{"schema", checkSchemaBinding},
	{"duplicate_ids", checkDuplicateIDs},
	{"charts", checkCharts},
	{"references", checkReferences},
	{"parameters", checkParameters},
	{"data_quality", checkDataQuality},
}

// Checks lists the battery's check names in evaluation order.
func Checks() []string {
	names := make([]string, len(battery))
	for i, c := range battery {
		names[i] = c.name
	}
	return names
}

// Validate evaluates every rule against doc. The registry may be nil when
// documents only carry inline schemas. The result is never nil.
func Validate(doc *spec.Document, reg *schema.Registry) []Violation {
	c := &checker{doc: doc, reg: reg, out: []Violation{}}
	for _, chk := range battery {
		chk.run(c)
	}
	return c.out
}

// checker carries the state shared by the battery: the bound schema is
// set by checkSchemaBinding and read by every later check.
type checker struct {
	doc    *spec.Document
	reg    *schema.Registry
	schema schema.FieldSchema
	bound  bool
	out    []Violation
}

type facts map[string]string

func (c *checker) add(code Code, path spec.Path, kind string, f facts, format string, args ...any) {
	v := Violation{
		Code:     code,
		Severity: code.Severity(),
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
		Repair:   Repair(code, kind, f),
	}
	if pos, ok := c.doc.Position(path); ok {
		v.Line = pos.Line
	}
	c.out = append(c.out, v)
}

var (
	dashboardPath = spec.Root.Key("dashboard")
	pagesPath     = dashboardPath.Key("pages")
)

func (c *checker) dashboard() spec.Node { return c.doc.At(dashboardPath) }

// page pairs a page node with its path.
type page struct {
	node spec.Node
	path spec.Path
}

func (c *checker) pages() []page {
	var out []page
	for i, p := range c.dashboard().Get("pages").List() {
		if p.IsMap() {
			out = append(out, page{node: p, path: pagesPath.Index(i)})
		}
	}
	return out
}

// fieldType returns the schema type of field, and false when no schema is
// bound or the field is unknown.
func (c *checker) fieldType(field string) (schema.FieldType, bool) {
	if !c.bound {
		return "", false
	}
	return c.schema.TypeOf(field)
}

func (c *checker) knownFields() string {
	return strings.Join(c.schema.FieldNames(), ", ")
}

// ============================================================================
// VERSION
// ============================================================================

var supportedVersion = regexp.MustCompile(`^1\.[0-2](\.\d+)?$`)

// SupportedVersions describes the accepted dsl_version values.
const SupportedVersions = "1.0.x, 1.1.x, 1.2.x"

func checkVersion(c *checker) {
	p := spec.Root.Key("dsl_version")
	raw := c.doc.At(p)
	v, ok := raw.Text()
	f := facts{"supported": SupportedVersions}
	switch {
	case !ok || strings.TrimSpace(v) == "":
		c.add(CodeUnsupportedVersion, p, "", f, "dsl_version is missing")
	case !supportedVersion.MatchString(strings.TrimSpace(v)):
		c.add(CodeUnsupportedVersion, p, "", f, "dsl_version %q is not supported", v)
	}
}

// ============================================================================
// SCHEMA BINDING
// ============================================================================

func checkSchemaBinding(c *checker) {
	s, _, errs := ir.BindSchema(c.doc, c.reg)
	if len(errs) == 0 {
		c.schema, c.bound = s, true
		return
	}
	for _, e := range errs {
		switch e.Reason {
		case ir.BindMissing:
			c.add(CodeSchemaNotFound, e.Path, "", nil, "%s", e.Msg)
		case ir.BindNotFound:
			c.add(CodeSchemaNotFound, e.Path, "ref", facts{
				"ref":   e.Ref,
				"known": strings.Join(c.reg.Keys(), ", "),
			}, "%s", e.Msg)
		default:
			kind := ""
			switch {
			case e.Field != "":
				kind = "type"
			case e.Reason == ir.BindEmpty:
				kind = "empty"
			}
			c.add(CodeInvalidSchema, e.Path, kind, facts{
				"field": e.Field,
				"types": strings.Join(schema.TypeNames(), ", "),
			}, "%s", e.Msg)
		}
	}
}

// ============================================================================
// DUPLICATE IDS
// ============================================================================

type idSeen struct {
	first map[string]spec.Path
}

func newIDSeen() *idSeen { return &idSeen{first: make(map[string]spec.Path)} }

// note records id at path and reports a duplicate of an earlier sibling.
func (c *checker) note(seen *idSeen, kind string, id string, path spec.Path) {
	if id == "" {
		return
	}
	if first, dup := seen.first[id]; dup {
		c.add(CodeDuplicateID, path, "", facts{"kind": kind, "id": id},
			"%s id %q is already used at %s", kind, id, first)
		c.out[len(c.out)-1].Locations = []spec.Path{first, path}
		return
	}
	seen.first[id] = path
}

func checkDuplicateIDs(c *checker) {
	pageIDs := newIDSeen()
	for _, p := range c.pages() {
		if id, ok := p.node.Get("id").Text(); ok {
			c.note(pageIDs, "page", id, p.path.Key("id"))
		}

		filterIDs := newIDSeen()
		for j, f := range p.node.Get("filters").List() {
			fp := p.path.Key("filters").Index(j)
			if id, ok := f.Get("id").Text(); ok {
				c.note(filterIDs, "filter", id, fp.Key("id"))
			} else if field, ok := f.Get("field").Text(); ok {
				c.note(filterIDs, "filter", field, fp.Key("field"))
			}
		}

		metricIDs := newIDSeen()
		for j, m := range p.node.Get("metrics").List() {
			if id, ok := m.Get("id").Text(); ok {
				c.note(metricIDs, "metric", id, p.path.Key("metrics").Index(j).Key("id"))
			}
		}

		vizIDs := newIDSeen()
		for _, comp := range ir.Components(p.node, p.path) {
			if id, ok := comp.Visualization.Get("id").Text(); ok {
				c.note(vizIDs, "visualization", id, comp.Path.Key("id"))
			}
		}
	}
}

// ============================================================================
// CHARTS
// ============================================================================

func chartNames() string {
	var names []string
	for _, ct := range ir.ChartTypes() {
		names = append(names, string(ct))
	}
	return strings.Join(names, ", ")
}

func checkCharts(c *checker) {
	for _, p := range c.pages() {
		for _, comp := range ir.Components(p.node, p.path) {
			viz := comp.Visualization
			key := "chart_type"
			if !viz.Has(key) && viz.Has("type") {
				key = "type"
			}
			raw := viz.Get(key).Str("")
			ct, ok := ir.ParseChartType(raw)
			if !ok {
				msg := fmt.Sprintf("chart type %q is not supported", raw)
				if raw == "" {
					msg = "visualization has no chart_type"
				}
				c.add(CodeUnsupportedChartType, comp.Path.Key(key), "", facts{"charts": chartNames()}, "%s", msg)
				continue
			}

			roles := ir.ResolveRoles(viz)
			for _, req := range ir.RequiredRoles(ct) {
				if req.Satisfied(roles) {
					continue
				}
				f := facts{"role": string(req.Role), "chart": string(ct)}
				kind := ""
				if len(req.Alternatives) > 0 {
					kind = "alt"
					f["alt"] = string(req.Alternatives[0])
				} else if legacy, ok := ir.LegacyKeys[req.Role]; ok {
					kind = "legacy"
					f["legacy"] = legacy
				}
				c.add(CodeMissingRequiredRole, comp.Path.Key("roles").Key(string(req.Role)), kind, f,
					"%s chart requires role %q", ct, req.Role)
			}
		}
	}
}

// ============================================================================
// REFERENCES
// ============================================================================

func (c *checker) reference(field string, path spec.Path, what string) {
	if _, ok := c.schema.TypeOf(field); ok {
		return
	}
	if field == "" {
		c.add(CodeInvalidReference, path, "empty", facts{"key": path.String(), "known": c.knownFields()},
			"%s names no field", what)
		return
	}
	f := facts{"field": field, "known": c.knownFields()}
	kind := ""
	if s := closest(field, c.schema.FieldNames()); s != "" {
		kind = "suggest"
		f["suggestion"] = s
	}
	c.add(CodeInvalidReference, path, kind, f, "%s references unknown field %q", what, field)
}

func checkReferences(c *checker) {
	if !c.bound {
		return
	}
	for _, p := range c.pages() {
		for j, f := range p.node.Get("filters").List() {
			field, _ := f.Get("field").Text()
			c.reference(field, p.path.Key("filters").Index(j).Key("field"), "filter")
		}
		for j, m := range p.node.Get("metrics").List() {
			if !m.Has("field") {
				continue
			}
			field, _ := m.Get("field").Text()
			c.reference(field, p.path.Key("metrics").Index(j).Key("field"), "metric")
		}
		for _, comp := range ir.Components(p.node, p.path) {
			c.vizReferences(comp)
		}
	}
}

func (c *checker) vizReferences(comp ir.Component) {
	viz := comp.Visualization
	roles := ir.ResolveRoles(viz)
	names := make([]string, 0, len(roles))
	for r := range roles {
		names = append(names, string(r))
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := roleOrder(names[i]), roleOrder(names[j])
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		role := ir.Role(name)
		path := comp.Path.Key("roles").Key(name)
		if legacy, ok := ir.LegacyKeys[role]; ok && !viz.Get("roles").Has(name) {
			path = comp.Path.Key(legacy)
		}
		c.reference(roles[role], path, fmt.Sprintf("role %q", name))
	}

	params := viz.Get("params")
	for i, col := range params.Get("columns").List() {
		field, _ := col.Text()
		c.reference(field, comp.Path.Key("params").Key("columns").Index(i), "params.columns")
	}
	if params.Has("by") {
		field, _ := params.Get("by").Text()
		c.reference(field, comp.Path.Key("params").Key("by"), "params.by")
	}
}

func roleOrder(name string) int {
	for i, r := range ir.AllRoles {
		if string(r) == name {
			return i
		}
	}
	return len(ir.AllRoles)
}
