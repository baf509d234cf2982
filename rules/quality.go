package rules

import (
	"strings"

	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// ============================================================================
// DATA QUALITY SEMANTICS
// ============================================================================
// Field existence, type compatibility of methods and constraints, and
// heuristics for configurations that are valid but probably unintended.
// Every check here needs a bound schema.
// ============================================================================

func checkDataQuality(c *checker) {
	if !c.bound {
		return
	}
	for _, b := range c.dqBlocks() {
		c.missingRules(b)
		c.duplicateKeys(b)
		c.outlierRules(b)
		c.validationRules(b)
	}
}

// dqField reports a DQ rule field absent from the schema. It returns the
// field type when the field exists.
func (c *checker) dqField(field string, path spec.Path) (schema.FieldType, bool) {
	if ft, ok := c.schema.TypeOf(field); ok {
		return ft, true
	}
	f := facts{"field": field}
	kind := ""
	if s := closest(field, c.schema.FieldNames()); s != "" {
		kind = "suggest"
		f["suggestion"] = s
	}
	c.add(CodeDQFieldNotInSchema, path, kind, f, "data quality rule references unknown field %q", field)
	return "", false
}

func (c *checker) needsNumeric(method, field string, ft schema.FieldType, path spec.Path) {
	c.add(CodeSchemaViolation, path, "", facts{"method": method, "field": field, "type": string(ft)},
		"%s needs a numeric field, %q is %s", method, field, ft)
}

func (c *checker) inappropriate(suggested, field string, ft schema.FieldType, path spec.Path, format string, args ...any) {
	c.add(CodeDQInappropriateMethod, path, "", facts{"suggested": suggested, "field": field, "type": string(ft)},
		format, args...)
}

func (c *checker) missingRules(b block) {
	rp := b.path.Key("missing_values").Key("rules")
	for i, r := range b.node.Get("missing_values").Get("rules").List() {
		p := rp.Index(i)
		field, _ := r.Get("field").Text()
		ft, ok := c.dqField(field, p.Key("field"))
		if !ok {
			continue
		}
		method := r.Get("method").Lower()
		if !ir.NumericFills[method] {
			continue
		}
		switch {
		case ft == schema.TypeBoolean:
			c.inappropriate("mode fill", field, ft, p.Key("method"),
				"%s fill on boolean field %q produces non-boolean values", method, field)
		case !ft.IsNumeric():
			c.needsNumeric(method+" fill", field, ft, p.Key("method"))
		case ft == schema.TypeInteger && method == ir.FillMean:
			c.inappropriate("median or mode fill", field, ft, p.Key("method"),
				"mean fill on integer field %q produces fractional values", field)
		}
	}
}

func (c *checker) duplicateKeys(b block) {
	dup := b.node.Get("duplicates")
	dp := b.path.Key("duplicates")
	for _, key := range []string{"keys", "subset", "fields"} {
		if !dup.Has(key) {
			continue
		}
		for i, n := range dup.Get(key).List() {
			field, _ := n.Text()
			c.dqField(field, dp.Key(key).Index(i))
		}
		break
	}

	if dup.Get("enabled").Bool(false) {
		return
	}
	if ids := c.schema.IdentifierFields(); len(ids) > 0 {
		c.add(CodeDQQuestionableMethod, dp, "duplicates", facts{"keys": strings.Join(ids, ", ")},
			"duplicate detection is off but %s look like row identifiers", strings.Join(ids, ", "))
	}
}

func (c *checker) outlierRules(b block) {
	out := b.node.Get("outliers")
	op := b.path.Key("outliers")
	rules := out.Get("rules").List()
	if out.Get("enabled").Bool(false) && len(rules) == 0 {
		c.add(CodeDQQuestionableMethod, op.Key("enabled"), "no_rules", nil, "outlier handling is enabled without rules")
	}

	for i, r := range rules {
		p := op.Key("rules").Index(i)
		method := r.Get("method").Lower()
		if method == "" {
			method = ir.MethodPercentile
		}

		var fields []string
		var paths []spec.Path
		if r.Has("fields") {
			for j, n := range r.Get("fields").List() {
				f, _ := n.Text()
				fields = append(fields, f)
				paths = append(paths, p.Key("fields").Index(j))
			}
			if r.Get("fields").IsString() {
				fields = r.Get("fields").Strings()
				paths = []spec.Path{p.Key("fields")}
			}
		} else if f, ok := r.Get("field").Text(); ok {
			fields, paths = []string{f}, []spec.Path{p.Key("field")}
		}

		for j, field := range fields {
			ft, ok := c.dqField(field, paths[j])
			if !ok {
				continue
			}
			switch {
			case ft == schema.TypeBoolean:
				c.inappropriate("a validation rule", field, ft, p.Key("method"),
					"%s outlier detection on boolean field %q", method, field)
			case !ft.IsNumeric():
				c.needsNumeric(method+" outlier detection", field, ft, p.Key("method"))
			}
		}

		if method == ir.MethodPercentile && r.Get("lower").Float(1) <= 0 && r.Get("upper").Float(99) >= 100 {
			c.add(CodeDQQuestionableMethod, p, "full_range", facts{"field": strings.Join(fields, ", ")},
				"percentile bounds 0..100 never cap anything")
		}
	}
}

func (c *checker) validationRules(b block) {
	vp := b.path.Key("validation").Key("rules")
	for i, r := range b.node.Get("validation").Get("rules").List() {
		p := vp.Index(i)
		field, _ := r.Get("field").Text()
		ft, ok := c.dqField(field, p.Key("field"))
		if !ok {
			continue
		}
		key := "constraint"
		if !r.Has(key) && r.Has("rule") {
			key = "rule"
		}
		cons := r.Get(key).Lower()
		if ir.NumericConstraints[cons] && !ft.IsNumeric() {
			c.needsNumeric(cons+" constraint", field, ft, p.Key(key))
		}
	}
}
