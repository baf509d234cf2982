package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spektr-org/dashspec/spec"
)

// Violation is one defect found in a document.
type Violation struct {
	Code     Code      `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Path     spec.Path `json:"path"`
	Repair   string    `json:"repair"`
	// Every location involved; for DUPLICATE_ID the first and the repeated
	// occurrence. Path is always the last entry.
	Locations []spec.Path `json:"locations,omitempty"`
	Line      int         `json:"line,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s %s: %s", v.Severity, v.Code, v.Path, v.Message)
}

// HasBlocking reports whether any violation is ERROR or CRITICAL.
func HasBlocking(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity.Blocking() {
			return true
		}
	}
	return false
}

// MaxSeverity returns the highest severity present, and false for none.
func MaxSeverity(vs []Violation) (Severity, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	top := vs[0].Severity
	for _, v := range vs[1:] {
		if v.Severity > top {
			top = v.Severity
		}
	}
	return top, true
}

// AtLeast returns the violations of severity min or higher, in order.
func AtLeast(vs []Violation, min Severity) []Violation {
	out := make([]Violation, 0, len(vs))
	for _, v := range vs {
		if v.Severity >= min {
			out = append(out, v)
		}
	}
	return out
}

// Count tallies violations per severity.
func Count(vs []Violation) map[Severity]int {
	out := make(map[Severity]int)
	for _, v := range vs {
		out[v.Severity]++
	}
	return out
}

// ============================================================================
// REPAIR TEMPLATES
// ============================================================================
// Keyed by code and an optional case naming the variant of the defect.
// Placeholders are {name}; facts fill them in. Placeholders without a fact
// are stripped.
// ============================================================================

type repairKey struct {
	code Code
	kind string
}

var repairs = map[repairKey]string{
	{CodeUnsupportedVersion, ""}: "set dsl_version to one of {supported}",

	{CodeSchemaNotFound, ""}:    "add dashboard.data_source.schema mapping field names to types",
	{CodeSchemaNotFound, "ref"}: "register schema '{ref}' or reference one of: {known}",

	{CodeInvalidSchema, ""}:      "declare schema as a mapping of field name to type, or a 'name@version' reference",
	{CodeInvalidSchema, "empty"}: "declare at least one field in the schema",
	{CodeInvalidSchema, "type"}:  "change the type of field '{field}' to one of {types}",

	{CodeDuplicateID, ""}: "rename {kind} '{id}' to a unique id",

	{CodeUnsupportedChartType, ""}: "set chart_type to one of {charts}",

	{CodeMissingRequiredRole, ""}:       "set roles.{role} for {chart} charts",
	{CodeMissingRequiredRole, "legacy"}: "set roles.{role} (or {legacy}) for {chart} charts",
	{CodeMissingRequiredRole, "alt"}:    "set roles.{role} or roles.{alt} for {chart} charts",

	{CodeInvalidReference, ""}:        "add field '{field}' to the schema or reference one of: {known}",
	{CodeInvalidReference, "suggest"}: "replace '{field}' with '{suggestion}' or add '{field}' to the schema",
	{CodeInvalidReference, "empty"}:   "set {key} to one of: {known}",

	{CodeInvalidParameter, ""}: "set {param} to {expected}",

	{CodeSchemaViolation, ""}:       "apply {method} to a numeric field instead of '{field}' ({type}), or change its type",
	{CodeSchemaViolation, "filter"}: "use a categorical filter for field '{field}' ({type})",
	{CodeSchemaViolation, "agg"}:    "use count or nunique for field '{field}' ({type})",

	{CodeDQFieldNotInSchema, ""}:        "remove '{field}' from the rule or add it to the schema",
	{CodeDQFieldNotInSchema, "suggest"}: "replace '{field}' with '{suggestion}' or add '{field}' to the schema",

	{CodeDQInappropriateMethod, ""}: "use {suggested} for {type} field '{field}'",

	{CodeDQQuestionableMethod, "duplicates"}: "enable duplicates with keys [{keys}]",
	{CodeDQQuestionableMethod, "no_rules"}:   "add outlier rules or set outliers.enabled to false",
	{CodeDQQuestionableMethod, "full_range"}: "narrow the percentile bounds for '{field}' or remove the rule",
}

// Repair renders the repair hint for a code and case from facts.
func Repair(code Code, kind string, facts map[string]string) string {
	tmpl, ok := repairs[repairKey{code, kind}]
	if !ok {
		tmpl = repairs[repairKey{code, ""}]
	}
	return render(tmpl, facts)
}

var placeholderRegex = regexp.MustCompile(`\{[a-z_]+\}`)

func render(tmpl string, facts map[string]string) string {
	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(ph string) string {
		if v, ok := facts[ph[1:len(ph)-1]]; ok {
			return v
		}
		return ph
	})
	return stripUnresolved(out)
}

func stripUnresolved(text string) string {
	cleaned := placeholderRegex.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	cleaned = strings.ReplaceAll(cleaned, "''", "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, " :,")
	return cleaned
}
