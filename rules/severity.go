package rules

import (
	"fmt"
	"strings"
)

// ============================================================================
// SEVERITY
// ============================================================================

// Severity is the ordinal level of a violation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{"INFO", "WARNING", "ERROR", "CRITICAL"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Blocking reports whether the severity halts the pipeline before IR
// construction.
func (s Severity) Blocking() bool { return s >= SeverityError }

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("rules: unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ============================================================================
// CODES: code → severity is static
// ============================================================================

// Code is the stable identifier of a rule outcome.
type Code string

const (
	CodeUnsupportedVersion    Code = "UNSUPPORTED_VERSION"
	CodeSchemaNotFound        Code = "SCHEMA_NOT_FOUND"
	CodeInvalidSchema         Code = "INVALID_SCHEMA"
	CodeDuplicateID           Code = "DUPLICATE_ID"
	CodeUnsupportedChartType  Code = "UNSUPPORTED_CHART_TYPE"
	CodeMissingRequiredRole   Code = "MISSING_REQUIRED_ROLE"
	CodeInvalidReference      Code = "INVALID_REFERENCE"
	CodeInvalidParameter      Code = "INVALID_PARAMETER"
	CodeSchemaViolation       Code = "SCHEMA_VIOLATION"
	CodeDQFieldNotInSchema    Code = "DQ_FIELD_NOT_IN_SCHEMA"
	CodeDQInappropriateMethod Code = "DQ_INAPPROPRIATE_METHOD"
	CodeDQQuestionableMethod  Code = "DQ_QUESTIONABLE_METHOD"
)

var severities = map[Code]Severity{
	CodeUnsupportedVersion:    SeverityError,
	CodeSchemaNotFound:        SeverityError,
	CodeInvalidSchema:         SeverityError,
	CodeDuplicateID:           SeverityError,
	CodeUnsupportedChartType:  SeverityError,
	CodeMissingRequiredRole:   SeverityError,
	CodeInvalidReference:      SeverityCritical,
	CodeInvalidParameter:      SeverityError,
	CodeSchemaViolation:       SeverityError,
	CodeDQFieldNotInSchema:    SeverityError,
	CodeDQInappropriateMethod: SeverityWarning,
	CodeDQQuestionableMethod:  SeverityWarning,
}

// Severity returns the fixed severity of a code. Unknown codes are ERROR.
func (c Code) Severity() Severity {
	if s, ok := severities[c]; ok {
		return s
	}
	return SeverityError
}

// Codes lists every code the battery can emit.
func Codes() []Code {
	return []Code{
		CodeUnsupportedVersion, CodeSchemaNotFound, CodeInvalidSchema,
		CodeDuplicateID, CodeUnsupportedChartType, CodeMissingRequiredRole,
		CodeInvalidReference, CodeInvalidParameter, CodeSchemaViolation,
		CodeDQFieldNotInSchema, CodeDQInappropriateMethod, CodeDQQuestionableMethod,
	}
}
