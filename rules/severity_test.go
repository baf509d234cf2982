package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrderAndBlocking(t *testing.T) {
	assert.Less(t, SeverityInfo, SeverityWarning)
	assert.Less(t, SeverityWarning, SeverityError)
	assert.Less(t, SeverityError, SeverityCritical)

	assert.False(t, SeverityInfo.Blocking())
	assert.False(t, SeverityWarning.Blocking())
	assert.True(t, SeverityError.Blocking())
	assert.True(t, SeverityCritical.Blocking())
}

func TestSeverityText(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var back Severity
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}

	s, err := ParseSeverity(" warning ")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, s)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
	assert.Equal(t, "Severity(9)", Severity(9).String())
}

func TestEveryCodeHasSeverityAndRepair(t *testing.T) {
	want := map[Code]Severity{
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
	require.Len(t, Codes(), len(want))
	for _, c := range Codes() {
		assert.Equal(t, want[c], c.Severity(), c)
	}
	for key := range repairs {
		_, ok := want[key.code]
		assert.True(t, ok, "repair for unknown code %s", key.code)
	}
}

func TestRepairRendering(t *testing.T) {
	got := Repair(CodeInvalidReference, "suggest", map[string]string{"field": "amt", "suggestion": "amount"})
	assert.Equal(t, "replace 'amt' with 'amount' or add 'amt' to the schema", got)

	// Unknown case falls back to the default template.
	got = Repair(CodeDuplicateID, "whatever", map[string]string{"kind": "page", "id": "p1"})
	assert.Equal(t, "rename page 'p1' to a unique id", got)

	// Unresolved placeholders are stripped.
	got = Repair(CodeSchemaNotFound, "ref", map[string]string{"ref": "sales"})
	assert.Equal(t, "register schema 'sales' or reference one of", got)
}

func TestViolationHelpers(t *testing.T) {
	vs := []Violation{
		{Code: CodeDQQuestionableMethod, Severity: SeverityWarning},
		{Code: CodeInvalidReference, Severity: SeverityCritical},
		{Code: CodeDuplicateID, Severity: SeverityError},
	}
	top, ok := MaxSeverity(vs)
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, top)
	_, ok = MaxSeverity(nil)
	assert.False(t, ok)

	assert.Len(t, AtLeast(vs, SeverityError), 2)
	assert.Equal(t, map[Severity]int{SeverityWarning: 1, SeverityCritical: 1, SeverityError: 1}, Count(vs))
	assert.True(t, HasBlocking(vs))
	assert.False(t, HasBlocking(vs[:1]))
}

func TestClosest(t *testing.T) {
	fields := []string{"amount", "region", "order_id"}
	assert.Equal(t, "amount", closest("ammount", fields))
	assert.Equal(t, "region", closest("Regoin", fields))
	assert.Empty(t, closest("customer", fields))
	assert.Empty(t, closest("", fields))
	assert.Equal(t, 3, editDistance("kitten", "sitting"))
}
