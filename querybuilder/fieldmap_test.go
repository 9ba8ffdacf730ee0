package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveKnownField(t *testing.T) {
	m := Resolve("performance.total_cost")
	assert.Equal(t, TablePrimary, m.Table)
	assert.Equal(t, "total_cost", m.ColumnExpr)
	assert.True(t, m.IsNumeric)
}

func TestResolveChildField(t *testing.T) {
	m := Resolve("spans.model")
	assert.Equal(t, TableSpans, m.Table)
	assert.Equal(t, "s.model", m.Qualified())
}

func TestResolveUnknownFieldFallsBack(t *testing.T) {
	m := Resolve("custom.someField!")
	assert.Equal(t, TablePrimary, m.Table)
	assert.Equal(t, "custom_somefield", m.ColumnExpr)

	// Deterministic: same path, same fallback.
	assert.Equal(t, m, Resolve("custom.someField!"))
}

func TestQualifiedColumnCompoundExpression(t *testing.T) {
	// Pre-qualified compound expressions are returned untouched.
	assert.Equal(t, "(p.prompt_tokens + p.completion_tokens)", QualifiedColumn("performance.total_tokens"))
}

func TestQualifiedColumnMapAccess(t *testing.T) {
	// The alias goes before the bracketed column, not the whole expression.
	m := FieldMapping{Table: TablePrimary, ColumnExpr: "metadata['env']"}
	assert.Equal(t, "p.metadata['env']", m.Qualified())
}

func TestTableAliases(t *testing.T) {
	assert.Equal(t, "p", TablePrimary.Alias())
	assert.Equal(t, "s", TableSpans.Alias())
	assert.Equal(t, "e", TableEvaluations.Alias())
}

func TestJoinClauses(t *testing.T) {
	assert.Empty(t, JoinClause(TablePrimary))
	assert.Contains(t, JoinClause(TableSpans), "s.project_id = p.project_id AND s.trace_id = p.trace_id")
	assert.Contains(t, JoinClause(TableEvaluations), "e.project_id = p.project_id AND e.trace_id = p.trace_id")
}
