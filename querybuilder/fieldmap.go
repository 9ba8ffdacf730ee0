package querybuilder

import (
	"regexp"
	"strings"
)

// TableID identifies one of the three tables of the analytical schema.
type TableID int

const (
	// TablePrimary is trace_summaries, one row per trace.
	TablePrimary TableID = iota
	// TableSpans is the one-to-many execution spans child table.
	TableSpans
	// TableEvaluations is the one-to-many evaluator runs child table.
	TableEvaluations
)

const (
	primaryTable     = "trace_summaries"
	spansTable       = "spans"
	evaluationsTable = "evaluations"
)

// Alias returns the fixed short alias used for the table everywhere it
// appears in generated SQL.
func (t TableID) Alias() string {
	switch t {
	case TableSpans:
		return "s"
	case TableEvaluations:
		return "e"
	default:
		return "p"
	}
}

// Name returns the physical table name.
func (t TableID) Name() string {
	switch t {
	case TableSpans:
		return spansTable
	case TableEvaluations:
		return evaluationsTable
	default:
		return primaryTable
	}
}

// JoinClause returns the fixed join text for a child table, or "" for the
// primary table. The predicate (tenant + trace id equality) is used
// verbatim wherever the table is joined.
func JoinClause(t TableID) string {
	switch t {
	case TableSpans:
		return "LEFT JOIN spans AS s ON s.project_id = p.project_id AND s.trace_id = p.trace_id"
	case TableEvaluations:
		return "LEFT JOIN evaluations AS e ON e.project_id = p.project_id AND e.trace_id = p.trace_id"
	default:
		return ""
	}
}

// MapValueKind describes the value type of a map-valued column.
type MapValueKind int

const (
	MapNone MapValueKind = iota
	MapString
	MapNumber
	MapJSONArray
)

// FieldMapping maps one logical dotted field path to its physical column.
type FieldMapping struct {
	LogicalPath string
	Table       TableID
	ColumnExpr  string
	IsArray     bool
	IsNumeric   bool
	IsBool      bool
	MapKind     MapValueKind
}

// fieldMappings is the static registry, read-only after init.
var fieldMappings = map[string]FieldMapping{
	"metadata.trace_id":          {Table: TablePrimary, ColumnExpr: "trace_id"},
	"metadata.user_id":           {Table: TablePrimary, ColumnExpr: "user_id"},
	"metadata.thread_id":         {Table: TablePrimary, ColumnExpr: "thread_id"},
	"metadata.customer_id":       {Table: TablePrimary, ColumnExpr: "customer_id"},
	"metadata.labels":            {Table: TablePrimary, ColumnExpr: "labels", IsArray: true},
	"topics.topics":              {Table: TablePrimary, ColumnExpr: "topic_id"},
	"topics.subtopics":           {Table: TablePrimary, ColumnExpr: "subtopic_id"},
	"traces.error":               {Table: TablePrimary, ColumnExpr: "has_error", IsBool: true},
	"annotations.has_annotation": {Table: TablePrimary, ColumnExpr: "has_annotation", IsBool: true},
	"trace.metadata":             {Table: TablePrimary, ColumnExpr: "metadata", MapKind: MapString},
	"events.event_type":          {Table: TablePrimary, ColumnExpr: "event_types", IsArray: true},
	"events.metrics":             {Table: TablePrimary, ColumnExpr: "event_metrics", MapKind: MapNumber},

	"performance.completion_time":   {Table: TablePrimary, ColumnExpr: "total_time_ms", IsNumeric: true},
	"performance.first_token":       {Table: TablePrimary, ColumnExpr: "first_token_ms", IsNumeric: true},
	"performance.total_cost":        {Table: TablePrimary, ColumnExpr: "total_cost", IsNumeric: true},
	"performance.prompt_tokens":     {Table: TablePrimary, ColumnExpr: "prompt_tokens", IsNumeric: true},
	"performance.completion_tokens": {Table: TablePrimary, ColumnExpr: "completion_tokens", IsNumeric: true},
	"performance.total_tokens":      {Table: TablePrimary, ColumnExpr: "(p.prompt_tokens + p.completion_tokens)", IsNumeric: true},

	"sentiment.input_sentiment": {Table: TablePrimary, ColumnExpr: "input_sentiment", IsNumeric: true},
	"sentiment.thumbs_up_down":  {Table: TablePrimary, ColumnExpr: "thumbs_up_down", IsNumeric: true},

	"spans.type":   {Table: TableSpans, ColumnExpr: "type"},
	"spans.model":  {Table: TableSpans, ColumnExpr: "model"},
	"spans.vendor": {Table: TableSpans, ColumnExpr: "vendor"},

	"evaluations.evaluator_id": {Table: TableEvaluations, ColumnExpr: "evaluator_id"},
	"evaluations.name":         {Table: TableEvaluations, ColumnExpr: "name"},
	"evaluations.passed":       {Table: TableEvaluations, ColumnExpr: "passed", IsBool: true},
	"evaluations.score":        {Table: TableEvaluations, ColumnExpr: "score", IsNumeric: true},
	"evaluations.label":        {Table: TableEvaluations, ColumnExpr: "label"},
	"evaluations.state":        {Table: TableEvaluations, ColumnExpr: "status"},
}

var unsafeIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Resolve returns the mapping for a logical path, or a deterministic
// fallback (snake-cased path as a bare primary-table column). It never
// fails; callers treat unknown paths as best effort.
func Resolve(path string) FieldMapping {
	if m, ok := fieldMappings[path]; ok {
		m.LogicalPath = path
		return m
	}
	return FieldMapping{
		LogicalPath: path,
		Table:       TablePrimary,
		ColumnExpr:  sanitizeIdentifier(path),
	}
}

// QualifiedColumn returns the alias-qualified column expression for a
// logical path. For map-access expressions the alias goes before the
// bracketed column, not before the whole expression.
func QualifiedColumn(path string) string {
	return Resolve(path).Qualified()
}

// Qualified prefixes the table alias onto the column expression.
// Compound expressions that already carry aliases are returned as-is.
func (m FieldMapping) Qualified() string {
	if strings.ContainsAny(m.ColumnExpr, "( ") {
		return m.ColumnExpr
	}
	return m.Table.Alias() + "." + m.ColumnExpr
}

// sanitizeIdentifier snake-cases a dotted path and strips anything that
// is not a safe identifier character.
func sanitizeIdentifier(path string) string {
	s := strings.ReplaceAll(path, ".", "_")
	s = unsafeIdentifierChars.ReplaceAllString(s, "")
	if s == "" {
		return "trace_id"
	}
	return strings.ToLower(s)
}
