package querybuilder

import (
	"fmt"
	"log"
	"strings"

	"github.com/langwatch/langwatch-sub008/structs"
)

const (
	periodExpr = "if(p.timestamp >= @current_start, 'current', 'previous')"
	baseWhere  = "p.project_id = @project_id AND p.timestamp >= @previous_start AND p.timestamp < @current_end"

	currentWhere  = "p.project_id = @project_id AND p.timestamp >= @current_start AND p.timestamp < @current_end"
	previousWhere = "p.project_id = @project_id AND p.timestamp >= @previous_start AND p.timestamp < @current_start"
)

// grouping carries the resolved group-by dimension for one request.
type grouping struct {
	mapping    FieldMapping
	expr       string // SELECT expression producing group_key
	needsDedup bool
	having     bool // exclude empty-string group keys after aggregation
}

// resolveGrouping normalizes the requested group-by field. Null/empty
// keys collapse into a literal 'unknown' bucket, except boolean keys
// which keep their raw 0/1 values. Unknown fields degrade to grouping by
// the user identity column.
func resolveGrouping(ps *ParamSet, params Params, req *structs.TimeseriesRequest) *grouping {
	if req.GroupBy == "" {
		return nil
	}
	m, ok := fieldMappings[req.GroupBy]
	if !ok {
		log.Printf("unknown group_by field %q, grouping by user id instead", req.GroupBy)
		m = fieldMappings["metadata.user_id"]
	}
	if m.MapKind != MapNone && req.GroupByKey == "" {
		log.Printf("group_by %s needs group_by_key, grouping by user id instead", req.GroupBy)
		m = fieldMappings["metadata.user_id"]
	}

	g := &grouping{mapping: m, needsDedup: m.IsArray || m.Table != TablePrimary}

	col := m.Qualified()
	switch {
	case m.IsArray:
		g.expr = fmt.Sprintf("arrayJoin(%s)", col)
		g.having = true
	case m.IsBool:
		g.expr = col
	case m.MapKind == MapNumber:
		g.expr = fmt.Sprintf("toString(%s[%s])", col, params.bind(ps, req.GroupByKey))
	case m.MapKind != MapNone:
		access := fmt.Sprintf("%s[%s]", col, params.bind(ps, req.GroupByKey))
		g.expr = fmt.Sprintf("if(%s = '', 'unknown', %s)", access, access)
	case m.IsNumeric:
		g.expr = fmt.Sprintf("toString(%s)", col)
	default:
		g.expr = fmt.Sprintf("if(%s = '', 'unknown', %s)", col, col)
	}
	return g
}

// collectJoinClauses unions the child tables needed by the metrics and
// the grouping dimension, one join clause per table no matter how many
// consumers require it.
func collectJoinClauses(metrics []MetricTranslation, group *grouping) []string {
	needed := map[TableID]bool{}
	for _, m := range metrics {
		for _, t := range m.Joins {
			needed[t] = true
		}
	}
	if group != nil && group.mapping.Table != TablePrimary {
		needed[group.mapping.Table] = true
	}

	var clauses []string
	for _, t := range []TableID{TableSpans, TableEvaluations} {
		if needed[t] {
			clauses = append(clauses, JoinClause(t))
		}
	}
	return clauses
}

func joinsFor(t MetricTranslation) []string {
	return collectJoinClauses([]MetricTranslation{t}, nil)
}

func withFilter(where string, filter FilterTranslation) string {
	if filter.IsTrivial() {
		return where
	}
	return where + " AND (" + filter.SQL + ")"
}

// BuildTimeseriesQuery compiles a full timeseries analytics request into
// one parameterized SQL statement. It is the only entry point the RPC
// layer consumes for timeseries data.
func BuildTimeseriesQuery(req *structs.TimeseriesRequest) (*BuiltQuery, error) {
	ps := NewParamSet()
	params := Params{}
	params.bindNamed("project_id", req.ProjectID)
	params.bindNamed("previous_start", req.PreviousStart)
	params.bindNamed("current_start", req.CurrentStart)
	params.bindNamed("current_end", req.CurrentEnd)

	filter, err := translateFilterSpec(ps, req.Filters)
	if err != nil {
		return nil, err
	}
	params.merge(filter.Params)

	var metrics []MetricTranslation
	hasSubquery := false
	for i, spec := range req.Series {
		if spec.Pipeline != nil && !req.Granularity.Full {
			// Known unsupported combination, not invalid input.
			log.Printf("dropping pipeline metric %s: pipeline aggregations require full granularity", spec.Field)
			continue
		}
		var t MetricTranslation
		if spec.Pipeline != nil {
			t, err = translatePipelineMetric(ps, spec, i)
		} else {
			t, err = translateMetric(ps, spec, i)
		}
		if err != nil {
			return nil, err
		}
		params.merge(t.Params)
		if t.RequiresSubquery {
			hasSubquery = true
		}
		metrics = append(metrics, t)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics left to compute", ErrInvalidRequest)
	}

	// Grouping is resolved only for the shapes that use it, so a dropped
	// group never leaves a dangling bound parameter behind.
	var group *grouping
	if hasSubquery {
		if req.GroupBy != "" {
			log.Printf("dropping group_by %s: not supported alongside multi-level metrics", req.GroupBy)
		}
	} else {
		group = resolveGrouping(ps, params, req)
	}

	var sql string
	switch {
	case hasSubquery:
		sql = buildSubqueryShape(metrics, filter)
	case group != nil && group.needsDedup:
		sql = buildDedupShape(req, metrics, filter, group)
	case req.Granularity.Full:
		if group != nil {
			sql = buildGroupedSummaryShape(metrics, filter, group)
		} else {
			sql = buildSummaryShape(metrics, filter)
		}
	default:
		sql = buildBucketedShape(req, metrics, filter, group)
	}

	return &BuiltQuery{SQL: sql, Params: params}, nil
}

// splitByJoins separates metrics aggregating primary columns only from
// metrics reading a child table through a join.
func splitByJoins(metrics []MetricTranslation) (plain, joined []MetricTranslation) {
	for _, m := range metrics {
		if len(m.Joins) == 0 {
			plain = append(plain, m)
		} else {
			joined = append(joined, m)
		}
	}
	return plain, joined
}

// groupedAggregate renders one GROUP BY statement over the given metrics
// and key expressions.
func groupedAggregate(keyExprs, keys []string, metrics []MetricTranslation, filter FilterTranslation, where string) string {
	selects := append([]string{}, keyExprs...)
	for _, m := range metrics {
		selects = append(selects, m.SelectExpr+" AS "+m.Alias)
	}
	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(selects, ", "))
	b.WriteString(" FROM trace_summaries AS p")
	for _, j := range collectJoinClauses(metrics, nil) {
		b.WriteString(" " + j)
	}
	b.WriteString(" WHERE " + withFilter(where, filter))
	b.WriteString(" GROUP BY " + strings.Join(keys, ", "))
	return b.String()
}

// buildKeyedShape renders a bucketed or grouped-summary statement. When
// primary-column metrics mix with child-join metrics, the two sets run in
// separate branches meeting on the bucket keys, so child-row fan-out
// never reaches a primary-column aggregate.
func buildKeyedShape(keyExprs, keys []string, metrics []MetricTranslation, filter FilterTranslation) string {
	plain, joined := splitByJoins(metrics)
	if len(plain) == 0 || len(joined) == 0 {
		return groupedAggregate(keyExprs, keys, metrics, filter, baseWhere) +
			" ORDER BY " + strings.Join(keys, ", ")
	}

	on := make([]string, 0, len(keys))
	cols := make([]string, 0, len(keys)+len(metrics))
	for _, k := range keys {
		on = append(on, fmt.Sprintf("b.%s = j.%s", k, k))
		cols = append(cols, "b."+k+" AS "+k)
	}
	for _, m := range metrics {
		side := "b"
		if len(m.Joins) > 0 {
			side = "j"
		}
		cols = append(cols, side+"."+m.Alias+" AS "+m.Alias)
	}

	var b strings.Builder
	b.WriteString("WITH base_metrics AS (" + groupedAggregate(keyExprs, keys, plain, filter, baseWhere) + "), ")
	b.WriteString("joined_metrics AS (" + groupedAggregate(keyExprs, keys, joined, filter, baseWhere) + ") ")
	b.WriteString("SELECT " + strings.Join(cols, ", "))
	b.WriteString(" FROM base_metrics AS b LEFT JOIN joined_metrics AS j ON " + strings.Join(on, " AND "))
	b.WriteString(" ORDER BY " + strings.Join(keys, ", "))
	return b.String()
}

// buildBucketedShape is the default: one GROUP BY query tagging each row
// with its comparison period and truncated date bucket.
func buildBucketedShape(req *structs.TimeseriesRequest, metrics []MetricTranslation, filter FilterTranslation, group *grouping) string {
	keyExprs := []string{
		periodExpr + " AS period",
		bucketExpr(req.Granularity.Minutes, req.TimeZone) + " AS date",
	}
	keys := []string{"period", "date"}
	if group != nil {
		keyExprs = append(keyExprs, group.expr+" AS group_key")
		keys = append(keys, "group_key")
	}
	return buildKeyedShape(keyExprs, keys, metrics, filter)
}

// buildSummaryShape handles granularity "full" without grouping: one CTE
// per comparison period so both periods are present in the output even
// when one of them matched no rows at all.
func buildSummaryShape(metrics []MetricTranslation, filter FilterTranslation) string {
	aggs := func(ms []MetricTranslation, where string) string {
		selects := make([]string, 0, len(ms))
		for _, m := range ms {
			selects = append(selects, m.SelectExpr+" AS "+m.Alias)
		}
		var b strings.Builder
		b.WriteString("SELECT " + strings.Join(selects, ", "))
		b.WriteString(" FROM trace_summaries AS p")
		for _, j := range collectJoinClauses(ms, nil) {
			b.WriteString(" " + j)
		}
		b.WriteString(" WHERE " + withFilter(where, filter))
		return b.String()
	}

	plain, joined := splitByJoins(metrics)
	body := func(where string) string {
		if len(plain) == 0 || len(joined) == 0 {
			return aggs(metrics, where)
		}
		// Both branches yield a single row, so a cross join recombines
		// them without exposing primary columns to child-row fan-out.
		cols := make([]string, 0, len(metrics))
		for _, m := range metrics {
			side := "b"
			if len(m.Joins) > 0 {
				side = "j"
			}
			cols = append(cols, side+"."+m.Alias+" AS "+m.Alias)
		}
		return "SELECT " + strings.Join(cols, ", ") +
			" FROM (" + aggs(plain, where) + ") AS b CROSS JOIN (" + aggs(joined, where) + ") AS j"
	}

	outer := func(period, cte string) string {
		cols := []string{fmt.Sprintf("'%s' AS period", period)}
		for _, m := range metrics {
			cols = append(cols, fmt.Sprintf("coalesce(%s, 0) AS %s", m.Alias, m.Alias))
		}
		return "SELECT " + strings.Join(cols, ", ") + " FROM " + cte
	}

	return fmt.Sprintf(
		"WITH current_summary AS (%s), previous_summary AS (%s) %s UNION ALL %s",
		body(currentWhere), body(previousWhere),
		outer("current", "current_summary"), outer("previous", "previous_summary"),
	)
}

// buildGroupedSummaryShape is summary mode with a scalar grouping key:
// a single GROUP BY over period and group key, no date bucket. Groups
// absent from a period are naturally absent from the output.
func buildGroupedSummaryShape(metrics []MetricTranslation, filter FilterTranslation, group *grouping) string {
	keyExprs := []string{periodExpr + " AS period", group.expr + " AS group_key"}
	return buildKeyedShape(keyExprs, []string{"period", "group_key"}, metrics, filter)
}

// buildSubqueryShape compiles one CTE per metric per period, each running
// its own inner aggregation chain, then a final two-row UNION reading one
// zero-coalesced scalar from each CTE.
func buildSubqueryShape(metrics []MetricTranslation, filter FilterTranslation) string {
	var ctes []string
	for _, m := range metrics {
		ctes = append(ctes,
			fmt.Sprintf("%s_current AS (%s)", m.Alias, metricCTEBody(m, withFilter(currentWhere, filter))),
			fmt.Sprintf("%s_previous AS (%s)", m.Alias, metricCTEBody(m, withFilter(previousWhere, filter))),
		)
	}

	outer := func(period string) string {
		cols := []string{fmt.Sprintf("'%s' AS period", period)}
		for _, m := range metrics {
			cols = append(cols, fmt.Sprintf("coalesce((SELECT value FROM %s_%s), 0) AS %s", m.Alias, period, m.Alias))
		}
		return "SELECT " + strings.Join(cols, ", ")
	}

	return fmt.Sprintf("WITH %s %s UNION ALL %s",
		strings.Join(ctes, ", "), outer("current"), outer("previous"))
}

// metricCTEBody renders the aggregation chain of one metric for one
// period: a plain aggregate for single-level metrics, or a two- or
// three-level nested select for subquery metrics.
func metricCTEBody(m MetricTranslation, where string) string {
	from := "trace_summaries AS p"
	for _, j := range joinsFor(m) {
		from += " " + j
	}
	if !m.RequiresSubquery {
		return fmt.Sprintf("SELECT %s AS value FROM %s WHERE %s", m.SelectExpr, from, where)
	}
	return renderSubqueryChain(m.Subquery, from, where)
}

// renderSubqueryChain serializes a SubqueryDescriptor. The two-level and
// three-level cases are distinct shapes: the three-level chain carries
// the pipeline key out of the innermost grouping.
func renderSubqueryChain(d *SubqueryDescriptor, from, where string) string {
	if d.Nested == nil {
		w := where
		if d.InnerWhere != "" {
			w += " AND " + d.InnerWhere
		}
		inner := fmt.Sprintf("SELECT %s AS inner_value FROM %s WHERE %s GROUP BY %s",
			d.InnerSelect, from, w, d.InnerGroupBy)
		return fmt.Sprintf("SELECT %s AS value FROM (%s)", aggExpr(d.OuterAggregation, "inner_value"), inner)
	}

	n := d.Nested
	w := where
	if n.InnerWhere != "" {
		w += " AND " + n.InnerWhere
	}
	innermost := fmt.Sprintf("SELECT %s AS pipeline_key, %s AS level1_value FROM %s WHERE %s GROUP BY %s, %s",
		d.InnerGroupBy, n.InnerSelect, from, w, d.InnerGroupBy, n.InnerGroupBy)
	middle := fmt.Sprintf("SELECT pipeline_key, %s AS level2_value FROM (%s) GROUP BY pipeline_key",
		aggExpr(n.OuterAggregation, "level1_value"), innermost)
	return fmt.Sprintf("SELECT %s AS value FROM (%s)", aggExpr(d.OuterAggregation, "level2_value"), middle)
}

// buildDedupShape handles grouping keys that explode the primary rows: a
// CTE of DISTINCT (row id, group key, period) tuples carries forward the
// numeric sources each metric needs, then metrics aggregate over the
// deduplicated rows with trace counts rewritten to distinct row ids.
func buildDedupShape(req *structs.TimeseriesRequest, metrics []MetricTranslation, filter FilterTranslation, group *grouping) string {
	withDate := !req.Granularity.Full

	inner := []string{
		"p.trace_id AS row_id",
		periodExpr + " AS period",
	}
	if withDate {
		inner = append(inner, bucketExpr(req.Granularity.Minutes, req.TimeZone)+" AS date")
	}
	inner = append(inner, dedupGroupExpr(group)+" AS group_key")
	for _, m := range metrics {
		if m.CountsTraces {
			continue
		}
		inner = append(inner, m.DedupSource+" AS "+m.Alias+"_src")
	}

	var cte strings.Builder
	cte.WriteString("SELECT DISTINCT " + strings.Join(inner, ", "))
	cte.WriteString(" FROM trace_summaries AS p")
	for _, j := range collectJoinClauses(metrics, group) {
		cte.WriteString(" " + j)
	}
	cte.WriteString(" WHERE " + withFilter(baseWhere, filter))

	groupBy := []string{"period"}
	if withDate {
		groupBy = append(groupBy, "date")
	}
	groupBy = append(groupBy, "group_key")

	outer := append([]string{}, groupBy...)
	for _, m := range metrics {
		if m.CountsTraces {
			outer = append(outer, "uniqExact(row_id) AS "+m.Alias)
			continue
		}
		outer = append(outer, aggExpr(m.Aggregation, m.Alias+"_src")+" AS "+m.Alias)
	}

	var b strings.Builder
	b.WriteString("WITH deduplicated AS (" + cte.String() + ") ")
	b.WriteString("SELECT " + strings.Join(outer, ", "))
	b.WriteString(" FROM deduplicated")
	b.WriteString(" GROUP BY " + strings.Join(groupBy, ", "))
	if group.having {
		b.WriteString(" HAVING group_key != ''")
	}
	b.WriteString(" ORDER BY " + strings.Join(groupBy, ", "))
	return b.String()
}

// dedupGroupExpr resolves the group key inside the dedup CTE. Arrays are
// unnested and filtered by the outer HAVING; booleans keep raw 0/1;
// numeric keys become strings; other scalars normalize empties to
// 'unknown'.
func dedupGroupExpr(group *grouping) string {
	m := group.mapping
	col := m.Qualified()
	switch {
	case m.IsArray:
		return fmt.Sprintf("arrayJoin(%s)", col)
	case m.IsBool:
		return col
	case m.IsNumeric:
		return fmt.Sprintf("toString(%s)", col)
	default:
		return fmt.Sprintf("if(%s = '', 'unknown', %s)", col, col)
	}
}
