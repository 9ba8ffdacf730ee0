package querybuilder

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/langwatch/langwatch-sub008/structs"
)

// BuildDimensionValuesQuery lists the distinct values of one dimension
// with occurrence counts, for filter dropdowns. Extra filters apply only
// to primary-table dimensions; child-table listings are scoped by tenant
// and time range alone.
func BuildDimensionValuesQuery(req *structs.DimensionValuesRequest) (*BuiltQuery, error) {
	ps := NewParamSet()
	params := Params{}

	m := Resolve(req.Field)
	alias := m.Table.Alias()

	var expr string
	switch {
	case m.IsArray:
		expr = fmt.Sprintf("arrayJoin(%s)", m.Qualified())
	case m.MapKind != MapNone && req.Key != "":
		expr = fmt.Sprintf("%s[%s]", m.Qualified(), params.bind(ps, req.Key))
	case m.IsBool || m.IsNumeric:
		expr = fmt.Sprintf("toString(%s)", m.Qualified())
	default:
		expr = m.Qualified()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	b := sq.Select(expr+" AS value", "count() AS count").
		From(fmt.Sprintf("%s AS %s", m.Table.Name(), alias)).
		Where(sq.Expr(fmt.Sprintf("%s.project_id = %s", alias, params.bindNamed("project_id", req.ProjectID)))).
		Where(sq.Expr(fmt.Sprintf("%s.timestamp >= %s", alias, params.bindNamed("from", req.From)))).
		Where(sq.Expr(fmt.Sprintf("%s.timestamp < %s", alias, params.bindNamed("to", req.To)))).
		GroupBy("value").
		Having("value != ''").
		OrderBy("count DESC", "value").
		Limit(uint64(limit))

	if m.Table == TablePrimary {
		filter, err := translateFilterSpec(ps, req.Filters)
		if err != nil {
			return nil, err
		}
		if !filter.IsTrivial() {
			params.merge(filter.Params)
			b = b.Where(sq.Expr(filter.SQL))
		}
	}

	sqlText, _, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build dimension values query: %w", err)
	}
	return &BuiltQuery{SQL: sqlText, Params: params}, nil
}

// BuildTopDocumentsQuery ranks traces by a single metric. Multi-level
// metrics cannot rank individual documents and are rejected.
func BuildTopDocumentsQuery(req *structs.TopDocumentsRequest) (*BuiltQuery, error) {
	ps := NewParamSet()
	params := Params{}

	t, err := translateMetric(ps, req.Metric, 0)
	if err != nil {
		return nil, err
	}
	if t.RequiresSubquery {
		return nil, fmt.Errorf("%w: metric %s cannot be used to rank documents", ErrInvalidRequest, req.Metric.Field)
	}
	params.merge(t.Params)

	filter, err := translateFilterSpec(ps, req.Filters)
	if err != nil {
		return nil, err
	}
	params.merge(filter.Params)

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 1000 {
		limit = 1000
	}

	b := sq.Select("p.trace_id AS trace_id", t.SelectExpr+" AS value").
		From("trace_summaries AS p").
		Where(sq.Expr("p.project_id = " + params.bindNamed("project_id", req.ProjectID))).
		Where(sq.Expr("p.timestamp >= " + params.bindNamed("from", req.From))).
		Where(sq.Expr("p.timestamp < " + params.bindNamed("to", req.To))).
		GroupBy("p.trace_id").
		OrderBy("value DESC").
		Limit(uint64(limit))

	for _, j := range joinsFor(t) {
		b = b.JoinClause(j)
	}
	if !filter.IsTrivial() {
		b = b.Where(sq.Expr(filter.SQL))
	}

	sqlText, _, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build top documents query: %w", err)
	}
	return &BuiltQuery{SQL: sqlText, Params: params}, nil
}

// BuildEventsFeedQuery lists discrete event occurrences in reverse
// chronological order.
func BuildEventsFeedQuery(req *structs.EventsFeedRequest) (*BuiltQuery, error) {
	ps := NewParamSet()
	params := Params{}

	filter, err := translateFilterSpec(ps, req.Filters)
	if err != nil {
		return nil, err
	}
	params.merge(filter.Params)

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	b := sq.Select("p.trace_id AS trace_id", "p.timestamp AS timestamp", "event_type").
		From("trace_summaries AS p ARRAY JOIN p.event_types AS event_type").
		Where(sq.Expr("p.project_id = " + params.bindNamed("project_id", req.ProjectID))).
		Where(sq.Expr("p.timestamp >= " + params.bindNamed("from", req.From))).
		Where(sq.Expr("p.timestamp < " + params.bindNamed("to", req.To))).
		OrderBy("p.timestamp DESC").
		Limit(uint64(limit))

	if req.Offset > 0 {
		b = b.Offset(uint64(req.Offset))
	}
	if len(req.EventTypes) > 0 {
		b = b.Where(sq.Expr("event_type IN (" + params.bind(ps, req.EventTypes) + ")"))
	}
	if !filter.IsTrivial() {
		b = b.Where(sq.Expr(filter.SQL))
	}

	sqlText, _, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build events feed query: %w", err)
	}
	return &BuiltQuery{SQL: sqlText, Params: params}, nil
}
