package querybuilder

import (
	"fmt"

	"github.com/langwatch/langwatch-sub008/structs"
)

// maxSessionDurationMs caps individual session durations before any
// averaging, so idle or abandoned sessions do not skew the results.
const maxSessionDurationMs = 60 * 60 * 1000

// SubqueryDescriptor describes the inner aggregation chain beneath an
// outer aggregation. A nil Nested means two levels total; a non-nil
// Nested adds a third, innermost level.
type SubqueryDescriptor struct {
	InnerSelect      string
	InnerGroupBy     string
	InnerWhere       string
	OuterAggregation structs.AggregationType
	Nested           *SubqueryDescriptor
}

// MetricTranslation is the immutable result of translating one metric.
type MetricTranslation struct {
	// SelectExpr is the full aggregate expression for single-level metrics.
	SelectExpr string
	// Alias is the unique generated column alias.
	Alias string
	// Joins lists child tables the expression reads from.
	Joins []TableID
	// Params holds values bound while translating.
	Params Params
	// DedupSource is a row-level expression whose plain aggregation over
	// deduplicated rows reproduces the metric in the dedup-grouping shape.
	DedupSource string
	// Aggregation is the effective kind used to recompose DedupSource.
	Aggregation structs.AggregationType
	// CountsTraces marks metrics the dedup shape rewrites to a distinct
	// count of primary row ids.
	CountsTraces bool
	// RequiresSubquery marks two- or three-level metrics.
	RequiresSubquery bool
	Subquery         *SubqueryDescriptor
}

var percentileTargets = map[structs.AggregationType]string{
	structs.AggMedian: "0.50",
	structs.AggP90:    "0.90",
	structs.AggP95:    "0.95",
	structs.AggP99:    "0.99",
}

// aggExpr maps an aggregation kind onto a ClickHouse aggregate over expr.
// Percentiles use exact quantiles to match the precision of the legacy
// search-engine aggregations; sums coalesce to 0 for empty groups.
func aggExpr(kind structs.AggregationType, expr string) string {
	if target, ok := percentileTargets[kind]; ok {
		return fmt.Sprintf("quantileExact(%s)(%s)", target, expr)
	}
	switch kind {
	case structs.AggSum:
		return fmt.Sprintf("coalesce(sum(%s), 0)", expr)
	case structs.AggMin:
		return fmt.Sprintf("min(%s)", expr)
	case structs.AggMax:
		return fmt.Sprintf("max(%s)", expr)
	case structs.AggCardinality:
		return fmt.Sprintf("uniqExact(%s)", expr)
	default:
		return fmt.Sprintf("avg(%s)", expr)
	}
}

// aggExprIf is aggExpr with a scoping condition via If combinators.
func aggExprIf(kind structs.AggregationType, expr, cond string) string {
	if target, ok := percentileTargets[kind]; ok {
		return fmt.Sprintf("quantileExactIf(%s)(%s, %s)", target, expr, cond)
	}
	switch kind {
	case structs.AggSum:
		return fmt.Sprintf("coalesce(sumIf(%s, %s), 0)", expr, cond)
	case structs.AggMin:
		return fmt.Sprintf("minIf(%s, %s)", expr, cond)
	case structs.AggMax:
		return fmt.Sprintf("maxIf(%s, %s)", expr, cond)
	case structs.AggCardinality:
		return fmt.Sprintf("uniqExactIf(%s, %s)", expr, cond)
	default:
		return fmt.Sprintf("avgIf(%s, %s)", expr, cond)
	}
}

func metricAlias(index int, key string) string {
	alias := fmt.Sprintf("metric_%d", index)
	if key != "" {
		// Readability only; the key itself is always bound as a parameter.
		alias += "_" + sanitizeIdentifier(key)
	}
	return alias
}

// metricCategory is the closed enumeration of metric families. Every
// field routes to exactly one category-owned translation function.
type metricCategory int

const (
	categoryMetadata metricCategory = iota
	categoryPerformance
	categoryEvaluations
	categoryEvents
	categorySentiment
	categorySessions
)

type translateFunc func(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error)

type metricDef struct {
	category  metricCategory
	translate translateFunc
}

var metricDefs = map[string]metricDef{
	"metadata.trace_id":    {categoryMetadata, translateTraceCount},
	"metadata.user_id":     {categoryMetadata, identityCardinality("user_id")},
	"metadata.thread_id":   {categoryMetadata, identityCardinality("thread_id")},
	"metadata.customer_id": {categoryMetadata, identityCardinality("customer_id")},

	"performance.completion_time":   {categoryPerformance, numericMetric("performance.completion_time")},
	"performance.first_token":       {categoryPerformance, numericMetric("performance.first_token")},
	"performance.total_cost":        {categoryPerformance, numericMetric("performance.total_cost")},
	"performance.prompt_tokens":     {categoryPerformance, numericMetric("performance.prompt_tokens")},
	"performance.completion_tokens": {categoryPerformance, numericMetric("performance.completion_tokens")},
	"performance.total_tokens":      {categoryPerformance, numericMetric("performance.total_tokens")},

	"evaluations.score":  {categoryEvaluations, evaluationMetric("evaluations.score")},
	"evaluations.passed": {categoryEvaluations, evaluationMetric("evaluations.passed")},

	"events.event_count":   {categoryEvents, translateEventCount},
	"events.event_details": {categoryEvents, translateEventDetails},

	"sentiment.input_sentiment": {categorySentiment, numericMetric("sentiment.input_sentiment")},
	"sentiment.thumbs_up_down":  {categorySentiment, numericMetric("sentiment.thumbs_up_down")},

	"sessions.average_duration_per_session": {categorySessions, translateSessionDuration},
	"sessions.average_threads_per_user":     {categorySessions, translateThreadsPerUser},
	"sessions.average_sessions_per_user":    {categorySessions, translateSessionsPerUser},
	"sessions.total_sessions":               {categorySessions, translateTotalSessions},
}

// translateMetric converts one metric spec into its SQL translation.
// Unknown fields degrade to a trace count so clients asking for an
// unsupported dimension still get a result.
func translateMetric(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	def, ok := metricDefs[spec.Field]
	if !ok {
		return translateTraceCount(ps, spec, index)
	}
	return def.translate(ps, spec, index)
}

// translatePipelineMetric wraps a metric in one further aggregation level
// grouped by the pipeline bucket field. If the inner metric already
// required a subquery, the result is an explicit three-level chain.
func translatePipelineMetric(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	inner := spec
	inner.Pipeline = nil
	t, err := translateMetric(ps, inner, index)
	if err != nil {
		return MetricTranslation{}, err
	}

	bucket := Resolve(spec.Pipeline.BucketField)
	if bucket.Table != TablePrimary {
		bucket = Resolve("metadata.user_id")
	}
	bucketCol := bucket.Qualified()

	if t.RequiresSubquery {
		t.Subquery = &SubqueryDescriptor{
			InnerGroupBy:     bucketCol,
			OuterAggregation: spec.Pipeline.Aggregation,
			Nested:           t.Subquery,
		}
	} else {
		t.Subquery = &SubqueryDescriptor{
			InnerSelect:      t.SelectExpr,
			InnerGroupBy:     bucketCol,
			OuterAggregation: spec.Pipeline.Aggregation,
		}
	}
	t.RequiresSubquery = true
	t.SelectExpr = ""
	return t, nil
}

func translateTraceCount(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{
		SelectExpr:   "uniqExact(p.trace_id)",
		Alias:        metricAlias(index, ""),
		Params:       Params{},
		Aggregation:  structs.AggCardinality,
		CountsTraces: true,
	}, nil
}

// identityCardinality counts distinct non-empty ids, matching the legacy
// terms-aggregation behavior of skipping missing values.
func identityCardinality(column string) translateFunc {
	return func(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
		return MetricTranslation{
			SelectExpr:  fmt.Sprintf("uniqExactIf(p.%s, p.%s != '')", column, column),
			Alias:       metricAlias(index, ""),
			Params:      Params{},
			DedupSource: fmt.Sprintf("nullIf(p.%s, '')", column),
			Aggregation: structs.AggCardinality,
		}, nil
	}
}

func numericMetric(field string) translateFunc {
	return func(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
		col := QualifiedColumn(field)
		return MetricTranslation{
			SelectExpr:  aggExpr(spec.Aggregation, col),
			Alias:       metricAlias(index, ""),
			Params:      Params{},
			DedupSource: col,
			Aggregation: spec.Aggregation,
		}, nil
	}
}

// evaluationMetric aggregates an evaluations child column, optionally
// scoped to one evaluator via a bound key parameter.
func evaluationMetric(field string) translateFunc {
	return func(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
		col := QualifiedColumn(field)
		params := Params{}
		t := MetricTranslation{
			Alias:       metricAlias(index, spec.Key),
			Joins:       []TableID{TableEvaluations},
			Params:      params,
			Aggregation: spec.Aggregation,
		}
		if spec.Key == "" {
			t.SelectExpr = aggExpr(spec.Aggregation, col)
			t.DedupSource = col
			return t, nil
		}
		cond := fmt.Sprintf("e.evaluator_id = %s", params.bind(ps, spec.Key))
		t.SelectExpr = aggExprIf(spec.Aggregation, col, cond)
		t.DedupSource = fmt.Sprintf("if(%s, %s, NULL)", cond, col)
		return t, nil
	}
}

// translateEventCount counts discrete events, either all of them or only
// those of the event type given as the scoping key.
func translateEventCount(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	params := Params{}
	t := MetricTranslation{
		Alias:       metricAlias(index, spec.Key),
		Params:      params,
		Aggregation: structs.AggSum,
	}
	if spec.Key == "" {
		t.SelectExpr = "coalesce(sum(length(p.event_types)), 0)"
		t.DedupSource = "length(p.event_types)"
		return t, nil
	}
	cond := fmt.Sprintf("has(p.event_types, %s)", params.bind(ps, spec.Key))
	t.SelectExpr = fmt.Sprintf("countIf(%s)", cond)
	t.DedupSource = fmt.Sprintf("if(%s, 1, 0)", cond)
	return t, nil
}

// translateEventDetails is deliberately unimplemented: its legacy
// multi-level aggregation has no faithful SQL shape yet, and a silent
// zero would misrepresent real data.
func translateEventDetails(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{}, fmt.Errorf("%w: %s", ErrUnsupportedMetric, spec.Field)
}

// translateSessionDuration is inherently two-level: per-session durations
// first, clamped at the innermost level, then the outer aggregation.
func translateSessionDuration(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{
		Alias:            metricAlias(index, ""),
		Params:           Params{},
		Aggregation:      spec.Aggregation,
		RequiresSubquery: true,
		Subquery: &SubqueryDescriptor{
			InnerSelect: fmt.Sprintf(
				"least(dateDiff('millisecond', min(p.timestamp), max(p.timestamp)), %d)",
				maxSessionDurationMs,
			),
			InnerGroupBy:     "p.user_id, p.thread_id",
			InnerWhere:       "p.thread_id != ''",
			OuterAggregation: spec.Aggregation,
		},
	}, nil
}

// translateThreadsPerUser counts distinct non-empty threads per user at
// the inner level, then applies the requested outer aggregation.
func translateThreadsPerUser(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{
		Alias:            metricAlias(index, ""),
		Params:           Params{},
		Aggregation:      spec.Aggregation,
		RequiresSubquery: true,
		Subquery: &SubqueryDescriptor{
			InnerSelect:      "uniqExactIf(p.thread_id, p.thread_id != '')",
			InnerGroupBy:     "p.user_id",
			InnerWhere:       "p.user_id != ''",
			OuterAggregation: spec.Aggregation,
		},
	}, nil
}

func translateSessionsPerUser(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{
		Alias:            metricAlias(index, ""),
		Params:           Params{},
		Aggregation:      spec.Aggregation,
		RequiresSubquery: true,
		Subquery: &SubqueryDescriptor{
			InnerSelect:      "uniqExact(p.thread_id)",
			InnerGroupBy:     "p.user_id",
			InnerWhere:       "p.user_id != ''",
			OuterAggregation: spec.Aggregation,
		},
	}, nil
}

func translateTotalSessions(ps *ParamSet, spec structs.MetricSpec, index int) (MetricTranslation, error) {
	return MetricTranslation{
		SelectExpr:  "uniqExactIf(concat(p.user_id, ':', p.thread_id), p.thread_id != '')",
		Alias:       metricAlias(index, ""),
		Params:      Params{},
		DedupSource: "if(p.thread_id != '', concat(p.user_id, ':', p.thread_id), NULL)",
		Aggregation: structs.AggCardinality,
	}, nil
}
