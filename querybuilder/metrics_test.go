package querybuilder

import (
	"errors"
	"testing"

	"github.com/langwatch/langwatch-sub008/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggExprPercentiles(t *testing.T) {
	assert.Equal(t, "quantileExact(0.50)(x)", aggExpr(structs.AggMedian, "x"))
	assert.Equal(t, "quantileExact(0.90)(x)", aggExpr(structs.AggP90, "x"))
	assert.Equal(t, "quantileExact(0.95)(x)", aggExpr(structs.AggP95, "x"))
	assert.Equal(t, "quantileExact(0.99)(x)", aggExpr(structs.AggP99, "x"))
}

func TestAggExprSumCoalescesEmptyGroups(t *testing.T) {
	assert.Equal(t, "coalesce(sum(p.total_cost), 0)", aggExpr(structs.AggSum, "p.total_cost"))
	assert.Equal(t, "coalesce(sumIf(p.total_cost, c), 0)", aggExprIf(structs.AggSum, "p.total_cost", "c"))
}

func TestTranslateTraceCount(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "metadata.trace_id"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "uniqExact(p.trace_id)", mt.SelectExpr)
	assert.Equal(t, "metric_0", mt.Alias)
	assert.True(t, mt.CountsTraces)
}

func TestUnknownMetricFallsBackToTraceCount(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "nope.nothing"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "uniqExact(p.trace_id)", mt.SelectExpr)
	assert.Equal(t, "metric_2", mt.Alias)
}

func TestIdentityCardinalityExcludesEmptyIDs(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "metadata.user_id"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "uniqExactIf(p.user_id, p.user_id != '')", mt.SelectExpr)
	assert.Equal(t, "nullIf(p.user_id, '')", mt.DedupSource)
}

func TestNumericMetricCompoundColumn(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field:       "performance.total_tokens",
		Aggregation: structs.AggSum,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "coalesce(sum((p.prompt_tokens + p.completion_tokens)), 0)", mt.SelectExpr)
}

func TestEvaluationMetricScopedByKey(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field:       "evaluations.score",
		Aggregation: structs.AggAvg,
		Key:         "faithfulness-check",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "avgIf(e.score, e.evaluator_id = @param_0)", mt.SelectExpr)
	assert.Equal(t, "faithfulness-check", mt.Params["param_0"])
	assert.Equal(t, []TableID{TableEvaluations}, mt.Joins)
	// Key goes into the alias sanitized, never into SQL raw.
	assert.Equal(t, "metric_0_faithfulnesscheck", mt.Alias)
	assert.NotContains(t, mt.SelectExpr, "faithfulness-check")
}

func TestEvaluationMetricUnscoped(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field:       "evaluations.passed",
		Aggregation: structs.AggAvg,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "avg(e.passed)", mt.SelectExpr)
	assert.Empty(t, mt.Params)
}

func TestEventCountKeyed(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field: "events.event_count",
		Key:   "thumbs_up_down",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "countIf(has(p.event_types, @param_0))", mt.SelectExpr)
	assert.Equal(t, "thumbs_up_down", mt.Params["param_0"])
}

func TestEventCountAllTypes(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "events.event_count"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "coalesce(sum(length(p.event_types)), 0)", mt.SelectExpr)
}

func TestEventDetailsIsUnsupported(t *testing.T) {
	_, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "events.event_details"}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))
}

func TestSessionDurationIsTwoLevel(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field:       "sessions.average_duration_per_session",
		Aggregation: structs.AggAvg,
	}, 0)
	require.NoError(t, err)
	assert.True(t, mt.RequiresSubquery)
	require.NotNil(t, mt.Subquery)
	assert.Contains(t, mt.Subquery.InnerSelect, "least(dateDiff('millisecond', min(p.timestamp), max(p.timestamp)), 3600000)")
	assert.Equal(t, "p.user_id, p.thread_id", mt.Subquery.InnerGroupBy)
	assert.Equal(t, "p.thread_id != ''", mt.Subquery.InnerWhere)
	assert.Equal(t, structs.AggAvg, mt.Subquery.OuterAggregation)
	assert.Nil(t, mt.Subquery.Nested)
}

func TestThreadsPerUserIsTwoLevel(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{
		Field:       "sessions.average_threads_per_user",
		Aggregation: structs.AggAvg,
	}, 0)
	require.NoError(t, err)
	assert.True(t, mt.RequiresSubquery)
	require.NotNil(t, mt.Subquery)
	assert.Equal(t, "uniqExactIf(p.thread_id, p.thread_id != '')", mt.Subquery.InnerSelect)
	assert.Equal(t, "p.user_id", mt.Subquery.InnerGroupBy)
	assert.Equal(t, "p.user_id != ''", mt.Subquery.InnerWhere)
	assert.Equal(t, structs.AggAvg, mt.Subquery.OuterAggregation)
	// Never the trace-count fallback.
	assert.NotEqual(t, "uniqExact(p.trace_id)", mt.SelectExpr)
}

func TestTotalSessionsSingleLevel(t *testing.T) {
	mt, err := translateMetric(NewParamSet(), structs.MetricSpec{Field: "sessions.total_sessions"}, 0)
	require.NoError(t, err)
	assert.False(t, mt.RequiresSubquery)
	assert.Equal(t, "uniqExactIf(concat(p.user_id, ':', p.thread_id), p.thread_id != '')", mt.SelectExpr)
}

func TestPipelineWrapsSimpleMetricInSubquery(t *testing.T) {
	mt, err := translatePipelineMetric(NewParamSet(), structs.MetricSpec{
		Field:       "metadata.trace_id",
		Aggregation: structs.AggCardinality,
		Pipeline:    &structs.PipelineSpec{BucketField: "metadata.user_id", Aggregation: structs.AggAvg},
	}, 0)
	require.NoError(t, err)
	assert.True(t, mt.RequiresSubquery)
	assert.Empty(t, mt.SelectExpr)
	require.NotNil(t, mt.Subquery)
	assert.Equal(t, "uniqExact(p.trace_id)", mt.Subquery.InnerSelect)
	assert.Equal(t, "p.user_id", mt.Subquery.InnerGroupBy)
	assert.Equal(t, structs.AggAvg, mt.Subquery.OuterAggregation)
	assert.Nil(t, mt.Subquery.Nested)
}

func TestPipelineOverSubqueryMetricIsThreeLevel(t *testing.T) {
	mt, err := translatePipelineMetric(NewParamSet(), structs.MetricSpec{
		Field:       "sessions.average_duration_per_session",
		Aggregation: structs.AggAvg,
		Pipeline:    &structs.PipelineSpec{BucketField: "metadata.user_id", Aggregation: structs.AggMax},
	}, 0)
	require.NoError(t, err)
	assert.True(t, mt.RequiresSubquery)
	require.NotNil(t, mt.Subquery)
	assert.Equal(t, structs.AggMax, mt.Subquery.OuterAggregation)
	require.NotNil(t, mt.Subquery.Nested)
	assert.Contains(t, mt.Subquery.Nested.InnerSelect, "dateDiff")
	assert.Equal(t, "p.user_id, p.thread_id", mt.Subquery.Nested.InnerGroupBy)
}

func TestPipelineBucketFallsBackToUserID(t *testing.T) {
	mt, err := translatePipelineMetric(NewParamSet(), structs.MetricSpec{
		Field:       "metadata.trace_id",
		Aggregation: structs.AggCardinality,
		Pipeline:    &structs.PipelineSpec{BucketField: "spans.model", Aggregation: structs.AggAvg},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "p.user_id", mt.Subquery.InnerGroupBy)
}

func TestMetricAliasesAreUniquePerIndex(t *testing.T) {
	a, _ := translateMetric(NewParamSet(), structs.MetricSpec{Field: "metadata.trace_id"}, 0)
	b, _ := translateMetric(NewParamSet(), structs.MetricSpec{Field: "metadata.trace_id"}, 1)
	assert.NotEqual(t, a.Alias, b.Alias)
}
