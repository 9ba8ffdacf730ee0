package structs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterValuesFlatShape(t *testing.T) {
	var fv FilterValues
	require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &fv))
	assert.Equal(t, []string{"a", "b"}, fv.Flat)
	assert.Nil(t, fv.Keyed)
	assert.Nil(t, fv.Nested)
}

func TestFilterValuesKeyedShape(t *testing.T) {
	var fv FilterValues
	require.NoError(t, json.Unmarshal([]byte(`{"eval-1": ["0.5", "1"]}`), &fv))
	assert.Equal(t, map[string][]string{"eval-1": {"0.5", "1"}}, fv.Keyed)
	assert.Nil(t, fv.Flat)
}

func TestFilterValuesNestedShape(t *testing.T) {
	var fv FilterValues
	require.NoError(t, json.Unmarshal([]byte(`{"thumbs_up_down": {"vote": ["-1", "1"]}}`), &fv))
	assert.Equal(t, map[string]map[string][]string{"thumbs_up_down": {"vote": {"-1", "1"}}}, fv.Nested)
}

func TestFilterValuesRejectsOtherShapes(t *testing.T) {
	var fv FilterValues
	assert.Error(t, json.Unmarshal([]byte(`42`), &fv))
	assert.Error(t, json.Unmarshal([]byte(`"just-a-string"`), &fv))
}

func TestFilterValuesRoundTrip(t *testing.T) {
	fv := FilterValues{Keyed: map[string][]string{"k": {"v"}}}
	b, err := json.Marshal(fv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k": ["v"]}`, string(b))
}

func TestGranularityMinutes(t *testing.T) {
	var g Granularity
	require.NoError(t, json.Unmarshal([]byte(`1440`), &g))
	assert.Equal(t, 1440, g.Minutes)
	assert.False(t, g.Full)
}

func TestGranularityFull(t *testing.T) {
	var g Granularity
	require.NoError(t, json.Unmarshal([]byte(`"full"`), &g))
	assert.True(t, g.Full)
}

func TestGranularityRejectsOtherStrings(t *testing.T) {
	var g Granularity
	assert.Error(t, json.Unmarshal([]byte(`"hourly"`), &g))
	assert.Error(t, json.Unmarshal([]byte(`[60]`), &g))
}

func TestGranularityMarshalsBackToWire(t *testing.T) {
	b, err := json.Marshal(Granularity{Full: true})
	require.NoError(t, err)
	assert.Equal(t, `"full"`, string(b))

	b, err = json.Marshal(Granularity{Minutes: 60})
	require.NoError(t, err)
	assert.Equal(t, `60`, string(b))
}

func TestTimeseriesRequestDecoding(t *testing.T) {
	payload := `{
		"project_id": "proj-1",
		"current_start": "2026-08-15T00:00:00Z",
		"current_end": "2026-08-29T00:00:00Z",
		"previous_start": "2026-08-01T00:00:00Z",
		"series": [
			{"field": "metadata.trace_id", "aggregation": "cardinality"},
			{"field": "evaluations.score", "aggregation": "avg", "key": "faithfulness"},
			{"field": "performance.total_cost", "aggregation": "sum",
			 "pipeline": {"bucket_field": "metadata.user_id", "aggregation": "avg"}}
		],
		"filters": {
			"topics.topics": ["billing"],
			"evaluations.score": {"ev-1": ["0", "1"]}
		},
		"group_by": "metadata.labels",
		"granularity": "full",
		"time_zone": "Europe/Amsterdam"
	}`

	var req TimeseriesRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, "proj-1", req.ProjectID)
	require.Len(t, req.Series, 3)
	assert.Equal(t, AggCardinality, req.Series[0].Aggregation)
	assert.Equal(t, "faithfulness", req.Series[1].Key)
	require.NotNil(t, req.Series[2].Pipeline)
	assert.Equal(t, "metadata.user_id", req.Series[2].Pipeline.BucketField)
	assert.Equal(t, []string{"billing"}, req.Filters["topics.topics"].Flat)
	assert.Equal(t, map[string][]string{"ev-1": {"0", "1"}}, req.Filters["evaluations.score"].Keyed)
	assert.True(t, req.Granularity.Full)
	assert.Equal(t, "Europe/Amsterdam", req.TimeZone)
}
