package structs

import (
	"encoding/json"
	"fmt"
	"time"
)

// AggregationType defines the type of aggregation to perform
type AggregationType string

const (
	AggAvg         AggregationType = "avg"
	AggSum         AggregationType = "sum"
	AggMin         AggregationType = "min"
	AggMax         AggregationType = "max"
	AggCardinality AggregationType = "cardinality"
	AggMedian      AggregationType = "median"
	AggP90         AggregationType = "p90"
	AggP95         AggregationType = "p95"
	AggP99         AggregationType = "p99"
)

// PipelineSpec applies a second aggregation across per-bucket values of the
// inner metric, e.g. "average total cost per user".
type PipelineSpec struct {
	BucketField string          `json:"bucket_field"` // metadata.user_id, metadata.thread_id, metadata.customer_id
	Aggregation AggregationType `json:"aggregation"`  // avg, sum, min, max
}

// MetricSpec describes one requested metric in a timeseries request
type MetricSpec struct {
	Field       string          `json:"field"`
	Aggregation AggregationType `json:"aggregation"`
	Key         string          `json:"key,omitempty"`    // e.g. evaluator id or event type
	Subkey      string          `json:"subkey,omitempty"` // e.g. event metric name
	Pipeline    *PipelineSpec   `json:"pipeline,omitempty"`
}

// FilterValues holds one of the three accepted filter value shapes: a flat
// value list, a key -> values map, or a key -> subkey -> values map.
type FilterValues struct {
	Flat   []string
	Keyed  map[string][]string
	Nested map[string]map[string][]string
}

func (fv *FilterValues) UnmarshalJSON(b []byte) error {
	var flat []string
	if err := json.Unmarshal(b, &flat); err == nil {
		fv.Flat = flat
		return nil
	}
	var keyed map[string][]string
	if err := json.Unmarshal(b, &keyed); err == nil {
		fv.Keyed = keyed
		return nil
	}
	var nested map[string]map[string][]string
	if err := json.Unmarshal(b, &nested); err == nil {
		fv.Nested = nested
		return nil
	}
	return fmt.Errorf("filter values must be a list, a map of lists, or a map of maps of lists")
}

func (fv FilterValues) MarshalJSON() ([]byte, error) {
	switch {
	case fv.Nested != nil:
		return json.Marshal(fv.Nested)
	case fv.Keyed != nil:
		return json.Marshal(fv.Keyed)
	default:
		return json.Marshal(fv.Flat)
	}
}

// FilterSpec maps filter field names to their requested values
type FilterSpec map[string]FilterValues

// Granularity is either a bucket width in minutes or the literal "full"
// (one summary bucket per comparison period).
type Granularity struct {
	Minutes int
	Full    bool
}

func (g *Granularity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "full" {
			return fmt.Errorf("granularity must be a number of minutes or \"full\"")
		}
		g.Full = true
		return nil
	}
	var minutes int
	if err := json.Unmarshal(b, &minutes); err != nil {
		return fmt.Errorf("granularity must be a number of minutes or \"full\"")
	}
	g.Minutes = minutes
	return nil
}

func (g Granularity) MarshalJSON() ([]byte, error) {
	if g.Full {
		return json.Marshal("full")
	}
	return json.Marshal(g.Minutes)
}

// TimeseriesRequest represents a full timeseries analytics request
type TimeseriesRequest struct {
	ProjectID     string       `json:"project_id"`
	CurrentStart  time.Time    `json:"current_start"`
	CurrentEnd    time.Time    `json:"current_end"`
	PreviousStart time.Time    `json:"previous_start"`
	Series        []MetricSpec `json:"series"`
	Filters       FilterSpec   `json:"filters,omitempty"`
	GroupBy       string       `json:"group_by,omitempty"`
	GroupByKey    string       `json:"group_by_key,omitempty"`
	Granularity   Granularity  `json:"granularity"`
	TimeZone      string       `json:"time_zone,omitempty"`
}

// TimeseriesRow is one output row of a timeseries query
type TimeseriesRow struct {
	Period   string             `json:"period"` // current or previous
	Date     *time.Time         `json:"date,omitempty"`
	GroupKey *string            `json:"group_key,omitempty"`
	Metrics  map[string]float64 `json:"metrics"`
}

// TimeseriesResult represents the result of a timeseries query
type TimeseriesResult struct {
	Rows  []TimeseriesRow    `json:"rows"`
	Query *TimeseriesRequest `json:"query,omitempty"`
}

// DimensionValuesRequest lists the distinct values of one dimension,
// used to populate filter dropdowns.
type DimensionValuesRequest struct {
	ProjectID string     `json:"project_id"`
	Field     string     `json:"field"`
	Key       string     `json:"key,omitempty"`
	From      time.Time  `json:"from"`
	To        time.Time  `json:"to"`
	Filters   FilterSpec `json:"filters,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// DimensionValue is one distinct dimension value with its occurrence count
type DimensionValue struct {
	Value string `json:"value"`
	Count uint64 `json:"count"`
}

// DimensionValuesResult represents the result of a dimension values query
type DimensionValuesResult struct {
	Values []DimensionValue `json:"values"`
}

// TopDocumentsRequest ranks traces by a single metric
type TopDocumentsRequest struct {
	ProjectID string     `json:"project_id"`
	Metric    MetricSpec `json:"metric"`
	From      time.Time  `json:"from"`
	To        time.Time  `json:"to"`
	Filters   FilterSpec `json:"filters,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// TopDocument is one ranked trace
type TopDocument struct {
	TraceID string  `json:"trace_id"`
	Value   float64 `json:"value"`
}

// TopDocumentsResult represents the result of a top documents query
type TopDocumentsResult struct {
	Documents []TopDocument `json:"documents"`
}

// EventsFeedRequest lists discrete events (thumbs up/down, custom events)
// in reverse chronological order.
type EventsFeedRequest struct {
	ProjectID  string     `json:"project_id"`
	From       time.Time  `json:"from"`
	To         time.Time  `json:"to"`
	EventTypes []string   `json:"event_types,omitempty"`
	Filters    FilterSpec `json:"filters,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// FeedEvent is one discrete event occurrence
type FeedEvent struct {
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
}

// EventsFeedResult represents the result of an events feed query
type EventsFeedResult struct {
	Events []FeedEvent `json:"events"`
}
