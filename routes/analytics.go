package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/langwatch/langwatch-sub008/env"
	"github.com/langwatch/langwatch-sub008/querybuilder"
	"github.com/langwatch/langwatch-sub008/responder"
	"github.com/langwatch/langwatch-sub008/services"
	"github.com/langwatch/langwatch-sub008/structs"
)

// maxRequestBodySize limits request body to 1MB
const maxRequestBodySize = 1 << 20

// validAggregations defines allowed aggregation types
var validAggregations = map[structs.AggregationType]bool{
	structs.AggAvg:         true,
	structs.AggSum:         true,
	structs.AggMin:         true,
	structs.AggMax:         true,
	structs.AggCardinality: true,
	structs.AggMedian:      true,
	structs.AggP90:         true,
	structs.AggP95:         true,
	structs.AggP99:         true,
}

// TimeseriesHandler handles POST /v1/analytics/timeseries requests
func TimeseriesHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req structs.TimeseriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			responder.Error(w, http.StatusBadRequest, "request body is required")
			return
		}
		responder.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.ProjectID == "" {
		responder.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.CurrentStart.IsZero() || req.CurrentEnd.IsZero() || req.PreviousStart.IsZero() {
		responder.Error(w, http.StatusBadRequest, "current_start, current_end and previous_start are required")
		return
	}
	if len(req.Series) == 0 {
		responder.Error(w, http.StatusBadRequest, "series is required")
		return
	}
	if len(req.Series) > env.MaxSeriesMetrics {
		responder.Error(w, http.StatusBadRequest, "too many metrics in series")
		return
	}
	for i := range req.Series {
		if req.Series[i].Aggregation == "" {
			req.Series[i].Aggregation = structs.AggCardinality
		} else if !validAggregations[req.Series[i].Aggregation] {
			responder.Error(w, http.StatusBadRequest, "invalid aggregation type")
			return
		}
	}

	result, err := services.QueryTimeseries(r.Context(), &req)
	if err != nil {
		if errors.Is(err, querybuilder.ErrUnsupportedMetric) || errors.Is(err, querybuilder.ErrInvalidRequest) {
			responder.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		responder.ErrorWithCause(w, http.StatusInternalServerError, "failed to execute timeseries query", err)
		return
	}

	responder.New(w, result)
}

// DimensionValuesHandler handles GET /v1/analytics/dimensions requests
func DimensionValuesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := structs.DimensionValuesRequest{
		ProjectID: q.Get("project_id"),
		Field:     q.Get("field"),
		Key:       q.Get("key"),
	}
	if req.ProjectID == "" {
		responder.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Field == "" {
		responder.Error(w, http.StatusBadRequest, "field is required")
		return
	}
	req.From, req.To = parseTimeRange(q.Get("from"), q.Get("to"))
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			req.Limit = l
		}
	}

	result, err := services.QueryDimensionValues(r.Context(), &req)
	if err != nil {
		if errors.Is(err, querybuilder.ErrInvalidRequest) {
			responder.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		responder.ErrorWithCause(w, http.StatusInternalServerError, "failed to execute dimension values query", err)
		return
	}

	responder.New(w, result)
}

// TopDocumentsHandler handles POST /v1/analytics/top requests
func TopDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req structs.TopDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			responder.Error(w, http.StatusBadRequest, "request body is required")
			return
		}
		responder.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.ProjectID == "" {
		responder.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Metric.Aggregation == "" {
		req.Metric.Aggregation = structs.AggSum
	} else if !validAggregations[req.Metric.Aggregation] {
		responder.Error(w, http.StatusBadRequest, "invalid aggregation type")
		return
	}

	result, err := services.QueryTopDocuments(r.Context(), &req)
	if err != nil {
		if errors.Is(err, querybuilder.ErrUnsupportedMetric) || errors.Is(err, querybuilder.ErrInvalidRequest) {
			responder.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		responder.ErrorWithCause(w, http.StatusInternalServerError, "failed to execute top documents query", err)
		return
	}

	responder.New(w, result)
}

// EventsFeedHandler handles GET /v1/analytics/events requests
func EventsFeedHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := structs.EventsFeedRequest{
		ProjectID: q.Get("project_id"),
	}
	if req.ProjectID == "" {
		responder.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	req.From, req.To = parseTimeRange(q.Get("from"), q.Get("to"))
	if types := q.Get("event_types"); types != "" {
		req.EventTypes = strings.Split(types, ",")
	}
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			req.Limit = l
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			req.Offset = o
		}
	}

	result, err := services.QueryEventsFeed(r.Context(), &req)
	if err != nil {
		if errors.Is(err, querybuilder.ErrInvalidRequest) {
			responder.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		responder.ErrorWithCause(w, http.StatusInternalServerError, "failed to execute events feed query", err)
		return
	}

	responder.New(w, result)
}

// parseTimeRange parses from/to time values, accepting RFC3339 or unix
// seconds, defaulting to the last 24 hours
func parseTimeRange(from, to string) (time.Time, time.Time) {
	now := time.Now()
	fromTime := now.Add(-24 * time.Hour)
	toTime := now

	if from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			fromTime = t
		} else if unix, err := strconv.ParseInt(from, 10, 64); err == nil {
			fromTime = time.Unix(unix, 0)
		}
	}

	if to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			toTime = t
		} else if unix, err := strconv.ParseInt(to, 10, 64); err == nil {
			toTime = time.Unix(unix, 0)
		}
	}

	return fromTime, toTime
}
