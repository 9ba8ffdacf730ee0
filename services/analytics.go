package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/langwatch/langwatch-sub008/db"
	"github.com/langwatch/langwatch-sub008/querybuilder"
	"github.com/langwatch/langwatch-sub008/structs"
)

// namedArgs converts a built query's parameter map into driver arguments.
func namedArgs(params map[string]any) []any {
	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, clickhouse.Named(name, value))
	}
	return args
}

// QueryTimeseries compiles and executes a timeseries analytics request.
func QueryTimeseries(ctx context.Context, req *structs.TimeseriesRequest) (*structs.TimeseriesResult, error) {
	built, err := querybuilder.BuildTimeseriesQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := db.Conn.Query(ctx, built.SQL, namedArgs(built.Params)...)
	if err != nil {
		return nil, fmt.Errorf("timeseries query failed: %w", err)
	}
	defer rows.Close()

	cols := rows.Columns()
	types := rows.ColumnTypes()

	result := &structs.TimeseriesResult{Query: req}
	for rows.Next() {
		dests := make([]any, len(cols))
		for i, ct := range types {
			dests[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		row := structs.TimeseriesRow{Metrics: make(map[string]float64, len(cols))}
		for i, name := range cols {
			v := reflect.ValueOf(dests[i]).Elem().Interface()
			switch name {
			case "period":
				row.Period = asString(v)
			case "date":
				if t, ok := v.(time.Time); ok {
					bucket := t
					row.Date = &bucket
				}
			case "group_key":
				key := asString(v)
				row.GroupKey = &key
			default:
				row.Metrics[name] = asFloat(v)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if result.Rows == nil {
		result.Rows = []structs.TimeseriesRow{}
	}
	return result, nil
}

// QueryDimensionValues compiles and executes a dimension values listing.
func QueryDimensionValues(ctx context.Context, req *structs.DimensionValuesRequest) (*structs.DimensionValuesResult, error) {
	built, err := querybuilder.BuildDimensionValuesQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := db.Conn.Query(ctx, built.SQL, namedArgs(built.Params)...)
	if err != nil {
		return nil, fmt.Errorf("dimension values query failed: %w", err)
	}
	defer rows.Close()

	var values []structs.DimensionValue
	for rows.Next() {
		var v structs.DimensionValue
		if err := rows.Scan(&v.Value, &v.Count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if values == nil {
		values = []structs.DimensionValue{}
	}
	return &structs.DimensionValuesResult{Values: values}, nil
}

// QueryTopDocuments compiles and executes a top documents ranking.
func QueryTopDocuments(ctx context.Context, req *structs.TopDocumentsRequest) (*structs.TopDocumentsResult, error) {
	built, err := querybuilder.BuildTopDocumentsQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := db.Conn.Query(ctx, built.SQL, namedArgs(built.Params)...)
	if err != nil {
		return nil, fmt.Errorf("top documents query failed: %w", err)
	}
	defer rows.Close()

	cols := rows.Columns()
	types := rows.ColumnTypes()

	var docs []structs.TopDocument
	for rows.Next() {
		dests := make([]any, len(cols))
		for i, ct := range types {
			dests[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		var doc structs.TopDocument
		for i, name := range cols {
			v := reflect.ValueOf(dests[i]).Elem().Interface()
			switch name {
			case "trace_id":
				doc.TraceID = asString(v)
			case "value":
				doc.Value = asFloat(v)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if docs == nil {
		docs = []structs.TopDocument{}
	}
	return &structs.TopDocumentsResult{Documents: docs}, nil
}

// QueryEventsFeed compiles and executes an events feed listing.
func QueryEventsFeed(ctx context.Context, req *structs.EventsFeedRequest) (*structs.EventsFeedResult, error) {
	built, err := querybuilder.BuildEventsFeedQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := db.Conn.Query(ctx, built.SQL, namedArgs(built.Params)...)
	if err != nil {
		return nil, fmt.Errorf("events feed query failed: %w", err)
	}
	defer rows.Close()

	var events []structs.FeedEvent
	for rows.Next() {
		var e structs.FeedEvent
		if err := rows.Scan(&e.TraceID, &e.Timestamp, &e.EventType); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if events == nil {
		events = []structs.FeedEvent{}
	}
	return &structs.EventsFeedResult{Events: events}, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return 0
	}
}
