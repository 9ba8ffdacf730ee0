package querybuilder

import "errors"

// ErrUnsupportedMetric is returned for metrics whose legacy aggregation
// shape has no SQL translation yet. Callers must surface this instead of
// silently reporting zeros.
var ErrUnsupportedMetric = errors.New("unsupported metric")

// ErrInvalidRequest marks compilation failures caused by the request
// itself rather than by execution, so transports can answer with a
// client error without inspecting message text.
var ErrInvalidRequest = errors.New("invalid request")
