package querybuilder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/langwatch/langwatch-sub008/structs"
)

// FilterTranslation is the immutable result of translating one filter:
// a WHERE fragment, the child tables it needs, and its bound parameters.
type FilterTranslation struct {
	SQL    string
	Joins  []TableID
	Params Params
}

const trivialCondition = "1=1"

func trivialFilter() FilterTranslation {
	return FilterTranslation{SQL: trivialCondition, Params: Params{}}
}

// IsTrivial reports whether the fragment filters nothing.
func (ft FilterTranslation) IsTrivial() bool {
	return ft.SQL == "" || ft.SQL == trivialCondition
}

// childExists wraps a condition in a correlated EXISTS against a child
// table. EXISTS instead of a JOIN keeps child-row fan-out away from any
// outer aggregate.
func childExists(table TableID, condition string) string {
	alias := table.Alias()
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s AS %s WHERE %s.project_id = p.project_id AND %s.trace_id = p.trace_id AND %s)",
		table.Name(), alias, alias, alias, condition,
	)
}

// translateFilter converts one filter field plus its values (and optional
// scoping key/subkey) into a WHERE fragment. Unknown fields and empty
// value lists translate to a trivial no-op, never an error.
func translateFilter(ps *ParamSet, field string, values []string, key, subkey string) (FilterTranslation, error) {
	if len(values) == 0 {
		return trivialFilter(), nil
	}
	params := Params{}

	switch field {
	case "topics.topics", "topics.subtopics",
		"metadata.user_id", "metadata.thread_id", "metadata.customer_id", "metadata.trace_id":
		m := Resolve(field)
		sql := fmt.Sprintf("%s IN (%s)", m.Qualified(), params.bind(ps, values))
		return FilterTranslation{SQL: sql, Params: params}, nil

	case "metadata.labels", "events.event_type":
		m := Resolve(field)
		sql := fmt.Sprintf("hasAny(%s, %s)", m.Qualified(), params.bind(ps, values))
		return FilterTranslation{SQL: sql, Params: params}, nil

	case "trace.metadata":
		if key == "" {
			return trivialFilter(), nil
		}
		sql := fmt.Sprintf("p.metadata[%s] IN (%s)", params.bind(ps, key), params.bind(ps, values))
		return FilterTranslation{SQL: sql, Params: params}, nil

	case "traces.error", "annotations.has_annotation":
		m := Resolve(field)
		return translateBoolean(ps, params, m.Qualified(), values), nil

	case "spans.type", "spans.model", "spans.vendor":
		m := Resolve(field)
		cond := fmt.Sprintf("%s IN (%s)", m.Qualified(), params.bind(ps, values))
		return FilterTranslation{SQL: childExists(TableSpans, cond), Params: params}, nil

	case "evaluations.evaluator_id", "evaluations.name", "evaluations.label", "evaluations.state":
		m := Resolve(field)
		cond := fmt.Sprintf("%s IN (%s)", m.Qualified(), params.bind(ps, values))
		return FilterTranslation{SQL: childExists(TableEvaluations, cond), Params: params}, nil

	case "evaluations.passed":
		ft := translateBoolean(ps, params, "e.passed", values)
		if ft.IsTrivial() {
			return ft, nil
		}
		cond := ft.SQL
		if key != "" {
			cond = fmt.Sprintf("e.evaluator_id = %s AND %s", params.bind(ps, key), cond)
		}
		return FilterTranslation{SQL: childExists(TableEvaluations, cond), Params: params}, nil

	case "evaluations.score":
		lo, hi, err := parseRange(field, values)
		if err != nil {
			return FilterTranslation{}, err
		}
		cond := fmt.Sprintf("e.score >= %s AND e.score <= %s", params.bind(ps, lo), params.bind(ps, hi))
		if key != "" {
			cond = fmt.Sprintf("e.evaluator_id = %s AND %s", params.bind(ps, key), cond)
		}
		return FilterTranslation{SQL: childExists(TableEvaluations, cond), Params: params}, nil

	case "events.metrics":
		if key == "" || subkey == "" {
			return trivialFilter(), nil
		}
		lo, hi, err := parseRange(field, values)
		if err != nil {
			return FilterTranslation{}, err
		}
		col := fmt.Sprintf("p.event_metrics[concat(%s, '.', %s)]", params.bind(ps, key), params.bind(ps, subkey))
		sql := fmt.Sprintf("%s >= %s AND %s <= %s", col, params.bind(ps, lo), col, params.bind(ps, hi))
		return FilterTranslation{SQL: sql, Params: params}, nil

	default:
		// Unknown filter fields are a documented permissive no-op.
		return trivialFilter(), nil
	}
}

// translateBoolean handles presence/absence flags. Requesting both true
// and false is equivalent to no filter at all.
func translateBoolean(ps *ParamSet, params Params, column string, values []string) FilterTranslation {
	wantTrue, wantFalse := false, false
	for _, v := range values {
		switch strings.ToLower(v) {
		case "true", "1":
			wantTrue = true
		case "false", "0":
			wantFalse = true
		}
	}
	if wantTrue == wantFalse {
		return trivialFilter()
	}
	want := 0
	if wantTrue {
		want = 1
	}
	sql := fmt.Sprintf("%s = %s", column, params.bind(ps, want))
	return FilterTranslation{SQL: sql, Params: params}
}

// parseRange expects exactly two numeric values, inclusive lower and
// upper bound. Malformed numbers are rejected outright rather than
// silently compiled into NaN comparisons.
func parseRange(field string, values []string) (float64, float64, error) {
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("%w: range filter %s expects exactly two values, got %d", ErrInvalidRequest, field, len(values))
	}
	lo, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range filter %s has malformed lower bound %q", ErrInvalidRequest, field, values[0])
	}
	hi, err := strconv.ParseFloat(values[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range filter %s has malformed upper bound %q", ErrInvalidRequest, field, values[1])
	}
	return lo, hi, nil
}

// combineFilters ANDs all non-trivial fragments, unions their joins and
// merges their parameters. All-trivial input collapses back to 1=1.
func combineFilters(translations []FilterTranslation) FilterTranslation {
	combined := FilterTranslation{Params: Params{}}
	var parts []string
	seen := map[TableID]bool{}

	for _, t := range translations {
		if t.IsTrivial() {
			continue
		}
		parts = append(parts, "("+t.SQL+")")
		combined.Params.merge(t.Params)
		for _, j := range t.Joins {
			if !seen[j] {
				seen[j] = true
				combined.Joins = append(combined.Joins, j)
			}
		}
	}

	if len(parts) == 0 {
		return trivialFilter()
	}
	combined.SQL = strings.Join(parts, " AND ")
	return combined
}

// translateFilterSpec expands the three FilterSpec shapes into individual
// filter translations and combines them. Iteration order is sorted so
// identical requests compile to identical SQL.
func translateFilterSpec(ps *ParamSet, spec structs.FilterSpec) (FilterTranslation, error) {
	if len(spec) == 0 {
		return trivialFilter(), nil
	}

	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var translations []FilterTranslation
	for _, field := range fields {
		fv := spec[field]
		switch {
		case fv.Nested != nil:
			for _, key := range sortedKeys(fv.Nested) {
				sub := fv.Nested[key]
				for _, subkey := range sortedKeys(sub) {
					t, err := translateFilter(ps, field, sub[subkey], key, subkey)
					if err != nil {
						return FilterTranslation{}, err
					}
					translations = append(translations, t)
				}
			}
		case fv.Keyed != nil:
			for _, key := range sortedKeys(fv.Keyed) {
				t, err := translateFilter(ps, field, fv.Keyed[key], key, "")
				if err != nil {
					return FilterTranslation{}, err
				}
				translations = append(translations, t)
			}
		default:
			t, err := translateFilter(ps, field, fv.Flat, "", "")
			if err != nil {
				return FilterTranslation{}, err
			}
			translations = append(translations, t)
		}
	}
	return combineFilters(translations), nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
