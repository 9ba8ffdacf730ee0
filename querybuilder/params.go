package querybuilder

import "fmt"

// ParamSet generates unique named-parameter names for one compilation.
// Every compiler call owns its own set, so concurrent requests never
// share state and never collide.
type ParamSet struct {
	n int
}

// NewParamSet returns an empty per-call parameter name generator.
func NewParamSet() *ParamSet {
	return &ParamSet{}
}

func (ps *ParamSet) next() string {
	name := fmt.Sprintf("param_%d", ps.n)
	ps.n++
	return name
}

// Params maps generated parameter names to their bound values.
type Params map[string]any

// bind stores value under a fresh generated name and returns the
// placeholder text to embed in SQL.
func (p Params) bind(ps *ParamSet, value any) string {
	name := ps.next()
	p[name] = value
	return "@" + name
}

// bindNamed stores value under a caller-chosen stable name (time range
// bounds, tenant id) and returns the placeholder text.
func (p Params) bindNamed(name string, value any) string {
	p[name] = value
	return "@" + name
}

func (p Params) merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// BuiltQuery is the terminal artifact of the compiler: a SQL statement
// plus the named parameters it references. Every caller-supplied literal
// appears only in Params, never in SQL.
type BuiltQuery struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}
