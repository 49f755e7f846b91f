package template

import (
	"maps"
	"slices"

	"github.com/neurodesk/sigil/pkg/value"
)

// Result is the output of a render: the body text plus the named values set
// with $var. It reads as a string (the body) or as a set of named values.
type Result struct {
	Body string
	vars map[string]value.Value
}

func newResult() *Result { return &Result{vars: map[string]value.Value{}} }

func (r *Result) String() string { return r.Body }
func (r *Result) Truth() bool    { return r.Body != "" }

func (r *Result) TypeName() string { return "result" }

// Lookup implements value.Accessor over the $var values.
func (r *Result) Lookup(name string) (value.Value, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Get returns the named value, or None.
func (r *Result) Get(name string) value.Value {
	if v, ok := r.vars[name]; ok {
		return v
	}
	return value.None
}

// Vars returns a copy of the named values.
func (r *Result) Vars() map[string]value.Value { return maps.Clone(r.vars) }

// Keys returns the names set with $var, sorted.
func (r *Result) Keys() []string { return slices.Sorted(maps.Keys(r.vars)) }

func (r *Result) set(name string, v value.Value) { r.vars[name] = v }
