package template

import (
	"fmt"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/value"
)

// The sandbox has a single rule: attributes whose names carry a denied prefix
// are never reachable, whatever the target. Template code cannot import,
// define classes or reach host internals any other way, so reading fields is
// the only door that needs a guard.

func (s *state) checkAttr(name string) error {
	if s.tpl.engine.Denied(name) {
		return &SecurityError{Attr: name}
	}
	return nil
}

// getAttr reads attribute name of x. Host objects expose attributes through
// value.Accessor; dict keys shadow dict methods.
func getAttr(x value.Value, name string) (value.Value, error) {
	switch t := x.(type) {
	case *value.DictValue:
		if v, ok := t.GetKey(name); ok {
			return v, nil
		}
	case value.Accessor:
		if v, ok := t.Lookup(name); ok {
			return v, nil
		}
	}
	if m, ok := method(x, name); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%s has no attribute %q", value.TypeName(x), name)
}

func (s *state) index(x, y value.Value) (value.Value, error) {
	switch t := x.(type) {
	case *value.DictValue:
		v, ok, err := t.Get(y)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("key %s not found", value.Repr(y))
		}
		return v, nil
	case value.ListValue, value.StringValue, value.RangeValue:
		items, err := value.Collect(t)
		if err != nil {
			return nil, err
		}
		i, ok := value.AsInt(y)
		if !ok {
			return nil, fmt.Errorf("%s indices must be integers, not %s", value.TypeName(x), value.TypeName(y))
		}
		n := int64(len(items))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%s index out of range", value.TypeName(x))
		}
		return items[i], nil
	case value.Accessor:
		key, ok := y.(value.StringValue)
		if !ok {
			return nil, fmt.Errorf("%s keys must be strings, not %s", value.TypeName(x), value.TypeName(y))
		}
		if err := s.checkAttr(string(key)); err != nil {
			return nil, err
		}
		if v, ok := t.Lookup(string(key)); ok {
			return v, nil
		}
		return nil, fmt.Errorf("key %s not found", value.Repr(y))
	}
	return nil, fmt.Errorf("%s is not subscriptable", value.TypeName(x))
}

func (s *state) slice(e *syntax.SliceExpr) (value.Value, error) {
	x, err := s.eval(e.X)
	if err != nil {
		return nil, err
	}
	bound := func(b syntax.Expr) (*int64, error) {
		if b == nil {
			return nil, nil
		}
		v, err := s.eval(b)
		if err != nil || value.IsNone(v) {
			return nil, err
		}
		i, ok := value.AsInt(v)
		if !ok {
			return nil, fmt.Errorf("slice indices must be integers, not %s", value.TypeName(v))
		}
		return &i, nil
	}
	lo, err := bound(e.Lo)
	if err != nil {
		return nil, err
	}
	hi, err := bound(e.Hi)
	if err != nil {
		return nil, err
	}
	step, err := bound(e.Step)
	if err != nil {
		return nil, err
	}
	switch t := x.(type) {
	case value.StringValue:
		runes := []rune(string(t))
		idx, err := sliceIndices(len(runes), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := make([]rune, 0, len(idx))
		for _, i := range idx {
			out = append(out, runes[i])
		}
		return value.StringValue(string(out)), nil
	case value.ListValue, value.RangeValue:
		items, err := value.Collect(t)
		if err != nil {
			return nil, err
		}
		idx, err := sliceIndices(len(items), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := make(value.ListValue, 0, len(idx))
		for _, i := range idx {
			out = append(out, items[i])
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s cannot be sliced", value.TypeName(x))
}

// sliceIndices computes the element indices selected by [lo:hi:step] over a
// sequence of length n, with negative and out-of-range bounds clamped.
func sliceIndices(n int, lo, hi, step *int64) ([]int, error) {
	st := int64(1)
	if step != nil {
		st = *step
	}
	if st == 0 {
		return nil, fmt.Errorf("slice step cannot be zero")
	}
	clamp := func(p *int64, def int64, min, max int64) int64 {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += int64(n)
		}
		if v < min {
			return min
		}
		if v > max {
			return max
		}
		return v
	}
	var out []int
	if st > 0 {
		start := clamp(lo, 0, 0, int64(n))
		stop := clamp(hi, int64(n), 0, int64(n))
		for i := start; i < stop; i += st {
			out = append(out, int(i))
		}
		return out, nil
	}
	start := clamp(lo, int64(n)-1, -1, int64(n)-1)
	stop := clamp(hi, -1, -1, int64(n)-1)
	for i := start; i > stop; i += st {
		out = append(out, int(i))
	}
	return out, nil
}
