package value

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// Named is implemented by host values that report their own type name in
// error messages.
type Named interface {
	TypeName() string
}

// TypeName returns the template-facing name of v's type.
func TypeName(v Value) string {
	switch t := v.(type) {
	case nil, NoneValue:
		return "NoneType"
	case BoolValue:
		return "bool"
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case StringValue:
		return "string"
	case ListValue:
		return "list"
	case *DictValue:
		return "dict"
	case RangeValue:
		return "range"
	case Named:
		return t.TypeName()
	case Callable:
		return "function"
	}
	return "object"
}

// Equal reports whether a and b are equal. Ints and floats compare by numeric
// value; lists and dicts compare element-wise.
func Equal(a, b Value) bool {
	if isNone(a) || isNone(b) {
		return isNone(a) && isNone(b)
	}
	if x, y, ok := numbers(a, b); ok {
		return x == y
	}
	switch x := a.(type) {
	case BoolValue:
		y, ok := b.(BoolValue)
		return ok && x == y
	case StringValue:
		y, ok := b.(StringValue)
		return ok && x == y
	case ListValue:
		y, ok := b.(ListValue)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *DictValue:
		y, ok := b.(*DictValue)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for k, xv := range x.All() {
			yv, ok, _ := y.Get(k)
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case *Object:
		y, ok := b.(*Object)
		return ok && x.same(y)
	case RangeValue:
		y, ok := b.(RangeValue)
		return ok && x == y
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Compare orders a and b, returning -1, 0 or +1. Only numbers, strings and
// lists of comparable values are ordered.
func Compare(a, b Value) (int, error) {
	if x, y, ok := numbers(a, b); ok {
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	switch x := a.(type) {
	case StringValue:
		if y, ok := b.(StringValue); ok {
			return strings.Compare(string(x), string(y)), nil
		}
	case ListValue:
		if y, ok := b.(ListValue); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				c, err := Compare(x[i], y[i])
				if err != nil {
					return 0, err
				}
				if c != 0 {
					return c, nil
				}
			}
			switch {
			case len(x) < len(y):
				return -1, nil
			case len(x) > len(y):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %s with %s", TypeName(a), TypeName(b))
}

// numbers returns a and b as floats when both are numeric (bools count).
func numbers(a, b Value) (float64, float64, bool) {
	x, ok1 := AsFloat(a)
	y, ok2 := AsFloat(b)
	_, boolA := a.(BoolValue)
	_, boolB := b.(BoolValue)
	if boolA != boolB {
		return 0, 0, false
	}
	return x, y, ok1 && ok2
}

// AsFloat returns v as a float64 when v is a number.
func AsFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case IntValue:
		return float64(t), true
	case FloatValue:
		return float64(t), true
	case BoolValue:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsInt returns v as an int64 when v is an integer or a bool.
func AsInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case IntValue:
		return int64(t), true
	case BoolValue:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNone(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NoneValue)
	return ok
}

// IsNone reports whether v is None (or a nil Value).
func IsNone(v Value) bool { return isNone(v) }

// Len returns the length of v when it is known.
func Len(v Value) (int, bool) {
	if s, ok := v.(Sized); ok {
		return s.Len(), true
	}
	return 0, false
}

// Iterate returns an iterator over v. Strings iterate by character, dicts by
// key in insertion order and None as an empty sequence.
func Iterate(v Value) (Iterator, error) {
	switch t := v.(type) {
	case nil, NoneValue:
		return &sliceIter{}, nil
	case StringValue:
		return &stringIter{s: string(t)}, nil
	case ListValue:
		return &sliceIter{items: t}, nil
	case Iterable:
		return t.Iterate(), nil
	}
	return nil, fmt.Errorf("%s is not iterable", TypeName(v))
}

// Collect drains v into a list.
func Collect(v Value) (ListValue, error) {
	if l, ok := v.(ListValue); ok {
		return l, nil
	}
	it, err := Iterate(v)
	if err != nil {
		return nil, err
	}
	var out ListValue
	if n, ok := Len(v); ok {
		out = make(ListValue, 0, n)
	}
	for x, ok := it.Next(); ok; x, ok = it.Next() {
		out = append(out, x)
	}
	return out, nil
}

type sliceIter struct {
	items []Value
	i     int
}

func (it *sliceIter) Next() (Value, bool) {
	if it.i >= len(it.items) {
		return nil, false
	}
	v := it.items[it.i]
	it.i++
	return v, true
}

type stringIter struct {
	s string
}

func (it *stringIter) Next() (Value, bool) {
	if len(it.s) == 0 {
		return nil, false
	}
	r, size := utf8.DecodeRuneInString(it.s)
	it.s = it.s[size:]
	return StringValue(string(r)), true
}
