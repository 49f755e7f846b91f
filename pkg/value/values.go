package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Value is an abstract value seen by template code. It defines string
// conversion (used for output) and truthiness semantics.
type Value interface {
	String() string
	Truth() bool
}

// Accessor can be implemented by host objects to expose named attributes to
// templates. It is the only way template code reads fields of an object.
type Accessor interface {
	Lookup(name string) (Value, bool)
}

// Iterator yields the elements of a sequence one at a time.
type Iterator interface {
	Next() (Value, bool)
}

// Iterable is implemented by values that can be iterated lazily.
type Iterable interface {
	Iterate() Iterator
}

// Sized is implemented by values with a known length.
type Sized interface {
	Len() int
}

// Callable is implemented by values that can be invoked from templates.
type Callable interface {
	Call(args []Value, kwargs map[string]Value) (Value, error)
}

// CallableValue wraps a Go function so it can be invoked from templates.
type CallableValue struct {
	Name string
	Fn   func(args []Value, kwargs map[string]Value) (Value, error)
}

func (c CallableValue) String() string {
	if c.Name == "" {
		return "<function>"
	}
	return "<function " + c.Name + ">"
}
func (c CallableValue) Truth() bool { return true }

// Call implements Callable.
func (c CallableValue) Call(args []Value, kwargs map[string]Value) (Value, error) {
	return c.Fn(args, kwargs)
}

// NoneValue represents the absence of a value. It renders as empty text.
type NoneValue struct{}

func (NoneValue) String() string { return "" }
func (NoneValue) Truth() bool    { return false }

// None is the single NoneValue.
var None Value = NoneValue{}

// BoolValue wraps a boolean.
type BoolValue bool

func (b BoolValue) String() string {
	if b {
		return "True"
	}
	return "False"
}
func (b BoolValue) Truth() bool { return bool(b) }

// IntValue wraps an integer (64-bit).
type IntValue int64

func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool    { return int64(i) != 0 }

// FloatValue wraps a float (64-bit).
type FloatValue float64

func (f FloatValue) String() string {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	case v == math.Trunc(v) && math.Abs(v) < 1e16:
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
func (f FloatValue) Truth() bool { return float64(f) != 0 }

// StringValue wraps a string.
type StringValue string

func (s StringValue) String() string { return string(s) }
func (s StringValue) Truth() bool    { return len(string(s)) > 0 }
func (s StringValue) Len() int       { return len([]rune(string(s))) }

// ListValue wraps a list of values. Tuples are lists too.
type ListValue []Value

func (l ListValue) String() string { return Repr(l) }
func (l ListValue) Truth() bool    { return len(l) > 0 }
func (l ListValue) Len() int       { return len(l) }

// RangeValue is a lazy arithmetic sequence as produced by range().
type RangeValue struct {
	Start, Stop, Step int64
}

func (r RangeValue) String() string {
	if r.Step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.Start, r.Stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.Start, r.Stop, r.Step)
}
func (r RangeValue) Truth() bool { return r.Len() > 0 }

func (r RangeValue) Len() int {
	if r.Step > 0 && r.Start < r.Stop {
		return int((r.Stop - r.Start + r.Step - 1) / r.Step)
	}
	if r.Step < 0 && r.Start > r.Stop {
		return int((r.Start - r.Stop - r.Step - 1) / -r.Step)
	}
	return 0
}

// Iterate implements Iterable.
func (r RangeValue) Iterate() Iterator {
	return &rangeIter{next: r.Start, r: r}
}

type rangeIter struct {
	next int64
	r    RangeValue
}

func (it *rangeIter) Next() (Value, bool) {
	if (it.r.Step > 0 && it.next >= it.r.Stop) || (it.r.Step < 0 && it.next <= it.r.Stop) || it.r.Step == 0 {
		return nil, false
	}
	v := it.next
	it.next += it.r.Step
	return IntValue(v), true
}

// FromGo converts a Go value to a Value. Slices and maps are copied;
// structs and pointers to structs become an *Object that reads fields on
// demand. A slice or map that contains itself is cut off as [...] or {...}.
func FromGo(v any) Value {
	return fromGo(v, nil)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

func fromGo(v any, seen map[visit]bool) Value {
	if v == nil {
		return None
	}
	switch t := v.(type) {
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int8:
		return IntValue(int64(t))
	case int16:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint8:
		return IntValue(int64(t))
	case uint16:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case []byte:
		return StringValue(string(t))
	case []string:
		out := make(ListValue, len(t))
		for i, s := range t {
			out[i] = StringValue(s)
		}
		return out
	case func(args []Value, kwargs map[string]Value) (Value, error):
		return CallableValue{Fn: t}
	case fmt.Stringer:
		return StringValue(t.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			if rv.Kind() == reflect.Map {
				return NewDict(0)
			}
			return ListValue{}
		}
		key := visit{rv.Pointer(), rv.Type()}
		if seen[key] {
			if rv.Kind() == reflect.Map {
				return StringValue("{...}")
			}
			return StringValue("[...]")
		}
		if seen == nil {
			seen = map[visit]bool{}
		}
		seen[key] = true
		defer delete(seen, key)
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make(ListValue, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, fromGo(rv.Index(i).Interface(), seen))
		}
		return out
	case reflect.Map:
		out := NewDict(rv.Len())
		it := rv.MapRange()
		var rest []Value
		for it.Next() {
			k := fromGo(it.Key().Interface(), seen)
			if err := out.Set(k, fromGo(it.Value().Interface(), seen)); err != nil {
				continue
			}
			rest = append(rest, k)
		}
		return sortedDict(out, rest)
	case reflect.Struct:
		return &Object{rv: rv}
	case reflect.Pointer:
		if rv.IsNil() {
			return None
		}
		if rv.Elem().Kind() == reflect.Struct {
			return &Object{rv: rv}
		}
		return fromGo(rv.Elem().Interface(), seen)
	case reflect.Interface:
		if rv.IsNil() {
			return None
		}
		return fromGo(rv.Elem().Interface(), seen)
	}
	// Fallback: string formatting
	return StringValue(fmt.Sprintf("%v", v))
}

// sortedDict reorders d by key so Go maps convert deterministically. Keys that
// cannot be ordered against each other keep map order.
func sortedDict(d *DictValue, keys []Value) *DictValue {
	ok := true
	sort.SliceStable(keys, func(i, j int) bool {
		c, err := Compare(keys[i], keys[j])
		if err != nil {
			ok = false
		}
		return c < 0
	})
	if !ok {
		return d
	}
	out := NewDict(len(keys))
	for _, k := range keys {
		v, _, _ := d.Get(k)
		_ = out.Set(k, v)
	}
	return out
}

// FromGoMap converts every entry of m with FromGo.
func FromGoMap(m map[string]any) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = FromGo(v)
	}
	return out
}

// ToGo converts a Value to plain Go data, recursively. Values with no plain
// Go counterpart are returned as their string form.
func ToGo(v Value) any {
	switch t := v.(type) {
	case nil, NoneValue:
		return nil
	case StringValue:
		return string(t)
	case IntValue:
		return int64(t)
	case FloatValue:
		return float64(t)
	case BoolValue:
		return bool(t)
	case ListValue:
		out := make([]any, 0, len(t))
		for _, it := range t {
			out = append(out, ToGo(it))
		}
		return out
	case *DictValue:
		out := make(map[string]any, t.Len())
		for k, vv := range t.All() {
			s, ok := k.(StringValue)
			if !ok {
				return toGoAnyKeys(t)
			}
			out[string(s)] = ToGo(vv)
		}
		return out
	case *Object:
		return t.Interface()
	case RangeValue:
		var out []any
		it := t.Iterate()
		for x, ok := it.Next(); ok; x, ok = it.Next() {
			out = append(out, ToGo(x))
		}
		return out
	default:
		return v.String()
	}
}

// toGoAnyKeys converts a dict with keys other than strings. List keys become
// their repr, since Go slices cannot be map keys.
func toGoAnyKeys(d *DictValue) map[any]any {
	out := make(map[any]any, d.Len())
	for k, v := range d.All() {
		if _, ok := k.(ListValue); ok {
			out[Repr(k)] = ToGo(v)
			continue
		}
		out[ToGo(k)] = ToGo(v)
	}
	return out
}

// Repr returns the source-like representation of v, as used when a list or
// dict is printed.
func Repr(v Value) string {
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil, NoneValue:
		b.WriteString("None")
	case StringValue:
		b.WriteByte('\'')
		for _, r := range string(t) {
			switch r {
			case '\'':
				b.WriteString(`\'`)
			case '\\':
				b.WriteString(`\\`)
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteRune(r)
			}
		}
		b.WriteByte('\'')
	case ListValue:
		b.WriteByte('[')
		for i, it := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, it)
		}
		b.WriteByte(']')
	case *DictValue:
		b.WriteByte('{')
		i := 0
		for k, v := range t.All() {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, k)
			b.WriteString(": ")
			writeRepr(b, v)
			i++
		}
		b.WriteByte('}')
	default:
		b.WriteString(v.String())
	}
}
