package value

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"
)

// DictValue is an insertion-ordered dictionary. Keys keep their type, so 1
// and "1" are different keys, while 1 and 1.0 are the same key.
type DictValue struct {
	keys  []Value
	vals  []Value
	index map[any]int
}

// NewDict returns an empty dict with room for n entries.
func NewDict(n int) *DictValue {
	return &DictValue{
		keys:  make([]Value, 0, n),
		vals:  make([]Value, 0, n),
		index: make(map[any]int, n),
	}
}

// DictOf builds a dict from string-keyed entries, inserted in sorted key order.
func DictOf(m map[string]Value) *DictValue {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	d := NewDict(len(names))
	for _, k := range names {
		d.SetKey(k, m[k])
	}
	return d
}

func (d *DictValue) String() string { return Repr(d) }
func (d *DictValue) Truth() bool    { return d.Len() > 0 }

func (d *DictValue) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Set inserts or replaces the value under k. An existing key keeps its
// position and its original form.
func (d *DictValue) Set(k, v Value) error {
	h, err := hashKey(k)
	if err != nil {
		return err
	}
	if i, ok := d.index[h]; ok {
		d.vals[i] = v
		return nil
	}
	d.index[h] = len(d.keys)
	d.keys = append(d.keys, k)
	d.vals = append(d.vals, v)
	return nil
}

// SetKey is Set for a string key, which is always hashable.
func (d *DictValue) SetKey(k string, v Value) {
	_ = d.Set(StringValue(k), v)
}

// Get returns the value under k. It fails only when k is unhashable.
func (d *DictValue) Get(k Value) (Value, bool, error) {
	h, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	if d == nil {
		return nil, false, nil
	}
	i, ok := d.index[h]
	if !ok {
		return nil, false, nil
	}
	return d.vals[i], true, nil
}

// GetKey is Get for a string key.
func (d *DictValue) GetKey(k string) (Value, bool) {
	v, ok, _ := d.Get(StringValue(k))
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *DictValue) Keys() []Value {
	if d == nil {
		return nil
	}
	return append([]Value(nil), d.keys...)
}

// Values returns the values in insertion order.
func (d *DictValue) Values() []Value {
	if d == nil {
		return nil
	}
	return append([]Value(nil), d.vals...)
}

// All yields the entries in insertion order.
func (d *DictValue) All() iter.Seq2[Value, Value] {
	return func(yield func(Value, Value) bool) {
		if d == nil {
			return
		}
		for i, k := range d.keys {
			if !yield(k, d.vals[i]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy of d.
func (d *DictValue) Clone() *DictValue {
	out := NewDict(d.Len())
	for k, v := range d.All() {
		_ = out.Set(k, v)
	}
	return out
}

// Iterate implements Iterable over the keys.
func (d *DictValue) Iterate() Iterator { return &sliceIter{items: d.Keys()} }

// hashKey maps k to a comparable Go value. Numbers that are equal hash
// equally; lists hash by content.
func hashKey(k Value) (any, error) {
	switch t := k.(type) {
	case StringValue, IntValue, BoolValue, NoneValue:
		return t, nil
	case FloatValue:
		f := float64(t)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return IntValue(int64(f)), nil
		}
		return t, nil
	case ListValue:
		var b strings.Builder
		b.WriteByte('(')
		for _, item := range t {
			h, err := hashKey(item)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, "%T:%v,", h, h)
		}
		return tupleKey(b.String()), nil
	}
	if k == nil {
		return None, nil
	}
	return nil, fmt.Errorf("unhashable type: %s", TypeName(k))
}

type tupleKey string
