package value

import (
	"testing"
)

type point struct {
	X, Y   int
	hidden string
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"int", 42, "42"},
		{"uint8", uint8(7), "7"},
		{"float integral", 2.0, "2.0"},
		{"float", 3.25, "3.25"},
		{"bool", true, "True"},
		{"strings", []string{"a", "b"}, "['a', 'b']"},
		{"ints", []int{1, 2}, "[1, 2]"},
		{"map", map[string]any{"b": 1, "a": "x"}, "{'a': 'x', 'b': 1}"},
		{"int keys", map[int]string{2: "b", 1: "a"}, "{1: 'a', 2: 'b'}"},
		{"nil slice", []int(nil), "[]"},
		{"struct", point{X: 1, Y: 2, hidden: "no"}, "<point>"},
		{"pointer", &point{X: 3}, "<point>"},
		{"nil pointer", (*point)(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromGo(tt.input).String(); got != tt.expected {
				t.Fatalf("FromGo(%#v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToGoRoundTrip(t *testing.T) {
	v := FromGo(map[string]any{"n": 1, "l": []any{"x", 2.5, nil}})
	got := ToGo(v).(map[string]any)
	if got["n"] != int64(1) {
		t.Fatalf("n = %#v", got["n"])
	}
	l := got["l"].([]any)
	if l[0] != "x" || l[1] != 2.5 || l[2] != nil {
		t.Fatalf("l = %#v", l)
	}
	if r := ToGo(RangeValue{0, 3, 1}).([]any); len(r) != 3 {
		t.Fatalf("range = %#v", r)
	}
	typed, ok := ToGo(FromGo(map[int]string{1: "a"})).(map[any]any)
	if !ok || typed[int64(1)] != "a" {
		t.Fatalf("int keys = %#v", ToGo(FromGo(map[int]string{1: "a"})))
	}
}

func TestTruth(t *testing.T) {
	falsy := []Value{None, BoolValue(false), IntValue(0), FloatValue(0), StringValue(""), ListValue{}, NewDict(0), RangeValue{0, 0, 1}}
	for _, v := range falsy {
		if v.Truth() {
			t.Fatalf("%#v should be false", v)
		}
	}
	truthy := []Value{BoolValue(true), IntValue(-1), StringValue("0"), ListValue{None}, RangeValue{0, 1, 1}, CallableValue{}}
	for _, v := range truthy {
		if !v.Truth() {
			t.Fatalf("%#v should be true", v)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{IntValue(1), FloatValue(1), true},
		{IntValue(1), BoolValue(true), false},
		{StringValue("a"), StringValue("a"), true},
		{ListValue{IntValue(1)}, ListValue{FloatValue(1)}, true},
		{DictOf(map[string]Value{"a": None}), DictOf(map[string]Value{"a": NoneValue{}}), true},
		{FromGo(&point{X: 1}), FromGo(&point{X: 1}), false},
		{None, nil, true},
		{None, IntValue(0), false},
		{CallableValue{Name: "f"}, CallableValue{Name: "f"}, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Fatalf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	if c, err := Compare(IntValue(1), FloatValue(1.5)); err != nil || c != -1 {
		t.Fatalf("1 vs 1.5: %d %v", c, err)
	}
	if c, err := Compare(StringValue("b"), StringValue("a")); err != nil || c != 1 {
		t.Fatalf("b vs a: %d %v", c, err)
	}
	if c, err := Compare(ListValue{IntValue(1)}, ListValue{IntValue(1), IntValue(0)}); err != nil || c != -1 {
		t.Fatalf("list prefix: %d %v", c, err)
	}
	if _, err := Compare(StringValue("a"), IntValue(1)); err == nil {
		t.Fatalf("expected error comparing string with int")
	}
}

func TestIterate(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{None, "[]"},
		{StringValue("héj"), "['h', 'é', 'j']"},
		{DictOf(map[string]Value{"b": None, "a": None}), "['a', 'b']"},
		{RangeValue{5, 0, -2}, "[5, 3, 1]"},
		{RangeValue{0, 5, 0}, "[]"},
	}
	for _, tt := range tests {
		l, err := Collect(tt.in)
		if err != nil {
			t.Fatalf("Collect(%v): %v", tt.in, err)
		}
		if got := l.String(); got != tt.want {
			t.Fatalf("Collect(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := Iterate(IntValue(3)); err == nil {
		t.Fatalf("int should not be iterable")
	}
	if n := (RangeValue{5, 0, -2}).Len(); n != 3 {
		t.Fatalf("range len = %d", n)
	}
}

func TestRepr(t *testing.T) {
	v := ListValue{StringValue("it's"), None, BoolValue(true), FloatValue(0.5)}
	if got := Repr(v); got != `['it\'s', None, True, 0.5]` {
		t.Fatalf("got %s", got)
	}
}

type node struct {
	Name   string
	Parent *node
	Kids   []*node
}

func TestObjectHandle(t *testing.T) {
	root := &node{Name: "root"}
	root.Parent = root
	root.Kids = []*node{{Name: "kid", Parent: root}}

	v := FromGo(root)
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("FromGo(*node) = %T, want *Object", v)
	}
	if TypeName(obj) != "node" {
		t.Fatalf("TypeName = %q", TypeName(obj))
	}
	parent, _ := obj.Lookup("Parent")
	if !Equal(parent, obj) {
		t.Fatalf("back pointer does not resolve to the same object")
	}
	kids, _ := obj.Lookup("Kids")
	kid := kids.(ListValue)[0].(*Object)
	if name, _ := kid.Lookup("Name"); name.String() != "kid" {
		t.Fatalf("kid name = %v", name)
	}
	if _, ok := obj.Lookup("missing"); ok {
		t.Fatalf("missing field found")
	}
	if _, ok := FromGo(point{hidden: "x"}).(*Object).Lookup("hidden"); ok {
		t.Fatalf("unexported field reachable")
	}
	if obj.Interface() != any(root) {
		t.Fatalf("Interface() does not return the wrapped pointer")
	}
}

func TestCyclicContainers(t *testing.T) {
	m := map[string]any{"n": 1}
	m["self"] = m
	if got := FromGo(m).String(); got != "{'n': 1, 'self': '{...}'}" {
		t.Fatalf("cyclic map = %s", got)
	}
	l := []any{1, nil}
	l[1] = l
	if got := FromGo(l).String(); got != "[1, '[...]']" {
		t.Fatalf("cyclic slice = %s", got)
	}
}

func TestDict(t *testing.T) {
	d := NewDict(0)
	for _, kv := range [][2]Value{
		{IntValue(1), StringValue("int")},
		{StringValue("1"), StringValue("string")},
		{FloatValue(2), StringValue("two")},
		{ListValue{IntValue(1), StringValue("a")}, StringValue("tuple")},
	} {
		if err := d.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set(%v): %v", kv[0], err)
		}
	}
	if d.Len() != 4 {
		t.Fatalf("len = %d, want 4", d.Len())
	}
	if v, ok, _ := d.Get(IntValue(2)); !ok || v.String() != "two" {
		t.Fatalf("2 and 2.0 should be the same key: %v %v", v, ok)
	}
	if v, ok, _ := d.Get(IntValue(1)); !ok || v.String() != "int" {
		t.Fatalf("d[1] = %v", v)
	}
	if v, ok := d.GetKey("1"); !ok || v.String() != "string" {
		t.Fatalf(`d["1"] = %v`, v)
	}
	if _, _, err := d.Get(ListValue{NewDict(0)}); err == nil {
		t.Fatalf("a dict inside a key should be unhashable")
	}
	_ = d.Set(IntValue(1), StringValue("again"))
	if got := Repr(d); got != "{1: 'again', '1': 'string', 2.0: 'two', [1, 'a']: 'tuple'}" {
		t.Fatalf("repr = %s", got)
	}
	keys := d.Keys()
	if _, ok := keys[0].(IntValue); !ok {
		t.Fatalf("int key came back as %T", keys[0])
	}
}
