package starlark

import (
	"strings"
	"sync"
	"testing"

	"go.starlark.net/starlark"

	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
)

func TestToStarlark(t *testing.T) {
	tests := []struct {
		name     string
		input    value.Value
		expected string
	}{
		{"string value", value.StringValue("hello"), `"hello"`},
		{"int value", value.IntValue(42), "42"},
		{"float value", value.FloatValue(3.5), "3.5"},
		{"bool value", value.BoolValue(true), "True"},
		{"none value", value.None, "None"},
		{"nil value", nil, "None"},
		{"list value", value.ListValue{value.IntValue(1), value.StringValue("a")}, `[1, "a"]`},
		{"dict value", value.DictOf(map[string]value.Value{"b": value.IntValue(2), "a": value.IntValue(1)}), `{"a": 1, "b": 2}`},
		{"typed dict keys", intKeyed(), `{1: "int", "1": "string", (1, 2): "pair"}`},
		{"range value", value.RangeValue{Start: 0, Stop: 3, Step: 1}, "[0, 1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToStarlark(tt.input).String(); got != tt.expected {
				t.Errorf("ToStarlark() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func intKeyed() *value.DictValue {
	d := value.NewDict(3)
	_ = d.Set(value.IntValue(1), value.StringValue("int"))
	_ = d.Set(value.StringValue("1"), value.StringValue("string"))
	_ = d.Set(value.ListValue{value.IntValue(1), value.IntValue(2)}, value.StringValue("pair"))
	return d
}

func TestFromStarlark(t *testing.T) {
	dict := starlark.NewDict(1)
	_ = dict.SetKey(starlark.String("k"), starlark.NewList([]starlark.Value{starlark.MakeInt(1)}))
	numbered := starlark.NewDict(2)
	_ = numbered.SetKey(starlark.MakeInt(1), starlark.String("a"))
	_ = numbered.SetKey(starlark.String("1"), starlark.String("b"))
	numberedWant := value.NewDict(2)
	_ = numberedWant.Set(value.IntValue(1), value.StringValue("a"))
	_ = numberedWant.Set(value.StringValue("1"), value.StringValue("b"))

	tests := []struct {
		name     string
		input    starlark.Value
		expected value.Value
	}{
		{"string", starlark.String("x"), value.StringValue("x")},
		{"int", starlark.MakeInt(7), value.IntValue(7)},
		{"float", starlark.Float(1.5), value.FloatValue(1.5)},
		{"bool", starlark.False, value.BoolValue(false)},
		{"none", starlark.None, value.None},
		{"tuple", starlark.Tuple{starlark.MakeInt(1), starlark.String("a")}, value.ListValue{value.IntValue(1), value.StringValue("a")}},
		{"dict", dict, value.DictOf(map[string]value.Value{"k": value.ListValue{value.IntValue(1)}})},
		{"int keyed dict", numbered, numberedWant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromStarlark(tt.input); !value.Equal(got, tt.expected) {
				t.Errorf("FromStarlark() = %v, want %v", value.Repr(got), value.Repr(tt.expected))
			}
		})
	}
}

const helpers = `
def greet(name, punct = "!"):
    return "Hello, " + name + punct

def shout(s):
    return websafe(s).upper()

def _private():
    return 1

def total(items):
    n = 0
    for x in items:
        n += x
    return n

def counter(start):
    def next(step = 1):
        return start + step
    return next

def spin():
    n = 0
    for i in range(1000000):
        n += i
    return n

def page_title(page):
    return page.title

def secret(page):
    return page._x

def internal(page):
    return page.internal_id

def count_keys(d):
    return len(d)

VERSION = "1.2"
`

func load(t *testing.T, opts ...Option) *Module {
	t.Helper()
	m, err := Load("helpers.star", helpers, opts...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func TestModuleExports(t *testing.T) {
	m := load(t)
	want := "VERSION,count_keys,counter,greet,internal,page_title,secret,shout,spin,total"
	if got := strings.Join(m.Names(), ","); got != want {
		t.Fatalf("Names() = %s, want %s", got, want)
	}
	globals := m.Globals()
	if globals["VERSION"].String() != "1.2" {
		t.Errorf("VERSION = %v", globals["VERSION"])
	}
	if _, ok := globals["_private"]; ok {
		t.Errorf("private function exported")
	}
	if _, err := m.Call("_private", nil, nil); err == nil {
		t.Errorf("calling a private function should fail")
	}
}

func TestModuleCall(t *testing.T) {
	m := load(t)

	got, err := m.Call("greet", []value.Value{value.StringValue("Ada")}, map[string]value.Value{"punct": value.StringValue("?")})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.String() != "Hello, Ada?" {
		t.Errorf("greet = %q", got)
	}

	got, err = m.Call("shout", []value.Value{value.StringValue("<b>")}, nil)
	if err != nil || got.String() != "&LT;B&GT;" {
		t.Errorf("shout = %v, %v", got, err)
	}

	got, err = m.Call("total", []value.Value{value.ListValue{value.IntValue(1), value.IntValue(2)}}, nil)
	if err != nil || !value.Equal(got, value.IntValue(3)) {
		t.Errorf("total = %v, %v", got, err)
	}

	next, err := m.Call("counter", []value.Value{value.IntValue(10)}, nil)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	fn, ok := next.(value.Callable)
	if !ok {
		t.Fatalf("counter did not return a callable: %T", next)
	}
	got, err = fn.Call(nil, map[string]value.Value{"step": value.IntValue(5)})
	if err != nil || !value.Equal(got, value.IntValue(15)) {
		t.Errorf("next = %v, %v", got, err)
	}

	if _, err := m.Call("VERSION", nil, nil); err == nil {
		t.Errorf("calling a non-function should fail")
	}
}

func TestModuleStepBudget(t *testing.T) {
	m := load(t, WithMaxSteps(10000))
	if _, err := m.Call("spin", nil, nil); err == nil || !strings.Contains(err.Error(), "too many steps") {
		t.Fatalf("spin error = %v, want step budget exceeded", err)
	}
	// The budget is per call, not per module.
	for i := 0; i < 3; i++ {
		if _, err := m.Call("greet", []value.Value{value.StringValue("x")}, nil); err != nil {
			t.Fatalf("call %d after budget error: %v", i, err)
		}
	}
}

func TestModuleFrozen(t *testing.T) {
	m, err := Load("state.star", "items = []\ndef add(x):\n    items.append(x)\n    return len(items)\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Call("add", []value.Value{value.IntValue(1)}, nil); err == nil {
		t.Fatalf("mutating frozen module state should fail")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("bad.star", "def broken(:\n"); err == nil {
		t.Errorf("syntax error not reported")
	}
	if _, err := Load("load.star", `load("other.star", "x")`); err == nil {
		t.Errorf("load statement should be rejected")
	}
	if _, err := LoadFile("testdata/does-not-exist.star"); err == nil {
		t.Errorf("missing file not reported")
	}
}

func TestPredeclared(t *testing.T) {
	m, err := Load("site.star", "def url(path):\n    return base + path\n", WithPredeclared("base", value.StringValue("https://example.org")))
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Call("url", []value.Value{value.StringValue("/a")}, nil)
	if err != nil || got.String() != "https://example.org/a" {
		t.Errorf("url = %v, %v", got, err)
	}
}

func TestHelpersInTemplates(t *testing.T) {
	m := load(t, WithMaxSteps(100000))
	e := template.NewEngine(template.WithGlobals(m.Globals()))
	tpl, err := e.Compile("page.html", "$def with (name)\n$greet(name)|${total(range(4))}|$VERSION")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tpl.Execute(map[string]any{"name": "<Ann>"})
			if err != nil {
				t.Errorf("Execute() error = %v", err)
				return
			}
			if want := "Hello, &lt;Ann&gt;!|6|1.2\n"; res.Body != want {
				t.Errorf("body = %q, want %q", res.Body, want)
			}
		}()
	}
	wg.Wait()

	page, err := m.Call("page_title", []value.Value{attrs{"title": value.StringValue("Home")}}, nil)
	if err != nil || page.String() != "Home" {
		t.Errorf("page_title = %v, %v", page, err)
	}
	if _, err := m.Call("secret", []value.Value{attrs{"_x": value.IntValue(1)}}, nil); err == nil {
		t.Errorf("underscore attribute reachable from helpers")
	}
	body, err := m.Call("shout", []value.Value{mustRender(t, e, "$var title: x\nbody")}, nil)
	if err != nil || body.String() != "BODY\n" {
		t.Errorf("a result reaches helpers as its body: %v, %v", body, err)
	}
}

type attrs map[string]value.Value

func (a attrs) String() string { return "<attrs>" }
func (a attrs) Truth() bool    { return true }
func (a attrs) Lookup(name string) (value.Value, bool) {
	v, ok := a[name]
	return v, ok
}

func TestDeniedAttrPrefixes(t *testing.T) {
	page := attrs{"internal_id": value.IntValue(7), "_x": value.IntValue(1)}

	got, err := load(t).Call("internal", []value.Value{page}, nil)
	if err != nil || !value.Equal(got, value.IntValue(7)) {
		t.Fatalf("internal = %v, %v", got, err)
	}

	m := load(t, WithDeniedAttrPrefixes("_", "internal"))
	for _, fn := range []string{"internal", "secret"} {
		if _, err := m.Call(fn, []value.Value{page}, nil); err == nil || !strings.Contains(err.Error(), "not allowed") {
			t.Errorf("%s error = %v, want access denied", fn, err)
		}
	}
	// Nested host objects are filtered the same way.
	outer := attrs{"inner": page}
	m2, err := Load("nested.star", "def peek(o):\n    return o.inner.internal_id\n", WithDeniedAttrPrefixes("internal"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.Call("peek", []value.Value{outer}, nil); err == nil {
		t.Errorf("nested denied attribute reachable")
	}
}

func TestDictKeysReachHelpers(t *testing.T) {
	got, err := load(t).Call("count_keys", []value.Value{intKeyed()}, nil)
	if err != nil || !value.Equal(got, value.IntValue(3)) {
		t.Fatalf("count_keys = %v, %v", got, err)
	}
}

func mustRender(t *testing.T, e *template.Engine, src string) *template.Result {
	t.Helper()
	tpl, err := e.Compile("sub.html", src)
	if err != nil {
		t.Fatal(err)
	}
	res, err := tpl.Execute(nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}
