package starlark

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"

	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
)

// ToStarlark converts a template value to a Starlark value. Attributes of
// host objects beginning with an underscore are not reachable.
func ToStarlark(v value.Value) starlark.Value {
	return defaultOptions().toStarlark(v)
}

func (o options) toStarlark(v value.Value) starlark.Value {
	if v == nil {
		return starlark.None
	}

	switch t := v.(type) {
	case value.NoneValue:
		return starlark.None
	case value.StringValue:
		return starlark.String(string(t))
	case value.IntValue:
		return starlark.MakeInt64(int64(t))
	case value.FloatValue:
		return starlark.Float(float64(t))
	case value.BoolValue:
		return starlark.Bool(bool(t))
	case value.ListValue:
		items := make([]starlark.Value, len(t))
		for i, item := range t {
			items[i] = o.toStarlark(item)
		}
		return starlark.NewList(items)
	case *value.DictValue:
		dict := starlark.NewDict(t.Len())
		for k, x := range t.All() {
			_ = dict.SetKey(o.keyToStarlark(k), o.toStarlark(x))
		}
		return dict
	case value.RangeValue:
		items, _ := value.Collect(t)
		return o.toStarlark(items)
	case *template.Result:
		return starlark.String(t.Body)
	case value.Callable:
		return starlark.NewBuiltin(v.String(), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			in, kw, err := fromArgs(args, kwargs)
			if err != nil {
				return nil, err
			}
			out, err := t.Call(in, kw)
			if err != nil {
				return nil, err
			}
			return o.toStarlark(out), nil
		})
	case hostObject:
		return &object{v: t, opts: o}
	default:
		return starlark.String(v.String())
	}
}

// FromStarlark converts a Starlark value to a template value. Starlark
// functions are not converted here; see Module.
func FromStarlark(v starlark.Value) value.Value {
	if v == nil || v == starlark.None {
		return value.None
	}

	switch t := v.(type) {
	case starlark.String:
		return value.StringValue(string(t))
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return value.IntValue(i)
		}
		// Too large for an int64; keep the digits.
		return value.StringValue(t.String())
	case starlark.Float:
		return value.FloatValue(float64(t))
	case starlark.Bool:
		return value.BoolValue(bool(t))
	case *starlark.List:
		items := make(value.ListValue, t.Len())
		for i := 0; i < t.Len(); i++ {
			items[i] = FromStarlark(t.Index(i))
		}
		return items
	case starlark.Tuple:
		items := make(value.ListValue, len(t))
		for i, x := range t {
			items[i] = FromStarlark(x)
		}
		return items
	case *starlark.Dict:
		dict := value.NewDict(t.Len())
		for _, item := range t.Items() {
			key := FromStarlark(item[0])
			if err := dict.Set(key, FromStarlark(item[1])); err != nil {
				// Starlark keys are hashable; a key with no template
				// counterpart keeps its text.
				dict.SetKey(item[0].String(), FromStarlark(item[1]))
			}
		}
		return dict
	case *object:
		return t.v
	default:
		return value.StringValue(v.String())
	}
}

func fromArgs(args starlark.Tuple, kwargs []starlark.Tuple) ([]value.Value, map[string]value.Value, error) {
	in := make([]value.Value, len(args))
	for i, a := range args {
		in[i] = FromStarlark(a)
	}
	var kw map[string]value.Value
	for _, pair := range kwargs {
		name, ok := pair[0].(starlark.String)
		if !ok {
			return nil, nil, fmt.Errorf("keyword name must be a string, not %s", pair[0].Type())
		}
		if kw == nil {
			kw = map[string]value.Value{}
		}
		kw[string(name)] = FromStarlark(pair[1])
	}
	return in, kw, nil
}

// keyToStarlark converts a dict key; list keys become tuples so they stay
// hashable.
func (o options) keyToStarlark(k value.Value) starlark.Value {
	l, ok := k.(value.ListValue)
	if !ok {
		return o.toStarlark(k)
	}
	items := make(starlark.Tuple, len(l))
	for i, item := range l {
		items[i] = o.keyToStarlark(item)
	}
	return items
}

func (o options) toArgs(args []value.Value, kwargs map[string]value.Value) (starlark.Tuple, []starlark.Tuple) {
	in := make(starlark.Tuple, len(args))
	for i, a := range args {
		in[i] = o.toStarlark(a)
	}
	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	slices.Sort(names)
	kw := make([]starlark.Tuple, len(names))
	for i, k := range names {
		kw[i] = starlark.Tuple{starlark.String(k), o.toStarlark(kwargs[k])}
	}
	return in, kw
}

// hostObject is a template value with attributes.
type hostObject interface {
	value.Value
	value.Accessor
}

// object exposes a host accessor to Starlark as a read-only value with
// attributes, filtered by the denied prefixes.
type object struct {
	v    hostObject
	opts options
}

func (o *object) String() string        { return o.v.String() }
func (o *object) Type() string          { return value.TypeName(o.v) }
func (o *object) Freeze()               {}
func (o *object) Truth() starlark.Bool  { return starlark.Bool(o.v.Truth()) }
func (o *object) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: object") }

func (o *object) Attr(name string) (starlark.Value, error) {
	if o.opts.denies(name) {
		return nil, fmt.Errorf("access to attribute %q is not allowed", name)
	}
	v, ok := o.v.Lookup(name)
	if !ok {
		return nil, nil
	}
	return o.opts.toStarlark(v), nil
}

func (o *object) AttrNames() []string { return nil }

var (
	_ starlark.Value    = (*object)(nil)
	_ starlark.HasAttrs = (*object)(nil)
)
