package template

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/value"
)

type builtinFn = func(args []value.Value, kwargs map[string]value.Value) (value.Value, error)

// builtins is the allow-list of names every template can see. Nothing else
// from the host is reachable unless passed in as an argument or global.
var builtins = map[string]builtinFn{
	"abs":       builtinAbs,
	"all":       builtinAll,
	"any":       builtinAny,
	"bool":      builtinBool,
	"callable":  builtinCallable,
	"chr":       builtinChr,
	"dict":      builtinDict,
	"divmod":    builtinDivmod,
	"enumerate": builtinEnumerate,
	"float":     builtinFloat,
	"hex":       builtinHex,
	"int":       builtinInt,
	"len":       builtinLen,
	"list":      builtinList,
	"max":       builtinMax,
	"min":       builtinMin,
	"oct":       builtinOct,
	"ord":       builtinOrd,
	"pow":       builtinPow,
	"range":     builtinRange,
	"repr":      builtinRepr,
	"reversed":  builtinReversed,
	"round":     builtinRound,
	"sorted":    builtinSorted,
	"str":       builtinStr,
	"sum":       builtinSum,
	"tuple":     builtinList,
	"zip":       builtinZip,
	"websafe":   builtinWebsafe,
}

// DefaultBuiltins returns a fresh copy of the default builtin allow-list,
// including True, False and None.
func DefaultBuiltins() map[string]value.Value {
	out := map[string]value.Value{
		"True":  value.BoolValue(true),
		"False": value.BoolValue(false),
		"None":  value.None,
	}
	for name, fn := range builtins {
		out[name] = value.CallableValue{Name: name, Fn: fn}
	}
	return out
}

// BuiltinNames returns the sorted names of the default allow-list.
func BuiltinNames() []string {
	return slices.Sorted(maps.Keys(DefaultBuiltins()))
}

func arity(name string, args []value.Value, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		switch {
		case min == max:
			return fmt.Errorf("%s() takes exactly %d argument(s) (%d given)", name, min, len(args))
		case max < 0:
			return fmt.Errorf("%s() takes at least %d argument(s) (%d given)", name, min, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

func noKwargs(name string, kwargs map[string]value.Value, allowed ...string) error {
	for k := range kwargs {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%s() got an unexpected keyword argument %q", name, k)
		}
	}
	return nil
}

func builtinAbs(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case value.IntValue:
		if x == math.MinInt64 {
			return nil, errIntOverflow
		}
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case value.FloatValue:
		return value.FloatValue(math.Abs(float64(x))), nil
	case value.BoolValue:
		i, _ := value.AsInt(x)
		return value.IntValue(i), nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): %s", value.TypeName(args[0]))
}

func truthAll(name string, args []value.Value, want bool) (value.Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	it, err := value.Iterate(args[0])
	if err != nil {
		return nil, err
	}
	for x, ok := it.Next(); ok; x, ok = it.Next() {
		if x.Truth() == want {
			return value.BoolValue(want), nil
		}
	}
	return value.BoolValue(!want), nil
}

func builtinAll(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return truthAll("all", args, false)
}

func builtinAny(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return truthAll("any", args, true)
}

func builtinBool(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.BoolValue(false), nil
	}
	return value.BoolValue(args[0].Truth()), nil
}

func builtinCallable(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("callable", args, 1, 1); err != nil {
		return nil, err
	}
	_, ok := args[0].(value.Callable)
	return value.BoolValue(ok), nil
}

func builtinChr(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("chr", args, 1, 1); err != nil {
		return nil, err
	}
	i, ok := value.AsInt(args[0])
	if !ok || i < 0 || i > utf8.MaxRune {
		return nil, fmt.Errorf("chr() arg not in range")
	}
	return value.StringValue(string(rune(i))), nil
}

func builtinDict(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("dict", args, 0, 1); err != nil {
		return nil, err
	}
	out := value.NewDict(0)
	if len(args) == 1 {
		switch src := args[0].(type) {
		case *value.DictValue:
			out = src.Clone()
		default:
			pairs, err := value.Collect(src)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				kv, err := value.Collect(p)
				if err != nil || len(kv) != 2 {
					return nil, fmt.Errorf("dict() sequence elements must be pairs")
				}
				if err := out.Set(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(kwargs)) {
		out.SetKey(k, kwargs[k])
	}
	return out, nil
}

func builtinDivmod(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("divmod", args, 2, 2); err != nil {
		return nil, err
	}
	q, err := binary(syntax.SLASHSLASH, args[0], args[1])
	if err != nil {
		return nil, err
	}
	r, err := binary(syntax.PERCENT, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return value.ListValue{q, r}, nil
}

func builtinEnumerate(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	if err := noKwargs("enumerate", kwargs, "start"); err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) == 2 {
		start, _ = value.AsInt(args[1])
	} else if v, ok := kwargs["start"]; ok {
		start, _ = value.AsInt(v)
	}
	items, err := value.Collect(args[0])
	if err != nil {
		return nil, err
	}
	out := make(value.ListValue, len(items))
	for i, x := range items {
		out[i] = value.ListValue{value.IntValue(start + int64(i)), x}
	}
	return out, nil
}

func builtinFloat(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.FloatValue(0), nil
	}
	if s, ok := args[0].(value.StringValue); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %s", value.Repr(s))
		}
		return value.FloatValue(f), nil
	}
	if f, ok := value.AsFloat(args[0]); ok {
		return value.FloatValue(f), nil
	}
	return nil, fmt.Errorf("float() argument must be a string or a number, not %s", value.TypeName(args[0]))
}

func builtinInt(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("int", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.IntValue(0), nil
	}
	switch x := args[0].(type) {
	case value.StringValue:
		base := int64(10)
		if len(args) == 2 {
			base, _ = value.AsInt(args[1])
		} else if v, ok := kwargs["base"]; ok {
			base, _ = value.AsInt(v)
		}
		i, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(string(x)), "_", ""), int(base), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int() with base %d: %s", base, value.Repr(x))
		}
		return value.IntValue(i), nil
	case value.FloatValue:
		i, err := floatToInt(float64(x))
		if err != nil {
			return nil, err
		}
		return value.IntValue(i), nil
	}
	if i, ok := value.AsInt(args[0]); ok {
		return value.IntValue(i), nil
	}
	return nil, fmt.Errorf("int() argument must be a string or a number, not %s", value.TypeName(args[0]))
}

func builtinLen(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := value.Len(args[0])
	if !ok {
		return nil, fmt.Errorf("object of type %s has no len()", value.TypeName(args[0]))
	}
	return value.IntValue(n), nil
}

func builtinList(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("list", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.ListValue{}, nil
	}
	items, err := value.Collect(args[0])
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

// extreme implements max and min. sign is +1 for max.
func extreme(name string, sign int, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := noKwargs(name, kwargs, "key", "default"); err != nil {
		return nil, err
	}
	if err := arity(name, args, 1, -1); err != nil {
		return nil, err
	}
	items := value.ListValue(args)
	if len(args) == 1 {
		var err error
		if items, err = value.Collect(args[0]); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		if d, ok := kwargs["default"]; ok {
			return d, nil
		}
		return nil, fmt.Errorf("%s() arg is an empty sequence", name)
	}
	keys, err := keyed(kwargs["key"], items)
	if err != nil {
		return nil, err
	}
	best := 0
	for i := 1; i < len(items); i++ {
		c, err := value.Compare(keys[i], keys[best])
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best = i
		}
	}
	return items[best], nil
}

// keyed applies an optional key function to every item.
func keyed(key value.Value, items value.ListValue) (value.ListValue, error) {
	if key == nil || value.IsNone(key) {
		return items, nil
	}
	fn, ok := key.(value.Callable)
	if !ok {
		return nil, fmt.Errorf("key must be callable, not %s", value.TypeName(key))
	}
	out := make(value.ListValue, len(items))
	for i, x := range items {
		k, err := fn.Call([]value.Value{x}, nil)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

func builtinMax(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return extreme("max", 1, args, kwargs)
}

func builtinMin(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return extreme("min", -1, args, kwargs)
}

func radix(name, prefix string, base int, args []value.Value) (value.Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	i, ok := value.AsInt(args[0])
	if !ok {
		return nil, fmt.Errorf("%s() argument must be an integer, not %s", name, value.TypeName(args[0]))
	}
	if i < 0 {
		return value.StringValue("-" + prefix + strconv.FormatUint(uint64(-i), base)), nil
	}
	return value.StringValue(prefix + strconv.FormatInt(i, base)), nil
}

func builtinHex(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return radix("hex", "0x", 16, args)
}

func builtinOct(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return radix("oct", "0o", 8, args)
}

func builtinOrd(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("ord", args, 1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(value.StringValue)
	if !ok || utf8.RuneCountInString(string(s)) != 1 {
		return nil, fmt.Errorf("ord() expected a character")
	}
	r, _ := utf8.DecodeRuneInString(string(s))
	return value.IntValue(r), nil
}

func builtinPow(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("pow", args, 2, 3); err != nil {
		return nil, err
	}
	a, aInt := value.AsInt(args[0])
	b, bInt := value.AsInt(args[1])
	if aInt && bInt && b >= 0 {
		var mod int64
		if len(args) == 3 {
			m, ok := value.AsInt(args[2])
			if !ok || m == 0 {
				return nil, fmt.Errorf("pow() 3rd argument must be a non-zero integer")
			}
			mod = m
		}
		result, base := int64(1), a
		if mod != 0 {
			base = modInt(base, mod)
		}
		var err error
		for ; b > 0; b >>= 1 {
			if b&1 == 1 {
				if result, err = mulInt(result, base); err != nil {
					return nil, err
				}
				if mod != 0 {
					result = modInt(result, mod)
				}
			}
			if b > 1 {
				if base, err = mulInt(base, base); err != nil {
					return nil, err
				}
				if mod != 0 {
					base = modInt(base, mod)
				}
			}
		}
		if mod != 0 {
			result = modInt(result, mod)
		}
		return value.IntValue(result), nil
	}
	if len(args) == 3 {
		return nil, fmt.Errorf("pow() 3rd argument not allowed unless all arguments are integers")
	}
	x, ok1 := value.AsFloat(args[0])
	y, ok2 := value.AsFloat(args[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unsupported operand types for pow(): %s and %s", value.TypeName(args[0]), value.TypeName(args[1]))
	}
	return value.FloatValue(math.Pow(x, y)), nil
}

func builtinRange(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("range", args, 1, 3); err != nil {
		return nil, err
	}
	n := make([]int64, len(args))
	for i, a := range args {
		v, ok := value.AsInt(a)
		if !ok {
			return nil, fmt.Errorf("range() arguments must be integers, not %s", value.TypeName(a))
		}
		n[i] = v
	}
	r := value.RangeValue{Step: 1}
	switch len(n) {
	case 1:
		r.Stop = n[0]
	case 2:
		r.Start, r.Stop = n[0], n[1]
	case 3:
		r.Start, r.Stop, r.Step = n[0], n[1], n[2]
	}
	if r.Step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	return r, nil
}

func builtinRepr(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("repr", args, 1, 1); err != nil {
		return nil, err
	}
	return value.StringValue(value.Repr(args[0])), nil
}

func builtinReversed(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("reversed", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := value.Collect(args[0])
	if err != nil {
		return nil, err
	}
	out := slices.Clone(items)
	slices.Reverse(out)
	return out, nil
}

func builtinRound(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	x, ok := value.AsFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("round() argument must be a number, not %s", value.TypeName(args[0]))
	}
	digits := value.Value(nil)
	if len(args) == 2 {
		digits = args[1]
	} else if v, ok := kwargs["ndigits"]; ok {
		digits = v
	}
	if digits == nil || value.IsNone(digits) {
		if i, ok := args[0].(value.IntValue); ok {
			return i, nil
		}
		i, err := floatToInt(math.RoundToEven(x))
		if err != nil {
			return nil, err
		}
		return value.IntValue(i), nil
	}
	n, ok := value.AsInt(digits)
	if !ok {
		return nil, fmt.Errorf("round() ndigits must be an integer")
	}
	scale := math.Pow(10, float64(n))
	return value.FloatValue(math.RoundToEven(x*scale) / scale), nil
}

func builtinSorted(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	if err := noKwargs("sorted", kwargs, "key", "reverse"); err != nil {
		return nil, err
	}
	items, err := value.Collect(args[0])
	if err != nil {
		return nil, err
	}
	items = slices.Clone(items)
	keys, err := keyed(kwargs["key"], items)
	if err != nil {
		return nil, err
	}
	reverse := false
	if r, ok := kwargs["reverse"]; ok {
		reverse = r.Truth()
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var cmpErr error
	sort.SliceStable(idx, func(a, b int) bool {
		c, err := value.Compare(keys[idx[a]], keys[idx[b]])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	out := make(value.ListValue, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

func builtinStr(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.StringValue(""), nil
	}
	return value.StringValue(str(args[0])), nil
}

func builtinSum(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if err := arity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	var acc value.Value = value.IntValue(0)
	if len(args) == 2 {
		acc = args[1]
	} else if v, ok := kwargs["start"]; ok {
		acc = v
	}
	it, err := value.Iterate(args[0])
	if err != nil {
		return nil, err
	}
	for x, ok := it.Next(); ok; x, ok = it.Next() {
		if acc, err = binary(syntax.PLUS, acc, x); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func builtinZip(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	lists := make([]value.ListValue, len(args))
	shortest := -1
	for i, a := range args {
		items, err := value.Collect(a)
		if err != nil {
			return nil, err
		}
		lists[i] = items
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := value.ListValue{}
	for i := 0; i < shortest; i++ {
		row := make(value.ListValue, len(lists))
		for j := range lists {
			row[j] = lists[j][i]
		}
		out = append(out, row)
	}
	return out, nil
}

func builtinWebsafe(args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if err := arity("websafe", args, 1, 1); err != nil {
		return nil, err
	}
	if value.IsNone(args[0]) {
		return value.StringValue(""), nil
	}
	return value.StringValue(Websafe(args[0].String())), nil
}
