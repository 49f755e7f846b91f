package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/neurodesk/sigil/pkg/value"
)

type methodFn func(recv value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error)

var stringMethods = map[string]methodFn{
	"upper":      strMap(strings.ToUpper),
	"lower":      strMap(strings.ToLower),
	"title":      strMap(title),
	"capitalize": strMap(capitalize),
	"strip":      strTrim(strings.Trim, strings.TrimSpace),
	"lstrip":     strTrim(strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
	"rstrip":     strTrim(strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
	"split":      strSplit,
	"join":       strJoin,
	"replace":    strReplace,
	"startswith": strAffix(strings.HasPrefix),
	"endswith":   strAffix(strings.HasSuffix),
	"find":       strFind,
	"count":      strCount,
	"format":     strFormat,
	"isdigit":    strIs(unicode.IsDigit),
	"isalpha":    strIs(unicode.IsLetter),
}

var dictMethods = map[string]methodFn{
	"get":    dictGet,
	"keys":   dictKeys,
	"values": dictValues,
	"items":  dictItems,
}

var listMethods = map[string]methodFn{
	"index": listIndex,
	"count": listCount,
}

// method returns the bound method name of recv, if it has one.
func method(recv value.Value, name string) (value.Value, bool) {
	var table map[string]methodFn
	switch recv.(type) {
	case value.StringValue:
		table = stringMethods
	case *value.DictValue:
		table = dictMethods
	case value.ListValue:
		table = listMethods
	default:
		return nil, false
	}
	fn, ok := table[name]
	if !ok {
		return nil, false
	}
	return value.CallableValue{
		Name: value.TypeName(recv) + "." + name,
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return fn(recv, args, kwargs)
		},
	}, true
}

func strArg(name string, v value.Value) (string, error) {
	s, ok := v.(value.StringValue)
	if !ok {
		return "", fmt.Errorf("%s() argument must be a string, not %s", name, value.TypeName(v))
	}
	return string(s), nil
}

func strMap(f func(string) string) methodFn {
	return func(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("method takes no arguments (%d given)", len(args))
		}
		return value.StringValue(f(string(recv.(value.StringValue)))), nil
	}
}

func strTrim(cut func(string, string) string, space func(string) string) methodFn {
	return func(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
		s := string(recv.(value.StringValue))
		if len(args) == 0 || value.IsNone(args[0]) {
			return value.StringValue(space(s)), nil
		}
		chars, err := strArg("strip", args[0])
		if err != nil {
			return nil, err
		}
		return value.StringValue(cut(s, chars)), nil
	}
}

func title(s string) string {
	var b strings.Builder
	prev := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prev {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prev = true
			continue
		}
		prev = false
		b.WriteRune(r)
	}
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func strSplit(recv value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s := string(recv.(value.StringValue))
	var sep value.Value = value.None
	max := int64(-1)
	if len(args) > 0 {
		sep = args[0]
	} else if v, ok := kwargs["sep"]; ok {
		sep = v
	}
	if len(args) > 1 {
		max, _ = value.AsInt(args[1])
	} else if v, ok := kwargs["maxsplit"]; ok {
		max, _ = value.AsInt(v)
	}
	var parts []string
	if value.IsNone(sep) {
		parts = strings.Fields(s)
		if max >= 0 && int64(len(parts)) > max+1 {
			// Re-split to keep the remainder intact.
			rest := strings.TrimLeftFunc(s, unicode.IsSpace)
			parts = parts[:0]
			for i := int64(0); i < max; i++ {
				end := strings.IndexFunc(rest, unicode.IsSpace)
				parts = append(parts, rest[:end])
				rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
			}
			parts = append(parts, rest)
		}
	} else {
		d, err := strArg("split", sep)
		if err != nil {
			return nil, err
		}
		if d == "" {
			return nil, fmt.Errorf("empty separator")
		}
		n := -1
		if max >= 0 {
			n = int(max) + 1
		}
		parts = strings.SplitN(s, d, n)
	}
	out := make(value.ListValue, len(parts))
	for i, p := range parts {
		out[i] = value.StringValue(p)
	}
	return out, nil
}

func strJoin(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("join() takes exactly one argument (%d given)", len(args))
	}
	items, err := value.Collect(args[0])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, x := range items {
		s, ok := x.(value.StringValue)
		if !ok {
			return nil, fmt.Errorf("join() sequence item %d: expected string, %s found", i, value.TypeName(x))
		}
		parts[i] = string(s)
	}
	return value.StringValue(strings.Join(parts, string(recv.(value.StringValue)))), nil
}

func strReplace(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("replace() takes 2 or 3 arguments (%d given)", len(args))
	}
	old, err := strArg("replace", args[0])
	if err != nil {
		return nil, err
	}
	repl, err := strArg("replace", args[1])
	if err != nil {
		return nil, err
	}
	n := int64(-1)
	if len(args) == 3 {
		n, _ = value.AsInt(args[2])
	}
	return value.StringValue(strings.Replace(string(recv.(value.StringValue)), old, repl, int(n))), nil
}

func strAffix(test func(string, string) bool) methodFn {
	return func(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("method takes exactly one argument (%d given)", len(args))
		}
		s := string(recv.(value.StringValue))
		candidates := value.ListValue{args[0]}
		if l, ok := args[0].(value.ListValue); ok {
			candidates = l
		}
		for _, c := range candidates {
			a, err := strArg("startswith", c)
			if err != nil {
				return nil, err
			}
			if test(s, a) {
				return value.BoolValue(true), nil
			}
		}
		return value.BoolValue(false), nil
	}
}

func strFind(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("find() takes exactly one argument (%d given)", len(args))
	}
	sub, err := strArg("find", args[0])
	if err != nil {
		return nil, err
	}
	s := string(recv.(value.StringValue))
	i := strings.Index(s, sub)
	if i < 0 {
		return value.IntValue(-1), nil
	}
	return value.IntValue(utf8.RuneCountInString(s[:i])), nil
}

func strCount(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("count() takes exactly one argument (%d given)", len(args))
	}
	sub, err := strArg("count", args[0])
	if err != nil {
		return nil, err
	}
	return value.IntValue(strings.Count(string(recv.(value.StringValue)), sub)), nil
}

func strIs(class func(rune) bool) methodFn {
	return func(recv value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
		s := string(recv.(value.StringValue))
		if s == "" {
			return value.BoolValue(false), nil
		}
		for _, r := range s {
			if !class(r) {
				return value.BoolValue(false), nil
			}
		}
		return value.BoolValue(true), nil
	}
}

// strFormat implements str.format with positional ({} and {0}) and named
// ({name}) fields. A field may carry a format spec after a colon.
func strFormat(recv value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	f := string(recv.(value.StringValue))
	var b strings.Builder
	auto := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		switch {
		case c == '{' && i+1 < len(f) && f[i+1] == '{':
			b.WriteByte('{')
			i++
			continue
		case c == '}' && i+1 < len(f) && f[i+1] == '}':
			b.WriteByte('}')
			i++
			continue
		case c == '}':
			return nil, fmt.Errorf("single '}' encountered in format string")
		case c != '{':
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(f[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("single '{' encountered in format string")
		}
		field := f[i+1 : i+end]
		i += end
		name, spec, _ := strings.Cut(field, ":")
		var v value.Value
		switch {
		case name == "":
			if auto >= len(args) {
				return nil, fmt.Errorf("format index %d out of range", auto)
			}
			v = args[auto]
			auto++
		case name[0] >= '0' && name[0] <= '9':
			n, err := strconv.Atoi(name)
			if err != nil || n >= len(args) {
				return nil, fmt.Errorf("format index %s out of range", name)
			}
			v = args[n]
		default:
			var ok bool
			if v, ok = kwargs[name]; !ok {
				return nil, fmt.Errorf("format key %q not found", name)
			}
		}
		s, err := formatSpec(v, spec)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return value.StringValue(b.String()), nil
}

// formatSpec applies a [[fill]align][width][.precision][type] spec.
func formatSpec(v value.Value, spec string) (string, error) {
	if spec == "" {
		return str(v), nil
	}
	fill, align := " ", byte(0)
	if len(spec) >= 2 && strings.IndexByte("<>^", spec[1]) >= 0 {
		fill, align, spec = spec[:1], spec[1], spec[2:]
	} else if len(spec) >= 1 && strings.IndexByte("<>^", spec[0]) >= 0 {
		align, spec = spec[0], spec[1:]
	}
	verb := byte('s')
	if n := len(spec); n > 0 && strings.IndexByte("sdfxXoeEgG%", spec[n-1]) >= 0 {
		verb, spec = spec[n-1], spec[:n-1]
	} else if _, ok := v.(value.FloatValue); ok && strings.Contains(spec, ".") {
		verb = 'g'
	} else if _, ok := value.AsInt(v); ok {
		verb = 'd'
	}
	width, prec, _ := strings.Cut(spec, ".")
	body := ""
	switch verb {
	case '%':
		f, ok := value.AsFloat(v)
		if !ok {
			return "", fmt.Errorf("format %% requires a number")
		}
		p := "6"
		if prec != "" {
			p = prec
		}
		body = fmt.Sprintf("%."+p+"f%%", f*100)
	default:
		p := ""
		if prec != "" {
			p = "." + prec
		}
		var err error
		if body, err = formatOne(p, verb, v); err != nil {
			return "", err
		}
	}
	w, _ := strconv.Atoi(width)
	pad := w - utf8.RuneCountInString(body)
	if pad <= 0 {
		return body, nil
	}
	if align == 0 {
		align = '<'
		if verb != 's' {
			align = '>'
		}
	}
	switch align {
	case '>':
		return strings.Repeat(fill, pad) + body, nil
	case '^':
		return strings.Repeat(fill, pad/2) + body + strings.Repeat(fill, pad-pad/2), nil
	}
	return body + strings.Repeat(fill, pad), nil
}

func dictGet(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("get() takes 1 or 2 arguments (%d given)", len(args))
	}
	v, ok, err := recv.(*value.DictValue).Get(args[0])
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return value.None, nil
}

func dictKeys(recv value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	return value.ListValue(recv.(*value.DictValue).Keys()), nil
}

func dictValues(recv value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	return value.ListValue(recv.(*value.DictValue).Values()), nil
}

func dictItems(recv value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	d := recv.(*value.DictValue)
	out := make(value.ListValue, 0, d.Len())
	for k, v := range d.All() {
		out = append(out, value.ListValue{k, v})
	}
	return out, nil
}

func listIndex(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("index() takes exactly one argument (%d given)", len(args))
	}
	for i, x := range recv.(value.ListValue) {
		if value.Equal(x, args[0]) {
			return value.IntValue(i), nil
		}
	}
	return nil, fmt.Errorf("%s is not in list", value.Repr(args[0]))
}

func listCount(recv value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("count() takes exactly one argument (%d given)", len(args))
	}
	n := 0
	for _, x := range recv.(value.ListValue) {
		if value.Equal(x, args[0]) {
			n++
		}
	}
	return value.IntValue(n), nil
}
