package template

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/value"
)

func unary(op syntax.Token, x value.Value) (value.Value, error) {
	switch op {
	case syntax.NOT:
		return value.BoolValue(!x.Truth()), nil
	case syntax.MINUS:
		if i, ok := intOf(x); ok {
			if i == math.MinInt64 {
				return nil, errIntOverflow
			}
			return value.IntValue(-i), nil
		}
		if f, ok := x.(value.FloatValue); ok {
			return -f, nil
		}
	case syntax.PLUS:
		if i, ok := intOf(x); ok {
			return value.IntValue(i), nil
		}
		if f, ok := x.(value.FloatValue); ok {
			return f, nil
		}
	case syntax.TILDE:
		if i, ok := intOf(x); ok {
			return value.IntValue(^i), nil
		}
	}
	return nil, fmt.Errorf("bad operand type for unary %s: %s", op, value.TypeName(x))
}

// intOf returns x as an integer when it is an int or a bool.
func intOf(x value.Value) (int64, bool) {
	return value.AsInt(x)
}

// floats returns both operands as floats when at least one is a float and
// the other is numeric.
func floats(x, y value.Value) (float64, float64, bool) {
	_, fx := x.(value.FloatValue)
	_, fy := y.(value.FloatValue)
	if !fx && !fy {
		return 0, 0, false
	}
	a, ok1 := value.AsFloat(x)
	b, ok2 := value.AsFloat(y)
	return a, b, ok1 && ok2
}

func binary(op syntax.Token, x, y value.Value) (value.Value, error) {
	switch op {
	case syntax.EQL:
		return value.BoolValue(value.Equal(x, y)), nil
	case syntax.NEQ:
		return value.BoolValue(!value.Equal(x, y)), nil
	case syntax.LT, syntax.GT, syntax.LE, syntax.GE:
		c, err := value.Compare(x, y)
		if err != nil {
			return nil, err
		}
		switch op {
		case syntax.LT:
			return value.BoolValue(c < 0), nil
		case syntax.GT:
			return value.BoolValue(c > 0), nil
		case syntax.LE:
			return value.BoolValue(c <= 0), nil
		}
		return value.BoolValue(c >= 0), nil
	case syntax.IN:
		ok, err := contains(y, x)
		return value.BoolValue(ok), err
	case syntax.NOT_IN:
		ok, err := contains(y, x)
		return value.BoolValue(!ok), err
	}

	a, aInt := intOf(x)
	b, bInt := intOf(y)
	if aInt && bInt {
		return intBinary(op, a, b)
	}
	if fa, fb, ok := floats(x, y); ok {
		return floatBinary(op, fa, fb)
	}
	switch op {
	case syntax.PLUS:
		switch xs := x.(type) {
		case value.StringValue:
			if ys, ok := y.(value.StringValue); ok {
				return xs + ys, nil
			}
		case value.ListValue:
			if ys, ok := y.(value.ListValue); ok {
				out := make(value.ListValue, 0, len(xs)+len(ys))
				return append(append(out, xs...), ys...), nil
			}
		}
	case syntax.STAR:
		if bInt {
			if r, ok := repeat(x, b); ok {
				return r, nil
			}
		}
		if aInt {
			if r, ok := repeat(y, a); ok {
				return r, nil
			}
		}
	case syntax.PERCENT:
		if f, ok := x.(value.StringValue); ok {
			return format(string(f), y)
		}
	case syntax.PIPE:
		xd, ok1 := x.(*value.DictValue)
		yd, ok2 := y.(*value.DictValue)
		if ok1 && ok2 {
			out := xd.Clone()
			for k, v := range yd.All() {
				_ = out.Set(k, v)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, value.TypeName(x), value.TypeName(y))
}

// errIntOverflow is returned when an integer result does not fit in 64 bits.
// Integers never wrap around.
var errIntOverflow = errors.New("integer overflow")

func addInt(a, b int64) (int64, error) {
	c := a + b
	if (a >= 0) == (b >= 0) && (c >= 0) != (a >= 0) {
		return 0, errIntOverflow
	}
	return c, nil
}

func subInt(a, b int64) (int64, error) {
	c := a - b
	if (a >= 0) != (b >= 0) && (c >= 0) != (a >= 0) {
		return 0, errIntOverflow
	}
	return c, nil
}

func mulInt(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, errIntOverflow
	}
	c := a * b
	if c/b != a {
		return 0, errIntOverflow
	}
	return c, nil
}

// modInt is the floored modulo: the result has the sign of b.
func modInt(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func intBinary(op syntax.Token, a, b int64) (value.Value, error) {
	var (
		c   int64
		err error
	)
	switch op {
	case syntax.PLUS:
		c, err = addInt(a, b)
	case syntax.MINUS:
		c, err = subInt(a, b)
	case syntax.STAR:
		c, err = mulInt(a, b)
	case syntax.SLASH:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return value.FloatValue(float64(a) / float64(b)), nil
	case syntax.SLASHSLASH:
		if b == 0 {
			return nil, fmt.Errorf("integer division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, errIntOverflow
		}
		c = floorDiv(a, b)
	case syntax.PERCENT:
		if b == 0 {
			return nil, fmt.Errorf("integer modulo by zero")
		}
		c = modInt(a, b)
	case syntax.AMP:
		c = a & b
	case syntax.PIPE:
		c = a | b
	case syntax.CIRCUMFLEX:
		c = a ^ b
	case syntax.LTLT, syntax.GTGT:
		if b < 0 {
			return nil, fmt.Errorf("negative shift count")
		}
		if op == syntax.GTGT {
			if b > 63 {
				b = 63
			}
			return value.IntValue(a >> uint(b)), nil
		}
		if a != 0 && (b > 63 || (a<<uint(b))>>uint(b) != a) {
			return nil, errIntOverflow
		}
		c = a << uint(b)
	default:
		return nil, fmt.Errorf("unsupported operand types for %s: int and int", op)
	}
	if err != nil {
		return nil, err
	}
	return value.IntValue(c), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floatToInt truncates f toward zero, failing when it has no int value.
func floatToInt(f float64) (int64, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("cannot convert float %s to integer", value.FloatValue(f))
	}
	if f < -(1<<63) || f >= 1<<63 {
		return 0, fmt.Errorf("cannot convert float %s to integer: %w", value.FloatValue(f), errIntOverflow)
	}
	return int64(f), nil
}

func floatBinary(op syntax.Token, a, b float64) (value.Value, error) {
	switch op {
	case syntax.PLUS:
		return value.FloatValue(a + b), nil
	case syntax.MINUS:
		return value.FloatValue(a - b), nil
	case syntax.STAR:
		return value.FloatValue(a * b), nil
	case syntax.SLASH:
		if b == 0 {
			return nil, fmt.Errorf("float division by zero")
		}
		return value.FloatValue(a / b), nil
	case syntax.SLASHSLASH:
		if b == 0 {
			return nil, fmt.Errorf("float floor division by zero")
		}
		return value.FloatValue(math.Floor(a / b)), nil
	case syntax.PERCENT:
		if b == 0 {
			return nil, fmt.Errorf("float modulo by zero")
		}
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return value.FloatValue(m), nil
	}
	return nil, fmt.Errorf("unsupported operand types for %s: float and float", op)
}

func repeat(x value.Value, n int64) (value.Value, bool) {
	if n < 0 {
		n = 0
	}
	switch t := x.(type) {
	case value.StringValue:
		return value.StringValue(strings.Repeat(string(t), int(n))), true
	case value.ListValue:
		out := make(value.ListValue, 0, len(t)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, t...)
		}
		return out, true
	}
	return nil, false
}

// contains implements "needle in haystack".
func contains(haystack, needle value.Value) (bool, error) {
	switch h := haystack.(type) {
	case value.StringValue:
		n, ok := needle.(value.StringValue)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", value.TypeName(needle))
		}
		return strings.Contains(string(h), string(n)), nil
	case *value.DictValue:
		_, ok, err := h.Get(needle)
		return ok, err
	}
	it, err := value.Iterate(haystack)
	if err != nil {
		return false, fmt.Errorf("argument of type %s is not iterable", value.TypeName(haystack))
	}
	for x, ok := it.Next(); ok; x, ok = it.Next() {
		if value.Equal(x, needle) {
			return true, nil
		}
	}
	return false, nil
}

// format implements printf-style "fmt % args" string formatting.
func format(f string, arg value.Value) (value.Value, error) {
	var args value.ListValue
	mapping, _ := arg.(*value.DictValue)
	if l, ok := arg.(value.ListValue); ok {
		args = l
	} else {
		args = value.ListValue{arg}
	}
	var b strings.Builder
	next := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(f) {
			return nil, fmt.Errorf("incomplete format")
		}
		if f[i] == '%' {
			b.WriteByte('%')
			continue
		}
		var v value.Value
		if f[i] == '(' {
			end := strings.IndexByte(f[i:], ')')
			if end < 0 || mapping == nil {
				return nil, fmt.Errorf("format requires a mapping")
			}
			key := f[i+1 : i+end]
			var ok bool
			if v, ok = mapping.GetKey(key); !ok {
				return nil, fmt.Errorf("format key %q not found", key)
			}
			i += end + 1
		}
		start := i
		for i < len(f) && strings.IndexByte("-+ #0123456789.", f[i]) >= 0 {
			i++
		}
		if i >= len(f) {
			return nil, fmt.Errorf("incomplete format")
		}
		spec, verb := f[start:i], f[i]
		if v == nil {
			if next >= len(args) {
				return nil, fmt.Errorf("not enough arguments for format string")
			}
			v = args[next]
			next++
		}
		s, err := formatOne(spec, verb, v)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	if mapping == nil && next < len(args) {
		return nil, fmt.Errorf("not all arguments converted during string formatting")
	}
	return value.StringValue(b.String()), nil
}

func formatOne(spec string, verb byte, v value.Value) (string, error) {
	switch verb {
	case 's':
		return fmt.Sprintf("%"+spec+"s", str(v)), nil
	case 'r':
		return fmt.Sprintf("%"+spec+"s", value.Repr(v)), nil
	case 'd', 'i':
		if i, ok := intOf(v); ok {
			return fmt.Sprintf("%"+spec+"d", i), nil
		}
		if f, ok := v.(value.FloatValue); ok {
			i, err := floatToInt(float64(f))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%"+spec+"d", i), nil
		}
	case 'x', 'X', 'o':
		if i, ok := intOf(v); ok {
			return fmt.Sprintf("%"+spec+string(verb), i), nil
		}
	case 'f', 'F', 'e', 'E', 'g', 'G':
		if f, ok := value.AsFloat(v); ok {
			if verb == 'F' {
				verb = 'f'
			}
			return fmt.Sprintf("%"+spec+string(verb), f), nil
		}
	case 'c':
		if i, ok := intOf(v); ok {
			return string(rune(i)), nil
		}
		if s, ok := v.(value.StringValue); ok && len([]rune(string(s))) == 1 {
			return string(s), nil
		}
	default:
		return "", fmt.Errorf("unsupported format character %q", verb)
	}
	return "", fmt.Errorf("%%%c format: a number is required, not %s", verb, value.TypeName(v))
}

// str converts v the way str() does: None prints as "None".
func str(v value.Value) string {
	if value.IsNone(v) {
		return "None"
	}
	return v.String()
}
