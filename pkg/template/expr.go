package template

import (
	"fmt"
	"math/big"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/value"
)

// eval evaluates an expression tree produced by the compiler.
func (s *state) eval(e syntax.Expr) (value.Value, error) {
	switch e := e.(type) {
	case *syntax.Ident:
		return s.lookup(e.Name)
	case *syntax.Literal:
		return literal(e)
	case *syntax.ParenExpr:
		return s.eval(e.X)
	case *syntax.ListExpr:
		return s.list(e.List)
	case *syntax.TupleExpr:
		return s.list(e.List)
	case *syntax.DictExpr:
		d := value.NewDict(len(e.List))
		for _, item := range e.List {
			entry := item.(*syntax.DictEntry)
			k, err := s.eval(entry.Key)
			if err != nil {
				return nil, err
			}
			v, err := s.eval(entry.Value)
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil
	case *syntax.DotExpr:
		// The attribute name is checked before the target is evaluated.
		if err := s.checkAttr(e.Name.Name); err != nil {
			return nil, err
		}
		x, err := s.eval(e.X)
		if err != nil {
			return nil, err
		}
		return getAttr(x, e.Name.Name)
	case *syntax.IndexExpr:
		x, err := s.eval(e.X)
		if err != nil {
			return nil, err
		}
		y, err := s.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return s.index(x, y)
	case *syntax.SliceExpr:
		return s.slice(e)
	case *syntax.CallExpr:
		return s.call(e)
	case *syntax.UnaryExpr:
		x, err := s.eval(e.X)
		if err != nil {
			return nil, err
		}
		return unary(e.Op, x)
	case *syntax.BinaryExpr:
		x, err := s.eval(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case syntax.AND:
			if !x.Truth() {
				return x, nil
			}
			return s.eval(e.Y)
		case syntax.OR:
			if x.Truth() {
				return x, nil
			}
			return s.eval(e.Y)
		}
		y, err := s.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return binary(e.Op, x, y)
	case *syntax.CondExpr:
		c, err := s.eval(e.Cond)
		if err != nil {
			return nil, err
		}
		if c.Truth() {
			return s.eval(e.True)
		}
		return s.eval(e.False)
	case *syntax.Comprehension:
		return s.comprehension(e)
	case *syntax.LambdaExpr:
		return s.lambda(e)
	}
	return nil, fmt.Errorf("unsupported expression %s", exprKind(e))
}

// lookup resolves a name: locals, then the per-call namespace, then engine
// globals, then builtins.
func (s *state) lookup(name string) (value.Value, error) {
	if v, ok := s.sc.get(name); ok {
		return v, nil
	}
	if v, ok := s.tpl.engine.lookup(name); ok {
		return v, nil
	}
	return nil, &UndefinedNameError{Name: name}
}

func literal(e *syntax.Literal) (value.Value, error) {
	switch v := e.Value.(type) {
	case string:
		return value.StringValue(v), nil
	case int64:
		return value.IntValue(v), nil
	case *big.Int:
		if v.IsInt64() {
			return value.IntValue(v.Int64()), nil
		}
		return nil, fmt.Errorf("integer literal %s out of range", e.Raw)
	case float64:
		return value.FloatValue(v), nil
	}
	return nil, fmt.Errorf("unsupported literal %s", e.Raw)
}

func (s *state) list(exprs []syntax.Expr) (value.Value, error) {
	out := make(value.ListValue, 0, len(exprs))
	for _, x := range exprs {
		v, err := s.eval(x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *state) call(e *syntax.CallExpr) (value.Value, error) {
	fn, err := s.eval(e.Fn)
	if err != nil {
		return nil, err
	}
	var args []value.Value
	var kwargs map[string]value.Value
	setKw := func(k string, v value.Value) {
		if kwargs == nil {
			kwargs = map[string]value.Value{}
		}
		kwargs[k] = v
	}
	for _, a := range e.Args {
		switch a := a.(type) {
		case *syntax.BinaryExpr:
			if id, ok := a.X.(*syntax.Ident); ok && a.Op == syntax.EQ {
				v, err := s.eval(a.Y)
				if err != nil {
					return nil, err
				}
				setKw(id.Name, v)
				continue
			}
		case *syntax.UnaryExpr:
			switch a.Op {
			case syntax.STAR:
				v, err := s.eval(a.X)
				if err != nil {
					return nil, err
				}
				items, err := value.Collect(v)
				if err != nil {
					return nil, err
				}
				args = append(args, items...)
				continue
			case syntax.STARSTAR:
				v, err := s.eval(a.X)
				if err != nil {
					return nil, err
				}
				d, ok := v.(*value.DictValue)
				if !ok {
					return nil, fmt.Errorf("argument after ** must be a dict, not %s", value.TypeName(v))
				}
				for k, x := range d.All() {
					name, ok := k.(value.StringValue)
					if !ok {
						return nil, fmt.Errorf("keywords must be strings, not %s", value.TypeName(k))
					}
					setKw(string(name), x)
				}
				continue
			}
		}
		v, err := s.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	c, ok := fn.(value.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", value.TypeName(fn))
	}
	return c.Call(args, kwargs)
}

func (s *state) child() *state {
	c := *s
	c.sc = newScope(s.sc)
	return &c
}

func (s *state) comprehension(e *syntax.Comprehension) (value.Value, error) {
	inner := s.child()
	var list value.ListValue
	dict := value.NewDict(0)
	var clause func(i int) error
	clause = func(i int) error {
		if i == len(e.Clauses) {
			if entry, ok := e.Body.(*syntax.DictEntry); ok {
				k, err := inner.eval(entry.Key)
				if err != nil {
					return err
				}
				v, err := inner.eval(entry.Value)
				if err != nil {
					return err
				}
				return dict.Set(k, v)
			}
			v, err := inner.eval(e.Body)
			if err != nil {
				return err
			}
			list = append(list, v)
			return nil
		}
		switch c := e.Clauses[i].(type) {
		case *syntax.ForClause:
			seq, err := inner.eval(c.X)
			if err != nil {
				return err
			}
			it, err := value.Iterate(seq)
			if err != nil {
				return err
			}
			for x, ok := it.Next(); ok; x, ok = it.Next() {
				if err := inner.assign(c.Vars, x); err != nil {
					return err
				}
				if err := clause(i + 1); err != nil {
					return err
				}
			}
		case *syntax.IfClause:
			cond, err := inner.eval(c.Cond)
			if err != nil {
				return err
			}
			if cond.Truth() {
				return clause(i + 1)
			}
		}
		return nil
	}
	if err := clause(0); err != nil {
		return nil, err
	}
	if e.Curly {
		return dict, nil
	}
	if list == nil {
		list = value.ListValue{}
	}
	return list, nil
}

func (s *state) lambda(e *syntax.LambdaExpr) (value.Value, error) {
	p, err := compileParams(e.Params)
	if err != nil {
		return nil, err
	}
	defaults, err := s.defaults(p)
	if err != nil {
		return nil, err
	}
	return &function{
		name:     "lambda",
		params:   p,
		defaults: defaults,
		expr:     e.Body,
		tpl:      s.tpl,
		closure:  s.sc,
		loop:     s.loop,
	}, nil
}
