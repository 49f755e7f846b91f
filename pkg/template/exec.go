package template

import (
	"fmt"
	"slices"
	"strings"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/value"
)

// scope is one function-level namespace. Loops and conditionals do not open
// scopes; template calls, $def calls, lambdas and comprehensions do.
type scope struct {
	vars   map[string]value.Value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]value.Value{}, parent: parent}
}

func (sc *scope) get(name string) (value.Value, bool) {
	for s := sc; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (sc *scope) set(name string, v value.Value) { sc.vars[name] = v }

// state is the evaluator state of one template or $def invocation.
type state struct {
	tpl    *Template
	sc     *scope
	out    *strings.Builder
	result *Result
	loop   *ForLoop
}

func newState(t *Template, loop *ForLoop) *state {
	root := newScope(nil)
	root.set("loop", loop)
	return &state{
		tpl:    t,
		sc:     newScope(root),
		out:    &strings.Builder{},
		result: newResult(),
		loop:   loop,
	}
}

// Render evaluates the template. Positional arguments bind to the declared
// parameters in order, then keyword arguments by name. Any error discards the
// output produced so far.
func (t *Template) Render(args []value.Value, kwargs map[string]value.Value) (*Result, error) {
	s := newState(t, NewForLoop())
	if err := s.bind(t.filename, t.params, t.defaults, args, kwargs); err != nil {
		return nil, locate(err, Pos{Filename: t.filename, Line: 1})
	}
	if err := s.run(t.body); err != nil && err != errReturn {
		return nil, err
	}
	s.result.Body = s.out.String()
	return s.result, nil
}

// Execute renders with keyword arguments converted from plain Go values.
func (t *Template) Execute(kwargs map[string]any) (*Result, error) {
	return t.Render(nil, value.FromGoMap(kwargs))
}

// String makes a Template usable as a value.
func (t *Template) String() string { return "<template " + t.filename + ">" }
func (t *Template) Truth() bool    { return true }

func (t *Template) TypeName() string { return "template" }

// Call implements value.Callable, so templates can be handed to other
// templates and invoked from them.
func (t *Template) Call(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return t.Render(args, kwargs)
}

func (s *state) run(ops []op) error {
	for _, o := range ops {
		if err := o.exec(s); err != nil {
			return locate(err, s.tpl.pos(o.pc()))
		}
	}
	return nil
}

func (o *textOp) exec(s *state) error {
	s.out.WriteString(o.text)
	return nil
}

func (o *exprOp) exec(s *state) error {
	v, err := s.eval(o.expr)
	if err != nil {
		return err
	}
	if value.IsNone(v) {
		return nil
	}
	text := v.String()
	if o.escape && s.tpl.filter != nil {
		text = s.tpl.filter(text)
	}
	s.out.WriteString(text)
	return nil
}

func (o *assignOp) exec(s *state) error {
	switch st := o.stmt.(type) {
	case *syntax.ExprStmt:
		_, err := s.eval(st.X)
		return err
	case *syntax.AssignStmt:
		rhs, err := s.eval(st.RHS)
		if err != nil {
			return err
		}
		if st.Op == syntax.EQ {
			return s.assign(st.LHS, rhs)
		}
		id := st.LHS.(*syntax.Ident)
		cur, err := s.lookup(id.Name)
		if err != nil {
			return err
		}
		v, err := binary(augmented[st.Op], cur, rhs)
		if err != nil {
			return err
		}
		s.sc.set(id.Name, v)
	}
	return nil
}

var augmented = map[syntax.Token]syntax.Token{
	syntax.PLUS_EQ:       syntax.PLUS,
	syntax.MINUS_EQ:      syntax.MINUS,
	syntax.STAR_EQ:       syntax.STAR,
	syntax.SLASH_EQ:      syntax.SLASH,
	syntax.SLASHSLASH_EQ: syntax.SLASHSLASH,
	syntax.PERCENT_EQ:    syntax.PERCENT,
	syntax.AMP_EQ:        syntax.AMP,
	syntax.PIPE_EQ:       syntax.PIPE,
	syntax.CIRCUMFLEX_EQ: syntax.CIRCUMFLEX,
	syntax.LTLT_EQ:       syntax.LTLT,
	syntax.GTGT_EQ:       syntax.GTGT,
}

func (o *varOp) exec(s *state) error {
	if o.expr != nil {
		v, err := s.eval(o.expr)
		if err != nil {
			return err
		}
		s.result.set(o.name, v)
		return nil
	}
	outer := s.out
	s.out = &strings.Builder{}
	err := s.run(o.body)
	captured := s.out.String()
	s.out = outer
	if err != nil {
		return err
	}
	s.result.set(o.name, value.StringValue(captured))
	return nil
}

func (o *forOp) exec(s *state) error {
	seq, err := s.eval(o.iter)
	if err != nil {
		return err
	}
	it, err := s.loop.Push(seq)
	if err != nil {
		return err
	}
	defer it.Close()
	for {
		v, ok := it.Advance()
		if !ok {
			break
		}
		if err := s.assign(o.vars, v); err != nil {
			return err
		}
		switch err := s.run(o.body); err {
		case nil, errContinue:
		case errBreak:
			return nil
		default:
			return err
		}
	}
	return s.run(o.els)
}

func (o *whileOp) exec(s *state) error {
	limit := s.tpl.engine.maxWhile
	for n := 0; ; n++ {
		cond, err := s.eval(o.cond)
		if err != nil {
			return err
		}
		if !cond.Truth() {
			break
		}
		if n == limit {
			return &LoopLimitExceeded{Limit: limit}
		}
		switch err := s.run(o.body); err {
		case nil, errContinue:
		case errBreak:
			return nil
		default:
			return err
		}
	}
	return s.run(o.els)
}

func (o *ifOp) exec(s *state) error {
	for i, cond := range o.conds {
		v, err := s.eval(cond)
		if err != nil {
			return err
		}
		if v.Truth() {
			return s.run(o.bodies[i])
		}
	}
	return s.run(o.els)
}

func (o *defOp) exec(s *state) error {
	defaults, err := s.defaults(o.params)
	if err != nil {
		return err
	}
	s.sc.set(o.name, &function{
		name:     o.name,
		line:     s.tpl.pos(o.pc()).Line,
		params:   o.params,
		defaults: defaults,
		body:     o.body,
		tpl:      s.tpl,
		closure:  s.sc,
		loop:     s.loop,
	})
	return nil
}

func (o *controlOp) exec(*state) error { return o.err }

func (o *passOp) exec(*state) error { return nil }

// assign binds v to a target that is a name or a nested tuple of names.
func (s *state) assign(target syntax.Expr, v value.Value) error {
	switch t := target.(type) {
	case *syntax.Ident:
		s.sc.set(t.Name, v)
		return nil
	case *syntax.ParenExpr:
		return s.assign(t.X, v)
	case *syntax.TupleExpr:
		return s.unpack(t.List, v)
	case *syntax.ListExpr:
		return s.unpack(t.List, v)
	}
	return fmt.Errorf("cannot assign to %s", exprKind(target))
}

func (s *state) unpack(targets []syntax.Expr, v value.Value) error {
	items, err := value.Collect(v)
	if err != nil {
		return fmt.Errorf("cannot unpack %s", value.TypeName(v))
	}
	if len(items) != len(targets) {
		return fmt.Errorf("cannot unpack %d values into %d variables", len(items), len(targets))
	}
	for i, t := range targets {
		if err := s.assign(t, items[i]); err != nil {
			return err
		}
	}
	return nil
}

// defaults evaluates the default expressions of p in the current scope.
func (s *state) defaults(p *params) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(p.defaults))
	for _, name := range p.names {
		e, ok := p.defaults[name]
		if !ok {
			continue
		}
		v, err := s.eval(e)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// bind assigns call arguments to the parameters of fn in the current scope.
func (s *state) bind(fn string, p *params, defaults map[string]value.Value, args []value.Value, kwargs map[string]value.Value) error {
	bound := make(map[string]value.Value, len(p.names))
	var extra value.ListValue
	for i, a := range args {
		if i < len(p.names) {
			bound[p.names[i]] = a
			continue
		}
		if p.varargs == "" {
			return fmt.Errorf("%s() takes %d positional arguments but %d were given", fn, len(p.names), len(args))
		}
		extra = append(extra, a)
	}
	extraKw := value.NewDict(0)
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if slices.Contains(p.names, k) {
			if _, dup := bound[k]; dup {
				return fmt.Errorf("%s() got multiple values for argument %q", fn, k)
			}
			bound[k] = kwargs[k]
			continue
		}
		if p.kwargs == "" {
			return fmt.Errorf("%s() got an unexpected keyword argument %q", fn, k)
		}
		extraKw.SetKey(k, kwargs[k])
	}
	var missing []string
	for _, name := range p.names {
		if _, ok := bound[name]; ok {
			continue
		}
		if d, ok := defaults[name]; ok {
			bound[name] = d
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return &MissingArgumentError{Func: fn, Names: missing}
	}
	for name, v := range bound {
		s.sc.set(name, v)
	}
	if p.varargs != "" {
		s.sc.set(p.varargs, extra)
	}
	if p.kwargs != "" {
		s.sc.set(p.kwargs, extraKw)
	}
	return nil
}

// function is a $def or lambda defined by template code. It closes over the
// scope it was defined in.
type function struct {
	name     string
	line     int
	params   *params
	defaults map[string]value.Value
	body     []op        // $def
	expr     syntax.Expr // lambda
	tpl      *Template
	closure  *scope
	loop     *ForLoop
}

func (f *function) String() string { return "<function " + f.name + ">" }
func (f *function) Truth() bool    { return true }

// Call runs the function. A $def returns a *Result holding its output and
// any $var values; a lambda returns its expression's value.
func (f *function) Call(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s := &state{
		tpl:    f.tpl,
		sc:     newScope(f.closure),
		out:    &strings.Builder{},
		result: newResult(),
		loop:   f.loop,
	}
	if err := s.bind(f.name, f.params, f.defaults, args, kwargs); err != nil {
		return nil, locate(err, Pos{Filename: f.tpl.filename, Line: f.line})
	}
	if f.expr != nil {
		return s.eval(f.expr)
	}
	if err := s.run(f.body); err != nil && err != errReturn {
		return nil, err
	}
	s.result.Body = s.out.String()
	return s.result, nil
}
