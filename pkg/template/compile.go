package template

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/neurodesk/sigil/pkg/parse"
	"github.com/neurodesk/sigil/pkg/value"
)

// Template is a compiled template. It is immutable and may be rendered
// concurrently.
type Template struct {
	engine      *Engine
	filename    string
	body        []op
	lines       []int // instruction index -> source line
	params      *params
	defaults    map[string]value.Value
	filter      Filter
	contentType string
}

// CompileOption configures a single compilation.
type CompileOption func(*Template)

// WithFilter sets the escaping filter applied to $x expressions. A nil filter
// writes values unchanged.
func WithFilter(f Filter) CompileOption {
	return func(t *Template) { t.filter = f }
}

// WithContentType overrides the content type derived from the filename.
func WithContentType(ct string) CompileOption {
	return func(t *Template) { t.contentType = ct }
}

// Filename returns the name the template was compiled under.
func (t *Template) Filename() string { return t.filename }

// ContentType returns the declared content type, or "" when unknown.
func (t *Template) ContentType() string { return t.contentType }

// Params returns the names of the declared template parameters.
func (t *Template) Params() []string { return append([]string(nil), t.params.names...) }

func (t *Template) pos(pc int) Pos {
	if pc < 0 || pc >= len(t.lines) {
		return Pos{Filename: t.filename}
	}
	return Pos{Filename: t.filename, Line: t.lines[pc]}
}

// Compile parses and compiles template source. Malformed templates and
// malformed embedded expressions fail with a *ParseError.
func (e *Engine) Compile(filename, text string, opts ...CompileOption) (*Template, error) {
	root, err := parse.Parse(filename, text)
	if err != nil {
		return nil, err
	}
	t := &Template{
		engine:      e,
		filename:    filename,
		filter:      filterFor(filename),
		contentType: contentTypeFor(filename),
	}
	for _, opt := range opts {
		opt(t)
	}
	c := &compiler{filename: filename}
	if t.params, err = c.paramList(root.LineNo, root.Params); err != nil {
		return nil, err
	}
	if t.body, err = c.suite(root.Body); err != nil {
		return nil, err
	}
	t.lines = c.lines
	if t.defaults, err = t.evalDefaults(); err != nil {
		return nil, err
	}
	e.logger.Debug("compiled template", "filename", filename, "instructions", len(t.lines), "params", t.params.names)
	return t, nil
}

// evalDefaults evaluates $def with defaults once against globals and builtins.
func (t *Template) evalDefaults() (map[string]value.Value, error) {
	s := newState(t, NewForLoop())
	d, err := s.defaults(t.params)
	if err != nil {
		return nil, locate(err, Pos{Filename: t.filename, Line: 1})
	}
	return d, nil
}

// Instructions. Every op records the index of its entry in Template.lines.

type op interface {
	exec(s *state) error
	pc() int
}

type at int

func (a at) pc() int { return int(a) }

type textOp struct {
	at
	text string
}

type exprOp struct {
	at
	expr   syntax.Expr
	escape bool
}

type assignOp struct {
	at
	stmt syntax.Stmt
}

type varOp struct {
	at
	name string
	expr syntax.Expr
	body []op
}

type forOp struct {
	at
	vars syntax.Expr
	iter syntax.Expr
	body []op
	els  []op
}

type whileOp struct {
	at
	cond syntax.Expr
	body []op
	els  []op
}

type ifOp struct {
	at
	conds  []syntax.Expr
	bodies [][]op
	els    []op
}

type defOp struct {
	at
	name   string
	params *params
	body   []op
}

type controlOp struct {
	at
	err error
}

type passOp struct{ at }

// params is a compiled parameter list.
type params struct {
	names    []string
	defaults map[string]syntax.Expr
	varargs  string
	kwargs   string
}

type compiler struct {
	filename string
	lines    []int
	loops    int
}

var fileOptions = &syntax.FileOptions{Set: true, While: true, TopLevelControl: true, GlobalReassign: true}

func (c *compiler) at(line int) at {
	c.lines = append(c.lines, line)
	return at(len(c.lines) - 1)
}

func (c *compiler) errorf(line int, format string, args ...any) error {
	return &ParseError{Filename: c.filename, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) syntaxError(line int, what, src string, err error) error {
	msg := err.Error()
	var se syntax.Error
	if errors.As(err, &se) {
		msg = se.Msg
	}
	return c.errorf(line, "invalid %s %q: %s", what, src, msg)
}

func (c *compiler) expr(line int, src string) (syntax.Expr, error) {
	e, err := fileOptions.ParseExpr(c.filename, src, 0)
	if err != nil {
		return nil, c.syntaxError(line, "expression", src, err)
	}
	return e, nil
}

func (c *compiler) suite(s *parse.Suite) ([]op, error) {
	if s == nil {
		return nil, nil
	}
	var ops []op
	for _, n := range s.Sections {
		more, err := c.node(n)
		if err != nil {
			return nil, err
		}
		ops = append(ops, more...)
	}
	return ops, nil
}

func (c *compiler) node(n parse.Node) ([]op, error) {
	switch n := n.(type) {
	case *parse.Line:
		var ops []op
		for _, part := range n.Nodes {
			switch part := part.(type) {
			case *parse.Text:
				ops = append(ops, &textOp{at: c.at(part.LineNo), text: part.Value})
			case *parse.Expression:
				e, err := c.expr(part.LineNo, part.Expr)
				if err != nil {
					return nil, err
				}
				ops = append(ops, &exprOp{at: c.at(part.LineNo), expr: e, escape: part.Escape})
			}
		}
		return ops, nil
	case *parse.Assignment:
		o, err := c.assignment(n)
		if err != nil {
			return nil, err
		}
		return []op{o}, nil
	case *parse.Var:
		o := &varOp{at: c.at(n.LineNo), name: n.Name}
		var err error
		if n.Body != nil {
			o.body, err = c.suite(n.Body)
		} else {
			o.expr, err = c.expr(n.LineNo, n.Expr)
		}
		if err != nil {
			return nil, err
		}
		return []op{o}, nil
	case *parse.For:
		o, err := c.forLoop(n)
		if err != nil {
			return nil, err
		}
		return []op{o}, nil
	case *parse.While:
		o := &whileOp{at: c.at(n.LineNo)}
		var err error
		if o.cond, err = c.expr(n.LineNo, n.Cond); err != nil {
			return nil, err
		}
		if o.body, o.els, err = c.loopBody(n.Body, n.Else); err != nil {
			return nil, err
		}
		return []op{o}, nil
	case *parse.If:
		o := &ifOp{at: c.at(n.LineNo)}
		branches := []*parse.Elif{{LineNo: n.LineNo, Cond: n.Cond, Body: n.Body}}
		branches = append(branches, n.Elifs...)
		for _, b := range branches {
			cond, err := c.expr(b.LineNo, b.Cond)
			if err != nil {
				return nil, err
			}
			body, err := c.suite(b.Body)
			if err != nil {
				return nil, err
			}
			o.conds = append(o.conds, cond)
			o.bodies = append(o.bodies, body)
		}
		if n.Else != nil {
			var err error
			if o.els, err = c.suite(n.Else.Body); err != nil {
				return nil, err
			}
		}
		return []op{o}, nil
	case *parse.Def:
		o := &defOp{at: c.at(n.LineNo), name: n.Name}
		var err error
		if o.params, err = c.paramList(n.LineNo, n.Params); err != nil {
			return nil, err
		}
		outer := c.loops
		c.loops = 0
		o.body, err = c.suite(n.Body)
		c.loops = outer
		if err != nil {
			return nil, err
		}
		return []op{o}, nil
	case *parse.RawStatement:
		switch n.Keyword {
		case "pass":
			return []op{&passOp{c.at(n.LineNo)}}, nil
		case "return":
			return []op{&controlOp{at: c.at(n.LineNo), err: errReturn}}, nil
		}
		if c.loops == 0 {
			return nil, c.errorf(n.LineNo, "$%s outside loop", n.Keyword)
		}
		if n.Keyword == "break" {
			return []op{&controlOp{at: c.at(n.LineNo), err: errBreak}}, nil
		}
		return []op{&controlOp{at: c.at(n.LineNo), err: errContinue}}, nil
	}
	return nil, c.errorf(n.Pos(), "unexpected %T", n)
}

func (c *compiler) loopBody(body *parse.Suite, els *parse.Else) ([]op, []op, error) {
	c.loops++
	b, err := c.suite(body)
	c.loops--
	if err != nil || els == nil {
		return b, nil, err
	}
	e, err := c.suite(els.Body)
	return b, e, err
}

func (c *compiler) forLoop(n *parse.For) (op, error) {
	o := &forOp{at: c.at(n.LineNo)}
	var err error
	if o.vars, err = c.expr(n.LineNo, n.Vars); err != nil {
		return nil, err
	}
	if err := c.target(n.LineNo, o.vars); err != nil {
		return nil, err
	}
	if o.iter, err = c.expr(n.LineNo, n.Iter); err != nil {
		return nil, err
	}
	if o.body, o.els, err = c.loopBody(n.Body, n.Else); err != nil {
		return nil, err
	}
	return o, nil
}

// assignment compiles "$ code", which may only assign or evaluate.
func (c *compiler) assignment(n *parse.Assignment) (op, error) {
	f, err := fileOptions.Parse(c.filename, n.Code+"\n", 0)
	if err != nil {
		return nil, c.syntaxError(n.LineNo, "code", n.Code, err)
	}
	if len(f.Stmts) != 1 {
		return nil, c.errorf(n.LineNo, "expected a single statement, got %d", len(f.Stmts))
	}
	switch st := f.Stmts[0].(type) {
	case *syntax.ExprStmt:
	case *syntax.AssignStmt:
		lhs := st.LHS
		if st.Op != syntax.EQ {
			if _, ok := lhs.(*syntax.Ident); !ok {
				return nil, c.errorf(n.LineNo, "augmented assignment needs a plain name")
			}
		}
		if err := c.target(n.LineNo, lhs); err != nil {
			return nil, err
		}
	default:
		return nil, c.errorf(n.LineNo, "only assignments and expressions are allowed in $ code")
	}
	return &assignOp{at: c.at(n.LineNo), stmt: f.Stmts[0]}, nil
}

// target checks that e may be assigned to: a name or a nested tuple of names.
func (c *compiler) target(line int, e syntax.Expr) error {
	switch e := e.(type) {
	case *syntax.Ident:
		return nil
	case *syntax.ParenExpr:
		return c.target(line, e.X)
	case *syntax.TupleExpr:
		for _, x := range e.List {
			if err := c.target(line, x); err != nil {
				return err
			}
		}
		return nil
	case *syntax.ListExpr:
		for _, x := range e.List {
			if err := c.target(line, x); err != nil {
				return err
			}
		}
		return nil
	}
	return c.errorf(line, "cannot assign to %s", exprKind(e))
}

func exprKind(e syntax.Expr) string {
	name := fmt.Sprintf("%T", e)
	name = strings.TrimPrefix(name, "*syntax.")
	return strings.ToLower(strings.TrimSuffix(name, "Expr"))
}

// paramList compiles the text between the parentheses of a $def header.
func (c *compiler) paramList(line int, src string) (*params, error) {
	if strings.TrimSpace(src) == "" {
		return &params{}, nil
	}
	f, err := fileOptions.Parse(c.filename, "def _("+src+"):\n    pass\n", 0)
	if err != nil {
		return nil, c.syntaxError(line, "parameters", src, err)
	}
	def, ok := f.Stmts[0].(*syntax.DefStmt)
	if !ok || len(f.Stmts) != 1 {
		return nil, c.errorf(line, "invalid parameters %q", src)
	}
	p, err := compileParams(def.Params)
	if err != nil {
		return nil, c.errorf(line, "invalid parameters %q: %v", src, err)
	}
	return p, nil
}

func compileParams(list []syntax.Expr) (*params, error) {
	p := &params{defaults: map[string]syntax.Expr{}}
	seen := map[string]bool{}
	add := func(name string) error {
		if seen[name] {
			return fmt.Errorf("duplicate parameter %q", name)
		}
		seen[name] = true
		return nil
	}
	for _, e := range list {
		switch e := e.(type) {
		case *syntax.Ident:
			if err := add(e.Name); err != nil {
				return nil, err
			}
			p.names = append(p.names, e.Name)
		case *syntax.BinaryExpr:
			id, ok := e.X.(*syntax.Ident)
			if e.Op != syntax.EQ || !ok {
				return nil, fmt.Errorf("bad parameter")
			}
			if err := add(id.Name); err != nil {
				return nil, err
			}
			p.names = append(p.names, id.Name)
			p.defaults[id.Name] = e.Y
		case *syntax.UnaryExpr:
			id, _ := e.X.(*syntax.Ident)
			if id == nil {
				return nil, fmt.Errorf("bare * is not supported")
			}
			if err := add(id.Name); err != nil {
				return nil, err
			}
			if e.Op == syntax.STARSTAR {
				p.kwargs = id.Name
			} else {
				p.varargs = id.Name
			}
		default:
			return nil, fmt.Errorf("bad parameter")
		}
	}
	return p, nil
}
