package parse

// Node is any element of a parsed template. The set of node types is closed:
// only the types in this file implement it.
type Node interface {
	node()
	// Pos returns the 1-based source line the node starts on.
	Pos() int
}

// DefWith is the root of a parsed template. Params holds the raw text inside
// the parentheses of a leading "$def with (...)" line, if any.
type DefWith struct {
	LineNo int
	Params string
	Body   *Suite
}

// Suite is an ordered sequence of sections forming a block body.
type Suite struct {
	LineNo   int
	Sections []Node
}

// Line is one output line: literal text and expressions, in order. A
// trailing newline is part of the last Text unless the line was continued
// with a backslash.
type Line struct {
	LineNo int
	Nodes  []Node
}

// Text represents literal output.
type Text struct {
	LineNo int
	Value  string
}

// Expression represents an embedded expression: $x, $:x, ${x}, $(x).
type Expression struct {
	LineNo int
	Expr   string
	Escape bool
}

// Assignment represents a "$ code" line.
type Assignment struct {
	LineNo int
	Code   string
}

// Var represents "$var name = expr" (Expr set) or "$var name: body" (Body
// set).
type Var struct {
	LineNo int
	Name   string
	Expr   string
	Body   *Suite
}

// For represents "$for vars in iter:".
type For struct {
	LineNo int
	Vars   string
	Iter   string
	Body   *Suite
	Else   *Else
}

// While represents "$while cond:".
type While struct {
	LineNo int
	Cond   string
	Body   *Suite
	Else   *Else
}

// If represents an $if block with its $elif and $else branches.
type If struct {
	LineNo int
	Cond   string
	Body   *Suite
	Elifs  []*Elif
	Else   *Else
}

// Elif is a single $elif branch.
type Elif struct {
	LineNo int
	Cond   string
	Body   *Suite
}

// Else is the $else branch of an $if, $for or $while.
type Else struct {
	LineNo int
	Body   *Suite
}

// Def represents "$def name(params):", a template-local function.
type Def struct {
	LineNo int
	Name   string
	Params string
	Body   *Suite
}

// RawStatement is one of pass, break, continue or return.
type RawStatement struct {
	LineNo  int
	Keyword string
}

func (*DefWith) node()      {}
func (*Suite) node()        {}
func (*Line) node()         {}
func (*Text) node()         {}
func (*Expression) node()   {}
func (*Assignment) node()   {}
func (*Var) node()          {}
func (*For) node()          {}
func (*While) node()        {}
func (*If) node()           {}
func (*Elif) node()         {}
func (*Else) node()         {}
func (*Def) node()          {}
func (*RawStatement) node() {}

func (n *DefWith) Pos() int      { return n.LineNo }
func (n *Suite) Pos() int        { return n.LineNo }
func (n *Line) Pos() int         { return n.LineNo }
func (n *Text) Pos() int         { return n.LineNo }
func (n *Expression) Pos() int   { return n.LineNo }
func (n *Assignment) Pos() int   { return n.LineNo }
func (n *Var) Pos() int          { return n.LineNo }
func (n *For) Pos() int          { return n.LineNo }
func (n *While) Pos() int        { return n.LineNo }
func (n *If) Pos() int           { return n.LineNo }
func (n *Elif) Pos() int         { return n.LineNo }
func (n *Else) Pos() int         { return n.LineNo }
func (n *Def) Pos() int          { return n.LineNo }
func (n *RawStatement) Pos() int { return n.LineNo }
