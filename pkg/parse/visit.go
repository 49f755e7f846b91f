package parse

import (
	"bytes"
	"fmt"
)

type Visitor interface {
	Visit(n Node) error
}

// Walk visits n and then every node below it in source order.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	var children []Node
	switch t := n.(type) {
	case *DefWith:
		children = []Node{t.Body}
	case *Suite:
		children = t.Sections
	case *Line:
		children = t.Nodes
	case *Var:
		if t.Body != nil {
			children = []Node{t.Body}
		}
	case *For:
		children = []Node{t.Body}
		if t.Else != nil {
			children = append(children, t.Else)
		}
	case *While:
		children = []Node{t.Body}
		if t.Else != nil {
			children = append(children, t.Else)
		}
	case *If:
		children = []Node{t.Body}
		for _, e := range t.Elifs {
			children = append(children, e)
		}
		if t.Else != nil {
			children = append(children, t.Else)
		}
	case *Elif:
		children = []Node{t.Body}
	case *Else:
		children = []Node{t.Body}
	case *Def:
		children = []Node{t.Body}
	}
	for _, c := range children {
		if err := Walk(v, c); err != nil {
			return err
		}
	}
	return nil
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Kind names the type of n as Pretty prints it. Statements such as break
// are named by their keyword.
func Kind(n Node) string {
	switch t := n.(type) {
	case *DefWith:
		return "DefWith"
	case *Suite:
		return "Suite"
	case *Line:
		return "Line"
	case *Text:
		return "Text"
	case *Expression:
		if t.Escape {
			return "Expr"
		}
		return "RawExpr"
	case *Assignment:
		return "Assign"
	case *Var:
		return "Var"
	case *For:
		return "For"
	case *While:
		return "While"
	case *If:
		return "If"
	case *Elif:
		return "Elif"
	case *Else:
		return "Else"
	case *Def:
		return "Def"
	case *RawStatement:
		return t.Keyword
	}
	return "?"
}

// Count returns how many nodes of each kind appear in the tree rooted at n.
func Count(n Node) map[string]int {
	counts := map[string]int{}
	_ = Walk(VisitorFunc(func(n Node) error {
		counts[Kind(n)]++
		return nil
	}), n)
	return counts
}

// Pretty returns a line-oriented string representation of the tree.
func Pretty(root *DefWith) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, root)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := func() {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
	}
	ppSuite := func(s *Suite) {
		for _, c := range s.Sections {
			ppNode(buf, indent+2, c)
		}
	}
	switch t := n.(type) {
	case *DefWith:
		ind()
		fmt.Fprintf(buf, "DefWith(%q)\n", t.Params)
		ppSuite(t.Body)
	case *Line:
		ind()
		buf.WriteString("Line\n")
		for _, c := range t.Nodes {
			ppNode(buf, indent+2, c)
		}
	case *Text:
		ind()
		fmt.Fprintf(buf, "Text(%q)\n", t.Value)
	case *Expression:
		ind()
		if t.Escape {
			fmt.Fprintf(buf, "Expr(%q)\n", t.Expr)
		} else {
			fmt.Fprintf(buf, "RawExpr(%q)\n", t.Expr)
		}
	case *Assignment:
		ind()
		fmt.Fprintf(buf, "Assign(%q)\n", t.Code)
	case *Var:
		ind()
		if t.Body == nil {
			fmt.Fprintf(buf, "Var(%s = %q)\n", t.Name, t.Expr)
			return
		}
		fmt.Fprintf(buf, "Var(%s)\n", t.Name)
		ppSuite(t.Body)
	case *For:
		ind()
		fmt.Fprintf(buf, "For(%s in %q)\n", t.Vars, t.Iter)
		ppSuite(t.Body)
		if t.Else != nil {
			ppNode(buf, indent, t.Else)
		}
	case *While:
		ind()
		fmt.Fprintf(buf, "While(%q)\n", t.Cond)
		ppSuite(t.Body)
		if t.Else != nil {
			ppNode(buf, indent, t.Else)
		}
	case *If:
		ind()
		fmt.Fprintf(buf, "If(%q)\n", t.Cond)
		ppSuite(t.Body)
		for _, e := range t.Elifs {
			ppNode(buf, indent, e)
		}
		if t.Else != nil {
			ppNode(buf, indent, t.Else)
		}
	case *Elif:
		ind()
		fmt.Fprintf(buf, "Elif(%q)\n", t.Cond)
		ppSuite(t.Body)
	case *Else:
		ind()
		buf.WriteString("Else\n")
		ppSuite(t.Body)
	case *Def:
		ind()
		fmt.Fprintf(buf, "Def(%s(%s))\n", t.Name, t.Params)
		ppSuite(t.Body)
	case *RawStatement:
		ind()
		fmt.Fprintf(buf, "%s\n", t.Keyword)
	}
}
