package parse

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *DefWith {
	t.Helper()
	root, err := Parse("test.html", src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return root
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1", "1\n"},
		{"a\r\nb\rc", "a\nb\nc\n"},
		{"\ufeffx\n", "x\n"},
		{"", "\n"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTextAndExpression(t *testing.T) {
	root := mustParse(t, "Hello $name!")
	if len(root.Body.Sections) != 1 {
		t.Fatalf("want 1 section, got %d", len(root.Body.Sections))
	}
	line, ok := root.Body.Sections[0].(*Line)
	if !ok || len(line.Nodes) != 3 {
		t.Fatalf("want line of 3 nodes, got %#v", root.Body.Sections[0])
	}
	if tn, ok := line.Nodes[0].(*Text); !ok || tn.Value != "Hello " {
		t.Fatalf("node0 not Text('Hello '): %#v", line.Nodes[0])
	}
	if en, ok := line.Nodes[1].(*Expression); !ok || en.Expr != "name" || !en.Escape {
		t.Fatalf("node1 not Expression(name): %#v", line.Nodes[1])
	}
	if tn, ok := line.Nodes[2].(*Text); !ok || tn.Value != "!\n" {
		t.Fatalf("node2 not Text('!\\n'): %#v", line.Nodes[2])
	}
}

func exprs(root *DefWith) []string {
	var out []string
	Walk(VisitorFunc(func(n Node) error {
		if e, ok := n.(*Expression); ok {
			prefix := ""
			if !e.Escape {
				prefix = ":"
			}
			out = append(out, prefix+e.Expr)
		}
		return nil
	}), root)
	return out
}

func TestExpressionDelimiting(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"<b>$name</b>", []string{"name"}},
		{"$user.name.", []string{"user.name"}},
		{"$f(a, (b))[0].x y", []string{"f(a, (b))[0].x"}},
		{"$name's", []string{"name"}},
		{"${a + b}c", []string{"a + b"}},
		{"${x}(y)", []string{"x"}},
		{"$(1 + 2).real", []string{"(1 + 2).real"}},
		{"$[1, 2][0]", []string{"[1, 2][0]"}},
		{"$:body", []string{":body"}},
		{"$f(')')", []string{"f(')')"}},
		{"$a .b", []string{"a"}},
		{"cost: 5 $ each", nil},
	}
	for _, tt := range tests {
		got := exprs(mustParse(t, tt.src))
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("%q: got %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestDollarEscapeAndComments(t *testing.T) {
	root := mustParse(t, "Stop, $$money isn't evaluated.")
	line := root.Body.Sections[0].(*Line)
	if len(line.Nodes) != 1 || line.Nodes[0].(*Text).Value != "Stop, $money isn't evaluated.\n" {
		t.Fatalf("unexpected nodes %#v", line.Nodes)
	}

	root = mustParse(t, "$# only a comment\na $# trailing\n")
	if len(root.Body.Sections) != 1 {
		t.Fatalf("comment line should emit nothing, got %d sections", len(root.Body.Sections))
	}
	if got := root.Body.Sections[0].(*Line).Nodes[0].(*Text).Value; got != "a \n" {
		t.Fatalf("got %q", got)
	}
}

func TestContinuation(t *testing.T) {
	root := mustParse(t, "a\\\nb")
	first := root.Body.Sections[0].(*Line)
	if got := first.Nodes[0].(*Text).Value; got != "a" {
		t.Fatalf("continued line kept newline: %q", got)
	}
}

func TestInlineBodies(t *testing.T) {
	root := mustParse(t, "$for x in [1, 2, 3]: $x")
	f, ok := root.Body.Sections[0].(*For)
	if !ok {
		t.Fatalf("want For, got %#v", root.Body.Sections[0])
	}
	if f.Vars != "x" || f.Iter != "[1, 2, 3]" {
		t.Fatalf("bad header: %q in %q", f.Vars, f.Iter)
	}
	if len(f.Body.Sections) != 1 {
		t.Fatalf("want single-line body, got %d", len(f.Body.Sections))
	}

	root = mustParse(t, "$if 0: 0\n$else: 1")
	n := root.Body.Sections[0].(*If)
	if n.Cond != "0" || n.Else == nil {
		t.Fatalf("bad if: %#v", n)
	}
}

func TestIndentedBlocks(t *testing.T) {
	src := strings.Join([]string{
		"<ul>",
		"$for item in items:",
		"    <li>$item</li>",
		"",
		"    $if item.done:",
		"        done",
		"    $elif item.late:",
		"        late",
		"    $else:",
		"        open",
		"",
		"</ul>",
	}, "\n")
	root := mustParse(t, src)
	if len(root.Body.Sections) != 4 {
		t.Fatalf("want 4 top-level sections, got %d:\n%s", len(root.Body.Sections), Pretty(root))
	}
	f := root.Body.Sections[1].(*For)
	if len(f.Body.Sections) != 3 {
		t.Fatalf("loop body: want 3 sections, got %d:\n%s", len(f.Body.Sections), Pretty(root))
	}
	li := f.Body.Sections[0].(*Line)
	if got := li.Nodes[0].(*Text).Value; got != "<li>" {
		t.Fatalf("indentation not stripped: %q", got)
	}
	n := f.Body.Sections[2].(*If)
	if len(n.Elifs) != 1 || n.Else == nil {
		t.Fatalf("elif/else not attached:\n%s", Pretty(root))
	}
	if blank := root.Body.Sections[2].(*Line); blank.Nodes[0].(*Text).Value != "\n" {
		t.Fatalf("trailing blank line was absorbed into the block")
	}
}

func TestDefWithAndDef(t *testing.T) {
	root := mustParse(t, "$def with (a, b=2)\n$def row(x):\n    <td>$x</td>\n$:row(a)")
	if root.Params != "a, b=2" {
		t.Fatalf("params = %q", root.Params)
	}
	d := root.Body.Sections[0].(*Def)
	if d.Name != "row" || d.Params != "x" {
		t.Fatalf("bad def %#v", d)
	}
}

func TestVar(t *testing.T) {
	root := mustParse(t, "$var title: Home\n$var count = len(items)")
	v := root.Body.Sections[0].(*Var)
	if v.Name != "title" || v.Body == nil {
		t.Fatalf("bad body var %#v", v)
	}
	v = root.Body.Sections[1].(*Var)
	if v.Name != "count" || v.Expr != "len(items)" {
		t.Fatalf("bad expr var %#v", v)
	}
}

func TestAssignmentAndRawStatements(t *testing.T) {
	root := mustParse(t, "$ x = 1\n$while x:\n    $ x -= 1\n    $continue\n    $break\n$pass")
	if a := root.Body.Sections[0].(*Assignment); a.Code != "x = 1" {
		t.Fatalf("bad assignment %q", a.Code)
	}
	w := root.Body.Sections[1].(*While)
	if kw := w.Body.Sections[1].(*RawStatement).Keyword; kw != "continue" {
		t.Fatalf("got %q", kw)
	}
	if kw := root.Body.Sections[2].(*RawStatement).Keyword; kw != "pass" {
		t.Fatalf("got %q", kw)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		line int
	}{
		{"ok\n$for x in y:\n", 2},
		{"ok\n$if x\n  y", 2},
		{"a\nb\n$(f(1]", 3},
		{"${x", 1},
		{"$else:\n  x", 1},
		{"$if a:\n    x\n  $elif b:\n    y", 3},
		{"x\n$def with (a)", 2},
		{"$var : x", 1},
		{"$for x: y", 1},
		{"$break now", 1},
	}
	for _, tt := range tests {
		_, err := Parse("bad.html", tt.src)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%q: want ParseError, got %v", tt.src, err)
		}
		if pe.Line != tt.line {
			t.Fatalf("%q: line = %d, want %d (%v)", tt.src, pe.Line, tt.line, err)
		}
		if !strings.HasPrefix(pe.Error(), "bad.html:") {
			t.Fatalf("error lacks filename: %v", pe)
		}
	}
}

func TestPretty(t *testing.T) {
	out := Pretty(mustParse(t, "$if a: x\n$else: y"))
	for _, want := range []string{`If("a")`, "Else", `Text("x\n")`} {
		if !strings.Contains(out, want) {
			t.Fatalf("pretty output missing %q:\n%s", want, out)
		}
	}
}

func TestBlankLinesBeforeElse(t *testing.T) {
	tests := []struct {
		src      string
		elifs    int
		sections int
	}{
		{"$if a:\n    x\n\n$else:\n    y", 0, 1},
		{"$if a: x\n\n\n$elif b: y\n\n$else: z", 1, 1},
		{"$for x in a:\n    $x\n\n$else:\n    none\nafter", 0, 2},
	}
	for _, tt := range tests {
		root := mustParse(t, tt.src)
		if len(root.Body.Sections) != tt.sections {
			t.Fatalf("%q: want %d sections, got %d:\n%s", tt.src, tt.sections, len(root.Body.Sections), Pretty(root))
		}
		switch n := root.Body.Sections[0].(type) {
		case *If:
			if len(n.Elifs) != tt.elifs || n.Else == nil {
				t.Fatalf("%q: elif/else not attached:\n%s", tt.src, Pretty(root))
			}
		case *For:
			if n.Else == nil {
				t.Fatalf("%q: loop else not attached:\n%s", tt.src, Pretty(root))
			}
		}
	}
	// Without a continuation the blank line stays in the output.
	root := mustParse(t, "$if a:\n    x\n\ny")
	if len(root.Body.Sections) != 3 {
		t.Fatalf("want 3 sections, got %d:\n%s", len(root.Body.Sections), Pretty(root))
	}
}

func TestCount(t *testing.T) {
	root := mustParse(t, "$def with (items)\n$for x in items:\n    $x and $:x\n$else:\n    $pass\n")
	counts := Count(root)
	want := map[string]int{"DefWith": 1, "For": 1, "Else": 1, "Expr": 1, "RawExpr": 1, "pass": 1}
	for kind, n := range want {
		if counts[kind] != n {
			t.Fatalf("Count()[%s] = %d, want %d (%v)", kind, counts[kind], n, counts)
		}
	}
	if counts["Suite"] != 3 {
		t.Fatalf("Count()[Suite] = %d, want 3", counts["Suite"])
	}
}
