package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parse parses template source into a DefWith tree. The text is normalised
// first (see Normalize). Expressions are delimited but not validated; the
// compiler parses them.
func Parse(filename, text string) (*DefWith, error) {
	text = Normalize(text)
	raw := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([]srcLine, len(raw))
	for i, s := range raw {
		lines[i] = srcLine{no: i + 1, text: s}
	}
	p := &parser{filename: filename}
	root := &DefWith{LineNo: 1}
	if isDefWith(lines[0].text) {
		params, err := p.defWithParams(lines[0])
		if err != nil {
			return nil, err
		}
		root.Params = params
		lines = lines[1:]
	}
	body, err := p.parseSuite(lines)
	if err != nil {
		return nil, err
	}
	root.Body = body
	return root, nil
}

// Normalize strips a UTF-8 byte order mark, converts CRLF and CR line endings
// to LF and makes sure the text ends with a newline.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}

type srcLine struct {
	no   int
	text string
}

func (l srcLine) blank() bool { return strings.TrimSpace(l.text) == "" }

type parser struct {
	filename string
}

var keywords = map[string]bool{
	"for": true, "while": true, "if": true, "elif": true, "else": true,
	"def": true, "var": true, "pass": true, "break": true, "continue": true,
	"return": true,
}

func isDefWith(text string) bool {
	rest, ok := strings.CutPrefix(text, "$def with")
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '(')
}

func (p *parser) defWithParams(l srcLine) (string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(l.text, "$def with"))
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", p.errorf(l.no, "expected $def with (params)")
	}
	return strings.TrimSpace(rest[1 : len(rest)-1]), nil
}

// statement splits a line into its indentation, keyword and the text after
// the keyword. ok is false when the line is not a statement.
func statement(text string) (indent, kw, rest string, ok bool) {
	trimmed := strings.TrimLeft(text, " \t")
	indent = text[:len(text)-len(trimmed)]
	if !strings.HasPrefix(trimmed, "$") {
		return "", "", "", false
	}
	s := trimmed[1:]
	n := 0
	for n < len(s) && (s[n] >= 'a' && s[n] <= 'z') {
		n++
	}
	if !keywords[s[:n]] {
		return "", "", "", false
	}
	if n < len(s) && s[n] != ' ' && s[n] != '\t' && s[n] != ':' {
		return "", "", "", false
	}
	return indent, s[:n], s[n:], true
}

func (p *parser) parseSuite(lines []srcLine) (*Suite, error) {
	suite := &Suite{}
	if len(lines) > 0 {
		suite.LineNo = lines[0].no
	}
	for i := 0; i < len(lines); {
		l := lines[i]
		trimmed := strings.TrimLeft(l.text, " \t")
		switch {
		case strings.HasPrefix(trimmed, "$#"):
			i++
			continue
		case strings.HasPrefix(trimmed, "$ ") || strings.HasPrefix(trimmed, "$\t"):
			code := strings.TrimSpace(trimmed[2:])
			if code == "" {
				return nil, p.errorf(l.no, "empty assignment")
			}
			suite.Sections = append(suite.Sections, &Assignment{LineNo: l.no, Code: code})
			i++
			continue
		}
		indent, kw, rest, ok := statement(l.text)
		if !ok {
			line, err := p.parseLine(l)
			if err != nil {
				return nil, err
			}
			if line != nil {
				suite.Sections = append(suite.Sections, line)
			}
			i++
			continue
		}
		var (
			n    Node
			next int
			err  error
		)
		switch kw {
		case "for":
			n, next, err = p.parseFor(lines, i, indent, rest)
		case "while":
			n, next, err = p.parseWhile(lines, i, indent, rest)
		case "if":
			n, next, err = p.parseIf(lines, i, indent, rest)
		case "def":
			n, next, err = p.parseDef(lines, i, indent, rest)
		case "var":
			n, next, err = p.parseVar(lines, i, indent, rest)
		case "elif", "else":
			return nil, p.errorf(l.no, "$%s without matching block", kw)
		default:
			if extra := strings.TrimSpace(rest); extra != "" {
				return nil, p.errorf(l.no, "unexpected %q after $%s", extra, kw)
			}
			n, next = &RawStatement{LineNo: l.no, Keyword: kw}, i+1
		}
		if err != nil {
			return nil, err
		}
		suite.Sections = append(suite.Sections, n)
		i = next
	}
	return suite, nil
}

// header splits "cond: body" and rejects an empty condition.
func (p *parser) header(l srcLine, kw, rest string) (head, inline string, err error) {
	head, inline, ok := splitHeader(rest)
	if !ok {
		return "", "", p.errorf(l.no, "expected ':' after $%s", kw)
	}
	head = strings.TrimSpace(head)
	if head == "" && kw != "else" {
		return "", "", p.errorf(l.no, "missing expression after $%s", kw)
	}
	return head, inline, nil
}

// body resolves the body of the block header on lines[i]. A non-blank inline
// remainder is the whole body. Otherwise the body is the run of following
// lines indented deeper than indent, with the first line's indentation
// stripped from every line. It returns the index of the first line after the
// body.
func (p *parser) body(lines []srcLine, i int, indent, inline string) (*Suite, int, error) {
	hdr := lines[i]
	if inline = strings.TrimLeft(inline, " \t"); inline != "" {
		s, err := p.parseSuite([]srcLine{{no: hdr.no, text: inline}})
		return s, i + 1, err
	}
	j := i + 1
	for j < len(lines) && lines[j].blank() {
		j++
	}
	if j == len(lines) {
		return nil, 0, p.errorf(hdr.no, "expected an indented block")
	}
	first := lines[j].text
	prefix := first[:len(first)-len(strings.TrimLeft(first, " \t"))]
	if len(prefix) <= len(indent) || !strings.HasPrefix(prefix, indent) {
		return nil, 0, p.errorf(lines[j].no, "expected an indented block")
	}
	end := j
	for k := j; k < len(lines); k++ {
		if lines[k].blank() {
			continue
		}
		if !strings.HasPrefix(lines[k].text, prefix) {
			break
		}
		end = k + 1
	}
	sub := make([]srcLine, 0, end-i-1)
	for _, l := range lines[i+1 : end] {
		if l.blank() {
			sub = append(sub, srcLine{no: l.no})
			continue
		}
		sub = append(sub, srcLine{no: l.no, text: l.text[len(prefix):]})
	}
	s, err := p.parseSuite(sub)
	return s, end, err
}

// continuation reports whether the first non-blank line at or after i is
// "$kw" at exactly indent, and returns its index. Blank lines between a block
// and its $elif or $else are dropped.
func continuation(lines []srcLine, i int, indent, want string) (string, int, bool) {
	j := i
	for j < len(lines) && lines[j].blank() {
		j++
	}
	if j >= len(lines) {
		return "", i, false
	}
	in, kw, rest, ok := statement(lines[j].text)
	if !ok || in != indent || kw != want {
		return "", i, false
	}
	return rest, j, true
}

func (p *parser) parseElse(lines []srcLine, i int, indent, rest string) (*Else, int, error) {
	head, inline, err := p.header(lines[i], "else", rest)
	if err != nil {
		return nil, 0, err
	}
	if head != "" {
		return nil, 0, p.errorf(lines[i].no, "unexpected %q after $else", head)
	}
	body, next, err := p.body(lines, i, indent, inline)
	if err != nil {
		return nil, 0, err
	}
	return &Else{LineNo: lines[i].no, Body: body}, next, nil
}

// loopElse attaches an optional $else following a loop body.
func (p *parser) loopElse(lines []srcLine, i int, indent string) (*Else, int, error) {
	rest, at, ok := continuation(lines, i, indent, "else")
	if !ok {
		return nil, i, nil
	}
	return p.parseElse(lines, at, indent, rest)
}

func (p *parser) parseFor(lines []srcLine, i int, indent, rest string) (Node, int, error) {
	l := lines[i]
	head, inline, err := p.header(l, "for", rest)
	if err != nil {
		return nil, 0, err
	}
	vars, iter, ok := splitIn(head)
	if !ok || vars == "" || iter == "" {
		return nil, 0, p.errorf(l.no, "expected $for vars in expr")
	}
	body, next, err := p.body(lines, i, indent, inline)
	if err != nil {
		return nil, 0, err
	}
	n := &For{LineNo: l.no, Vars: vars, Iter: iter, Body: body}
	n.Else, next, err = p.loopElse(lines, next, indent)
	return n, next, err
}

func (p *parser) parseWhile(lines []srcLine, i int, indent, rest string) (Node, int, error) {
	l := lines[i]
	head, inline, err := p.header(l, "while", rest)
	if err != nil {
		return nil, 0, err
	}
	body, next, err := p.body(lines, i, indent, inline)
	if err != nil {
		return nil, 0, err
	}
	n := &While{LineNo: l.no, Cond: head, Body: body}
	n.Else, next, err = p.loopElse(lines, next, indent)
	return n, next, err
}

func (p *parser) parseIf(lines []srcLine, i int, indent, rest string) (Node, int, error) {
	l := lines[i]
	head, inline, err := p.header(l, "if", rest)
	if err != nil {
		return nil, 0, err
	}
	body, next, err := p.body(lines, i, indent, inline)
	if err != nil {
		return nil, 0, err
	}
	n := &If{LineNo: l.no, Cond: head, Body: body}
	for {
		rest, at, ok := continuation(lines, next, indent, "elif")
		if !ok {
			break
		}
		next = at
		el := lines[next]
		cond, inline, err := p.header(el, "elif", rest)
		if err != nil {
			return nil, 0, err
		}
		var b *Suite
		b, next, err = p.body(lines, next, indent, inline)
		if err != nil {
			return nil, 0, err
		}
		n.Elifs = append(n.Elifs, &Elif{LineNo: el.no, Cond: cond, Body: b})
	}
	n.Else, next, err = p.loopElse(lines, next, indent)
	return n, next, err
}

func (p *parser) parseDef(lines []srcLine, i int, indent, rest string) (Node, int, error) {
	l := lines[i]
	if isDefWith("$def" + rest) {
		return nil, 0, p.errorf(l.no, "$def with is only allowed on the first line")
	}
	head, inline, err := p.header(l, "def", rest)
	if err != nil {
		return nil, 0, err
	}
	name, after := leadingName(head)
	after = strings.TrimSpace(after)
	if name == "" || !strings.HasPrefix(after, "(") || !strings.HasSuffix(after, ")") {
		return nil, 0, p.errorf(l.no, "expected $def name(params):")
	}
	body, next, err := p.body(lines, i, indent, inline)
	if err != nil {
		return nil, 0, err
	}
	return &Def{LineNo: l.no, Name: name, Params: strings.TrimSpace(after[1 : len(after)-1]), Body: body}, next, nil
}

func (p *parser) parseVar(lines []srcLine, i int, indent, rest string) (Node, int, error) {
	l := lines[i]
	name, after := leadingName(strings.TrimLeft(rest, " \t"))
	if name == "" {
		return nil, 0, p.errorf(l.no, "expected a name after $var")
	}
	after = strings.TrimLeft(after, " \t")
	switch {
	case strings.HasPrefix(after, "=") && !strings.HasPrefix(after, "=="):
		expr := strings.TrimSpace(after[1:])
		if expr == "" {
			return nil, 0, p.errorf(l.no, "missing expression after $var %s =", name)
		}
		return &Var{LineNo: l.no, Name: name, Expr: expr}, i + 1, nil
	case strings.HasPrefix(after, ":"):
		body, next, err := p.body(lines, i, indent, after[1:])
		if err != nil {
			return nil, 0, err
		}
		return &Var{LineNo: l.no, Name: name, Body: body}, next, nil
	}
	return nil, 0, p.errorf(l.no, "expected ':' or '=' after $var %s", name)
}

// leadingName splits an identifier off the front of s.
func leadingName(s string) (string, string) {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r != '_' && !unicode.IsLetter(r) && (n == 0 || !unicode.IsDigit(r)) {
			break
		}
		n += size
	}
	return s[:n], s[n:]
}

// parseLine parses literal text and inline expressions. It returns nil for a
// line that produces no output.
func (p *parser) parseLine(l srcLine) (*Line, error) {
	text := l.text
	newline := true
	if strings.HasSuffix(text, `\`) {
		text, newline = text[:len(text)-1], false
	}
	line := &Line{LineNo: l.no}
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			line.Nodes = append(line.Nodes, &Text{LineNo: l.no, Value: buf.String()})
			buf.Reset()
		}
	}
	pos := 0
scan:
	for pos < len(text) {
		at := strings.IndexByte(text[pos:], '$')
		if at < 0 {
			buf.WriteString(text[pos:])
			break
		}
		at += pos
		buf.WriteString(text[pos:at])
		switch {
		case strings.HasPrefix(text[at:], "$$"):
			buf.WriteByte('$')
			pos = at + 2
			continue
		case strings.HasPrefix(text[at:], "$#"):
			break scan
		}
		start, escape := at+1, true
		if strings.HasPrefix(text[at:], "$:") {
			start, escape = at+2, false
		}
		expr, end, err := p.expression(l.no, text, start)
		if err != nil {
			return nil, err
		}
		if end < 0 {
			buf.WriteString(text[at:start])
			pos = start
			continue
		}
		flush()
		line.Nodes = append(line.Nodes, &Expression{LineNo: l.no, Expr: expr, Escape: escape})
		pos = end
	}
	if newline {
		buf.WriteByte('\n')
	}
	flush()
	if len(line.Nodes) == 0 {
		return nil, nil
	}
	return line, nil
}

// expression delimits the expression starting at text[start]. It returns
// end < 0 when nothing there can start an expression.
func (p *parser) expression(no int, text string, start int) (string, int, error) {
	c := newCursor(text, start)
	first := c.peek(0)
	if first.start != start {
		return "", -1, nil
	}
	var end int
	switch {
	case first.kind == tokName:
		c.advance()
		end = first.end
	case first.kind == tokOp && first.val == "{":
		close, msg := c.group()
		if msg != "" {
			return "", 0, p.errorf(no, "%s", msg)
		}
		return strings.TrimSpace(text[start+1 : close-1]), close, nil
	case first.kind == tokOp && (first.val == "(" || first.val == "["):
		close, msg := c.group()
		if msg != "" {
			return "", 0, p.errorf(no, "%s", msg)
		}
		end = close
	default:
		return "", -1, nil
	}
	for {
		t := c.peek(0)
		if t.start != end || t.kind != tokOp {
			break
		}
		if t.val == "." {
			name := c.peek(1)
			if name.kind != tokName || name.start != t.end {
				break
			}
			c.advance()
			c.advance()
			end = name.end
			continue
		}
		if t.val != "(" && t.val != "[" {
			break
		}
		close, msg := c.group()
		if msg != "" {
			return "", 0, p.errorf(no, "%s", msg)
		}
		end = close
	}
	return text[start:end], end, nil
}
