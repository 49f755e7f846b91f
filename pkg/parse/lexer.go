package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// The tokenizer splits one source line into the coarse tokens needed to
// delimit embedded expressions: names, numbers, strings and operators. It
// does not validate expressions; that happens when they are compiled.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokNumber
	tokString
	tokOp
	tokIllegal
)

type token struct {
	kind  tokenKind
	val   string
	start int // byte offset of the first byte
	end   int // byte offset just past the last byte
}

// lexer produces tokens from src starting at a byte offset.
type lexer struct {
	src string
	i   int
}

func newLexer(src string, offset int) *lexer {
	return &lexer{src: src, i: offset}
}

var multiOps = []string{"**", "//", "==", "!=", "<=", ">=", "<<", ">>", "->"}

func (l *lexer) next() token {
	for l.i < len(l.src) && (l.src[l.i] == ' ' || l.src[l.i] == '\t') {
		l.i++
	}
	start := l.i
	if l.i >= len(l.src) {
		return token{kind: tokEOF, start: start, end: start}
	}
	r, size := utf8.DecodeRuneInString(l.src[l.i:])
	switch {
	case r == '_' || unicode.IsLetter(r):
		l.i += size
		for l.i < len(l.src) {
			r, size = utf8.DecodeRuneInString(l.src[l.i:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.i += size
		}
		return l.emit(tokName, start)
	case r >= '0' && r <= '9':
		l.scanNumber()
		return l.emit(tokNumber, start)
	case r == '\'' || r == '"':
		if !l.scanString(byte(r)) {
			return l.emit(tokIllegal, start)
		}
		return l.emit(tokString, start)
	}
	for _, op := range multiOps {
		if strings.HasPrefix(l.src[l.i:], op) {
			l.i += len(op)
			return l.emit(tokOp, start)
		}
	}
	l.i += size
	if strings.ContainsRune("()[]{}.,:;+-*/%&|^~<>=@!", r) {
		return l.emit(tokOp, start)
	}
	return l.emit(tokIllegal, start)
}

func (l *lexer) emit(kind tokenKind, start int) token {
	return token{kind: kind, val: l.src[start:l.i], start: start, end: l.i}
}

func (l *lexer) scanNumber() {
	for l.i < len(l.src) {
		c := l.src[l.i]
		switch {
		case c >= '0' && c <= '9', c == '.', c == '_',
			c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			l.i++
			if (c == 'e' || c == 'E') && l.i < len(l.src) && (l.src[l.i] == '+' || l.src[l.i] == '-') {
				l.i++
			}
		default:
			return
		}
	}
}

// scanString consumes a quoted string, single or triple quoted, honouring
// backslash escapes. It reports false when the string is unterminated.
func (l *lexer) scanString(q byte) bool {
	triple := strings.HasPrefix(l.src[l.i:], strings.Repeat(string(q), 3))
	if triple {
		l.i += 3
	} else {
		l.i++
	}
	for l.i < len(l.src) {
		c := l.src[l.i]
		switch {
		case c == '\\':
			l.i += 2
			continue
		case c == q && !triple:
			l.i++
			return true
		case c == q && strings.HasPrefix(l.src[l.i:], strings.Repeat(string(q), 3)):
			l.i += 3
			return true
		}
		l.i++
	}
	l.i = len(l.src)
	return false
}

// cursor wraps a lexer with two tokens of lookahead.
type cursor struct {
	lx  *lexer
	buf []token
}

func newCursor(src string, offset int) *cursor {
	return &cursor{lx: newLexer(src, offset)}
}

// peek returns the token n positions ahead (0 or 1) without consuming it.
func (c *cursor) peek(n int) token {
	for len(c.buf) <= n {
		c.buf = append(c.buf, c.lx.next())
	}
	return c.buf[n]
}

func (c *cursor) advance() token {
	t := c.peek(0)
	c.buf = c.buf[1:]
	return t
}

var closers = map[string]string{"(": ")", "[": "]", "{": "}"}

// group consumes a bracketed group whose opening token is next, returning the
// offset just past its closing bracket.
func (c *cursor) group() (int, string) {
	var stack []string
	for {
		t := c.advance()
		switch t.kind {
		case tokEOF:
			if len(stack) > 0 {
				return 0, "unterminated " + stack[len(stack)-1] + " in expression"
			}
			return t.start, ""
		case tokIllegal:
			if t.val[0] == '\'' || t.val[0] == '"' {
				return 0, "unterminated string in expression"
			}
		case tokOp:
			if cl, ok := closers[t.val]; ok {
				stack = append(stack, cl)
				continue
			}
			if t.val == ")" || t.val == "]" || t.val == "}" {
				if len(stack) == 0 || stack[len(stack)-1] != t.val {
					return 0, "mismatched " + t.val + " in expression"
				}
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return t.end, ""
				}
			}
		}
	}
}

// scanTopLevel calls fn for each token of s outside any brackets until fn
// returns false.
func scanTopLevel(s string, fn func(t token) bool) {
	c := newCursor(s, 0)
	depth := 0
	for {
		t := c.advance()
		if t.kind == tokEOF {
			return
		}
		if t.kind == tokOp {
			switch t.val {
			case "(", "[", "{":
				depth++
				continue
			case ")", "]", "}":
				depth--
				continue
			}
		}
		if depth == 0 && !fn(t) {
			return
		}
	}
}

// splitHeader splits a block header at its first top-level colon.
func splitHeader(s string) (head, rest string, ok bool) {
	at := -1
	scanTopLevel(s, func(t token) bool {
		if t.kind == tokOp && t.val == ":" {
			at = t.start
			return false
		}
		return true
	})
	if at < 0 {
		return s, "", false
	}
	return s[:at], s[at+1:], true
}

// splitIn splits a for-loop header at its first top-level "in".
func splitIn(s string) (vars, iter string, ok bool) {
	at, end := -1, -1
	scanTopLevel(s, func(t token) bool {
		if t.kind == tokName && t.val == "in" {
			at, end = t.start, t.end
			return false
		}
		return true
	})
	if at < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:at]), strings.TrimSpace(s[end:]), true
}
