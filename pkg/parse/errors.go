package parse

import "fmt"

// ParseError reports malformed template source. Line is always set.
type ParseError struct {
	Filename string
	Line     int
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Msg)
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &ParseError{Filename: p.filename, Line: line, Msg: fmt.Sprintf(format, args...)}
}
