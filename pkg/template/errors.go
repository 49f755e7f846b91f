package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/neurodesk/sigil/pkg/parse"
)

// ParseError reports malformed template source or a malformed embedded
// expression. No Template is produced when compilation fails.
type ParseError = parse.ParseError

// Pos identifies a template source line.
type Pos struct {
	Filename string
	Line     int
}

func (p Pos) String() string { return fmt.Sprintf("%s:%d", p.Filename, p.Line) }

// SecurityError is raised when template code accesses a denied attribute.
type SecurityError struct {
	Pos
	Attr string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s: access to attribute %q is not allowed", e.Pos, e.Attr)
}

// UndefinedNameError is raised when a name is bound nowhere in scope.
type UndefinedNameError struct {
	Pos
	Name string
}

func (e *UndefinedNameError) Error() string {
	return fmt.Sprintf("%s: name %q is not defined", e.Pos, e.Name)
}

// LoopLimitExceeded is raised when a $while body would run more than Limit
// times.
type LoopLimitExceeded struct {
	Pos
	Limit int
}

func (e *LoopLimitExceeded) Error() string {
	return fmt.Sprintf("%s: while loop exceeded %d iterations", e.Pos, e.Limit)
}

// MissingArgumentError lists every required parameter that was not supplied.
type MissingArgumentError struct {
	Pos
	Func  string
	Names []string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: %s() missing required argument(s): %s", e.Pos, e.Func, strings.Join(e.Names, ", "))
}

// EvalError wraps any other failure raised while rendering.
type EvalError struct {
	Pos
	Err error
}

func (e *EvalError) Error() string { return fmt.Sprintf("%s: %v", e.Pos, e.Err) }
func (e *EvalError) Unwrap() error { return e.Err }

type positioned interface {
	error
	position() *Pos
}

func (e *SecurityError) position() *Pos        { return &e.Pos }
func (e *UndefinedNameError) position() *Pos   { return &e.Pos }
func (e *LoopLimitExceeded) position() *Pos    { return &e.Pos }
func (e *MissingArgumentError) position() *Pos { return &e.Pos }
func (e *EvalError) position() *Pos            { return &e.Pos }

// Control flow is signalled with sentinel errors that never escape a render.
var (
	errBreak    = errors.New("break outside loop")
	errContinue = errors.New("continue outside loop")
	errReturn   = errors.New("return outside function")
)

func isControl(err error) bool {
	return err == errBreak || err == errContinue || err == errReturn
}

// locate attaches p to err unless err already carries a position.
func locate(err error, p Pos) error {
	if err == nil || isControl(err) {
		return err
	}
	var pe positioned
	if errors.As(err, &pe) {
		if pos := pe.position(); pos.Line == 0 {
			*pos = p
		}
		return err
	}
	return &EvalError{Pos: p, Err: err}
}
