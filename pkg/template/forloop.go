package template

import (
	"fmt"

	"github.com/neurodesk/sigil/pkg/value"
)

// ForLoop supplies per-iteration metadata to $for bodies through the name
// "loop". It keeps a stack of frames linked by parent pointers; the top frame
// belongs to the innermost running loop. A ForLoop belongs to exactly one
// render and must not be shared between renders.
type ForLoop struct {
	current *Frame
}

func NewForLoop() *ForLoop { return &ForLoop{} }

func (l *ForLoop) String() string { return "<loop>" }
func (l *ForLoop) Truth() bool    { return l.current != nil }

func (l *ForLoop) TypeName() string { return "loop" }

// Lookup reads an attribute of the innermost frame.
func (l *ForLoop) Lookup(name string) (value.Value, bool) {
	if l.current == nil {
		return nil, false
	}
	return l.current.Lookup(name)
}

// Current returns the innermost frame, or nil outside any loop.
func (l *ForLoop) Current() *Frame { return l.current }

// Push starts iterating seq and makes a new frame current. The returned Iter
// must be closed when the loop finishes, however it finishes.
func (l *ForLoop) Push(seq value.Value) (*Iter, error) {
	it, err := value.Iterate(seq)
	if err != nil {
		return nil, err
	}
	f := &Frame{index0: -1, length: -1, parent: l.current}
	if n, ok := value.Len(seq); ok {
		f.length = n
	}
	l.current = f
	return &Iter{loop: l, frame: f, it: it}, nil
}

// Iter advances one loop. It reads one element ahead so the frame knows
// whether the current element is the last.
type Iter struct {
	loop    *ForLoop
	frame   *Frame
	it      value.Iterator
	next    value.Value
	hasNext bool
	started bool
	closed  bool
}

// Advance moves to the next element and updates the frame.
func (it *Iter) Advance() (value.Value, bool) {
	if it.closed {
		return nil, false
	}
	if !it.started {
		it.started = true
		it.next, it.hasNext = it.it.Next()
	}
	if !it.hasNext {
		return nil, false
	}
	cur := it.next
	it.next, it.hasNext = it.it.Next()
	it.frame.index0++
	it.frame.last = !it.hasNext
	return cur, true
}

// Close pops the frame. It is safe to call more than once.
func (it *Iter) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.loop.current = it.frame.parent
}

// Frame is the live metadata of one running loop.
type Frame struct {
	index0 int
	length int // -1 when the sequence has no known length
	last   bool
	parent *Frame
}

func (f *Frame) String() string { return fmt.Sprintf("<loop frame index=%d>", f.index0+1) }
func (f *Frame) Truth() bool    { return true }

func (f *Frame) TypeName() string { return "loop" }

// Index is the 1-based position of the current element.
func (f *Frame) Index() int { return f.index0 + 1 }

// Parity is "odd" for the first, third, ... element.
func (f *Frame) Parity() string {
	if f.Index()%2 == 1 {
		return "odd"
	}
	return "even"
}

// Parent returns the enclosing loop's frame, or nil.
func (f *Frame) Parent() *Frame { return f.parent }

// Lookup implements value.Accessor.
func (f *Frame) Lookup(name string) (value.Value, bool) {
	switch name {
	case "index":
		return value.IntValue(f.Index()), true
	case "index0":
		return value.IntValue(f.index0), true
	case "first":
		return value.BoolValue(f.index0 == 0), true
	case "last":
		return value.BoolValue(f.last), true
	case "odd":
		return value.BoolValue(f.Index()%2 == 1), true
	case "even":
		return value.BoolValue(f.Index()%2 == 0), true
	case "parity":
		return value.StringValue(f.Parity()), true
	case "length":
		if f.length < 0 {
			return value.None, true
		}
		return value.IntValue(f.length), true
	case "revindex":
		if f.length < 0 {
			return value.None, true
		}
		return value.IntValue(f.length - f.index0), true
	case "revindex0":
		if f.length < 0 {
			return value.None, true
		}
		return value.IntValue(f.length - f.index0 - 1), true
	case "parent":
		if f.parent == nil {
			return value.None, true
		}
		return f.parent, true
	}
	return nil, false
}
