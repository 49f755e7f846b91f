package template

import (
	"log/slog"
	"maps"
	"strings"

	"github.com/neurodesk/sigil/pkg/value"
)

// DefaultMaxWhileIterations caps $while bodies unless WithMaxWhileIterations
// says otherwise.
const DefaultMaxWhileIterations = 1_000_000

// Engine holds the configuration shared by every template it compiles: the
// builtin allow-list, host globals, the sandbox deny-list and loop limits. An
// Engine is immutable once built and safe for concurrent use.
type Engine struct {
	builtins map[string]value.Value
	globals  map[string]value.Value
	denied   []string
	maxWhile int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBuiltins replaces the builtin allow-list.
func WithBuiltins(b map[string]value.Value) Option {
	return func(e *Engine) { e.builtins = maps.Clone(b) }
}

// WithGlobals adds host values visible to every template.
func WithGlobals(g map[string]value.Value) Option {
	return func(e *Engine) { maps.Copy(e.globals, g) }
}

// WithGlobal adds a single host value visible to every template.
func WithGlobal(name string, v value.Value) Option {
	return func(e *Engine) { e.globals[name] = v }
}

// WithMaxWhileIterations sets how many times a $while body may run.
func WithMaxWhileIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWhile = n
		}
	}
}

// WithDeniedAttrPrefixes replaces the attribute prefixes the sandbox rejects.
// The default denies "_".
func WithDeniedAttrPrefixes(prefixes ...string) Option {
	return func(e *Engine) { e.denied = append([]string(nil), prefixes...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		builtins: DefaultBuiltins(),
		globals:  map[string]value.Value{},
		denied:   []string{"_"},
		maxWhile: DefaultMaxWhileIterations,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Global returns the host value registered under name.
func (e *Engine) Global(name string) (value.Value, bool) {
	v, ok := e.globals[name]
	return v, ok
}

// Denied reports whether the sandbox rejects access to attribute name.
func (e *Engine) Denied(name string) bool {
	for _, p := range e.denied {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (e *Engine) lookup(name string) (value.Value, bool) {
	if v, ok := e.globals[name]; ok {
		return v, true
	}
	v, ok := e.builtins[name]
	return v, ok
}
