// Package starlark loads helper functions written in Starlark and exposes them
// to templates as globals. Helper modules are executed once and frozen; every
// call runs on its own thread, so a Module is safe for concurrent use.
package starlark

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"go.starlark.net/starlark"

	"github.com/neurodesk/sigil/pkg/value"
)

// Module is an executed, frozen helper script.
type Module struct {
	filename string
	globals  starlark.StringDict
	opts     options
}

// Load executes src as a helper module. src may be a string, []byte or
// io.Reader; if nil the file named filename is read.
func Load(filename string, src any, opts ...Option) (*Module, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	predeclared := builtins()
	for k, v := range o.predeclared {
		predeclared[k] = o.toStarlark(v)
	}

	globals, err := starlark.ExecFile(o.thread(filename), filename, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("loading helpers %s: %w", filename, err)
	}
	globals.Freeze()

	m := &Module{filename: filename, globals: globals, opts: o}
	o.logger.Debug("loaded starlark helpers", "filename", filename, "exports", m.Names())
	return m, nil
}

// LoadFile reads and executes a helper module from disk.
func LoadFile(path string, opts ...Option) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading helpers: %w", err)
	}
	return Load(path, src, opts...)
}

func (m *Module) Filename() string { return m.filename }

// Names returns the exported names, sorted. Names starting with an underscore
// are private to the module.
func (m *Module) Names() []string {
	var names []string
	for name := range m.globals {
		if isExportableKey(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Globals returns the exported names as template values. Functions become
// callables that run on a fresh thread per call.
func (m *Module) Globals() map[string]value.Value {
	out := make(map[string]value.Value)
	for _, name := range m.Names() {
		v := m.globals[name]
		if _, ok := v.(starlark.Callable); ok {
			out[name] = m.callable(name)
			continue
		}
		out[name] = FromStarlark(v)
	}
	return out
}

func (m *Module) callable(name string) value.CallableValue {
	return value.CallableValue{
		Name: name,
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return m.Call(name, args, kwargs)
		},
	}
}

// Call invokes an exported function.
func (m *Module) Call(name string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if !isExportableKey(name) {
		return nil, fmt.Errorf("%s: %q is not exported", m.filename, name)
	}
	fn, ok := m.globals[name].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: no function named %q", m.filename, name)
	}
	in, kw := m.opts.toArgs(args, kwargs)
	out, err := starlark.Call(m.opts.thread(m.filename+":"+name), fn, in, kw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m.fromResult(out), nil
}

// Eval evaluates a single expression against the module's globals.
func (m *Module) Eval(expr string) (value.Value, error) {
	predeclared := builtins()
	for k, v := range m.globals {
		predeclared[k] = v
	}
	v, err := starlark.Eval(m.opts.thread(m.filename+":eval"), "<eval>", expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return m.fromResult(v), nil
}

// fromResult converts a call result, keeping returned functions callable.
func (m *Module) fromResult(v starlark.Value) value.Value {
	fn, ok := v.(starlark.Callable)
	if !ok {
		return FromStarlark(v)
	}
	return value.CallableValue{
		Name: fn.Name(),
		Fn: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			in, kw := m.opts.toArgs(args, kwargs)
			out, err := starlark.Call(m.opts.thread(m.filename+":"+fn.Name()), fn, in, kw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name(), err)
			}
			return m.fromResult(out), nil
		},
	}
}

// isExportableKey reports whether a module global is visible to templates.
func isExportableKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "_")
}
