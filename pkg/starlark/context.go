package starlark

import (
	"fmt"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"

	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
)

type options struct {
	maxSteps    uint64
	logger      *slog.Logger
	predeclared map[string]value.Value
	denied      []string
}

func defaultOptions() options {
	return options{logger: slog.Default(), predeclared: map[string]value.Value{}, denied: []string{"_"}}
}

type Option func(*options)

// WithMaxSteps caps the Starlark execution steps of each call, and of loading
// the module. Zero means no cap.
func WithMaxSteps(n uint64) Option {
	return func(o *options) { o.maxSteps = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPredeclared makes a host value visible to the helper script.
func WithPredeclared(name string, v value.Value) Option {
	return func(o *options) { o.predeclared[name] = v }
}

// WithDeniedAttrPrefixes replaces the attribute prefixes helpers cannot read
// on host objects. The default denies "_".
func WithDeniedAttrPrefixes(prefixes ...string) Option {
	return func(o *options) { o.denied = append([]string(nil), prefixes...) }
}

func (o options) denies(name string) bool {
	for _, p := range o.denied {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// thread returns a fresh thread. Threads are never shared between calls.
func (o options) thread(name string) *starlark.Thread {
	logger := o.logger
	thread := &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			logger.Debug("starlark print", "thread", thread.Name, "msg", msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q): helper modules cannot load other modules", module)
		},
	}
	if o.maxSteps > 0 {
		thread.SetMaxExecutionSteps(o.maxSteps)
	}
	return thread
}

// builtins are the host functions every helper module can call.
func builtins() starlark.StringDict {
	return starlark.StringDict{
		"websafe": starlark.NewBuiltin("websafe", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			if s == starlark.None {
				return starlark.String(""), nil
			}
			if str, ok := s.(starlark.String); ok {
				return starlark.String(template.Websafe(string(str))), nil
			}
			return starlark.String(template.Websafe(s.String())), nil
		}),
	}
}
