// Package render resolves template names against a directory tree, caches the
// compiled templates and applies an optional base layout to every page.
package render

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
)

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }

// BaseFunc wraps a rendered page, typically in a shared layout.
type BaseFunc func(page *template.Result) (*template.Result, error)

type Option func(*Render)

// WithCache turns the compiled-template cache on or off. With the cache off
// every lookup re-reads and recompiles the source, which suits live reload.
func WithCache(on bool) Option {
	return func(r *Render) { r.cache = on }
}

// WithBase wraps every page in the named template, called with the page
// result as its only argument.
func WithBase(name string) Option {
	return func(r *Render) { r.base = name }
}

// WithBaseFunc wraps every page with fn.
func WithBaseFunc(fn BaseFunc) Option {
	return func(r *Render) { r.baseFn = fn }
}

// WithMinify minifies the output of text/html templates.
func WithMinify(on bool) Option {
	return func(r *Render) {
		if !on {
			r.minifier = nil
			return
		}
		m := minify.New()
		m.AddFunc("text/html", html.Minify)
		r.minifier = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Render) { r.logger = l }
}

// Render is a namespace of templates rooted at one directory. Sub-directories
// are nested Render values sharing the parent's settings.
type Render struct {
	engine   *template.Engine
	fsys     fs.FS
	dir      string
	root     *Render
	cache    bool
	base     string
	baseFn   BaseFunc
	minifier *minify.M
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is a resolved name: either a compiled template or a sub-directory.
type entry struct {
	path string
	tpl  *template.Template
	sub  *Render
}

// New creates a Render over fsys. The cache is on by default.
func New(engine *template.Engine, fsys fs.FS, opts ...Option) *Render {
	r := &Render{
		engine:  engine,
		fsys:    fsys,
		dir:     ".",
		cache:   true,
		logger:  slog.Default(),
		entries: map[string]*entry{},
	}
	r.root = r
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDir creates a Render over a directory on disk.
func NewDir(engine *template.Engine, dir string, opts ...Option) *Render {
	return New(engine, os.DirFS(dir), opts...)
}

func (r *Render) Engine() *template.Engine { return r.engine }

// Dir returns the directory this namespace covers, relative to the root.
func (r *Render) Dir() string { return r.dir }

func (r *Render) child(dir string) *Render {
	return &Render{
		engine:   r.engine,
		fsys:     r.fsys,
		dir:      dir,
		root:     r.root,
		cache:    r.cache,
		base:     r.base,
		baseFn:   r.baseFn,
		minifier: r.minifier,
		logger:   r.logger,
		entries:  map[string]*entry{},
	}
}

// Get returns the compiled template for name. Names are dotted or
// slash-separated paths without a file extension.
func (r *Render) Get(name string) (*template.Template, error) {
	e, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.tpl == nil {
		return nil, fmt.Errorf("%q is a directory", name)
	}
	return e.tpl, nil
}

// Sub returns the nested namespace for a sub-directory.
func (r *Render) Sub(name string) (*Render, error) {
	e, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.sub == nil {
		return nil, fmt.Errorf("%q is a template, not a directory", name)
	}
	return e.sub, nil
}

// Render renders the named template with keyword arguments converted from
// plain Go values.
func (r *Render) Render(name string, kwargs map[string]any) (*template.Result, error) {
	return r.Call(name, nil, value.FromGoMap(kwargs))
}

// Call renders the named template, wraps it in the base layout unless it is
// the base itself, and minifies HTML output when enabled.
func (r *Render) Call(name string, args []value.Value, kwargs map[string]value.Value) (*template.Result, error) {
	e, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.tpl == nil {
		return nil, fmt.Errorf("%q is a directory", name)
	}
	res, err := e.tpl.Render(args, kwargs)
	if err != nil {
		return nil, err
	}
	if res, err = r.wrap(e, res); err != nil {
		return nil, err
	}
	if r.minifier != nil && strings.HasPrefix(e.tpl.ContentType(), "text/html") {
		body, err := r.minifier.String("text/html", res.Body)
		if err != nil {
			return nil, fmt.Errorf("minifying %s: %w", e.path, err)
		}
		res.Body = body
	}
	return res, nil
}

func (r *Render) wrap(e *entry, page *template.Result) (*template.Result, error) {
	if r.baseFn != nil {
		return r.baseFn(page)
	}
	if r.base == "" {
		return page, nil
	}
	base, err := r.root.resolve(r.base)
	if err != nil {
		return nil, fmt.Errorf("base template: %w", err)
	}
	if base.tpl == nil {
		return nil, fmt.Errorf("base template %q is a directory", r.base)
	}
	if base.path == e.path {
		return page, nil
	}
	return base.tpl.Render([]value.Value{page}, nil)
}

func (r *Render) resolve(name string) (*entry, error) {
	parts := strings.FieldsFunc(name, func(c rune) bool { return c == '.' || c == '/' })
	if len(parts) == 0 {
		return nil, ErrTemplateNotFound{Name: name}
	}
	cur := r
	for _, part := range parts[:len(parts)-1] {
		e, err := cur.lookup(part)
		if err != nil {
			return nil, rename(err, name)
		}
		if e.sub == nil {
			return nil, ErrTemplateNotFound{Name: name}
		}
		cur = e.sub
	}
	e, err := cur.lookup(parts[len(parts)-1])
	if err != nil {
		return nil, rename(err, name)
	}
	return e, nil
}

// rename reports a not-found error under the full name that was asked for.
func rename(err error, name string) error {
	if _, ok := err.(ErrTemplateNotFound); ok {
		return ErrTemplateNotFound{Name: name}
	}
	return err
}

// lookup resolves one path element, consulting the cache first.
func (r *Render) lookup(name string) (*entry, error) {
	if r.cache {
		r.mu.RLock()
		e, ok := r.entries[name]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}
	}
	e, err := r.load(name)
	if err != nil {
		return nil, err
	}
	if !r.cache {
		return e, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[name]; ok {
		return prev, nil
	}
	r.entries[name] = e
	return e, nil
}

func (r *Render) load(name string) (*entry, error) {
	if strings.ContainsAny(name, `*?[]\`) || name == ".." {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	p := path.Join(r.dir, name)
	if !fs.ValidPath(p) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	if fi, err := fs.Stat(r.fsys, p); err == nil && fi.IsDir() {
		return &entry{path: p, sub: r.child(p)}, nil
	}
	matches, err := fs.Glob(r.fsys, p+".*")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if fi, err := fs.Stat(r.fsys, m); err == nil && !fi.IsDir() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, ErrTemplateNotFound{Name: name}
	}
	if len(files) > 1 {
		r.logger.Warn("ambiguous template name", "name", name, "matches", files, "using", files[0])
	}
	src, err := fs.ReadFile(r.fsys, files[0])
	if err != nil {
		return nil, fmt.Errorf("reading template %q: %w", files[0], err)
	}
	tpl, err := r.engine.Compile(files[0], string(src))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded template", "name", name, "path", files[0], "cached", r.cache)
	return &entry{path: files[0], tpl: tpl}, nil
}

// Walk compiles every template below this namespace and calls fn with its
// path and the compile error, if any. Files without a template extension
// (stylesheets, images) are skipped. It stops when fn returns an error.
func (r *Render) Walk(fn func(path string, tpl *template.Template, err error) error) error {
	return fs.WalkDir(r.fsys, r.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !template.IsTemplateFile(p) {
			return nil
		}
		src, err := fs.ReadFile(r.fsys, p)
		if err != nil {
			return fn(p, nil, err)
		}
		tpl, err := r.engine.Compile(p, string(src))
		return fn(p, tpl, err)
	})
}

func (r *Render) String() string { return "<render " + r.dir + ">" }
func (r *Render) Truth() bool    { return true }

func (r *Render) TypeName() string { return "render" }

// Lookup implements value.Accessor, so a Render handed to a template reads as
// a namespace: site.sidebar is the sidebar template, site.admin a nested
// namespace. Templates reached this way are not wrapped in the base layout.
func (r *Render) Lookup(name string) (value.Value, bool) {
	e, err := r.lookup(name)
	if err != nil {
		if _, ok := err.(ErrTemplateNotFound); ok {
			return nil, false
		}
		// Surface compile errors when the template is called.
		return value.CallableValue{Name: name, Fn: func([]value.Value, map[string]value.Value) (value.Value, error) {
			return nil, err
		}}, true
	}
	if e.sub != nil {
		return e.sub, true
	}
	return e.tpl, true
}

var (
	_ value.Value    = (*Render)(nil)
	_ value.Accessor = (*Render)(nil)
)
