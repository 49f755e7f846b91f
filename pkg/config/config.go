// Package config loads the YAML configuration of a template site and builds
// the engine and render front-end it describes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neurodesk/sigil/pkg/render"
	"github.com/neurodesk/sigil/pkg/starlark"
	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
	v "github.com/neurodesk/sigil/pkg/validator"
)

type Config struct {
	// Root is the template directory. Relative paths are resolved against
	// the directory of the config file.
	Root string `yaml:"root" validate:"required"`
	// Cache keeps compiled templates in memory. Turn it off for live reload.
	Cache bool `yaml:"cache"`
	// Base names a layout template every page is wrapped in.
	Base   string `yaml:"base,omitempty"`
	Minify bool   `yaml:"minify,omitempty"`

	Globals map[string]any `yaml:"globals,omitempty"`
	// Helpers are Starlark files whose exported names become globals.
	Helpers        []string `yaml:"helpers,omitempty" validate:"dive,required"`
	HelperMaxSteps uint64   `yaml:"helper_max_steps,omitempty"`

	MaxWhileIterations int      `yaml:"max_while_iterations" validate:"gte=1"`
	DeniedAttrPrefixes []string `yaml:"denied_attr_prefixes,omitempty" validate:"dive,required"`

	LogLevel string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Root:               "templates",
		Cache:              true,
		HelperMaxSteps:     1_000_000,
		MaxWhileIterations: template.DefaultMaxWhileIterations,
		DeniedAttrPrefixes: []string{"_"},
		LogLevel:           "info",
	}
}

// Load reads a config file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config %q: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) resolve(dir string) {
	if c.Root != "" && !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(dir, c.Root)
	}
	for i, h := range c.Helpers {
		if !filepath.IsAbs(h) {
			c.Helpers[i] = filepath.Join(dir, h)
		}
	}
}

func (c Config) Validate() error {
	return v.All(
		v.Struct(c),
		v.NoDuplicates(c.Helpers, "helpers"),
		v.Contains(c.DeniedAttrPrefixes, "_", "denied_attr_prefixes"),
		v.Map(c.Helpers, func(item string, key string) error {
			if filepath.Ext(item) != ".star" {
				return fmt.Errorf("%s %q must be a .star file", key, item)
			}
			return nil
		}, "helpers"),
		v.MapDict(c.Globals, func(key string, _ any) error {
			return v.All(
				v.Identifier(key, "global"),
				v.NoPrefix(key, c.DeniedAttrPrefixes, "global"),
			)
		}, "globals"),
	)
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Engine builds the template engine: globals from the file, then exported
// helper functions, which win on a name clash.
func (c Config) Engine(logger *slog.Logger) (*template.Engine, error) {
	globals := value.FromGoMap(c.Globals)
	for _, path := range c.Helpers {
		m, err := starlark.LoadFile(path,
			starlark.WithMaxSteps(c.HelperMaxSteps),
			starlark.WithDeniedAttrPrefixes(c.DeniedAttrPrefixes...),
			starlark.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		for name, fn := range m.Globals() {
			if _, dup := globals[name]; dup {
				logger.Warn("helper shadows global", "name", name, "helpers", path)
			}
			globals[name] = fn
		}
	}
	return template.NewEngine(
		template.WithGlobals(globals),
		template.WithMaxWhileIterations(c.MaxWhileIterations),
		template.WithDeniedAttrPrefixes(c.DeniedAttrPrefixes...),
		template.WithLogger(logger),
	), nil
}

// Open builds the engine and the render front-end over Root.
func Open(c Config, logger *slog.Logger) (*render.Render, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := c.Engine(logger)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(c.Root)
	if err != nil {
		return nil, fmt.Errorf("template root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("template root %q is not a directory", c.Root)
	}
	opts := []render.Option{
		render.WithCache(c.Cache),
		render.WithMinify(c.Minify),
		render.WithLogger(logger),
	}
	if c.Base != "" {
		opts = append(opts, render.WithBase(c.Base))
	}
	logger.Debug("opened template root", "root", c.Root, "cache", c.Cache, "base", c.Base, "helpers", len(c.Helpers))
	return render.NewDir(engine, c.Root, opts...), nil
}
