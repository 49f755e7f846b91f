package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadAndOpen(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, map[string]string{
		"sigil.yaml": strings.Join([]string{
			"root: site",
			"base: layout",
			"cache: false",
			"globals:",
			"  site_name: Example",
			"  nav: [home, about]",
			"helpers: [helpers/text.star]",
			"max_while_iterations: 50",
			"log_level: debug",
		}, "\n"),
		"site/layout.html":   "$def with (page)\n<title>$page.title</title>$:page",
		"site/index.html":    "$var title = site_name\n$for item in nav: ${shout(item)}",
		"helpers/text.star":  "def shout(s):\n    return s.upper() + '!'\n",
		"site/partials/a.txt": "$var title = 'Part'\npartial",
	})

	cfg, err := Load(filepath.Join(dir, "sigil.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Root != filepath.Join(dir, "site") {
		t.Errorf("Root = %q, not resolved against the config directory", cfg.Root)
	}
	if cfg.Cache || cfg.MaxWhileIterations != 50 || cfg.DeniedAttrPrefixes[0] != "_" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Level().String() != "DEBUG" {
		t.Errorf("Level() = %v", cfg.Level())
	}

	r, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	res, err := r.Render("index", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "<title>Example</title>HOME!\nABOUT!\n\n"
	if res.Body != want {
		t.Errorf("body = %q, want %q", res.Body, want)
	}
	part, err := r.Render("partials.a", nil)
	if err != nil || part.Body != "<title>Part</title>partial\n\n" {
		t.Errorf("partials.a = %v, %v", part, err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "root: x\ncolour: blue\n", "colour"},
		{"empty root", "root: ''\n", "Root"},
		{"bad log level", "log_level: loud\n", "LogLevel"},
		{"bad loop cap", "max_while_iterations: 0\n", "MaxWhileIterations"},
		{"helper extension", "helpers: [a.py]\n", ".star"},
		{"duplicate helpers", "helpers: [a.star, a.star]\n", "duplicate"},
		{"private global", "globals: {_secret: 1}\n", "_secret"},
		{"global name", "globals: {'a-b': 1}\n", "identifier"},
		{"sandbox weakened", "denied_attr_prefixes: [internal]\n", "denied_attr_prefixes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			write(t, dir, map[string]string{"sigil.yaml": tt.yaml})
			_, err := Load(filepath.Join(dir, "sigil.yaml"))
			if err == nil {
				t.Fatalf("Load() succeeded, want error mentioning %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Root = filepath.Join(dir, "missing")
	if _, err := Open(cfg, nil); err == nil {
		t.Errorf("missing root accepted")
	}

	write(t, dir, map[string]string{"bad.star": "def f(:\n", "site/x.html": "x"})
	cfg.Root = filepath.Join(dir, "site")
	cfg.Helpers = []string{filepath.Join(dir, "bad.star")}
	if _, err := Open(cfg, nil); err == nil {
		t.Errorf("broken helper accepted")
	}
}
