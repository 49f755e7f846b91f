package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/sigil/pkg/render"
	"github.com/neurodesk/sigil/pkg/template"
)

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"page.html": "$def with (name, n)\n$var title: Hi $name\n$for i in range(n): $name",
		"bad.html":  "$for x in:\n",
		"site.css":  "body { margin: $gap }",
	}
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

// execute runs the CLI with fresh flag state and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, rootDir, verbose = "", "", false
	require.NoError(t, renderCmd.Flags().Set("vars", "false"))
	require.NoError(t, renderCmd.Flags().Set("output", ""))
	require.NoError(t, treeCmd.Flags().Set("stats", "false"))

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"n=3", "ok=true", "tags=[a, b]", "name=Ann", "empty=", "hash=#1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"n":     3,
		"ok":    true,
		"tags":  []any{"a", "b"},
		"name":  "Ann",
		"empty": nil,
		"hash":  "#1",
	}, got)

	_, err = parseArgs([]string{"novalue"})
	require.Error(t, err)
	_, err = parseArgs([]string{"=x"})
	require.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	dir := writeSite(t)

	out, err := execute(t, "--root", dir, "render", "page", "name=Ann", "n=2")
	require.NoError(t, err)
	require.Equal(t, "Ann\nAnn\n", out)

	out, err = execute(t, "--root", dir, "render", "page", "name=Ann", "n=0", "--vars")
	require.NoError(t, err)
	var vars map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &vars))
	require.Equal(t, map[string]string{"title": "Hi Ann\n"}, vars)

	target := filepath.Join(t.TempDir(), "out", "page.html")
	out, err = execute(t, "--root", dir, "render", "page", "name=<b>", "n=1", "-o", target)
	require.NoError(t, err)
	require.Empty(t, out)
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "&lt;b&gt;\n", string(b))

	_, err = execute(t, "--root", dir, "render", "missing")
	var nf render.ErrTemplateNotFound
	require.ErrorAs(t, err, &nf)

	_, err = execute(t, "--root", dir, "render", "page", "name=Ann")
	require.Error(t, err, "missing argument n")
}

func TestCheckCommand(t *testing.T) {
	dir := writeSite(t)
	out, err := execute(t, "--root", dir, "check")
	require.ErrorIs(t, err, errCheckFailed)
	require.Equal(t, "2 templates, 1 failed\n", out)

	require.NoError(t, os.Remove(filepath.Join(dir, "bad.html")))
	out, err = execute(t, "--root", dir, "check")
	require.NoError(t, err)
	require.Equal(t, "1 templates, 0 failed\n", out)
}

func TestTreeCommand(t *testing.T) {
	dir := writeSite(t)
	out, err := execute(t, "tree", filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	require.Contains(t, out, "DefWith(")
	require.Contains(t, out, "Var")

	out, err = execute(t, "tree", "--stats", filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	require.Contains(t, out, "DefWith 1\n")
	require.Contains(t, out, "Expr 2\n")
	require.Contains(t, out, "For 1\n")
	require.Contains(t, out, "Var 1\n")

	_, err = execute(t, "tree", filepath.Join(dir, "bad.html"))
	require.Error(t, err)
}

func TestConfigFlag(t *testing.T) {
	dir := writeSite(t)
	cfg := filepath.Join(dir, "sigil.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("root: .\nglobals:\n  who: World\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello $who"), 0o644))

	out, err := execute(t, "--config", cfg, "render", "hello")
	require.NoError(t, err)
	require.Equal(t, "Hello World\n", out)

	require.NoError(t, os.WriteFile(cfg, []byte("root: .\nbogus: 1\n"), 0o644))
	_, err = execute(t, "--config", cfg, "render", "hello")
	require.ErrorContains(t, err, "bogus")
}

const casesYAML = `
- template: greet
  arguments: {name: Ann}
  body: "Hello Ann\n"
  vars: {title: Greeting}
- template: greet
  arguments: {name: Bob}
  contains: [Bob, Hello]
- name: missing-arg
  template: greet
  error: name
- name: wrong
  template: greet
  arguments: {name: Cy}
  body: "nope"
  vars: {title: Other, unset: x}
`

func TestCases(t *testing.T) {
	cases, err := decodeCases([]byte(casesYAML))
	require.NoError(t, err)
	require.Len(t, cases, 4)
	require.Equal(t, "greet", cases[0].resolvedName)
	require.Equal(t, "greet#2", cases[1].resolvedName)

	require.Len(t, filterCases(cases, nil), 4)
	require.Len(t, filterCases(cases, []string{"GREET"}), 2)
	require.Len(t, filterCases(cases, []string{"greet#2", "missing-arg"}), 2)
	require.Empty(t, filterCases(cases, []string{"nothing"}))

	r := render.New(template.NewEngine(), fstest.MapFS{
		"greet.txt": {Data: []byte("$def with (name)\n$var title = 'Greeting'\nHello $name")},
	})
	var out bytes.Buffer
	failed := runCases(r, cases, &out)
	require.Equal(t, 1, failed)
	require.Equal(t, "PASS greet\nPASS greet#2\nPASS missing-arg\nFAIL wrong\n"+
		"    body = \"Hello Cy\\n\", want \"nope\"\n"+
		"    $var title = \"Greeting\", want \"Other\"\n"+
		"    $var unset not set\n", out.String())

	_, err = decodeCases([]byte("- name: x\n"))
	require.Error(t, err)
	_, err = decodeCases([]byte("- template: x\n  colour: red\n"))
	require.Error(t, err)
}
