package main

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/sigil/pkg/render"
)

// templateCase renders one template and checks what came out.
type templateCase struct {
	Name      string            `yaml:"name"`
	Template  string            `yaml:"template"`
	Arguments map[string]any    `yaml:"arguments"`
	Body      *string           `yaml:"body,omitempty"`
	Contains  []string          `yaml:"contains,omitempty"`
	Vars      map[string]string `yaml:"vars,omitempty"`
	// Error, when set, must appear in the render error.
	Error string `yaml:"error,omitempty"`

	resolvedName string
}

func (c templateCase) Identifier() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Template
}

// ensureResolvedName numbers cases that share an identifier.
func (c *templateCase) ensureResolvedName(counter map[string]int) {
	id := c.Identifier()
	counter[id]++
	if n := counter[id]; n > 1 {
		c.resolvedName = fmt.Sprintf("%s#%d", id, n)
		return
	}
	c.resolvedName = id
}

func loadCases(path string) ([]templateCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return decodeCases(data)
}

func decodeCases(data []byte) ([]templateCase, error) {
	var cases []templateCase
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cases); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding test cases: %w", err)
	}
	counter := map[string]int{}
	for i := range cases {
		if cases[i].Template == "" {
			return nil, fmt.Errorf("test case %d: template is required", i)
		}
		cases[i].ensureResolvedName(counter)
	}
	return cases, nil
}

// filterCases keeps cases whose name, template or resolved name matches one
// of selectors, case-insensitively. No selectors keeps everything.
func filterCases(cases []templateCase, selectors []string) []templateCase {
	set := map[string]struct{}{}
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			set[strings.ToLower(s)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return cases
	}
	var filtered []templateCase
	for _, c := range cases {
		for _, key := range []string{c.Identifier(), c.Template, c.resolvedName} {
			if _, ok := set[strings.ToLower(key)]; ok {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}

// run renders the case and returns a description of every mismatch.
func (c templateCase) run(r *render.Render) []string {
	res, err := r.Render(c.Template, c.Arguments)
	if c.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error containing %q, rendered fine", c.Error)}
		case !strings.Contains(err.Error(), c.Error):
			return []string{fmt.Sprintf("error %q does not contain %q", err, c.Error)}
		}
		return nil
	}
	if err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if c.Body != nil && res.Body != *c.Body {
		problems = append(problems, fmt.Sprintf("body = %q, want %q", res.Body, *c.Body))
	}
	for _, s := range c.Contains {
		if !strings.Contains(res.Body, s) {
			problems = append(problems, fmt.Sprintf("body does not contain %q", s))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.Vars)) {
		want := c.Vars[name]
		v, ok := res.Lookup(name)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("$var %s not set", name))
		case v.String() != want:
			problems = append(problems, fmt.Sprintf("$var %s = %q, want %q", name, v.String(), want))
		}
	}
	return problems
}

func runCases(r *render.Render, cases []templateCase, out io.Writer) (failed int) {
	for _, c := range cases {
		problems := c.run(r)
		if len(problems) == 0 {
			fmt.Fprintf(out, "PASS %s\n", c.resolvedName)
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL %s\n", c.resolvedName)
		for _, p := range problems {
			fmt.Fprintf(out, "    %s\n", p)
		}
	}
	return failed
}

var testCmd = cobra.Command{
	Use:   "test [selector ...]",
	Short: "Render the templates listed in a test case file and compare the output",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("cases")
		cases, err := loadCases(path)
		if err != nil {
			return err
		}
		selected := filterCases(cases, args)
		if len(selected) == 0 {
			return fmt.Errorf("no test cases matched the provided selectors")
		}
		r, _, err := open(cmd)
		if err != nil {
			return err
		}
		if failed := runCases(r, selected, cmd.OutOrStdout()); failed > 0 {
			return fmt.Errorf("%d of %d test cases failed", failed, len(selected))
		}
		return nil
	},
}

func init() {
	testCmd.Flags().String("cases", "sigil.tests.yaml", "Path to the YAML test case file")
	rootCmd.AddCommand(&testCmd)
}
