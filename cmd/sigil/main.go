package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/sigil/pkg/config"
	"github.com/neurodesk/sigil/pkg/parse"
	"github.com/neurodesk/sigil/pkg/render"
	"github.com/neurodesk/sigil/pkg/template"
	"github.com/neurodesk/sigil/pkg/value"
)

var (
	configPath string
	rootDir    string
	verbose    bool
)

var rootCmd = cobra.Command{
	Use:           "sigil",
	Short:         "Render and check $-sigil templates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig reads --config when given, then applies --root over it.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// open loads the config and the render front-end it describes.
func open(cmd *cobra.Command) (*render.Render, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	r, err := config.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, logger, nil
}

// parseArgs turns key=value pairs into template arguments. Values are decoded
// as YAML so numbers, booleans and lists keep their type.
func parseArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want KEY=VALUE)", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		if v == nil && raw != "" && raw != "null" && raw != "~" {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// writeOutput replaces path atomically so readers never see a partial page.
func writeOutput(path, body string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(path, strings.NewReader(body))
}

func varsYAML(res *template.Result) (string, error) {
	vars := make(map[string]any, len(res.Keys()))
	for name, v := range res.Vars() {
		vars[name] = value.ToGo(v)
	}
	b, err := yaml.Marshal(vars)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var renderCmd = cobra.Command{
	Use:   "render NAME [KEY=VALUE ...]",
	Short: "Render a template and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := open(cmd)
		if err != nil {
			return err
		}
		kwargs, err := parseArgs(args[1:])
		if err != nil {
			return err
		}
		res, err := r.Render(args[0], kwargs)
		if err != nil {
			return err
		}

		if showVars, _ := cmd.Flags().GetBool("vars"); showVars {
			out, err := varsYAML(res)
			if err != nil {
				return fmt.Errorf("encoding vars: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			if err := writeOutput(output, res.Body); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Body)
		return nil
	},
}

var errCheckFailed = errors.New("some templates failed to compile")

var checkCmd = cobra.Command{
	Use:   "check",
	Short: "Compile every template under the root and report errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, logger, err := open(cmd)
		if err != nil {
			return err
		}
		var total, failed int
		err = r.Walk(func(path string, _ *template.Template, err error) error {
			total++
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
				return nil
			}
			logger.Debug("compiled", "path", path)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d templates, %d failed\n", total, failed)
		if failed > 0 {
			return errCheckFailed
		}
		return nil
	},
}

var treeCmd = cobra.Command{
	Use:   "tree FILE",
	Short: "Print the parse tree of a template file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		root, err := parse.Parse(args[0], string(b))
		if err != nil {
			return err
		}
		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			counts := parse.Count(root)
			for _, kind := range slices.Sorted(maps.Keys(counts)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", kind, counts[kind])
			}
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), parse.Pretty(root))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to sigil configuration file")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Template directory (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	renderCmd.Flags().StringP("output", "o", "", "Write the body to FILE instead of stdout")
	renderCmd.Flags().Bool("vars", false, "Print the $var values as YAML instead of the body")
	rootCmd.AddCommand(&renderCmd)

	rootCmd.AddCommand(&checkCmd)
	treeCmd.Flags().Bool("stats", false, "Print node counts by kind instead of the tree")
	rootCmd.AddCommand(&treeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
