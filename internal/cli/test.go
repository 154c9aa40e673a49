package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/harness"
)

// DefaultScenarioDir is where test looks when no directory is given.
const DefaultScenarioDir = "testdata/scenarios"

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden traces
	Filter string // glob over scenario file names
	Golden string // golden directory, default <dir>/../golden
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden"` // match | mismatch | missing | updated
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarises a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [scenarios-dir]",
		Short: "Run dispatch scenarios",
		Long: `Runs YAML dispatch scenarios against the in-memory simulator with the
configured aircraft profile. Each scenario's expectations and assertions must
hold, and its trace must match the golden file of the same name when one
exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, bad filter)

Examples:
  simbridge test
  simbridge test ./scenarios --filter "altitude*"
  simbridge test ./scenarios --update
  simbridge test --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := DefaultScenarioDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runTests(opts, cmd, dir)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden traces from this run")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files matching this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden trace directory (default: golden/ beside the scenarios directory)")

	return cmd
}

func runTests(opts *TestOptions, cmd *cobra.Command, dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid --filter", err)
		}
	}

	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	env, err := prepare(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	h := harness.New(env.profile)
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenarioFile(h, file, goldenDir, opts.Update)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	formatter := opts.formatter(cmd)
	if result.Failed > 0 {
		if opts.Format == "json" {
			_ = formatter.Error("SCENARIOS_FAILED", fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total), result)
		} else {
			writeTestText(cmd.OutOrStdout(), result)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	return formatter.Emit(result, func(w io.Writer) error {
		writeTestText(w, result)
		return nil
	})
}

// findScenarioFiles lists .yaml and .yml files under dir in lexical order.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenarioFile loads, runs and golden-checks one scenario.
func runScenarioFile(h *harness.Harness, file, goldenDir string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = s.Name

	result, err := h.Run(s)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("run: %v", err)}
		return sr
	}
	sr.Errors = append(sr.Errors, result.Errors...)

	switch {
	case update:
		if err := harness.WriteGolden(goldenDir, s.Name, result); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("write golden: %v", err))
		} else {
			sr.Golden = "updated"
		}
	default:
		match, err := harness.MatchGolden(goldenDir, s.Name, result)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			sr.Golden = "missing"
		case err != nil:
			sr.Errors = append(sr.Errors, fmt.Sprintf("golden: %v", err))
		case match:
			sr.Golden = "match"
		default:
			sr.Golden = "mismatch"
			sr.Errors = append(sr.Errors, "trace does not match "+harness.GoldenPath(goldenDir, s.Name)+" (run with --update to rewrite)")
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func writeTestText(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, sr := range result.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		note := ""
		switch sr.Golden {
		case "updated":
			note = " (golden updated)"
		case "missing":
			note = " (no golden trace)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, note)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
