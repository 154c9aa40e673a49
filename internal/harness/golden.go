package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares the rendered trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-run result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	var buf bytes.Buffer
	if err := result.Render(&buf); err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, buf.Bytes())
	return nil
}

// GoldenPath is the golden trace file for scenarioName under dir.
func GoldenPath(dir, scenarioName string) string {
	return filepath.Join(dir, scenarioName+".golden")
}

// MatchGolden reports whether result renders exactly as its golden file under
// dir. A missing file is an error wrapping fs.ErrNotExist.
func MatchGolden(dir, scenarioName string, result *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(dir, scenarioName))
	if err != nil {
		return false, err
	}

	var got bytes.Buffer
	if err := result.Render(&got); err != nil {
		return false, fmt.Errorf("render trace: %w", err)
	}
	return bytes.Equal(want, got.Bytes()), nil
}

// WriteGolden renders result into its golden file under dir, creating dir.
func WriteGolden(dir, scenarioName string, result *Result) error {
	var buf bytes.Buffer
	if err := result.Render(&buf); err != nil {
		return fmt.Errorf("render trace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(GoldenPath(dir, scenarioName), buf.Bytes(), 0o644)
}
