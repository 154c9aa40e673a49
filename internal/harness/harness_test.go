package harness

import (
	"bytes"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/profile"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectation
description: "alt+ in the 100 ft position is a single step"
steps:
  - token: alt+
    expect: { outcome: passthrough, events: [AP_ALT_VAR_INC x10] }
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "outcome dispatched, want passthrough")
	assert.Contains(t, result.Errors[1], "events [AP_ALT_VAR_INC], want [AP_ALT_VAR_INC x10]")
}

func TestRun_NilEventsSkipsEventCheck(t *testing.T) {
	s := mustParse(t, `
name: outcome_only
description: "only the outcome is checked"
steps:
  - token: hdg+
    expect: { outcome: dispatched }
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CoarseRepeat(t *testing.T) {
	s := mustParse(t, `
name: coarse_three
description: "coarse step of three"
coarse_repeat: 3
steps:
  - token: "1000"
    stream: secondary
  - token: alt-
    expect: { outcome: dispatched, events: [AP_ALT_VAR_DEC x3] }
assertions:
  - type: final_state
    state: { altitude_step_thousand: true, crs: vor1 }
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, result.State.AltitudeStepIsThousand)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := mustParse(t, `
name: failing_assertions
description: "every assertion type failing once"
steps:
  - token: hdg+
  - token: hdg-
assertions:
  - type: event_contains
    event: HEADING_BUG_SET
  - type: event_order
    events: [HEADING_BUG_DEC, HEADING_BUG_INC]
  - type: event_count
    event: HEADING_BUG_INC
    count: 2
  - type: final_state
    state: { altitude_step_thousand: true }
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "HEADING_BUG_SET")
	assert.Contains(t, result.Errors[1], "HEADING_BUG_INC fired out of order")
	assert.Contains(t, result.Errors[2], "1 times")
	assert.Contains(t, result.Errors[3], "altitude_step_thousand=false")
}

func TestRun_UnresolvedActionWithPartialProfile(t *testing.T) {
	p := &profile.Profile{
		Name:   "partial",
		Events: map[model.Action]string{model.ActionHeadingBugInc: "HEADING_BUG_INC"},
		Vars:   profile.Default().Vars,
	}
	s := mustParse(t, `
name: partial_profile
description: "actions the profile leaves unmapped fire nothing and do not stop dispatch"
steps:
  - token: alt+
    expect: { outcome: dispatched, events: [] }
  - token: hdg+
    expect: { outcome: dispatched, events: [HEADING_BUG_INC] }
`)

	result, err := New(p).Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 2)
}

func TestRun_UnmappedVariableIsSetupError(t *testing.T) {
	p := &profile.Profile{Name: "empty", Events: map[model.Action]string{}, Vars: map[model.Var]string{}}
	s := mustParse(t, `
name: unmapped
description: "sim values need a mapped variable"
sim: { heading_indicator: 1 }
steps:
  - token: hdg+
`)

	_, err := New(p).Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not map variable \"heading_indicator\"")
}

func TestResult_Render(t *testing.T) {
	s := mustParse(t, `
name: render
description: "render format"
steps:
  - token: "1000"
    stream: secondary
  - token: alt+
  - token: nope
`)

	result, err := Run(s)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Render(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		`#1 secondary "1000" mode_select`,
		`#2 primary "alt+" dispatched: AP_ALT_VAR_INC x10`,
		`#3 primary "nope" unmatched [UNMATCHED_TOKEN]`,
	}, lines)
}

func TestMatchGolden_CheckedInTraces(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		result, err := Run(s)
		require.NoError(t, err)

		ok, err := MatchGolden("testdata/golden", s.Name, result)
		require.NoError(t, err)
		assert.True(t, ok, "%s: trace differs from %s", s.Name, GoldenPath("testdata/golden", s.Name))
	}
}

func TestWriteGolden_ThenMatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	s := mustParse(t, `
name: one_step
description: "single fine altitude step"
steps:
  - token: alt+
`)
	result, err := Run(s)
	require.NoError(t, err)

	_, err = MatchGolden(dir, s.Name, result)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, WriteGolden(dir, s.Name, result))
	ok, err := MatchGolden(dir, s.Name, result)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := Run(mustParse(t, `
name: one_step
description: "a different trace under the same name"
steps:
  - token: alt-
`))
	require.NoError(t, err)
	ok, err = MatchGolden(dir, s.Name, other)
	require.NoError(t, err)
	assert.False(t, ok)
}
