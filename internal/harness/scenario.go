package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simbridge/internal/model"
)

// Scenario is a scripted dispatch session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// CRS selects which VOR the course tokens drive ("vor1" or "vor2").
	CRS string `yaml:"crs,omitempty"`

	// CoarseRepeat is the number of fine altitude steps per coarse step.
	CoarseRepeat int `yaml:"coarse_repeat,omitempty"`

	// RefreshInterval is the mode snapshot interval.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// Sim holds initial telemetry values keyed by symbolic variable.
	Sim map[string]float64 `yaml:"sim,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the fired events and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario step. Exactly one of Token, Set, Fail or Advance is set.
type Step struct {
	// Token is dispatched on Stream.
	Token string `yaml:"token,omitempty"`

	// Stream is "primary" (default) or "secondary".
	Stream string `yaml:"stream,omitempty"`

	// Expect checks the dispatch of Token.
	Expect *Expect `yaml:"expect,omitempty"`

	// Set changes telemetry values, keyed by symbolic variable.
	Set map[string]float64 `yaml:"set,omitempty"`

	// Fail makes reads of these symbolic variables fail.
	Fail []string `yaml:"fail,omitempty"`

	// Advance moves the clock forward.
	Advance time.Duration `yaml:"advance,omitempty"`
}

// Expect describes the expected handling of one token.
type Expect struct {
	// Outcome is the expected dispatch outcome (dispatched, passthrough, ...).
	Outcome string `yaml:"outcome"`

	// Events are the expected fired events, collapsed as "EVENT xN".
	// Nil skips the check; an empty list requires that nothing fired.
	Events []string `yaml:"events"`
}

// Assertion validates the events fired or the final state.
type Assertion struct {
	// Type is one of event_contains, event_order, event_count, final_state.
	Type string `yaml:"type"`

	// Event is the simulator event name (event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Value is the expected event argument (event_contains).
	Value *int32 `yaml:"value,omitempty"`

	// Events is the expected first-fire order (event_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of firings (event_count).
	Count int `yaml:"count,omitempty"`

	// State holds expected dispatch state fields (final_state).
	State map[string]any `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// stateFields are the keys final_state may check.
var stateFields = map[string]bool{
	"altitude_step_thousand":     true,
	"crs":                        true,
	"vertical_speed_active":      true,
	"flight_level_change_active": true,
	"autothrottle_speed_active":  true,
	"autothrottle_mach_active":   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := model.ParseCRSSelector(s.CRS); err != nil {
		return err
	}
	if s.CoarseRepeat < 0 {
		return fmt.Errorf("coarse_repeat must be non-negative")
	}
	for name := range s.Sim {
		if !knownVar(name) {
			return fmt.Errorf("sim: unknown variable %q", name)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	kinds := 0
	if st.Token != "" {
		kinds++
	}
	if st.Set != nil {
		kinds++
	}
	if st.Fail != nil {
		kinds++
	}
	if st.Advance != 0 {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of token, set, fail, advance is required", index)
	}

	if st.Token == "" && (st.Stream != "" || st.Expect != nil) {
		return fmt.Errorf("steps[%d]: stream and expect apply only to token steps", index)
	}
	if st.Stream != "" {
		if _, ok := model.ParseStream(st.Stream); !ok {
			return fmt.Errorf("steps[%d]: unknown stream %q", index, st.Stream)
		}
	}
	if st.Expect != nil && st.Expect.Outcome == "" {
		return fmt.Errorf("steps[%d].expect: outcome is required", index)
	}
	if st.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	}
	for name := range st.Set {
		if !knownVar(name) {
			return fmt.Errorf("steps[%d]: unknown variable %q", index, name)
		}
	}
	for _, name := range st.Fail {
		if !knownVar(name) {
			return fmt.Errorf("steps[%d]: unknown variable %q", index, name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if len(a.State) == 0 {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
		for k := range a.State {
			if !stateFields[k] {
				return fmt.Errorf("assertions[%d]: unknown state field %q", index, k)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownVar(name string) bool {
	for _, v := range model.Vars {
		if string(v) == name {
			return true
		}
	}
	return false
}
