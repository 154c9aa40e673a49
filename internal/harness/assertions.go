package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/sim"
)

// AssertionError is returned when an assertion fails.
// It includes the fired events to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []sim.Invocation
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "  fired: %s\n", strings.Join(collapse(e.Events), ", "))
	}
	return buf.String()
}

// evaluate dispatches an assertion by type.
func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertEventContains:
		return assertEventContains(r.Invocations(), a)
	case AssertEventOrder:
		return assertEventOrder(r.Invocations(), a)
	case AssertEventCount:
		return assertEventCount(r.Invocations(), a)
	case AssertFinalState:
		return assertFinalState(r.State, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEventContains checks that the event fired, with Value if one is given.
func assertEventContains(events []sim.Invocation, a Assertion) error {
	for _, ev := range events {
		if ev.Event != a.Event {
			continue
		}
		if a.Value == nil || (ev.Value != nil && *ev.Value == *a.Value) {
			return nil
		}
	}

	expected := a.Event
	if a.Value != nil {
		expected = fmt.Sprintf("%s(%d)", a.Event, *a.Value)
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: expected,
		Actual:   "not fired",
		Events:   events,
	}
}

// assertEventOrder checks that events were first fired in the listed order.
// Other events may fire in between.
func assertEventOrder(events []sim.Invocation, a Assertion) error {
	first := make(map[string]int)
	for i, ev := range events {
		if _, seen := first[ev.Event]; !seen {
			first[ev.Event] = i
		}
	}

	prev := -1
	for _, name := range a.Events {
		pos, ok := first[name]
		if !ok {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: strings.Join(a.Events, " -> "),
				Actual:   name + " never fired",
				Events:   events,
			}
		}
		if pos < prev {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: strings.Join(a.Events, " -> "),
				Actual:   name + " fired out of order",
				Events:   events,
			}
		}
		prev = pos
	}
	return nil
}

// assertEventCount checks that the event fired exactly Count times.
func assertEventCount(events []sim.Invocation, a Assertion) error {
	n := 0
	for _, ev := range events {
		if ev.Event == a.Event {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%s fired %d times", a.Event, a.Count),
			Actual:   fmt.Sprintf("%d times", n),
			Events:   events,
		}
	}
	return nil
}

// assertFinalState compares the listed state fields.
func assertFinalState(st model.State, a Assertion) error {
	actual := map[string]any{
		"altitude_step_thousand":     st.AltitudeStepIsThousand,
		"crs":                        st.CRS.String(),
		"vertical_speed_active":      st.VerticalSpeedActive,
		"flight_level_change_active": st.FlightLevelChangeActive,
		"autothrottle_speed_active":  st.AutothrottleSpeedActive,
		"autothrottle_mach_active":   st.AutothrottleMachActive,
	}

	var mismatches []string
	for field, want := range a.State {
		if got := actual[field]; got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v (want %v)", field, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%v", a.State),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}
