// Package harness runs dispatch scenarios: scripted token sequences fed
// through the real dispatcher against an in-memory simulator.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: coarse_altitude
//	description: "1000 ft switch position repeats the altitude step"
//	crs: vor1               # optional, default vor1
//	coarse_repeat: 10       # optional, default 10
//	refresh_interval: 1s    # optional, default 1s
//	sim:                    # initial telemetry, by symbolic variable
//	  vertical_speed_active: 1
//	steps:
//	  - token: "1000"
//	    stream: secondary
//	  - token: alt+
//	    expect:
//	      outcome: dispatched
//	      events: [AP_ALT_VAR_INC x10]
//	  - set: { heading_indicator: 1.5 }
//	  - fail: [indicated_altitude]
//	  - advance: 1s
//	assertions:
//	  - type: event_count
//	    event: AP_ALT_VAR_INC
//	    count: 10
//
// Each step does exactly one thing: dispatch a token, change telemetry,
// make reads of a variable fail, or move the clock.
//
// # Assertion Types
//
//   - event_contains: an event was fired, optionally with a given value
//   - event_order: events were first fired in the given order
//   - event_count: an event was fired exactly N times
//   - final_state: dispatch state fields after the last step
//
// # Deterministic Testing
//
// Scenarios run on a manual clock that only moves on advance steps, so
// snapshot refreshes happen exactly where the scenario says. Traces are
// compared against testdata/golden/{name}.golden.
package harness
