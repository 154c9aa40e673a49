package harness

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/sim"
)

// TraceEvent is one dispatched token and what it fired.
type TraceEvent struct {
	Seq     int64
	Stream  string
	Token   string
	Outcome string
	// Code is the runtime error code, if the cycle recorded one.
	Code string
	// Events are the simulator events fired while handling the token.
	Events []sim.Invocation
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// Trace contains every dispatched token in order.
	Trace []TraceEvent

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string

	// State is the dispatch state after the last step.
	State model.State
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Invocations flattens the trace into the fired events, in order.
func (r *Result) Invocations() []sim.Invocation {
	var out []sim.Invocation
	for _, ev := range r.Trace {
		out = append(out, ev.Events...)
	}
	return out
}

// Render writes the trace one line per token:
//
//	#2 primary "alt+" dispatched: AP_ALT_VAR_INC x10
//	#3 primary "flaps+" unmatched [UNMATCHED_TOKEN]
func (r *Result) Render(w io.Writer) error {
	for _, ev := range r.Trace {
		line := fmt.Sprintf("#%d %s %q %s", ev.Seq, ev.Stream, ev.Token, ev.Outcome)
		if ev.Code != "" {
			line += " [" + ev.Code + "]"
		}
		if len(ev.Events) > 0 {
			line += ": " + strings.Join(collapse(ev.Events), ", ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// collapse renders runs of identical invocations as "EVENT xN".
func collapse(events []sim.Invocation) []string {
	parts := []string{}
	for i := 0; i < len(events); {
		j := i
		for j < len(events) && events[j].String() == events[i].String() {
			j++
		}
		if n := j - i; n > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", events[i], n))
		} else {
			parts = append(parts, events[i].String())
		}
		i = j
	}
	return parts
}
