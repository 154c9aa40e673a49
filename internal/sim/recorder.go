package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Invocation is one event fired at a Recorder.
type Invocation struct {
	Event string
	Value *int32
}

// String renders "EVENT" or "EVENT(value)".
func (i Invocation) String() string {
	if i.Value == nil {
		return i.Event
	}
	return fmt.Sprintf("%s(%d)", i.Event, *i.Value)
}

// Recorder is an in-memory Simulator. It knows a fixed set of events,
// answers queries from a value table, and records everything it is asked to do.
//
// Used for --dry-run and in tests. Safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	events      map[string]Event
	values      map[string]float64
	queryErrs   map[string]error
	invocations []Invocation
	queries     []string
	logger      *slog.Logger
}

// NewRecorder creates a Recorder that resolves the given event names.
func NewRecorder(events ...string) *Recorder {
	r := &Recorder{
		events:    make(map[string]Event, len(events)),
		values:    make(map[string]float64),
		queryErrs: make(map[string]error),
	}
	for _, name := range events {
		r.AddEvent(name)
	}
	return r
}

// WithLogger makes the recorder log each invocation at info level.
func (r *Recorder) WithLogger(l *slog.Logger) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
	return r
}

// AddEvent makes name resolvable.
func (r *Recorder) AddEvent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[name]; !ok {
		r.events[name] = Event{Name: name, ID: len(r.events) + 1}
	}
}

// SetValue sets the value returned for a variable.
func (r *Recorder) SetValue(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = v
	delete(r.queryErrs, name)
}

// FailQuery makes reads of name return err.
func (r *Recorder) FailQuery(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryErrs[name] = err
}

// Lookup implements Simulator.
func (r *Recorder) Lookup(name string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[name]
	return ev, ok
}

// Invoke implements Simulator.
func (r *Recorder) Invoke(_ context.Context, ev Event, value *int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv := Invocation{Event: ev.Name}
	if value != nil {
		v := *value
		inv.Value = &v
	}
	r.invocations = append(r.invocations, inv)

	if r.logger != nil {
		r.logger.Info("sim event", "event", inv.String())
	}
	return nil
}

// Query implements Simulator. Unknown variables read as 0.
func (r *Recorder) Query(ctx context.Context, name string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.queries = append(r.queries, name)
	if err, ok := r.queryErrs[name]; ok {
		return 0, err
	}
	return r.values[name], nil
}

// Invocations returns a copy of the recorded invocations.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.invocations))
	copy(out, r.invocations)
	return out
}

// Queries returns a copy of the variable names read so far.
func (r *Recorder) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

// Events returns the resolvable event names, sorted.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for n := range r.events {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reset clears recorded invocations and queries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invocations = nil
	r.queries = nil
}
