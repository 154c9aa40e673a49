package testutil

import (
	"context"
	"sync"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/sim"
)

// FakeSink is a scripted Action Sink working directly in symbolic names.
//
// Every action is resolvable unless marked with Unresolve. Queries return the
// values set with Set (0 when unset) or the error set with Fail.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeSink struct {
	mu         sync.Mutex
	values     map[model.Var]float64
	failures   map[model.Var]error
	unresolved map[model.Action]bool
	requests   []model.Request
	queries    []model.Var
}

// NewFakeSink creates an empty sink.
func NewFakeSink() *FakeSink {
	return &FakeSink{
		values:     make(map[model.Var]float64),
		failures:   make(map[model.Var]error),
		unresolved: make(map[model.Action]bool),
	}
}

// Set scripts the value read for v.
func (s *FakeSink) Set(v model.Var, value float64) *FakeSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[v] = value
	delete(s.failures, v)
	return s
}

// SetFlags scripts the four mode-flag reads.
func (s *FakeSink) SetFlags(f model.Flags) *FakeSink {
	b := func(on bool) float64 {
		if on {
			return 1
		}
		return 0
	}
	s.Set(model.VarVerticalSpeedActive, b(f.VerticalSpeedActive))
	s.Set(model.VarFlightLevelChangeActive, b(f.FlightLevelChangeActive))
	s.Set(model.VarAutothrottleSpeedActive, b(f.AutothrottleSpeedActive))
	s.Set(model.VarAutothrottleMachActive, b(f.AutothrottleMachActive))
	return s
}

// Fail makes reads of v return err.
func (s *FakeSink) Fail(v model.Var, err error) *FakeSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[v] = err
	return s
}

// Unresolve makes a unknown to the simulator.
func (s *FakeSink) Unresolve(a model.Action) *FakeSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unresolved[a] = true
	return s
}

// Trigger records the request, or reports a as unresolved.
func (s *FakeSink) Trigger(_ context.Context, a model.Action, p model.Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unresolved[a] {
		return &sim.UnresolvedError{Name: string(a)}
	}
	s.requests = append(s.requests, model.Request{Action: a, Param: p})
	return nil
}

// Query returns the scripted value or failure.
func (s *FakeSink) Query(_ context.Context, v model.Var) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, v)
	if err, ok := s.failures[v]; ok {
		return 0, err
	}
	return s.values[v], nil
}

// Requests returns the successfully triggered requests.
func (s *FakeSink) Requests() []model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Queries returns every variable read so far, in order.
func (s *FakeSink) Queries() []model.Var {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Var, len(s.queries))
	copy(out, s.queries)
	return out
}

// CountQueries returns how many times v was read.
func (s *FakeSink) CountQueries(v model.Var) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queries {
		if q == v {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests and queries, keeping the script.
func (s *FakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.queries = nil
}
