// Package sim is the boundary between the dispatch core and a flight simulator.
//
// A Simulator exposes the simulator's action namespace (Lookup/Invoke) and its
// telemetry (Query). ActionSink binds a Simulator to an aircraft profile so
// the core can work in symbolic actions and variables.
//
// Implementations:
//   - Gateway: websocket client for a SimConnect gateway process
//   - Recorder: in-memory simulator for dry runs and tests
package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/simbridge/internal/model"
)

// Event is a resolved handle in the simulator's action namespace.
type Event struct {
	Name string
	ID   int
}

// Simulator is the simulator's action and telemetry interface.
type Simulator interface {
	// Lookup resolves an event name. ok is false if the loaded aircraft or
	// installed add-ons do not provide it.
	Lookup(name string) (Event, bool)

	// Invoke fires ev, with value when non-nil.
	Invoke(ctx context.Context, ev Event, value *int32) error

	// Query performs a blocking read of a simulator variable.
	Query(ctx context.Context, name string) (float64, error)
}

// UnresolvedError reports an action name the simulator could not resolve.
// It is an expected, recoverable condition.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s is not an event", e.Name)
}

// IsUnresolved reports whether err is (or wraps) an UnresolvedError.
func IsUnresolved(err error) bool {
	var ue *UnresolvedError
	return errors.As(err, &ue)
}

// Trigger looks up name and invokes it with the integer-truncated argument,
// or no argument when p is absent.
//
// An unknown name yields *UnresolvedError; Trigger never panics on it.
func Trigger(ctx context.Context, s Simulator, name string, p model.Param) error {
	ev, ok := s.Lookup(name)
	if !ok {
		return &UnresolvedError{Name: name}
	}

	if !p.Valid {
		return s.Invoke(ctx, ev, nil)
	}

	v := p.Int()
	return s.Invoke(ctx, ev, &v)
}
