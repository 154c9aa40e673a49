package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/profile"
)

// ActionSink triggers symbolic actions and reads symbolic variables through a
// Simulator, translating names with an aircraft profile.
type ActionSink struct {
	sim          Simulator
	profile      *profile.Profile
	queryTimeout time.Duration
}

// NewActionSink binds s to p. A positive queryTimeout bounds each Query.
func NewActionSink(s Simulator, p *profile.Profile, queryTimeout time.Duration) *ActionSink {
	return &ActionSink{sim: s, profile: p, queryTimeout: queryTimeout}
}

// Trigger fires the simulator event mapped to a.
// An action the profile does not map is reported as unresolved.
func (s *ActionSink) Trigger(ctx context.Context, a model.Action, p model.Param) error {
	name, ok := s.profile.Event(a)
	if !ok {
		return &UnresolvedError{Name: string(a)}
	}
	return Trigger(ctx, s.sim, name, p)
}

// Query reads the simulator variable mapped to v.
func (s *ActionSink) Query(ctx context.Context, v model.Var) (float64, error) {
	name, ok := s.profile.Var(v)
	if !ok {
		return 0, fmt.Errorf("no simulator variable mapped for %s", v)
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	value, err := s.sim.Query(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
