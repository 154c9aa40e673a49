package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/profile"
	"github.com/roach88/simbridge/internal/sim"
	"github.com/roach88/simbridge/internal/testutil"
)

// Epoch is the manual clock's start time for every scenario.
var Epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// ErrInjected is returned by reads listed in a fail step.
var ErrInjected = errors.New("injected read failure")

// Harness runs scenarios against the dispatcher.
type Harness struct {
	profile *profile.Profile
}

// New creates a harness mapping actions and variables through p.
// A nil p selects the built-in profile.
func New(p *profile.Profile) *Harness {
	if p == nil {
		p = profile.Default()
	}
	return &Harness{profile: p}
}

// Run executes a scenario with the built-in profile.
func Run(s *Scenario) (*Result, error) {
	return New(nil).Run(s)
}

// run holds the per-scenario wiring.
type run struct {
	h         *Harness
	clock     *testutil.ManualClock
	recorder  *sim.Recorder
	primary   *engine.TokenQueue
	secondary *engine.TokenQueue
	d         *engine.Dispatcher
	result    *Result
}

// Run executes s on a fresh dispatcher and in-memory simulator.
//
// The returned error covers setup problems only; expectation and assertion
// failures are reported in Result.Errors.
func (h *Harness) Run(s *Scenario) (*Result, error) {
	crs, err := model.ParseCRSSelector(s.CRS)
	if err != nil {
		return nil, err
	}

	r := &run{
		h:         h,
		clock:     testutil.NewManualClock(Epoch),
		recorder:  sim.NewRecorder(h.profile.EventNames()...),
		primary:   engine.NewTokenQueue(),
		secondary: engine.NewTokenQueue(),
		result:    NewResult(),
	}
	if err := r.set(s.Sim); err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithClock(engine.NewClockAt(0, r.clock.Now)),
		engine.WithCRSSelector(crs),
		engine.WithCommandTable(engine.DefaultCommandTable(s.CoarseRepeat)),
	}
	if s.RefreshInterval > 0 {
		opts = append(opts, engine.WithRefreshInterval(s.RefreshInterval))
	}
	r.d = engine.New(r.primary, r.secondary, sim.NewActionSink(r.recorder, h.profile, 0), opts...)

	ctx := context.Background()
	for i, step := range s.Steps {
		if err := r.step(ctx, i, step); err != nil {
			return nil, err
		}
	}

	r.result.State = r.d.State()
	for i, a := range s.Assertions {
		if err := evaluate(r.result, a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return r.result, nil
}

func (r *run) step(ctx context.Context, index int, st Step) error {
	switch {
	case st.Set != nil:
		return r.set(st.Set)
	case st.Fail != nil:
		for _, name := range st.Fail {
			simName, err := r.simVar(name)
			if err != nil {
				return err
			}
			r.recorder.FailQuery(simName, ErrInjected)
		}
		return nil
	case st.Advance > 0:
		r.clock.Advance(st.Advance)
		return nil
	}

	stream := model.Primary
	if st.Stream != "" {
		stream, _ = model.ParseStream(st.Stream)
	}
	q := r.primary
	if stream == model.Secondary {
		q = r.secondary
	}
	q.Enqueue(model.Token(st.Token))

	before := len(r.recorder.Invocations())
	rec, ok := r.d.Cycle(ctx)
	if !ok {
		return fmt.Errorf("steps[%d]: token %q was not dispatched", index, st.Token)
	}
	ev := TraceEvent{
		Seq:     rec.Seq,
		Stream:  rec.Stream.String(),
		Token:   string(rec.Token),
		Outcome: string(rec.Outcome),
		Events:  r.recorder.Invocations()[before:],
	}
	var rtErr *engine.RuntimeError
	if errors.As(rec.Err, &rtErr) {
		ev.Code = string(rtErr.Code)
	}
	r.result.Trace = append(r.result.Trace, ev)

	if st.Expect != nil {
		r.check(index, st.Expect, ev)
	}
	return nil
}

func (r *run) check(index int, want *Expect, got TraceEvent) {
	if got.Outcome != want.Outcome {
		r.result.AddError(fmt.Sprintf("steps[%d] %q: outcome %s, want %s", index, got.Token, got.Outcome, want.Outcome))
	}
	if want.Events == nil {
		return
	}
	if events := collapse(got.Events); !slices.Equal(events, want.Events) {
		r.result.AddError(fmt.Sprintf("steps[%d] %q: events %v, want %v", index, got.Token, events, want.Events))
	}
}

func (r *run) set(values map[string]float64) error {
	for name, v := range values {
		simName, err := r.simVar(name)
		if err != nil {
			return err
		}
		r.recorder.SetValue(simName, v)
	}
	return nil
}

func (r *run) simVar(name string) (string, error) {
	simName, ok := r.h.profile.Var(model.Var(name))
	if !ok {
		return "", fmt.Errorf("profile %s does not map variable %q", r.h.profile.Name, name)
	}
	return simName, nil
}
