package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/sim"
)

// ActionSink fires symbolic actions at the simulator.
type ActionSink interface {
	Trigger(ctx context.Context, a model.Action, p model.Param) error
}

// Sink is everything the Dispatcher needs from the simulator side.
type Sink interface {
	ActionSink
	Querier
}

// Observer receives one Record per consumed token. Observe is called on the
// Dispatcher goroutine and must not block.
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Record) { f(r) }

// Outcome classifies what a cycle did with its token.
type Outcome string

const (
	// OutcomeModeSelect: a secondary token changed the altitude step.
	OutcomeModeSelect Outcome = "mode_select"
	// OutcomeIgnored: a secondary token matched no switch position.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDispatched: a primary token issued one or more requests.
	OutcomeDispatched Outcome = "dispatched"
	// OutcomePassthrough: a known primary token whose guards all failed.
	OutcomePassthrough Outcome = "passthrough"
	// OutcomeUnmatched: a primary token not in the command table.
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeReadFailed: a sync token could not read its value.
	OutcomeReadFailed Outcome = "read_failed"
)

// Result is the fate of one issued request.
type Result struct {
	Request model.Request
	Err     error
}

// Record describes one dispatch cycle that consumed a token.
type Record struct {
	Seq     int64
	Time    time.Time
	Stream  model.Stream
	Token   model.Token
	Outcome Outcome
	State   model.State
	Results []Result
	Err     error
}

// Requests returns the requests issued in this cycle.
func (r Record) Requests() []model.Request {
	out := make([]model.Request, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Request
	}
	return out
}

// Dispatcher is the single-threaded decision engine.
//
// It drains two token queues, consults the mode snapshot, resolves each token
// against the command or mode-select table, and fires the resulting requests.
//
// Thread-safety model:
//   - queues: the only shared state; producers enqueue from their own goroutines
//   - Cycle()/Run(): must be called from exactly one goroutine
//   - altitude step, snapshot, sink writes: touched only by that goroutine
type Dispatcher struct {
	primary   *TokenQueue
	secondary *TokenQueue
	sink      Sink
	snapshot  *Snapshot
	commands  CommandTable
	modes     ModeSelectTable
	clock     *Clock
	observer  Observer

	refreshInterval        time.Duration
	crs                    model.CRSSelector
	altitudeStepIsThousand bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRefreshInterval sets the mode snapshot interval (default 1s).
func WithRefreshInterval(d time.Duration) Option {
	return func(x *Dispatcher) { x.refreshInterval = d }
}

// WithCRSSelector selects which VOR the CRS tokens drive (default VOR1).
func WithCRSSelector(c model.CRSSelector) Option {
	return func(x *Dispatcher) { x.crs = c }
}

// WithCommandTable replaces the primary-stream table.
func WithCommandTable(t CommandTable) Option {
	return func(x *Dispatcher) { x.commands = t }
}

// WithModeSelectTable replaces the secondary-stream table.
func WithModeSelectTable(t ModeSelectTable) Option {
	return func(x *Dispatcher) { x.modes = t }
}

// WithClock sets the clock used for record stamps and the refresh gate.
func WithClock(c *Clock) Option {
	return func(x *Dispatcher) { x.clock = c }
}

// WithObserver attaches an observer for dispatch records.
func WithObserver(o Observer) Option {
	return func(x *Dispatcher) { x.observer = o }
}

// New creates a Dispatcher consuming primary and secondary and issuing
// requests to sink.
func New(primary, secondary *TokenQueue, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary:         primary,
		secondary:       secondary,
		sink:            sink,
		commands:        DefaultCommandTable(DefaultCoarseRepeat),
		modes:           DefaultModeSelectTable(),
		clock:           NewClock(),
		refreshInterval: DefaultRefreshInterval,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.snapshot = NewSnapshot(sink, d.refreshInterval)
	return d
}

// State returns the view guards are evaluated against.
func (d *Dispatcher) State() model.State {
	return model.State{
		Flags:                  d.snapshot.Flags(),
		AltitudeStepIsThousand: d.altitudeStepIsThousand,
		CRS:                    d.crs,
	}
}

// Snapshot exposes the mode snapshot (for diagnostics and tests).
func (d *Dispatcher) Snapshot() *Snapshot {
	return d.snapshot
}

// Run drives dispatch cycles until ctx is cancelled or both queues are
// closed and drained.
//
// When there is nothing to do it sleeps until a queue signals, the refresh
// interval elapses, or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher starting",
		"refresh_interval", d.snapshot.Interval(),
		"crs", d.crs.String(),
	)

	ticker := time.NewTicker(d.snapshot.Interval())
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("dispatcher stopping: context cancelled")
			return err
		}

		if _, ok := d.Cycle(ctx); ok {
			continue
		}

		// A closed queue's signal channel is closed, so it wakes us at once
		// while tokens remain. Stop selecting on it only once drained.
		primaryWake, secondaryWake := d.primary.Wait(), d.secondary.Wait()
		if d.primary.Drained() {
			primaryWake = nil
		}
		if d.secondary.Drained() {
			secondaryWake = nil
		}
		if primaryWake == nil && secondaryWake == nil {
			slog.Info("dispatcher stopping: queues closed")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopping: context cancelled")
			return ctx.Err()
		case <-primaryWake:
		case <-secondaryWake:
		case <-ticker.C:
		}
	}
}

// Cycle runs one dispatch cycle: refresh check, then at most one token.
// A pending secondary token is handled alone; the primary queue is only
// consulted when the secondary queue is empty.
//
// ok is false when neither queue had a token.
func (d *Dispatcher) Cycle(ctx context.Context) (Record, bool) {
	now := d.clock.Now()

	if refreshed, err := d.snapshot.MaybeRefresh(ctx, now); err != nil {
		slog.Error("mode snapshot refresh failed, keeping last flags", "error", err)
	} else if refreshed {
		slog.Debug("mode snapshot refreshed", "flags", d.snapshot.Flags())
	}

	if tok, ok := d.secondary.TryDequeue(); ok {
		rec := d.selectMode(tok, now)
		d.observe(rec)
		return rec, true
	}

	if tok, ok := d.primary.TryDequeue(); ok {
		rec := d.dispatch(ctx, tok, now)
		d.observe(rec)
		return rec, true
	}

	return Record{}, false
}

// selectMode applies a secondary-stream token.
func (d *Dispatcher) selectMode(tok model.Token, now time.Time) Record {
	rec := d.newRecord(model.Secondary, tok, now)

	thousand, ok := d.modes[tok]
	if !ok {
		rec.Outcome = OutcomeIgnored
		rec.Err = NewUnmatchedError(model.Secondary, tok)
		slog.Warn("ignoring mode-select token", "token", string(tok))
		return rec
	}

	d.altitudeStepIsThousand = thousand
	rec.Outcome = OutcomeModeSelect
	rec.State = d.State()
	slog.Info("altitude step selected", "token", string(tok), "thousand", thousand)
	return rec
}

// dispatch resolves a primary-stream token and fires its requests.
func (d *Dispatcher) dispatch(ctx context.Context, tok model.Token, now time.Time) Record {
	rec := d.newRecord(model.Primary, tok, now)

	entry, ok := d.commands.Lookup(tok)
	if !ok {
		rec.Outcome = OutcomeUnmatched
		rec.Err = NewUnmatchedError(model.Primary, tok)
		slog.Warn("unmatched token", "token", string(tok))
		return rec
	}

	branch, ok := entry.Select(rec.State)
	if !ok {
		rec.Outcome = OutcomePassthrough
		slog.Debug("token absorbed: no active mode", "token", string(tok))
		return rec
	}

	param, err := d.resolveValue(ctx, branch.Value)
	if err != nil {
		rec.Outcome = OutcomeReadFailed
		rec.Err = &RuntimeError{
			Code:    ErrCodeSyncRead,
			Message: fmt.Sprintf("read %s", branch.Value.Var),
			Token:   tok,
			Action:  branch.Action,
			Err:     err,
		}
		slog.Error("sync read failed", "token", string(tok), "var", branch.Value.Var, "error", err)
		return rec
	}

	req := model.Request{Action: branch.Action, Param: param}
	rec.Outcome = OutcomeDispatched
	rec.Results = make([]Result, 0, branch.Count())
	for i := 0; i < branch.Count(); i++ {
		rec.Results = append(rec.Results, Result{Request: req, Err: d.fire(ctx, tok, req)})
	}

	slog.Debug("dispatched",
		"token", string(tok),
		"guard", branch.When.Name,
		"request", req.String(),
		"count", branch.Count(),
	)
	return rec
}

// resolveValue materializes a branch's argument.
func (d *Dispatcher) resolveValue(ctx context.Context, src ValueSource) (model.Param, error) {
	switch src.Kind {
	case ValueConst:
		return model.WithParam(src.Const), nil
	case ValueQuery:
		v, err := d.sink.Query(ctx, src.Var)
		if err != nil {
			return model.NoParam, err
		}
		if src.Transform != nil {
			v = src.Transform(v)
		}
		return model.WithParam(v), nil
	default:
		return model.NoParam, nil
	}
}

// fire issues one request. Failures are logged and returned, never raised.
func (d *Dispatcher) fire(ctx context.Context, tok model.Token, req model.Request) error {
	err := d.sink.Trigger(ctx, req.Action, req.Param)
	if err == nil {
		return nil
	}

	code := ErrCodeTriggerFailed
	if sim.IsUnresolved(err) {
		code = ErrCodeUnresolvedAction
		slog.Warn("action not resolvable", "token", string(tok), "action", req.Action, "error", err)
	} else {
		slog.Error("trigger failed", "token", string(tok), "action", req.Action, "error", err)
	}

	return &RuntimeError{
		Code:    code,
		Message: "trigger",
		Token:   tok,
		Action:  req.Action,
		Err:     err,
	}
}

func (d *Dispatcher) newRecord(stream model.Stream, tok model.Token, now time.Time) Record {
	return Record{
		Seq:    d.clock.Next(),
		Time:   now,
		Stream: stream,
		Token:  tok,
		State:  d.State(),
	}
}

func (d *Dispatcher) observe(rec Record) {
	if d.observer != nil {
		d.observer.Observe(rec)
	}
}
