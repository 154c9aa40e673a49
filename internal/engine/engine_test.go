package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/testutil"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testRig struct {
	primary   *TokenQueue
	secondary *TokenQueue
	sink      *testutil.FakeSink
	clock     *testutil.ManualClock
	d         *Dispatcher
}

func newRig(t *testing.T, flags model.Flags, opts ...Option) *testRig {
	t.Helper()

	r := &testRig{
		primary:   NewTokenQueue(),
		secondary: NewTokenQueue(),
		sink:      testutil.NewFakeSink().SetFlags(flags),
		clock:     testutil.NewManualClock(testEpoch),
	}
	opts = append([]Option{WithClock(NewClockAt(0, r.clock.Now))}, opts...)
	r.d = New(r.primary, r.secondary, r.sink, opts...)
	return r
}

// send dispatches one primary token and returns its record.
func (r *testRig) send(t *testing.T, tok model.Token) Record {
	t.Helper()
	require.True(t, r.primary.Enqueue(tok))
	rec, ok := r.d.Cycle(context.Background())
	require.True(t, ok, "cycle should consume %q", tok)
	return rec
}

// selectMode dispatches one secondary token.
func (r *testRig) selectMode(t *testing.T, tok model.Token) Record {
	t.Helper()
	require.True(t, r.secondary.Enqueue(tok))
	rec, ok := r.d.Cycle(context.Background())
	require.True(t, ok)
	return rec
}

func req(a model.Action) model.Request {
	return model.Request{Action: a}
}

func reqValue(a model.Action, v float64) model.Request {
	return model.Request{Action: a, Param: model.WithParam(v)}
}

func TestDispatcher_EmptyCycle(t *testing.T) {
	r := newRig(t, model.Flags{})

	_, ok := r.d.Cycle(context.Background())
	assert.False(t, ok)
	assert.Empty(t, r.sink.Requests())
	assert.Equal(t, 1, r.d.Snapshot().Batches(), "an empty cycle still performs the refresh check")
}

func TestDispatcher_UnmatchedTokensIssueNothing(t *testing.T) {
	tokens := []model.Token{"", "ALT+", "alt", "alt+ ", "nav1+", "com_sync", "100", "1000", "vs+\x00"}

	for _, tok := range tokens {
		t.Run(string(tok), func(t *testing.T) {
			r := newRig(t, model.Flags{VerticalSpeedActive: true, AutothrottleSpeedActive: true})

			rec := r.send(t, tok)
			assert.Equal(t, OutcomeUnmatched, rec.Outcome)
			assert.True(t, IsUnmatchedError(rec.Err))
			assert.Empty(t, rec.Results)
			assert.Empty(t, r.sink.Requests())
		})
	}
}

func TestDispatcher_AltitudeStep(t *testing.T) {
	r := newRig(t, model.Flags{})

	rec := r.send(t, "alt+")
	assert.Equal(t, OutcomeDispatched, rec.Outcome)
	assert.Equal(t, []model.Request{req(model.ActionAltitudeInc)}, r.sink.Requests())

	r.selectMode(t, "1000")
	r.sink.Reset()

	rec = r.send(t, "alt+")
	require.Len(t, rec.Results, 10)
	requests := r.sink.Requests()
	require.Len(t, requests, 10)
	for _, got := range requests {
		assert.Equal(t, req(model.ActionAltitudeInc), got)
	}

	r.sink.Reset()
	r.send(t, "alt-")
	assert.Len(t, r.sink.Requests(), 10)
	assert.Equal(t, req(model.ActionAltitudeDec), r.sink.Requests()[0])

	r.selectMode(t, "100")
	r.sink.Reset()
	r.send(t, "alt-")
	assert.Equal(t, []model.Request{req(model.ActionAltitudeDec)}, r.sink.Requests())
}

func TestDispatcher_CoarseRepeatConfigurable(t *testing.T) {
	r := newRig(t, model.Flags{}, WithCommandTable(DefaultCommandTable(5)))

	r.selectMode(t, "1000")
	r.send(t, "alt+")
	assert.Len(t, r.sink.Requests(), 5)
}

func TestDispatcher_ModeSelectTableReplaceable(t *testing.T) {
	r := newRig(t, model.Flags{}, WithModeSelectTable(ModeSelectTable{"coarse": true, "fine": false}))

	r.secondary.Enqueue("1000")
	rec, ok := r.d.Cycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, OutcomeIgnored, rec.Outcome, "default positions are gone")

	r.secondary.Enqueue("coarse")
	rec, ok = r.d.Cycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, OutcomeModeSelect, rec.Outcome)
	assert.True(t, rec.State.AltitudeStepIsThousand)
}

func TestDispatcher_SecondaryTokenProcessedAlone(t *testing.T) {
	r := newRig(t, model.Flags{})

	// Primary arrives first, but the pending secondary token wins the cycle.
	r.primary.Enqueue("alt+")
	r.secondary.Enqueue("1000")

	rec, ok := r.d.Cycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.Secondary, rec.Stream)
	assert.Equal(t, OutcomeModeSelect, rec.Outcome)
	assert.True(t, rec.State.AltitudeStepIsThousand)
	assert.Empty(t, r.sink.Requests(), "no primary token in the same cycle")
	assert.Equal(t, 1, r.primary.Len())

	rec, ok = r.d.Cycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.Primary, rec.Stream)
	assert.Len(t, r.sink.Requests(), 10, "subsequent alt+ sees the new step")
}

func TestDispatcher_SecondaryDrainsBeforePrimary(t *testing.T) {
	r := newRig(t, model.Flags{})

	r.primary.Enqueue("alt+")
	r.secondary.Enqueue("1000")
	r.secondary.Enqueue("100")

	var streams []model.Stream
	for {
		rec, ok := r.d.Cycle(context.Background())
		if !ok {
			break
		}
		streams = append(streams, rec.Stream)
	}

	assert.Equal(t, []model.Stream{model.Secondary, model.Secondary, model.Primary}, streams)
	assert.Equal(t, []model.Request{req(model.ActionAltitudeInc)}, r.sink.Requests())
}

func TestDispatcher_IgnoredModeSelectToken(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.selectMode(t, "1000")

	rec := r.selectMode(t, "500")
	assert.Equal(t, OutcomeIgnored, rec.Outcome)
	assert.True(t, IsUnmatchedError(rec.Err))
	assert.True(t, r.d.State().AltitudeStepIsThousand, "unknown switch position leaves the step alone")
	assert.Empty(t, r.sink.Requests())
}

func TestRadiansToDegrees(t *testing.T) {
	assert.InDelta(t, 180.0, RadiansToDegrees(math.Pi), 1e-9)
	assert.InDelta(t, 90.0, RadiansToDegrees(math.Pi/2), 1e-9)
	assert.InDelta(t, 0.0, RadiansToDegrees(0), 1e-9)
	assert.InDelta(t, 360.0, RadiansToDegrees(2*math.Pi), 1e-9)
}

func TestDispatcher_HeadingSyncConvertsRadians(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.sink.Set(model.VarHeadingIndicator, math.Pi)

	rec := r.send(t, "hdg_sync")
	require.Len(t, rec.Results, 1)
	got := rec.Results[0].Request
	assert.Equal(t, model.ActionHeadingBugSet, got.Action)
	require.True(t, got.Param.Valid)
	assert.InDelta(t, 180.0, got.Param.Value, 1e-9)
}

func TestDispatcher_HeadingBug(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.send(t, "hdg+")
	r.send(t, "hdg-")

	assert.Equal(t, []model.Request{
		req(model.ActionHeadingBugInc),
		req(model.ActionHeadingBugDec),
	}, r.sink.Requests())
}

func TestDispatcher_CRS(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.sink.Set(model.VarHeadingIndicator, math.Pi/2)

	r.send(t, "crs+")
	r.send(t, "crs-")
	rec := r.send(t, "crs_sync")

	requests := r.sink.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, req(model.ActionVOR1Inc), requests[0])
	assert.Equal(t, req(model.ActionVOR1Dec), requests[1])
	assert.Equal(t, model.ActionVOR1Set, requests[2].Action)
	assert.InDelta(t, 90.0, rec.Results[0].Request.Param.Value, 1e-9)
}

func TestDispatcher_CRSSelectorVOR2(t *testing.T) {
	r := newRig(t, model.Flags{}, WithCRSSelector(model.VOR2))
	r.sink.Set(model.VarHeadingIndicator, math.Pi)

	r.send(t, "crs+")
	r.send(t, "crs-")
	r.send(t, "crs_sync")

	requests := r.sink.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, req(model.ActionVOR2Inc), requests[0])
	assert.Equal(t, req(model.ActionVOR2Dec), requests[1])
	assert.Equal(t, model.ActionVOR2Set, requests[2].Action)
	assert.InDelta(t, 180.0, requests[2].Param.Value, 1e-9)
}

func TestDispatcher_AltitudeSync(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.sink.Set(model.VarIndicatedAltitude, 5280.4)

	r.send(t, "alt_sync")
	assert.Equal(t, []model.Request{reqValue(model.ActionAltitudeSet, 5280.4)}, r.sink.Requests())
}

func TestDispatcher_Baro(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.send(t, "baro+")
	r.send(t, "baro-")
	r.send(t, "baro_sync")

	assert.Equal(t, []model.Request{
		req(model.ActionBaroInc),
		req(model.ActionBaroDec),
		reqValue(model.ActionBaroSet, 1013.25*16),
	}, r.sink.Requests())
	assert.Equal(t, int32(16212), r.sink.Requests()[2].Param.Int())
}

func TestDispatcher_VerticalSpeed_NoModeIsPassthrough(t *testing.T) {
	r := newRig(t, model.Flags{AutothrottleSpeedActive: true, AutothrottleMachActive: true})

	for _, tok := range []model.Token{"vs+", "vs-", "vs_sync"} {
		rec := r.send(t, tok)
		assert.Equal(t, OutcomePassthrough, rec.Outcome, tok)
		assert.NoError(t, rec.Err)
	}
	assert.Empty(t, r.sink.Requests())
	assert.Zero(t, r.sink.CountQueries(model.VarAirspeedIndicated), "passthrough reads nothing")
}

func TestDispatcher_VerticalSpeed_VSMode(t *testing.T) {
	// VS takes precedence when both are reported active.
	r := newRig(t, model.Flags{VerticalSpeedActive: true, FlightLevelChangeActive: true})

	r.send(t, "vs+")
	r.send(t, "vs-")
	r.send(t, "vs_sync")

	assert.Equal(t, []model.Request{
		req(model.ActionVerticalSpeedInc),
		req(model.ActionVerticalSpeedDec),
		reqValue(model.ActionVerticalSpeedSet, 0),
	}, r.sink.Requests())
}

func TestDispatcher_VerticalSpeed_FLCMode(t *testing.T) {
	r := newRig(t, model.Flags{FlightLevelChangeActive: true})
	r.sink.Set(model.VarAirspeedIndicated, 142.6)

	r.send(t, "vs+")
	r.send(t, "vs-")
	r.send(t, "vs_sync")

	assert.Equal(t, []model.Request{
		req(model.ActionAirspeedInc),
		req(model.ActionAirspeedDec),
		reqValue(model.ActionAirspeedSet, 142.6),
	}, r.sink.Requests())
}

func TestDispatcher_Speed_NoModeIsPassthrough(t *testing.T) {
	r := newRig(t, model.Flags{VerticalSpeedActive: true})

	for _, tok := range []model.Token{"spd+", "spd-", "spd_sync"} {
		assert.Equal(t, OutcomePassthrough, r.send(t, tok).Outcome, tok)
	}
	assert.Empty(t, r.sink.Requests())
}

func TestDispatcher_Speed_SpeedMode(t *testing.T) {
	r := newRig(t, model.Flags{AutothrottleSpeedActive: true})
	r.sink.Set(model.VarAirspeedIndicated, 250)

	r.send(t, "spd+")
	r.send(t, "spd-")
	r.send(t, "spd_sync")

	assert.Equal(t, []model.Request{
		req(model.ActionAirspeedInc),
		req(model.ActionAirspeedDec),
		reqValue(model.ActionAirspeedSet, 250),
	}, r.sink.Requests())
}

func TestDispatcher_Speed_MachSync(t *testing.T) {
	r := newRig(t, model.Flags{AutothrottleMachActive: true})
	r.sink.Set(model.VarAirspeedMach, 0.78)

	r.send(t, "spd+")
	r.send(t, "spd-")
	r.sink.Reset()

	rec := r.send(t, "spd_sync")
	assert.Equal(t, OutcomeDispatched, rec.Outcome)
	assert.Equal(t, []model.Request{reqValue(model.ActionMachSet, 0.78)}, r.sink.Requests())
	assert.Equal(t, 1, r.sink.CountQueries(model.VarAirspeedMach))
	assert.Zero(t, r.sink.CountQueries(model.VarAirspeedIndicated))
}

func TestDispatcher_SnapshotRefreshBounded(t *testing.T) {
	r := newRig(t, model.Flags{})
	ctx := context.Background()

	// 1000 empty cycles inside 500ms of simulated time.
	for i := 0; i < 1000; i++ {
		_, ok := r.d.Cycle(ctx)
		require.False(t, ok)
		r.clock.Advance(500 * time.Microsecond)
	}

	assert.Equal(t, 1, r.d.Snapshot().Batches())
	assert.Equal(t, 1, r.sink.CountQueries(model.VarVerticalSpeedActive))

	r.clock.Advance(600 * time.Millisecond)
	r.d.Cycle(ctx)
	assert.Equal(t, 2, r.d.Snapshot().Batches(), "due again after the interval")
}

func TestDispatcher_SnapshotPicksUpModeChange(t *testing.T) {
	r := newRig(t, model.Flags{VerticalSpeedActive: true})

	r.send(t, "vs+")
	r.sink.SetFlags(model.Flags{FlightLevelChangeActive: true})

	// Still inside the interval: stale flags are used.
	r.clock.Advance(200 * time.Millisecond)
	r.send(t, "vs+")

	r.clock.Advance(time.Second)
	r.send(t, "vs+")

	assert.Equal(t, []model.Request{
		req(model.ActionVerticalSpeedInc),
		req(model.ActionVerticalSpeedInc),
		req(model.ActionAirspeedInc),
	}, r.sink.Requests())
}

func TestDispatcher_SnapshotFailureKeepsLastFlags(t *testing.T) {
	r := newRig(t, model.Flags{VerticalSpeedActive: true})
	r.send(t, "vs+")

	r.sink.SetFlags(model.Flags{FlightLevelChangeActive: true})
	r.sink.Fail(model.VarAutothrottleMachActive, errors.New("simconnect busy"))
	r.clock.Advance(2 * time.Second)

	rec := r.send(t, "vs+")
	assert.Equal(t, OutcomeDispatched, rec.Outcome, "cycle is not aborted")
	assert.True(t, rec.State.VerticalSpeedActive)
	assert.False(t, rec.State.FlightLevelChangeActive)
	assert.Equal(t, model.ActionVerticalSpeedInc, r.sink.Requests()[1].Action)
}

func TestDispatcher_UnresolvedActionIsRecoverable(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.sink.Unresolve(model.ActionAltitudeInc)

	r.selectMode(t, "1000")
	rec := r.send(t, "alt+")
	assert.Equal(t, OutcomeDispatched, rec.Outcome)
	require.Len(t, rec.Results, 10, "each repeat is attempted once")
	for _, res := range rec.Results {
		assert.True(t, IsUnresolvedError(res.Err))
	}

	rec = r.send(t, "hdg+")
	assert.NoError(t, rec.Results[0].Err)
	assert.Equal(t, []model.Request{req(model.ActionHeadingBugInc)}, r.sink.Requests())
}

func TestDispatcher_SyncReadFailureIssuesNothing(t *testing.T) {
	r := newRig(t, model.Flags{})
	r.sink.Fail(model.VarIndicatedAltitude, errors.New("timeout"))

	rec := r.send(t, "alt_sync")
	assert.Equal(t, OutcomeReadFailed, rec.Outcome)
	assert.True(t, HasCode(rec.Err, ErrCodeSyncRead))
	assert.Empty(t, r.sink.Requests())

	r.send(t, "baro+")
	assert.Len(t, r.sink.Requests(), 1, "next cycle proceeds")
}

func TestDispatcher_ObserverSeesEveryToken(t *testing.T) {
	var records []Record
	r := newRig(t, model.Flags{}, WithObserver(ObserverFunc(func(rec Record) {
		records = append(records, rec)
	})))

	r.send(t, "hdg+")
	r.selectMode(t, "1000")
	r.send(t, "bogus")
	r.d.Cycle(context.Background()) // empty: not observed

	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, int64(2), records[1].Seq)
	assert.Equal(t, int64(3), records[2].Seq)
	assert.Equal(t, testEpoch, records[0].Time)
	assert.Equal(t, []model.Request{req(model.ActionHeadingBugInc)}, records[0].Requests())
	assert.Equal(t, OutcomeModeSelect, records[1].Outcome)
	assert.Equal(t, OutcomeUnmatched, records[2].Outcome)
}

func TestDispatcher_Run(t *testing.T) {
	primary, secondary := NewTokenQueue(), NewTokenQueue()
	sink := testutil.NewFakeSink()
	d := New(primary, secondary, sink, WithRefreshInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	secondary.Enqueue("1000")
	time.Sleep(10 * time.Millisecond)
	primary.Enqueue("alt+")
	primary.Enqueue("baro_sync")

	require.Eventually(t, func() bool { return len(sink.Requests()) == 11 }, 2*time.Second, 5*time.Millisecond)

	// Idle loop keeps refreshing on the ticker.
	require.Eventually(t, func() bool {
		return sink.CountQueries(model.VarVerticalSpeedActive) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestDispatcher_RunStopsWhenQueuesClosed(t *testing.T) {
	primary, secondary := NewTokenQueue(), NewTokenQueue()
	sink := testutil.NewFakeSink()
	d := New(primary, secondary, sink)

	primary.Enqueue("hdg+")
	primary.Enqueue("hdg-")
	primary.Close()
	secondary.Close()

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after queues closed")
	}
	assert.Len(t, sink.Requests(), 2, "queued tokens are drained first")
}

func TestDispatcher_RunSurvivesOneClosedQueue(t *testing.T) {
	primary, secondary := NewTokenQueue(), NewTokenQueue()
	sink := testutil.NewFakeSink()
	d := New(primary, secondary, sink)

	// Secondary channel lost; primary keeps working.
	secondary.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	primary.Enqueue("baro+")
	require.Eventually(t, func() bool { return len(sink.Requests()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDispatcher_RunDrainsTokensQueuedJustBeforeClose(t *testing.T) {
	primary, secondary := NewTokenQueue(), NewTokenQueue()
	sink := testutil.NewFakeSink()
	d := New(primary, secondary, sink)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	// Both pumps finish while the dispatcher may be idle.
	secondary.Close()
	time.Sleep(10 * time.Millisecond)
	primary.Enqueue("crs+")
	primary.Enqueue("crs-")
	primary.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after queues closed")
	}
	assert.Len(t, sink.Requests(), 2)
}
