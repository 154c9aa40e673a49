package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/roach88/simbridge/internal/model"
)

// DefaultCoarseRepeat is how many fine altitude steps make one coarse step.
const DefaultCoarseRepeat = 10

// StandardBaro is the standard pressure setting sent by baro_sync:
// 1013.25 hPa in the simulator's 1/16 hPa units.
const StandardBaro = 1013.25 * 16

// RadiansToDegrees converts a heading reading to degrees using the exact factor 180/π.
func RadiansToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Guard is a named predicate over the dispatch state.
type Guard struct {
	Name string
	Test func(model.State) bool
}

// Holds reports whether the guard accepts st. A guard without a test always holds.
func (g Guard) Holds(st model.State) bool {
	return g.Test == nil || g.Test(st)
}

var (
	always = Guard{Name: "always"}

	whenThousand = Guard{Name: "altitude_step_thousand", Test: func(s model.State) bool { return s.AltitudeStepIsThousand }}
	whenVS       = Guard{Name: "vertical_speed_active", Test: func(s model.State) bool { return s.VerticalSpeedActive }}
	whenFLC      = Guard{Name: "flight_level_change_active", Test: func(s model.State) bool { return s.FlightLevelChangeActive }}
	whenATSpeed  = Guard{Name: "autothrottle_speed_active", Test: func(s model.State) bool { return s.AutothrottleSpeedActive }}
	whenATMach   = Guard{Name: "autothrottle_mach_active", Test: func(s model.State) bool { return s.AutothrottleMachActive }}
	whenVOR1     = Guard{Name: "crs=vor1", Test: func(s model.State) bool { return s.CRS == model.VOR1 }}
	whenVOR2     = Guard{Name: "crs=vor2", Test: func(s model.State) bool { return s.CRS == model.VOR2 }}
)

// ValueKind says where a request's argument comes from.
type ValueKind int

const (
	// ValueNone sends the action without an argument.
	ValueNone ValueKind = iota
	// ValueConst sends a fixed argument.
	ValueConst
	// ValueQuery reads a live telemetry value at dispatch time.
	ValueQuery
)

// ValueSource describes a request argument.
type ValueSource struct {
	Kind      ValueKind
	Const     float64
	Var       model.Var
	Transform func(float64) float64
	// TransformName labels Transform in table listings.
	TransformName string
}

func constant(v float64) ValueSource {
	return ValueSource{Kind: ValueConst, Const: v}
}

func query(v model.Var) ValueSource {
	return ValueSource{Kind: ValueQuery, Var: v}
}

func queryDegrees(v model.Var) ValueSource {
	return ValueSource{Kind: ValueQuery, Var: v, Transform: RadiansToDegrees, TransformName: "rad->deg"}
}

// String renders the source for listings.
func (v ValueSource) String() string {
	switch v.Kind {
	case ValueConst:
		return fmt.Sprintf("const %g", v.Const)
	case ValueQuery:
		if v.TransformName != "" {
			return fmt.Sprintf("query %s %s", v.Var, v.TransformName)
		}
		return fmt.Sprintf("query %s", v.Var)
	default:
		return "-"
	}
}

// Branch is one guarded outcome of a command token.
type Branch struct {
	When   Guard
	Action model.Action
	// Repeat is how many identical requests to issue; 0 means 1.
	Repeat int
	Value  ValueSource
}

// Count returns the effective repeat count.
func (b Branch) Count() int {
	if b.Repeat < 1 {
		return 1
	}
	return b.Repeat
}

// Entry is the ordered list of branches for one token.
// The first branch whose guard holds wins.
type Entry []Branch

// Select returns the winning branch for st. ok is false when no guard holds,
// in which case the token is absorbed without an action.
func (e Entry) Select(st model.State) (Branch, bool) {
	for _, b := range e {
		if b.When.Holds(st) {
			return b, true
		}
	}
	return Branch{}, false
}

// CommandTable maps primary-stream tokens to their entries.
type CommandTable map[model.Token]Entry

// Lookup returns the entry for tok.
func (t CommandTable) Lookup(tok model.Token) (Entry, bool) {
	e, ok := t[tok]
	return e, ok
}

// Tokens returns the table's tokens in byte order.
func (t CommandTable) Tokens() []model.Token {
	toks := make([]model.Token, 0, len(t))
	for tok := range t {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	return toks
}

// Render writes one line per branch: token | guard | action | xN | value.
func (t CommandTable) Render(w io.Writer) error {
	for _, tok := range t.Tokens() {
		for _, b := range t[tok] {
			line := strings.Join([]string{
				string(tok),
				b.When.Name,
				string(b.Action),
				fmt.Sprintf("x%d", b.Count()),
				b.Value.String(),
			}, " | ")
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// step builds the fine/coarse pair used by alt+ and alt-.
func step(a model.Action, coarse int) Entry {
	return Entry{
		{When: whenThousand, Action: a, Repeat: coarse},
		{When: always, Action: a},
	}
}

// DefaultCommandTable returns the encoder command table. coarseRepeat is the
// number of fine altitude steps per coarse step; values below 1 select
// DefaultCoarseRepeat.
func DefaultCommandTable(coarseRepeat int) CommandTable {
	if coarseRepeat < 1 {
		coarseRepeat = DefaultCoarseRepeat
	}

	return CommandTable{
		// Altitude
		"alt+":     step(model.ActionAltitudeInc, coarseRepeat),
		"alt-":     step(model.ActionAltitudeDec, coarseRepeat),
		"alt_sync": {{When: always, Action: model.ActionAltitudeSet, Value: query(model.VarIndicatedAltitude)}},

		// Heading
		"hdg+":     {{When: always, Action: model.ActionHeadingBugInc}},
		"hdg-":     {{When: always, Action: model.ActionHeadingBugDec}},
		"hdg_sync": {{When: always, Action: model.ActionHeadingBugSet, Value: queryDegrees(model.VarHeadingIndicator)}},

		// Vertical speed, or FLC airspeed target
		"vs+": {
			{When: whenVS, Action: model.ActionVerticalSpeedInc},
			{When: whenFLC, Action: model.ActionAirspeedInc},
		},
		"vs-": {
			{When: whenVS, Action: model.ActionVerticalSpeedDec},
			{When: whenFLC, Action: model.ActionAirspeedDec},
		},
		"vs_sync": {
			{When: whenVS, Action: model.ActionVerticalSpeedSet, Value: constant(0.0)},
			{When: whenFLC, Action: model.ActionAirspeedSet, Value: query(model.VarAirspeedIndicated)},
		},

		// Autothrottle speed or mach
		"spd+": {
			{When: whenATSpeed, Action: model.ActionAirspeedInc},
			{When: whenATMach, Action: model.ActionMachInc},
		},
		"spd-": {
			{When: whenATSpeed, Action: model.ActionAirspeedDec},
			{When: whenATMach, Action: model.ActionMachDec},
		},
		"spd_sync": {
			{When: whenATSpeed, Action: model.ActionAirspeedSet, Value: query(model.VarAirspeedIndicated)},
			{When: whenATMach, Action: model.ActionMachSet, Value: query(model.VarAirspeedMach)},
		},

		// CRS / VOR 1 and 2
		"crs+": {
			{When: whenVOR1, Action: model.ActionVOR1Inc},
			{When: whenVOR2, Action: model.ActionVOR2Inc},
		},
		"crs-": {
			{When: whenVOR1, Action: model.ActionVOR1Dec},
			{When: whenVOR2, Action: model.ActionVOR2Dec},
		},
		"crs_sync": {
			{When: whenVOR1, Action: model.ActionVOR1Set, Value: queryDegrees(model.VarHeadingIndicator)},
			{When: whenVOR2, Action: model.ActionVOR2Set, Value: queryDegrees(model.VarHeadingIndicator)},
		},

		// QNH; sync sets standard pressure
		"baro+":     {{When: always, Action: model.ActionBaroInc}},
		"baro-":     {{When: always, Action: model.ActionBaroDec}},
		"baro_sync": {{When: always, Action: model.ActionBaroSet, Value: constant(StandardBaro)}},
	}
}

// ModeSelectTable maps secondary-stream tokens to the altitude step setting
// they select (true = 1000 ft steps).
type ModeSelectTable map[model.Token]bool

// DefaultModeSelectTable returns the altitude step switch positions.
func DefaultModeSelectTable() ModeSelectTable {
	return ModeSelectTable{
		"100":  false,
		"1000": true,
	}
}
