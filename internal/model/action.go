package model

import (
	"fmt"
	"math"
)

// Action is a symbolic simulator action. An aircraft profile maps it to the
// simulator's event identifier.
type Action string

const (
	ActionAltitudeInc      Action = "altitude_inc"
	ActionAltitudeDec      Action = "altitude_dec"
	ActionAltitudeSet      Action = "altitude_set"
	ActionHeadingBugInc    Action = "heading_bug_inc"
	ActionHeadingBugDec    Action = "heading_bug_dec"
	ActionHeadingBugSet    Action = "heading_bug_set"
	ActionVerticalSpeedInc Action = "vertical_speed_inc"
	ActionVerticalSpeedDec Action = "vertical_speed_dec"
	ActionVerticalSpeedSet Action = "vertical_speed_set"
	ActionAirspeedInc      Action = "airspeed_inc"
	ActionAirspeedDec      Action = "airspeed_dec"
	ActionAirspeedSet      Action = "airspeed_set"
	ActionMachInc          Action = "mach_inc"
	ActionMachDec          Action = "mach_dec"
	ActionMachSet          Action = "mach_set"
	ActionVOR1Inc          Action = "vor1_obi_inc"
	ActionVOR1Dec          Action = "vor1_obi_dec"
	ActionVOR1Set          Action = "vor1_set"
	ActionVOR2Inc          Action = "vor2_obi_inc"
	ActionVOR2Dec          Action = "vor2_obi_dec"
	ActionVOR2Set          Action = "vor2_set"
	ActionBaroInc          Action = "baro_inc"
	ActionBaroDec          Action = "baro_dec"
	ActionBaroSet          Action = "baro_set"
)

// Actions lists every symbolic action the command table can emit.
var Actions = []Action{
	ActionAltitudeInc, ActionAltitudeDec, ActionAltitudeSet,
	ActionHeadingBugInc, ActionHeadingBugDec, ActionHeadingBugSet,
	ActionVerticalSpeedInc, ActionVerticalSpeedDec, ActionVerticalSpeedSet,
	ActionAirspeedInc, ActionAirspeedDec, ActionAirspeedSet,
	ActionMachInc, ActionMachDec, ActionMachSet,
	ActionVOR1Inc, ActionVOR1Dec, ActionVOR1Set,
	ActionVOR2Inc, ActionVOR2Dec, ActionVOR2Set,
	ActionBaroInc, ActionBaroDec, ActionBaroSet,
}

// Var is a symbolic telemetry variable, mapped to a simulator variable name
// by an aircraft profile.
type Var string

const (
	VarVerticalSpeedActive     Var = "vertical_speed_active"
	VarFlightLevelChangeActive Var = "flight_level_change_active"
	VarAutothrottleSpeedActive Var = "autothrottle_speed_active"
	VarAutothrottleMachActive  Var = "autothrottle_mach_active"
	VarIndicatedAltitude       Var = "indicated_altitude"
	VarHeadingIndicator        Var = "heading_indicator"
	VarAirspeedIndicated       Var = "airspeed_indicated"
	VarAirspeedMach            Var = "airspeed_mach"
)

// Vars lists every symbolic variable the core reads.
var Vars = []Var{
	VarVerticalSpeedActive,
	VarFlightLevelChangeActive,
	VarAutothrottleSpeedActive,
	VarAutothrottleMachActive,
	VarIndicatedAltitude,
	VarHeadingIndicator,
	VarAirspeedIndicated,
	VarAirspeedMach,
}

// Param is an optional numeric argument to an action.
type Param struct {
	Value float64
	Valid bool
}

// NoParam is the absent argument.
var NoParam = Param{}

// WithParam wraps v as a present argument.
func WithParam(v float64) Param {
	return Param{Value: v, Valid: true}
}

// Int truncates the argument toward zero, the way the simulator receives it.
// Values outside the int32 range saturate.
func (p Param) Int() int32 {
	v := math.Trunc(p.Value)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// String renders the argument, or "-" when absent.
func (p Param) String() string {
	if !p.Valid {
		return "-"
	}
	return fmt.Sprintf("%g", p.Value)
}

// Request is one resolved action, ready to hand to the Action Sink.
type Request struct {
	Action Action
	Param  Param
}

// String renders "action" or "action(value)".
func (r Request) String() string {
	if !r.Param.Valid {
		return string(r.Action)
	}
	return fmt.Sprintf("%s(%g)", r.Action, r.Param.Value)
}
