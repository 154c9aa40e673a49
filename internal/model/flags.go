package model

import (
	"fmt"
	"strings"
)

// Flags are the simulator autopilot sub-modes used to disambiguate tokens.
// They are derived from simulator telemetry and written only by the Mode Snapshot.
type Flags struct {
	VerticalSpeedActive     bool `json:"vertical_speed_active"`
	FlightLevelChangeActive bool `json:"flight_level_change_active"`
	AutothrottleSpeedActive bool `json:"autothrottle_speed_active"`
	AutothrottleMachActive  bool `json:"autothrottle_mach_active"`
}

// FlagVars lists the telemetry variables read on every snapshot refresh,
// in read order.
var FlagVars = []Var{
	VarVerticalSpeedActive,
	VarFlightLevelChangeActive,
	VarAutothrottleSpeedActive,
	VarAutothrottleMachActive,
}

// Set assigns the flag backed by v. Unknown vars are ignored.
// Any non-zero reading counts as active.
func (f *Flags) Set(v Var, value float64) {
	on := value != 0
	switch v {
	case VarVerticalSpeedActive:
		f.VerticalSpeedActive = on
	case VarFlightLevelChangeActive:
		f.FlightLevelChangeActive = on
	case VarAutothrottleSpeedActive:
		f.AutothrottleSpeedActive = on
	case VarAutothrottleMachActive:
		f.AutothrottleMachActive = on
	}
}

// CRSSelector picks which of the two navigation course targets CRS tokens drive.
type CRSSelector int

const (
	VOR1 CRSSelector = iota
	VOR2
)

// String returns "vor1" or "vor2".
func (c CRSSelector) String() string {
	if c == VOR2 {
		return "vor2"
	}
	return "vor1"
}

// ParseCRSSelector accepts "vor1"/"vor2" (also "1"/"2"), case-insensitive.
func ParseCRSSelector(s string) (CRSSelector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vor1", "1", "":
		return VOR1, nil
	case "vor2", "2":
		return VOR2, nil
	default:
		return VOR1, fmt.Errorf("invalid CRS selector %q (want vor1 or vor2)", s)
	}
}

// State is the read-only view a command-table guard is evaluated against.
type State struct {
	Flags
	AltitudeStepIsThousand bool
	CRS                    CRSSelector
}
