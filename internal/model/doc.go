// Package model defines the value types shared by the simbridge dispatch core.
//
// A Token is one decoded line from a hardware channel. The Dispatcher resolves
// it, together with the current State, into zero or more Requests naming a
// symbolic Action. Symbolic actions and telemetry variables (Var) are mapped to
// simulator identifiers by an aircraft profile, so nothing in this package
// knows about a specific simulator.
//
// All types here are plain values. A State handed to a guard is a copy; the
// Mode Snapshot remains the only writer of Flags.
package model
