package alert

import (
	"fmt"

	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/powerinfo"
)

// State is the hysteresis state of a single power source.
type State int

const (
	// Normal means no alert is armed; both alerts may fire.
	Normal State = iota
	// AlertedLow means a low alert fired and will not fire again until the
	// level returns strictly inside the band.
	AlertedLow
	// AlertedHigh is the high-side counterpart of AlertedLow.
	AlertedHigh
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case AlertedLow:
		return "alerted-low"
	case AlertedHigh:
		return "alerted-high"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*s = Normal
	case "alerted-low":
		*s = AlertedLow
	case "alerted-high":
		*s = AlertedHigh
	default:
		return fmt.Errorf("unknown alert state %q", string(b))
	}
	return nil
}

// Kind says which alert, if any, a decision raises.
type Kind int

const (
	None Kind = iota
	Low
	High
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decision is the outcome of evaluating one reading.
type Decision struct {
	Kind     Kind `json:"kind"`
	Capacity int  `json:"capacity"`
}

// Raised reports whether the decision asks for an alert.
func (d Decision) Raised() bool {
	return d.Kind != None
}

// Evaluate applies the threshold rules to one reading. The rules are checked
// in order and the first match wins:
//
//  1. at or below low while discharging, not already AlertedLow: raise low.
//  2. at or above high while charging, not already AlertedHigh: raise high.
//  3. strictly inside (low, high): reset to Normal.
//  4. anything else keeps the current state.
//
// A value sitting on a threshold in the wrong charge direction falls through
// to rule 4, so it neither arms nor re-arms.
func Evaluate(r powerinfo.Reading, s State, c config.Snapshot) (Decision, State) {
	capacity := r.CapacityPercent

	if capacity <= c.LowThreshold && !r.IsCharging && s != AlertedLow {
		return Decision{Kind: Low, Capacity: capacity}, AlertedLow
	}

	if capacity >= c.HighThreshold && r.IsCharging && s != AlertedHigh {
		return Decision{Kind: High, Capacity: capacity}, AlertedHigh
	}

	if capacity > c.LowThreshold && capacity < c.HighThreshold {
		return Decision{Kind: None, Capacity: capacity}, Normal
	}

	return Decision{Kind: None, Capacity: capacity}, s
}
