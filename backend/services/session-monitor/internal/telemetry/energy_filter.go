package telemetry

import "math"

// Energy filter tolerances, in the meter's energy unit (kWh).
const (
	DefaultNoiseTolerance = 0.0003
	DefaultResetTolerance = 0.05
)

// EnergyState is the persisted part of an EnergyFilter.
type EnergyState struct {
	Display float64  `json:"display"`
	Offset  float64  `json:"offset"`
	LastRaw *float64 `json:"last_raw,omitempty"`
}

// EnergyFilter turns a raw cumulative energy stream into a display value that never decreases,
// carrying the running total across meter resets.
type EnergyFilter struct {
	noiseTolerance float64
	resetTolerance float64

	display float64
	offset  float64
	lastRaw float64
	hasLast bool
}

// NewEnergyFilter returns a filter; non-positive tolerances fall back to the defaults.
func NewEnergyFilter(noiseTolerance, resetTolerance float64) *EnergyFilter {
	if noiseTolerance <= 0 {
		noiseTolerance = DefaultNoiseTolerance
	}
	if resetTolerance <= 0 {
		resetTolerance = DefaultResetTolerance
	}
	return &EnergyFilter{
		noiseTolerance: noiseTolerance,
		resetTolerance: resetTolerance,
	}
}

// Apply feeds one raw reading and returns the display energy. Non-finite readings are ignored.
func (f *EnergyFilter) Apply(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return f.display
	}

	if f.hasLast && raw+f.noiseTolerance < f.lastRaw-f.resetTolerance {
		f.offset += f.lastRaw
	}

	candidate := math.Max(0, raw+f.offset)
	switch {
	case candidate+f.noiseTolerance < f.display:
		// dip too small to be a reset: hold
	case candidate > f.display:
		f.display = candidate
	}

	f.lastRaw = raw
	f.hasLast = true
	return f.display
}

// Display returns the current display energy.
func (f *EnergyFilter) Display() float64 {
	return f.display
}

// Offset returns the correction accumulated from detected meter resets.
func (f *EnergyFilter) Offset() float64 {
	return f.offset
}

// State snapshots the filter.
func (f *EnergyFilter) State() EnergyState {
	st := EnergyState{Display: f.display, Offset: f.offset}
	if f.hasLast {
		last := f.lastRaw
		st.LastRaw = &last
	}
	return st
}

// Restore resumes from a snapshot taken with State.
func (f *EnergyFilter) Restore(st EnergyState) {
	f.display = math.Max(0, st.Display)
	f.offset = math.Max(0, st.Offset)
	f.hasLast = st.LastRaw != nil
	if f.hasLast {
		f.lastRaw = *st.LastRaw
	}
}
