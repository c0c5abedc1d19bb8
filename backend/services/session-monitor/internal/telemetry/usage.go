package telemetry

import "math"

// UsagePercent is consumed/selected as a percentage clamped to [0, 100]. Zero selection yields 0.
func UsagePercent(consumed, selected float64) float64 {
	if selected <= 0 || !isFinite(consumed) || !isFinite(selected) {
		return 0
	}
	return clamp(consumed/selected*100, 0, 100)
}

// AmountUtilized is the share of amountPaid covered by the consumed energy, within [0, amountPaid].
func AmountUtilized(consumed, selected, amountPaid float64) float64 {
	if selected <= 0 || !isFinite(consumed) || !isFinite(amountPaid) || amountPaid <= 0 {
		return 0
	}
	return round2(clamp(consumed/selected, 0, 1) * amountPaid)
}

// Freezer holds the usage percentage at its last live value while charging is stopped.
type Freezer struct {
	frozen float64
}

// Display records live while charging and returns the frozen value otherwise.
func (f *Freezer) Display(charging bool, live float64) float64 {
	if charging {
		f.frozen = live
		return live
	}
	return f.frozen
}

// Frozen returns the last recorded live value.
func (f *Freezer) Frozen() float64 {
	return f.frozen
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Restore seeds the frozen value, as when resuming from a snapshot.
func (f *Freezer) Restore(frozen float64) {
	f.frozen = frozen
}
