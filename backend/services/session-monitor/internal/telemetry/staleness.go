package telemetry

import (
	"math"
	"time"
)

// Staleness defaults.
const (
	DefaultDeadTime      = 20 * time.Second
	DefaultCheckInterval = 3 * time.Second
)

// Thresholds are the per-field movements that count as a live reading.
type Thresholds struct {
	Voltage float64
	Current float64
	Energy  float64
	Power   float64
}

// DefaultThresholds returns the thresholds used by the live session view.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Voltage: 1,
		Current: 0.1,
		Energy:  0.0005,
		Power:   5,
	}
}

// ChangeDetector decides whether telemetry is live or stale, independent of what the backend claims.
type ChangeDetector struct {
	thresholds Thresholds
	deadTime   time.Duration

	prev       Sample
	hasPrev    bool
	lastChange time.Time
	stale      bool
}

// NewChangeDetector starts the dead-time window at now.
func NewChangeDetector(thresholds Thresholds, deadTime time.Duration, now time.Time) *ChangeDetector {
	if deadTime <= 0 {
		deadTime = DefaultDeadTime
	}
	return &ChangeDetector{
		thresholds: thresholds,
		deadTime:   deadTime,
		lastChange: now,
	}
}

// Observe compares s with the previous sample and reports whether it counts as fresh.
// A fresh sample refreshes the change timestamp and clears staleness immediately.
func (d *ChangeDetector) Observe(s Sample, now time.Time) bool {
	fresh := !d.hasPrev || d.moved(s)
	d.prev = s
	d.hasPrev = true
	if fresh {
		d.lastChange = now
		d.stale = false
	}
	return fresh
}

// Check re-evaluates staleness at now. changed reports a transition in either direction.
func (d *ChangeDetector) Check(now time.Time) (stale bool, changed bool) {
	next := now.Sub(d.lastChange) >= d.deadTime
	changed = next != d.stale
	d.stale = next
	return d.stale, changed
}

// Stale reports the result of the last Check or Observe.
func (d *ChangeDetector) Stale() bool {
	return d.stale
}

// LastChange returns when a tracked field last moved.
func (d *ChangeDetector) LastChange() time.Time {
	return d.lastChange
}

func (d *ChangeDetector) moved(s Sample) bool {
	if math.Abs(s.Voltage-d.prev.Voltage) > d.thresholds.Voltage {
		return true
	}
	if math.Abs(s.Current-d.prev.Current) > d.thresholds.Current {
		return true
	}
	if s.HasEnergy && d.prev.HasEnergy && math.Abs(s.Energy-d.prev.Energy) > d.thresholds.Energy {
		return true
	}
	return math.Abs(s.Power-d.prev.Power) > d.thresholds.Power
}
