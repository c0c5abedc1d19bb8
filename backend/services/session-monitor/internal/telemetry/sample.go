package telemetry

import (
	"math"
	"strings"
	"time"
)

// RelayState is the normalised relay position reported by the charger.
type RelayState string

// Relay states.
const (
	RelayOn  RelayState = "ON"
	RelayOff RelayState = "OFF"
)

// DeviceStatus is the normalised charger status reported by the backend.
type DeviceStatus string

// Device statuses.
const (
	StatusAvailable DeviceStatus = "available"
	StatusOccupied  DeviceStatus = "occupied"
	StatusPaused    DeviceStatus = "paused"
	StatusOffline   DeviceStatus = "offline"
	StatusUnknown   DeviceStatus = "unknown"
)

// Sample is one poll result. It is never mutated after construction.
type Sample struct {
	SessionID string
	Voltage   float64
	Current   float64
	Power     float64
	// Energy is the cumulative raw meter reading; HasEnergy is false when the payload carried none.
	Energy     float64
	HasEnergy  bool
	Relay      RelayState
	Status     DeviceStatus
	ReceivedAt time.Time
}

// Reading carries the loosely typed values decoded from a backend payload.
type Reading struct {
	SessionID string
	Voltage   *float64
	Current   *float64
	Power     *float64
	Energy    *float64
	Relay     string
	Status    string
}

// NewSample normalises a raw reading. Non-finite or missing numbers become zero, power falls back
// to voltage x current when the backend does not supply a usable value.
func NewSample(r Reading, now time.Time) Sample {
	s := Sample{
		SessionID:  strings.TrimSpace(r.SessionID),
		Voltage:    Finite(r.Voltage),
		Current:    Finite(r.Current),
		Relay:      NormalizeRelay(r.Relay),
		Status:     NormalizeStatus(r.Status),
		ReceivedAt: now,
	}
	if r.Energy != nil && isFinite(*r.Energy) {
		s.Energy = *r.Energy
		s.HasEnergy = true
	}
	if r.Power != nil && isFinite(*r.Power) {
		s.Power = *r.Power
	} else {
		s.Power = s.Voltage * s.Current
	}
	return s
}

// NormalizeRelay maps a free-form relay string to ON or OFF.
func NormalizeRelay(raw string) RelayState {
	if strings.EqualFold(strings.TrimSpace(raw), string(RelayOn)) {
		return RelayOn
	}
	return RelayOff
}

// NormalizeStatus maps a free-form backend status to a DeviceStatus.
func NormalizeStatus(raw string) DeviceStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available", "idle":
		return StatusAvailable
	case "occupied", "charging", "busy", "active":
		return StatusOccupied
	case "paused", "suspended":
		return StatusPaused
	case "offline", "disconnected":
		return StatusOffline
	default:
		return StatusUnknown
	}
}

// Finite dereferences v, returning 0 for nil, NaN and infinities.
func Finite(v *float64) float64 {
	if v == nil || !isFinite(*v) {
		return 0
	}
	return *v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
