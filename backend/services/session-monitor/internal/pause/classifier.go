package pause

import (
	"fmt"
	"strings"

	"sparx/backend/services/session-monitor/internal/telemetry"
)

// State is the charging state derived each tick.
type State string

// States.
const (
	StateActive        State = "ACTIVE"
	StatePausedButton  State = "PAUSED_BUTTON"
	StatePausedOffline State = "PAUSED_OFFLINE"
)

// Reason explains why a session is paused.
type Reason string

// Reasons.
const (
	ReasonNone            Reason = "none"
	ReasonVoltageDip      Reason = "voltage_dip"
	ReasonEmergencyButton Reason = "emergency_button"
	ReasonOfflineOrPaused Reason = "offline_or_paused"
)

// ParseReason accepts the canonical reason names.
func ParseReason(raw string) (Reason, error) {
	switch r := Reason(strings.ToLower(strings.TrimSpace(raw))); r {
	case ReasonNone, ReasonVoltageDip, ReasonEmergencyButton, ReasonOfflineOrPaused:
		return r, nil
	default:
		return ReasonNone, fmt.Errorf("pause: unknown reason %q", raw)
	}
}

// StateFor maps a locked reason to the paused state it produces.
func StateFor(r Reason) State {
	switch r {
	case ReasonEmergencyButton:
		return StatePausedButton
	case ReasonNone:
		return StateActive
	default:
		return StatePausedOffline
	}
}

// Rules configure how a pause is classified. The status mapping is backend specific.
type Rules struct {
	// StatusReasons maps a backend device status to the reason used when that status pauses the session.
	StatusReasons map[telemetry.DeviceStatus]Reason
	// Voltage strictly inside (ButtonVoltageMin, ButtonVoltageMax) means the charger is still energised
	// but limited, which is classified as the emergency button.
	ButtonVoltageMin float64
	ButtonVoltageMax float64
	// RelayOffReason is used when the relay is OFF while the device reports occupied.
	RelayOffReason Reason
	// StaleReason is used when the connection has gone stale.
	StaleReason Reason
}

// DefaultRules returns the classification used by the live session view.
func DefaultRules() Rules {
	return Rules{
		StatusReasons: map[telemetry.DeviceStatus]Reason{
			telemetry.StatusOffline: ReasonOfflineOrPaused,
			telemetry.StatusPaused:  ReasonOfflineOrPaused,
		},
		ButtonVoltageMin: 1,
		ButtonVoltageMax: 200,
		RelayOffReason:   ReasonEmergencyButton,
		StaleReason:      ReasonOfflineOrPaused,
	}
}

// Input is what the classifier looks at each tick.
type Input struct {
	Stale   bool
	Status  telemetry.DeviceStatus
	Relay   telemetry.RelayState
	Voltage float64
}

// Transition describes the outcome of one Evaluate call.
type Transition struct {
	From   State
	To     State
	Reason Reason
	// Entered is true on the tick a pause episode starts.
	Entered bool
	// Cleared is true on the tick a pause episode ends.
	Cleared bool
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Classifier is the pause state machine. The reason is locked for the whole episode.
type Classifier struct {
	rules  Rules
	state  State
	reason Reason
}

// NewClassifier returns a classifier in the ACTIVE state.
func NewClassifier(rules Rules) *Classifier {
	if rules.RelayOffReason == "" {
		rules.RelayOffReason = ReasonEmergencyButton
	}
	if rules.StaleReason == "" {
		rules.StaleReason = ReasonOfflineOrPaused
	}
	return &Classifier{rules: rules, state: StateActive, reason: ReasonNone}
}

// State returns the current state.
func (c *Classifier) State() State {
	return c.state
}

// Reason returns the locked reason, ReasonNone while active.
func (c *Classifier) Reason() Reason {
	return c.reason
}

// Paused reports whether an episode is in progress.
func (c *Classifier) Paused() bool {
	return c.state != StateActive
}

// Evaluate applies one tick of input.
func (c *Classifier) Evaluate(in Input) Transition {
	tr := Transition{From: c.state}

	switch {
	case c.pauseCondition(in):
		if c.state == StateActive {
			c.reason = c.classify(in)
			c.state = StateFor(c.reason)
			tr.Entered = true
		}
	case in.Relay == telemetry.RelayOn && in.Status != telemetry.StatusOffline:
		if c.state != StateActive {
			tr.Cleared = true
		}
		c.state = StateActive
		c.reason = ReasonNone
	}

	tr.To = c.state
	tr.Reason = c.reason
	return tr
}

// Reset returns the classifier to ACTIVE, used when a session ends.
func (c *Classifier) Reset() {
	c.state = StateActive
	c.reason = ReasonNone
}

func (c *Classifier) pauseCondition(in Input) bool {
	if in.Stale {
		return true
	}
	if in.Status == telemetry.StatusOffline || in.Status == telemetry.StatusPaused {
		return true
	}
	return in.Relay == telemetry.RelayOff && in.Status == telemetry.StatusOccupied
}

func (c *Classifier) classify(in Input) Reason {
	if in.Stale {
		return c.rules.StaleReason
	}
	if in.Voltage > c.rules.ButtonVoltageMin && in.Voltage < c.rules.ButtonVoltageMax {
		return ReasonEmergencyButton
	}
	if r, ok := c.rules.StatusReasons[in.Status]; ok && r != ReasonNone {
		return r
	}
	if in.Relay == telemetry.RelayOff && in.Status == telemetry.StatusOccupied {
		return c.rules.RelayOffReason
	}
	return ReasonOfflineOrPaused
}

// ParseStatusReasons converts a configured status->reason table, e.g. {"paused": "emergency_button"}.
func ParseStatusReasons(raw map[string]string) (map[telemetry.DeviceStatus]Reason, error) {
	out := make(map[telemetry.DeviceStatus]Reason, len(raw))
	for status, reason := range raw {
		r, err := ParseReason(reason)
		if err != nil {
			return nil, err
		}
		out[telemetry.DeviceStatus(strings.ToLower(strings.TrimSpace(status)))] = r
	}
	return out, nil
}
