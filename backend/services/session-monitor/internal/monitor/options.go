package monitor

import (
	"time"

	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/pause"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

// Options tune a Controller. Zero values fall back to the defaults below.
type Options struct {
	PollInterval       time.Duration
	StaleCheckInterval time.Duration
	CountdownTick      time.Duration
	DeadTime           time.Duration
	CountdownSeconds   int
	NoiseTolerance     float64
	ResetTolerance     float64
	Thresholds         telemetry.Thresholds
	Rules              pause.Rules
	// RequestTimeout bounds each backend call made by the loop.
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Default cadences.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultCountdownTick  = time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// DefaultOptions returns the cadences and tolerances of the live session view.
func DefaultOptions() Options {
	return Options{
		PollInterval:       DefaultPollInterval,
		StaleCheckInterval: telemetry.DefaultCheckInterval,
		CountdownTick:      DefaultCountdownTick,
		DeadTime:           telemetry.DefaultDeadTime,
		CountdownSeconds:   pause.DefaultCountdownSeconds,
		NoiseTolerance:     telemetry.DefaultNoiseTolerance,
		ResetTolerance:     telemetry.DefaultResetTolerance,
		Thresholds:         telemetry.DefaultThresholds(),
		Rules:              pause.DefaultRules(),
		RequestTimeout:     DefaultRequestTimeout,
		Now:                time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.StaleCheckInterval <= 0 {
		o.StaleCheckInterval = d.StaleCheckInterval
	}
	if o.CountdownTick <= 0 {
		o.CountdownTick = d.CountdownTick
	}
	if o.DeadTime <= 0 {
		o.DeadTime = d.DeadTime
	}
	if o.CountdownSeconds <= 0 {
		o.CountdownSeconds = d.CountdownSeconds
	}
	if o.Thresholds == (telemetry.Thresholds{}) {
		o.Thresholds = d.Thresholds
	}
	if o.Rules.StatusReasons == nil && o.Rules.ButtonVoltageMax == 0 {
		o.Rules = d.Rules
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Deps are the collaborators of a Controller. Only Sessions is required.
type Deps struct {
	Sessions    SessionsAPI
	Credentials Credentials
	Sink        EventSink
	Snapshots   SnapshotStore
	Journal     Journal
	Logger      *zap.Logger
}
