package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

// Session statuses reported by the simulated backend.
const (
	StatusOccupied  = "occupied"
	StatusAvailable = "available"
	StatusPaused    = "paused"
	StatusOffline   = "offline"
)

// End triggers.
const (
	TriggerManual    = "manual"
	TriggerAuto      = "auto"
	TriggerSimulated = "simulated"
)

// MeterOptions shape the simulated charger.
type MeterOptions struct {
	Voltage float64
	Current float64
	// EnergyPerStep is added to the raw counter on every Step while the relay is ON.
	EnergyPerStep float64
	// Jitter is the amplitude of random noise on voltage and current.
	Jitter float64
	Seed   int64
	Now    func() time.Time
}

// Session is the simulated backend record.
type Session struct {
	SessionID      string
	DeviceID       string
	TransactionID  string
	AmountPaid     float64
	EnergySelected float64
	StartTime      time.Time
	EndTime        *time.Time
	EndTrigger     string
}

// Meter simulates one charger and the session running on it.
type Meter struct {
	mu   sync.Mutex
	opts MeterOptions
	rng  *rand.Rand

	session  *Session
	active   bool
	voltage  float64
	current  float64
	raw      float64
	total    float64
	relay    string
	status   string
	frozen   bool
	failStop bool
}

// NewMeter returns an idle meter.
func NewMeter(opts MeterOptions) *Meter {
	if opts.Voltage <= 0 {
		opts.Voltage = 230
	}
	if opts.Current <= 0 {
		opts.Current = 16
	}
	if opts.EnergyPerStep <= 0 {
		opts.EnergyPerStep = 0.01
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Meter{
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		relay:  string(telemetry.RelayOff),
		status: StatusAvailable,
	}
}

// StartSession begins a new session with a zeroed counter.
func (m *Meter) StartSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.StartTime.IsZero() {
		s.StartTime = m.opts.Now().UTC()
	}
	m.session = &s
	m.active = true
	m.raw, m.total = 0, 0
	m.voltage, m.current = m.opts.Voltage, m.opts.Current
	m.relay = string(telemetry.RelayOn)
	m.status = StatusOccupied
	m.frozen = false
}

// Step advances the simulation by one tick.
func (m *Meter) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active || m.frozen {
		return
	}
	if m.relay == string(telemetry.RelayOn) && m.status == StatusOccupied {
		m.voltage = m.opts.Voltage + m.noise()
		m.current = m.opts.Current + m.noise()/10
		m.raw += m.opts.EnergyPerStep
		m.total += m.opts.EnergyPerStep
	}
	if m.session.EnergySelected > 0 && m.total >= m.session.EnergySelected {
		m.endLocked(TriggerAuto, m.opts.Now())
	}
}

// ResetCounter drops the raw energy counter to zero, as a meter reboot does.
func (m *Meter) ResetCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = 0
}

// Freeze stops every reading from changing, as when the charger loses its uplink.
func (m *Meter) Freeze(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = on
}

// PressEmergency opens the relay while the charger stays energised at a limited voltage.
func (m *Meter) PressEmergency() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relay = string(telemetry.RelayOff)
	m.voltage = m.opts.Voltage / 2
	m.current = 0
}

// SetRelay switches the relay.
func (m *Meter) SetRelay(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.relay = string(telemetry.RelayOn)
		m.voltage, m.current = m.opts.Voltage, m.opts.Current
		return
	}
	m.relay = string(telemetry.RelayOff)
	m.current = 0
}

// SetStatus overrides the backend device status.
func (m *Meter) SetStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	if status == StatusOffline {
		m.voltage, m.current = 0, 0
	}
}

// FailStop makes stop requests fail until cleared.
func (m *Meter) FailStop(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStop = on
}

// End finishes the running session.
func (m *Meter) End(trigger string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.endLocked(trigger, m.opts.Now())
	return true
}

func (m *Meter) endLocked(trigger string, at time.Time) {
	at = at.UTC()
	m.active = false
	m.session.EndTime = &at
	m.session.EndTrigger = trigger
	m.relay = string(telemetry.RelayOff)
	m.status = StatusAvailable
	m.voltage, m.current = 0, 0
}

// Active returns the telemetry of the running session.
func (m *Meter) Active() (clients.TelemetryPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return clients.TelemetryPayload{}, false
	}
	return m.payloadLocked(), true
}

// Detail returns the session snapshot for id, running or ended.
func (m *Meter) Detail(sessionID string) (clients.SessionDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.SessionID != sessionID {
		return clients.SessionDetail{}, false
	}
	start := m.session.StartTime
	return clients.SessionDetail{
		TelemetryPayload: m.payloadLocked(),
		DeviceID:         m.session.DeviceID,
		TransactionID:    m.session.TransactionID,
		AmountPaid:       clients.Num(m.session.AmountPaid),
		EnergySelected:   clients.Num(m.session.EnergySelected),
		StartTime:        &start,
		EndTime:          m.session.EndTime,
		EndTrigger:       m.session.EndTrigger,
	}, true
}

// Receipt returns the receipt of an ended session.
func (m *Meter) Receipt(sessionID string) (clients.Receipt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.SessionID != sessionID || m.active {
		return clients.Receipt{}, false
	}
	utilized := telemetry.AmountUtilized(m.total, m.session.EnergySelected, m.session.AmountPaid)
	return clients.Receipt{
		ReceiptID:       "rcpt-" + m.session.SessionID,
		SessionID:       m.session.SessionID,
		DeviceID:        m.session.DeviceID,
		AmountPaid:      clients.Num(m.session.AmountPaid),
		AmountUtilized:  clients.Num(utilized),
		DiscountApplied: clients.Num(0),
		Refund:          clients.Num(math.Round((m.session.AmountPaid-utilized)*100) / 100),
		EnergyConsumed:  clients.Num(m.total),
	}, true
}

// Stop ends the session on behalf of a client request.
func (m *Meter) Stop(req clients.StopSessionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.failStop:
		return ErrStopRejected
	case m.session == nil || m.session.SessionID != req.SessionID:
		return ErrUnknownSession
	case !m.active:
		return ErrSessionEnded
	}
	trigger := req.EndTrigger
	if trigger == "" {
		trigger = TriggerManual
	}
	at := req.EndTime
	if at.IsZero() {
		at = m.opts.Now()
	}
	m.endLocked(trigger, at)
	return nil
}

// Run steps the meter every interval until ctx is done.
func (m *Meter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Step()
		}
	}
}

func (m *Meter) payloadLocked() clients.TelemetryPayload {
	p := clients.TelemetryPayload{
		Voltage:        clients.Num(round(m.voltage, 2)),
		Current:        clients.Num(round(m.current, 2)),
		Power:          clients.Num(round(m.voltage*m.current, 1)),
		EnergyConsumed: clients.Num(round(m.raw, 4)),
		RelayState:     m.relay,
		Status:         m.status,
	}
	if m.session != nil {
		p.SessionID = m.session.SessionID
	}
	return p
}

func (m *Meter) noise() float64 {
	if m.opts.Jitter <= 0 {
		return 0
	}
	return (m.rng.Float64()*2 - 1) * m.opts.Jitter
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
