package monitor

import (
	"context"
	"errors"
	"time"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/pause"
	redisstore "sparx/backend/services/session-monitor/internal/redis"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

// Controller errors.
var (
	ErrAlreadyStarted = errors.New("monitor: controller already started")
	ErrSessionEnded   = errors.New("monitor: session already ended")
	ErrNoSession      = errors.New("monitor: no session id known")
	ErrNotMounted     = errors.New("monitor: no session mounted")
)

// Target is where the renderer is sent on a terminal transition.
type Target string

// Navigation targets.
const (
	TargetNone    Target = ""
	TargetSummary Target = "summary"
	TargetHome    Target = "home"
	TargetLogin   Target = "login"
)

// SessionContext is supplied once when a session view is mounted and never changed by the controller.
type SessionContext struct {
	SessionID      string  `json:"session_id"`
	DeviceID       string  `json:"device_id"`
	TransactionID  string  `json:"transaction_id,omitempty"`
	AmountPaid     float64 `json:"amount_paid"`
	EnergySelected float64 `json:"energy_selected"`
}

// State is the reconciled view handed to the renderer.
type State struct {
	SessionID      string  `json:"session_id"`
	DeviceID       string  `json:"device_id"`
	EnergySelected float64 `json:"energy_selected"`
	AmountPaid     float64 `json:"amount_paid"`

	Voltage   float64                `json:"voltage"`
	Current   float64                `json:"current"`
	Power     float64                `json:"power"`
	Energy    float64                `json:"energy"`
	RawEnergy float64                `json:"raw_energy"`
	Offset    float64                `json:"energy_offset"`
	Relay     telemetry.RelayState   `json:"relay_state"`
	Status    telemetry.DeviceStatus `json:"status"`
	Charging  bool                   `json:"charging"`

	UsagePercent   float64 `json:"usage_percent"`
	AmountUtilized float64 `json:"amount_utilized"`

	PauseState         pause.State  `json:"pause_state"`
	PauseReason        pause.Reason `json:"pause_reason"`
	PopupVisible       bool         `json:"popup_visible"`
	CountdownRemaining int          `json:"countdown_remaining"`

	ConnectionLost bool      `json:"connection_lost"`
	LastChangeAt   time.Time `json:"last_change_at"`

	Terminated bool      `json:"terminated"`
	Target     Target    `json:"target,omitempty"`
	Alert      string    `json:"alert,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EventType classifies an Event.
type EventType string

// Event types pushed to the renderer.
const (
	EventState              EventType = "state"
	EventNavigate           EventType = "navigate"
	EventConnectionLost     EventType = "connection_lost"
	EventConnectionRestored EventType = "connection_restored"
	EventPauseStarted       EventType = "pause_started"
	EventPauseCleared       EventType = "pause_cleared"
	EventCountdown          EventType = "countdown"
	EventAlert              EventType = "alert"
)

// Event is published to the sink on every state change and navigation.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Target    Target    `json:"target,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
	State     *State    `json:"state,omitempty"`
	At        time.Time `json:"at"`
}

// SessionsAPI is the backend contract the controller consumes.
type SessionsAPI interface {
	ActiveSession(ctx context.Context) (*clients.TelemetryPayload, error)
	SessionByID(ctx context.Context, sessionID string) (*clients.SessionDetail, error)
	StopSession(ctx context.Context, req clients.StopSessionRequest) error
	Receipt(ctx context.Context, sessionID string) (*clients.Receipt, error)
}

// Credentials is the bearer credential cleared after a 401.
type Credentials interface {
	Clear()
}

// EventSink receives controller events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// SnapshotStore persists reconciled state between restarts and arbitrates termination across processes.
type SnapshotStore interface {
	Save(ctx context.Context, snap redisstore.Snapshot) error
	Load(ctx context.Context, sessionID string) (*redisstore.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	ClaimTermination(ctx context.Context, sessionID, target string) (bool, error)
}

// Journal records monitor events.
type Journal interface {
	Insert(ctx context.Context, event *models.MonitorEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Publish implements EventSink.
func (f SinkFunc) Publish(e Event) {
	f(e)
}

// MultiSink fans events out to several sinks.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}
