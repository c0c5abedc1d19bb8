package ws

import (
	"context"
	"encoding/json"
	"time"

	"sparx/backend/services/session-monitor/internal/monitor"
)

// Renderer actions.
const (
	ActionState       = "state"
	ActionStopSession = "stop_session"
)

// ControllerSource resolves the mounted controller.
type ControllerSource interface {
	Current() (*monitor.Controller, error)
}

type command struct {
	Action string `json:"action"`
}

type reply struct {
	Type   string         `json:"type"`
	Action string         `json:"action"`
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	State  *monitor.State `json:"state,omitempty"`
}

// CommandProcessor answers renderer actions against the mounted controller.
type CommandProcessor struct {
	source  ControllerSource
	timeout time.Duration
}

// NewCommandProcessor bounds each stop request by timeout (10s when zero).
func NewCommandProcessor(source ControllerSource, timeout time.Duration) *CommandProcessor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommandProcessor{source: source, timeout: timeout}
}

// Handle implements CommandHandler. Failures are reported in the reply, never as an error.
func (p *CommandProcessor) Handle(ctx context.Context, rendererID string, raw []byte) ([]byte, error) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return json.Marshal(reply{Type: "reply", OK: false, Error: "invalid message"})
	}

	out := reply{Type: "reply", Action: cmd.Action}
	ctrl, err := p.source.Current()
	if err != nil {
		out.Error = err.Error()
		return json.Marshal(out)
	}

	switch cmd.Action {
	case ActionState:
		st := ctrl.Snapshot()
		out.OK, out.State = true, &st
	case ActionStopSession:
		stopCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := ctrl.StopSession(stopCtx); err != nil {
			out.Error = err.Error()
		} else {
			out.OK = true
		}
	default:
		out.Error = "unknown action"
	}
	return json.Marshal(out)
}
