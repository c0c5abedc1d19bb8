package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/monitor"
)

// StateSource returns the state sent to a renderer when it subscribes.
type StateSource func() (monitor.State, bool)

// Server upgrades renderer requests to WebSockets and subscribes them to the hub.
type Server struct {
	hub          *Hub
	commands     CommandHandler
	state        StateSource
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer wires the hub, the renderer command handler and the source of the initial state.
// Either of commands and state may be nil.
func NewServer(hub *Hub, commands CommandHandler, state StateSource, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:          hub,
		commands:     commands,
		state:        state,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS subscribes a renderer and sends it the mounted session's state before any live event.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	renderer := newRenderer(id, conn, s.commands, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
	})

	if s.state != nil {
		if st, ok := s.state(); ok {
			if data, err := json.Marshal(monitor.Event{Type: monitor.EventState, SessionID: st.SessionID, State: &st, At: st.UpdatedAt}); err == nil {
				renderer.Send(data)
			}
		}
	}
	s.hub.Add(renderer)

	go renderer.Serve(ctx)
	s.logger.Info("renderer subscribed", zap.String("renderer_id", id))
}
