package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"sparx/backend/services/session-monitor/internal/http/handlers"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Monitor       *handlers.MonitorHandlers
	WebSocket     http.HandlerFunc
	HealthHandler http.HandlerFunc
}

// NewRouter wires HTTP routes with middleware. /health stays public.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", deps.HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/monitor").Subrouter()
	if authMiddleware != nil {
		api.Use(mux.MiddlewareFunc(authMiddleware))
	}
	api.HandleFunc("/state", deps.Monitor.State).Methods(http.MethodGet)
	api.HandleFunc("/session", deps.Monitor.Mount).Methods(http.MethodPost)
	api.HandleFunc("/session", deps.Monitor.Unmount).Methods(http.MethodDelete)
	api.HandleFunc("/stop", deps.Monitor.Stop).Methods(http.MethodPost)
	api.HandleFunc("/summary", deps.Monitor.Summary).Methods(http.MethodGet)
	api.HandleFunc("/events", deps.Monitor.Events).Methods(http.MethodGet)
	if deps.WebSocket != nil {
		api.HandleFunc("/ws", deps.WebSocket).Methods(http.MethodGet)
	}
	return r
}
