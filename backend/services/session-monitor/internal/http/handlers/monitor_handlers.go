package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/monitor"
)

// Views mounts and resolves session controllers.
type Views interface {
	Mount(sc monitor.SessionContext) (*monitor.Controller, error)
	Unmount() error
	Current() (*monitor.Controller, error)
}

// EventLister reads the monitor journal.
type EventLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.MonitorEvent, error)
}

// MonitorHandlers exposes the mounted session view over HTTP.
type MonitorHandlers struct {
	views  Views
	events EventLister
	logger *zap.Logger
}

// NewMonitorHandlers builds handler set. events may be nil when the journal is disabled.
func NewMonitorHandlers(views Views, events EventLister, logger *zap.Logger) *MonitorHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitorHandlers{views: views, events: events, logger: logger}
}

// State handles GET /monitor/state.
func (h *MonitorHandlers) State(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// Mount handles POST /monitor/session.
func (h *MonitorHandlers) Mount(w http.ResponseWriter, r *http.Request) {
	var sc monitor.SessionContext
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sc.SessionID = strings.TrimSpace(sc.SessionID)
	sc.DeviceID = strings.TrimSpace(sc.DeviceID)
	if sc.EnergySelected < 0 || sc.AmountPaid < 0 {
		writeError(w, http.StatusBadRequest, "amounts must not be negative")
		return
	}

	ctrl, err := h.views.Mount(sc)
	if err != nil {
		h.logger.Error("mount failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to mount session view")
		return
	}
	writeJSON(w, http.StatusCreated, ctrl.Snapshot())
}

// Unmount handles DELETE /monitor/session.
func (h *MonitorHandlers) Unmount(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Unmount(); err != nil {
		if errors.Is(err, monitor.ErrNotMounted) {
			writeError(w, http.StatusNotFound, "no session mounted")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unmount")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stop handles POST /monitor/stop.
func (h *MonitorHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.current(w)
	if !ok {
		return
	}
	err := ctrl.StopSession(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ctrl.Snapshot())
	case errors.Is(err, monitor.ErrSessionEnded), errors.Is(err, monitor.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, clients.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "backend rejected credential")
	default:
		writeError(w, http.StatusBadGateway, ctrl.Snapshot().Alert)
	}
}

// Summary handles GET /monitor/summary.
func (h *MonitorHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.current(w)
	if !ok {
		return
	}
	summary, err := ctrl.Summary(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, monitor.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, clients.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, clients.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "backend rejected credential")
	default:
		h.logger.Warn("summary failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load summary")
	}
}

// Events handles GET /monitor/events?session_id=&limit=.
func (h *MonitorHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		ctrl, ok := h.current(w)
		if !ok {
			return
		}
		sessionID = ctrl.Snapshot().SessionID
	}
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.events.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []models.MonitorEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"events":     events,
	})
}

func (h *MonitorHandlers) current(w http.ResponseWriter) (*monitor.Controller, bool) {
	ctrl, err := h.views.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, "no session mounted")
		return nil, false
	}
	return ctrl, true
}
