package simulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/clients"
)

// Handlers serves the backend session contract from a Meter, plus /sim control endpoints.
type Handlers struct {
	meter  *Meter
	token  string
	logger *zap.Logger
}

// NewHandlers builds handler set. A non-empty token makes the session routes require it as Bearer.
func NewHandlers(meter *Meter, token string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{meter: meter, token: strings.TrimSpace(token), logger: logger}
}

// Router registers endpoints.
func (h *Handlers) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/sessions/active", h.requireToken(http.HandlerFunc(h.ActiveSession))).Methods(http.MethodGet)
	r.Handle("/sessions/stop", h.requireToken(http.HandlerFunc(h.StopSession))).Methods(http.MethodPost)
	r.Handle("/sessions/{id}", h.requireToken(http.HandlerFunc(h.SessionByID))).Methods(http.MethodGet)
	r.Handle("/receipts/{id}", h.requireToken(http.HandlerFunc(h.Receipt))).Methods(http.MethodGet)

	sim := r.PathPrefix("/sim").Subrouter()
	sim.HandleFunc("/session", h.StartSession).Methods(http.MethodPost)
	sim.HandleFunc("/step", h.step).Methods(http.MethodPost)
	sim.HandleFunc("/reset", h.reset).Methods(http.MethodPost)
	sim.HandleFunc("/freeze", h.freeze).Methods(http.MethodPost)
	sim.HandleFunc("/emergency", h.emergency).Methods(http.MethodPost)
	sim.HandleFunc("/relay", h.relay).Methods(http.MethodPost)
	sim.HandleFunc("/status", h.status).Methods(http.MethodPost)
	sim.HandleFunc("/fail-stop", h.failStop).Methods(http.MethodPost)
	sim.HandleFunc("/end", h.end).Methods(http.MethodPost)
	return r
}

// ActiveSession handles GET /sessions/active.
func (h *Handlers) ActiveSession(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.meter.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// SessionByID handles GET /sessions/{id}.
func (h *Handlers) SessionByID(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.meter.Detail(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// StopSession handles POST /sessions/stop.
func (h *Handlers) StopSession(w http.ResponseWriter, r *http.Request) {
	var req clients.StopSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	err := h.meter.Stop(req)
	switch {
	case err == nil:
		h.logger.Info("session stopped", zap.String("session_id", req.SessionID), zap.String("end_trigger", req.EndTrigger))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionEnded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Receipt handles GET /receipts/{id}.
func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request) {
	receipt, ok := h.meter.Receipt(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type startRequest struct {
	SessionID      string  `json:"sessionId"`
	DeviceID       string  `json:"deviceId"`
	TransactionID  string  `json:"transactionId"`
	AmountPaid     float64 `json:"amountPaid"`
	EnergySelected float64 `json:"energySelected"`
}

// StartSession handles POST /sim/session.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	h.meter.StartSession(Session{
		SessionID:      req.SessionID,
		DeviceID:       req.DeviceID,
		TransactionID:  req.TransactionID,
		AmountPaid:     req.AmountPaid,
		EnergySelected: req.EnergySelected,
	})
	h.logger.Info("simulated session started", zap.String("session_id", req.SessionID))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handlers) step(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}
	for i := 0; i < n; i++ {
		h.meter.Step()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) reset(w http.ResponseWriter, r *http.Request) {
	h.meter.ResetCounter()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) freeze(w http.ResponseWriter, r *http.Request) {
	h.meter.Freeze(flag(r, "on", true))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) emergency(w http.ResponseWriter, r *http.Request) {
	h.meter.PressEmergency()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) relay(w http.ResponseWriter, r *http.Request) {
	h.meter.SetRelay(strings.EqualFold(r.URL.Query().Get("state"), "on"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	value := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("value")))
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	h.meter.SetStatus(value)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) failStop(w http.ResponseWriter, r *http.Request) {
	h.meter.FailStop(flag(r, "on", true))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) end(w http.ResponseWriter, r *http.Request) {
	if !h.meter.End(TriggerSimulated) {
		writeError(w, http.StatusConflict, "no active session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")) != h.token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func flag(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
