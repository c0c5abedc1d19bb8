package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparx/backend/services/session-monitor/internal/auth"
	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/http/handlers"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/monitor"
)

const testSecret = "monitor-secret"

type stubSessions struct {
	mu      sync.Mutex
	stopErr error
}

func (s *stubSessions) ActiveSession(ctx context.Context) (*clients.TelemetryPayload, error) {
	return &clients.TelemetryPayload{
		SessionID:      "s1",
		Voltage:        clients.Num(230),
		Current:        clients.Num(16),
		EnergyConsumed: clients.Num(2),
		RelayState:     "ON",
		Status:         "occupied",
	}, nil
}

func (s *stubSessions) SessionByID(ctx context.Context, sessionID string) (*clients.SessionDetail, error) {
	return &clients.SessionDetail{TelemetryPayload: clients.TelemetryPayload{SessionID: sessionID}, DeviceID: "d1"}, nil
}

func (s *stubSessions) StopSession(ctx context.Context, req clients.StopSessionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}

func (s *stubSessions) Receipt(ctx context.Context, sessionID string) (*clients.Receipt, error) {
	return nil, clients.ErrNotFound
}

func (s *stubSessions) setStopErr(err error) {
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
}

type stubEvents struct{}

func (stubEvents) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.MonitorEvent, error) {
	return []models.MonitorEvent{{ID: "e1", SessionID: sessionID, Kind: models.EventPauseStarted}}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubSessions, *monitor.Manager) {
	t.Helper()
	sessions := &stubSessions{}
	manager := monitor.NewManager(func(sc monitor.SessionContext) *monitor.Controller {
		return monitor.NewController(sc, monitor.Options{PollInterval: time.Hour, StaleCheckInterval: time.Hour}, monitor.Deps{Sessions: sessions})
	}, nil)
	t.Cleanup(func() { _ = manager.Unmount() })

	router := NewRouter(RouterDeps{
		Monitor:       handlers.NewMonitorHandlers(manager, stubEvents{}, nil),
		HealthHandler: handlers.Health,
	}, auth.Middleware(testSecret))
	return router, sessions, manager
}

func signedToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMonitorRoutesRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/monitor/state", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/monitor/state", nil, "garbage").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/monitor/state", nil, signedToken(t)).Code)
}

func TestMountStopAndUnmount(t *testing.T) {
	router, sessions, manager := newTestRouter(t)
	token := signedToken(t)

	rec := do(t, router, http.MethodPost, "/monitor/session", monitor.SessionContext{SessionID: "s1", EnergySelected: 10}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	ctrl, err := manager.Current()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ctrl.Snapshot().Energy == 2 }, 2*time.Second, 5*time.Millisecond)

	rec = do(t, router, http.MethodGet, "/monitor/state", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var st monitor.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "s1", st.SessionID)
	assert.InDelta(t, 20, st.UsagePercent, 1e-9)

	sessions.setStopErr(&clients.StatusError{Method: http.MethodPost, Path: "/sessions/stop", Status: 500})
	rec = do(t, router, http.MethodPost, "/monitor/stop", nil, token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, ctrl.Terminated())

	sessions.setStopErr(nil)
	rec = do(t, router, http.MethodPost, "/monitor/stop", nil, token)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Terminated)
	assert.Equal(t, monitor.TargetSummary, st.Target)

	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/monitor/stop", nil, token).Code)

	rec = do(t, router, http.MethodGet, "/monitor/summary", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deviceId":"d1"`)

	rec = do(t, router, http.MethodGet, "/monitor/events?limit=5", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pause_started"`)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/monitor/session", nil, token).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/monitor/session", nil, token).Code)
}

func TestMountRejectsBadBody(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/monitor/session", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsRejectsBadLimit(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/monitor/events?session_id=s1&limit=x", nil, signedToken(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
