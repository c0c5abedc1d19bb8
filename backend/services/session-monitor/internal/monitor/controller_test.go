package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/pause"
	redisstore "sparx/backend/services/session-monitor/internal/redis"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSessions struct {
	mu        sync.Mutex
	active    *clients.TelemetryPayload
	activeErr error
	detail    *clients.SessionDetail
	receipt   *clients.Receipt
	stopErr   error
	stopGate  chan struct{}
	stopSent  chan struct{}
	stops     []clients.StopSessionRequest
	polls     int
}

func (f *fakeSessions) setActive(p *clients.TelemetryPayload, err error) {
	f.mu.Lock()
	f.active, f.activeErr = p, err
	f.mu.Unlock()
}

func (f *fakeSessions) ActiveSession(ctx context.Context) (*clients.TelemetryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.active, f.activeErr
}

func (f *fakeSessions) SessionByID(ctx context.Context, sessionID string) (*clients.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detail == nil {
		return nil, clients.ErrNotFound
	}
	return f.detail, nil
}

func (f *fakeSessions) StopSession(ctx context.Context, req clients.StopSessionRequest) error {
	f.mu.Lock()
	f.stops = append(f.stops, req)
	gate, sent, err := f.stopGate, f.stopSent, f.stopErr
	f.mu.Unlock()

	if sent != nil {
		close(sent)
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeSessions) Receipt(ctx context.Context, sessionID string) (*clients.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return nil, clients.ErrNotFound
	}
	return f.receipt, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(t EventType) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return Event{}, false
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []models.MonitorEvent
}

func (j *fakeJournal) Insert(ctx context.Context, e *models.MonitorEvent) error {
	j.mu.Lock()
	j.entries = append(j.entries, *e)
	j.mu.Unlock()
	return nil
}

func (j *fakeJournal) kinds() []models.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.EventKind, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Kind)
	}
	return out
}

type fakeCredentials struct {
	mu      sync.Mutex
	cleared int
}

func (f *fakeCredentials) Clear() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

type fakeSnapshots struct {
	mu      sync.Mutex
	saved   map[string]redisstore.Snapshot
	claims  map[string]string
	claimed int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{saved: map[string]redisstore.Snapshot{}, claims: map[string]string{}}
}

func (f *fakeSnapshots) Save(ctx context.Context, snap redisstore.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[snap.SessionID] = snap
	return nil
}

func (f *fakeSnapshots) Load(ctx context.Context, sessionID string) (*redisstore.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.saved[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeSnapshots) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, sessionID)
	return nil
}

func (f *fakeSnapshots) ClaimTermination(ctx context.Context, sessionID, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed++
	if _, ok := f.claims[sessionID]; ok {
		return false, nil
	}
	f.claims[sessionID] = target
	return true, nil
}

type harness struct {
	c        *Controller
	clock    *fakeClock
	sessions *fakeSessions
	sink     *recordingSink
	journal  *fakeJournal
	creds    *fakeCredentials
	snaps    *fakeSnapshots
}

func newHarness(t *testing.T, sc SessionContext, opts Options) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		sessions: &fakeSessions{},
		sink:     &recordingSink{},
		journal:  &fakeJournal{},
		creds:    &fakeCredentials{},
		snaps:    newFakeSnapshots(),
	}
	opts.Now = h.clock.Now
	h.c = NewController(sc, opts, Deps{
		Sessions:    h.sessions,
		Credentials: h.creds,
		Sink:        h.sink,
		Snapshots:   h.snaps,
		Journal:     h.journal,
	})
	return h
}

func (h *harness) poll(p *clients.TelemetryPayload, err error) {
	h.c.flush(h.c.applyResult(fetchResult{gen: h.c.generation, kind: fetchActive, active: p, err: err}, h.clock.Now()))
}

func (h *harness) checkStale() {
	h.c.flush(h.c.checkStale(h.clock.Now()))
}

func (h *harness) tick() {
	h.c.flush(h.c.tickCountdown(h.clock.Now()))
}

func reading(sessionID string, voltage, current, energy float64, relay, status string) *clients.TelemetryPayload {
	return &clients.TelemetryPayload{
		SessionID:      sessionID,
		Voltage:        clients.Num(voltage),
		Current:        clients.Num(current),
		EnergyConsumed: clients.Num(energy),
		RelayState:     relay,
		Status:         status,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStalenessZeroesReadingsAndForcesRelayOff(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1", DeviceID: "d1", EnergySelected: 10}, Options{})

	h.poll(reading("s1", 230, 16, 1.0, "ON", "occupied"), nil)
	st := h.c.Snapshot()
	require.Equal(t, telemetry.RelayOn, st.Relay)
	require.True(t, st.Charging)
	assert.Equal(t, 230.0, st.Voltage)

	for i := 0; i < 3; i++ {
		h.clock.Advance(5 * time.Second)
		h.poll(reading("s1", 230, 16, 1.0, "ON", "occupied"), nil)
		h.checkStale()
	}
	assert.False(t, h.c.Snapshot().ConnectionLost)

	h.clock.Advance(5 * time.Second)
	h.checkStale()

	st = h.c.Snapshot()
	assert.True(t, st.ConnectionLost)
	assert.Zero(t, st.Voltage)
	assert.Zero(t, st.Current)
	assert.Equal(t, telemetry.RelayOff, st.Relay)
	assert.False(t, st.Charging)
	assert.Equal(t, pause.StatePausedOffline, st.PauseState)
	assert.Equal(t, pause.ReasonOfflineOrPaused, st.PauseReason)
	assert.Equal(t, 1, h.sink.count(EventConnectionLost))
	assert.Zero(t, st.CountdownRemaining)

	h.clock.Advance(2 * time.Second)
	h.poll(reading("s1", 230, 16, 1.01, "ON", "occupied"), nil)

	st = h.c.Snapshot()
	assert.False(t, st.ConnectionLost)
	assert.Equal(t, telemetry.RelayOn, st.Relay)
	assert.Equal(t, 230.0, st.Voltage)
	assert.Equal(t, pause.StateActive, st.PauseState)
	assert.Equal(t, 1, h.sink.count(EventConnectionRestored))
	assert.Equal(t, 1, h.sink.count(EventPauseCleared))
	assert.Contains(t, h.journal.kinds(), models.EventConnectionLost)
	assert.Contains(t, h.journal.kinds(), models.EventConnectionRestored)
}

func TestReasonLockKeepsCountdownRunning(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	h.poll(reading("s1", 120, 0, 2.0, "OFF", "occupied"), nil)
	st := h.c.Snapshot()
	require.Equal(t, pause.StatePausedButton, st.PauseState)
	require.Equal(t, pause.ReasonEmergencyButton, st.PauseReason)
	require.Equal(t, 300, st.CountdownRemaining)
	assert.True(t, st.PopupVisible)

	h.tick()
	h.tick()
	h.tick()
	require.Equal(t, 297, h.c.Snapshot().CountdownRemaining)

	h.clock.Advance(5 * time.Second)
	h.poll(reading("s1", 0, 0, 2.0, "OFF", "offline"), nil)
	h.clock.Advance(30 * time.Second)
	h.checkStale()

	st = h.c.Snapshot()
	assert.Equal(t, pause.StatePausedButton, st.PauseState)
	assert.Equal(t, pause.ReasonEmergencyButton, st.PauseReason)
	assert.Equal(t, 297, st.CountdownRemaining)
	assert.Equal(t, 1, h.sink.count(EventPauseStarted))

	h.poll(reading("s1", 230, 16, 2.1, "ON", "occupied"), nil)
	st = h.c.Snapshot()
	assert.Equal(t, pause.StateActive, st.PauseState)
	assert.Equal(t, pause.ReasonNone, st.PauseReason)
	assert.Zero(t, st.CountdownRemaining)
	assert.False(t, st.PopupVisible)
	assert.False(t, h.c.countdownRunning())
}

func TestOfflinePauseDoesNotStartCountdown(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	h.poll(reading("s1", 0, 0, 2.0, "OFF", "offline"), nil)
	st := h.c.Snapshot()
	assert.Equal(t, pause.StatePausedOffline, st.PauseState)
	assert.False(t, h.c.countdownRunning())
}

func TestTerminationFiresOnceWhenNotFoundFollowsCountdown(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{CountdownSeconds: 2})

	h.poll(reading("s1", 120, 0, 2.0, "OFF", "occupied"), nil)
	h.tick()
	h.tick()
	h.poll(nil, clients.ErrNoActiveSession)
	h.tick()

	assert.Equal(t, 1, h.sink.count(EventNavigate))
	nav, ok := h.sink.last(EventNavigate)
	require.True(t, ok)
	assert.Equal(t, TargetSummary, nav.Target)
	assert.Equal(t, "s1", nav.SessionID)
	assert.Equal(t, 1, h.snaps.claimed)

	terminated := 0
	for _, k := range h.journal.kinds() {
		if k == models.EventSessionTerminated {
			terminated++
		}
	}
	assert.Equal(t, 1, terminated)
}

func TestTerminationFiresOnceWhenCountdownFollowsNotFound(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{CountdownSeconds: 1})

	h.poll(reading("s1", 120, 0, 2.0, "OFF", "occupied"), nil)
	h.poll(nil, clients.ErrNoActiveSession)
	h.tick()

	assert.Equal(t, 1, h.sink.count(EventNavigate))
	assert.True(t, h.c.Terminated())
	assert.Equal(t, TargetSummary, h.c.Snapshot().Target)
}

func TestTerminationClearsPauseState(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{CountdownSeconds: 1})

	h.poll(reading("s1", 120, 0, 2.0, "OFF", "occupied"), nil)
	st := h.c.Snapshot()
	require.Equal(t, pause.StatePausedButton, st.PauseState)
	require.True(t, st.PopupVisible)

	h.tick()

	st = h.c.Snapshot()
	assert.True(t, st.Terminated)
	assert.Equal(t, pause.StateActive, st.PauseState)
	assert.Equal(t, pause.ReasonNone, st.PauseReason)
	assert.False(t, st.PopupVisible)

	final, ok := h.sink.last(EventState)
	require.True(t, ok)
	require.NotNil(t, final.State)
	assert.Equal(t, pause.StateActive, final.State.PauseState)
	assert.False(t, final.State.PopupVisible)
}

func TestTerminationFiresOnceUnderConcurrentPaths(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, SessionContext{SessionID: "s1"}, Options{CountdownSeconds: 1})
		h.poll(reading("s1", 120, 0, 2.0, "OFF", "occupied"), nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.tick()
		}()
		go func() {
			defer wg.Done()
			h.poll(nil, clients.ErrNoActiveSession)
		}()
		wg.Wait()

		require.Equal(t, 1, h.sink.count(EventNavigate))
	}
}

func TestNotFoundNavigatesHomeWithoutSessionID(t *testing.T) {
	h := newHarness(t, SessionContext{}, Options{})

	h.poll(nil, clients.ErrNoActiveSession)

	nav, ok := h.sink.last(EventNavigate)
	require.True(t, ok)
	assert.Equal(t, TargetHome, nav.Target)
	assert.Zero(t, h.snaps.claimed)
}

func TestNotFoundUsesLastPolledSessionID(t *testing.T) {
	h := newHarness(t, SessionContext{}, Options{})

	h.poll(reading("s9", 230, 16, 1, "ON", "occupied"), nil)
	h.poll(nil, clients.ErrNoActiveSession)

	nav, ok := h.sink.last(EventNavigate)
	require.True(t, ok)
	assert.Equal(t, TargetSummary, nav.Target)
	assert.Equal(t, "s9", nav.SessionID)
}

func TestUnauthorizedClearsCredentialAndStops(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	h.poll(nil, clients.ErrUnauthorized)
	h.poll(reading("s1", 230, 16, 1, "ON", "occupied"), nil)

	assert.Equal(t, 1, h.creds.cleared)
	assert.True(t, h.c.Terminated())
	nav, ok := h.sink.last(EventNavigate)
	require.True(t, ok)
	assert.Equal(t, TargetLogin, nav.Target)
	assert.Zero(t, h.c.Snapshot().Energy)
}

func TestTransientErrorKeepsPolling(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	h.poll(nil, errors.New("connection refused"))
	h.poll(nil, &clients.StatusError{Method: "GET", Path: "/sessions/active", Status: 502})
	h.poll(reading("s1", 230, 16, 1.5, "ON", "occupied"), nil)

	assert.False(t, h.c.Terminated())
	assert.Zero(t, h.sink.count(EventNavigate))
	assert.Equal(t, 1.5, h.c.Snapshot().Energy)
}

func TestUsageFreezesWhileNotCharging(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1", EnergySelected: 10, AmountPaid: 200}, Options{})

	h.poll(reading("s1", 230, 16, 4.2, "ON", "occupied"), nil)
	require.InDelta(t, 42, h.c.Snapshot().UsagePercent, 1e-9)

	h.poll(reading("s1", 230, 0, 8.0, "OFF", "available"), nil)
	st := h.c.Snapshot()
	assert.False(t, st.Charging)
	assert.InDelta(t, 42, st.UsagePercent, 1e-9)
	assert.Equal(t, 8.0, st.Energy)

	h.poll(reading("s1", 230, 16, 8.0, "ON", "occupied"), nil)
	assert.InDelta(t, 80, h.c.Snapshot().UsagePercent, 1e-9)
	assert.InDelta(t, 160, h.c.Snapshot().AmountUtilized, 1e-9)
}

func TestMeterResetCarriesDisplayEnergy(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	for _, raw := range []float64{10.0, 10.2, 0.1, 0.3} {
		h.poll(reading("s1", 230, 16, raw, "ON", "occupied"), nil)
	}
	st := h.c.Snapshot()
	assert.InDelta(t, 10.5, st.Energy, 1e-9)
	assert.InDelta(t, 10.2, st.Offset, 1e-9)

	saved, err := h.snaps.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.InDelta(t, 10.5, saved.Energy.Display, 1e-9)
}

func TestStopSessionFailureKeepsSessionActive(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1", DeviceID: "d1"}, Options{})
	h.poll(reading("s1", 230, 16, 1, "ON", "occupied"), nil)
	h.sessions.stopErr = &clients.StatusError{Method: "POST", Path: "/sessions/stop", Status: 500}

	err := h.c.StopSession(context.Background())
	require.Error(t, err)

	var statusErr *clients.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.False(t, h.c.Terminated())
	assert.NotEmpty(t, h.c.Snapshot().Alert)
	assert.Equal(t, 1, h.sink.count(EventAlert))
	assert.Contains(t, h.journal.kinds(), models.EventStopFailed)

	h.sessions.stopErr = nil
	require.NoError(t, h.c.StopSession(context.Background()))
	assert.True(t, h.c.Terminated())
	assert.Empty(t, h.c.Snapshot().Alert)

	require.Len(t, h.sessions.stops, 2)
	req := h.sessions.stops[1]
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "d1", req.DeviceID)
	assert.Equal(t, "manual", req.EndTrigger)
	assert.Equal(t, h.clock.Now().UTC(), req.EndTime)

	nav, ok := h.sink.last(EventNavigate)
	require.True(t, ok)
	assert.Equal(t, TargetSummary, nav.Target)
	assert.ErrorIs(t, h.c.StopSession(context.Background()), ErrSessionEnded)
}

func TestStopSessionWithoutSessionID(t *testing.T) {
	h := newHarness(t, SessionContext{}, Options{})
	assert.ErrorIs(t, h.c.StopSession(context.Background()), ErrNoSession)
}

func TestInitialLoadFillsSessionDetails(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})

	detail := &clients.SessionDetail{
		TelemetryPayload: *reading("s1", 230, 16, 5, "ON", "occupied"),
		DeviceID:         "d7",
		AmountPaid:       clients.Num(100),
		EnergySelected:   clients.Num(20),
	}
	h.c.flush(h.c.applyResult(fetchResult{kind: fetchInitial, detail: detail}, h.clock.Now()))

	st := h.c.Snapshot()
	assert.Equal(t, "d7", st.DeviceID)
	assert.Equal(t, 5.0, st.Energy)
	assert.InDelta(t, 25, st.UsagePercent, 1e-9)
	assert.InDelta(t, 25, st.AmountUtilized, 1e-9)
}

func TestStartPollsAndStopDropsLateResults(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{PollInterval: time.Hour, StaleCheckInterval: time.Hour})
	h.sessions.setActive(reading("s1", 230, 16, 3, "ON", "occupied"), nil)

	require.NoError(t, h.c.Start(context.Background()))
	assert.ErrorIs(t, h.c.Start(context.Background()), ErrAlreadyStarted)
	waitFor(t, func() bool { return h.c.Snapshot().Energy == 3 })

	h.c.Stop()
	select {
	case <-h.c.Done():
	default:
		t.Fatal("loop still running after Stop")
	}

	fx := h.c.applyResult(fetchResult{gen: 0, kind: fetchActive, active: reading("s1", 230, 16, 9, "ON", "occupied")}, h.clock.Now())
	assert.True(t, fx.empty())
	assert.Equal(t, 3.0, h.c.Snapshot().Energy)
}

func TestStopSessionResultDroppedAfterStop(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{PollInterval: time.Hour, StaleCheckInterval: time.Hour})
	h.sessions.setActive(reading("s1", 230, 16, 3, "ON", "occupied"), nil)
	h.sessions.stopGate = make(chan struct{})
	h.sessions.stopSent = make(chan struct{})

	require.NoError(t, h.c.Start(context.Background()))
	waitFor(t, func() bool { return h.c.Snapshot().Energy == 3 })

	errCh := make(chan error, 1)
	go func() { errCh <- h.c.StopSession(context.Background()) }()
	<-h.sessions.stopSent
	h.c.Stop()
	close(h.sessions.stopGate)
	require.NoError(t, <-errCh)

	assert.False(t, h.c.Terminated())
	assert.Zero(t, h.sink.count(EventNavigate))
	assert.NotContains(t, h.journal.kinds(), models.EventSessionTerminated)
	assert.Zero(t, h.snaps.claimed)
}

func TestStopSessionFailureDroppedAfterStop(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{PollInterval: time.Hour, StaleCheckInterval: time.Hour})
	h.sessions.setActive(reading("s1", 230, 16, 3, "ON", "occupied"), nil)
	h.sessions.stopErr = errors.New("backend down")
	h.sessions.stopGate = make(chan struct{})
	h.sessions.stopSent = make(chan struct{})

	require.NoError(t, h.c.Start(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- h.c.StopSession(context.Background()) }()
	<-h.sessions.stopSent
	h.c.Stop()
	close(h.sessions.stopGate)
	require.Error(t, <-errCh)

	assert.Empty(t, h.c.Snapshot().Alert)
	assert.NotContains(t, h.journal.kinds(), models.EventStopFailed)
}

func TestStartRestoresSnapshot(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{PollInterval: time.Hour, StaleCheckInterval: time.Hour})
	last := 7.5
	require.NoError(t, h.snaps.Save(context.Background(), redisstore.Snapshot{
		SessionID:   "s1",
		DeviceID:    "d3",
		Energy:      telemetry.EnergyState{Display: 7.5, LastRaw: &last},
		FrozenUsage: 12,
	}))
	h.sessions.setActive(reading("s1", 230, 16, 0.2, "ON", "occupied"), nil)

	require.NoError(t, h.c.Start(context.Background()))
	defer h.c.Stop()

	waitFor(t, func() bool { return h.c.Snapshot().Energy > 7.5 })
	st := h.c.Snapshot()
	assert.InDelta(t, 7.7, st.Energy, 1e-9)
	assert.Equal(t, "d3", st.DeviceID)
}

func TestLoopRunsCountdownToTermination(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{
		PollInterval:       20 * time.Millisecond,
		StaleCheckInterval: 10 * time.Millisecond,
		CountdownTick:      5 * time.Millisecond,
		CountdownSeconds:   3,
		DeadTime:           time.Hour,
	})
	h.sessions.setActive(reading("s1", 120, 0, 2, "OFF", "occupied"), nil)

	require.NoError(t, h.c.Start(context.Background()))
	select {
	case <-h.c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not terminate")
	}

	assert.Equal(t, 1, h.sink.count(EventNavigate))
	assert.Equal(t, 3, h.sink.count(EventCountdown))
	assert.Equal(t, TargetSummary, h.c.Snapshot().Target)
	h.c.Stop()
}

func TestSummaryLoadsSessionAndReceipt(t *testing.T) {
	h := newHarness(t, SessionContext{SessionID: "s1"}, Options{})
	h.sessions.detail = &clients.SessionDetail{TelemetryPayload: clients.TelemetryPayload{SessionID: "s1"}, DeviceID: "d1"}

	sum, err := h.c.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "d1", sum.Session.DeviceID)
	assert.Nil(t, sum.Receipt)

	h.sessions.receipt = &clients.Receipt{ReceiptID: "r1", Refund: clients.Num(12.5)}
	sum, err = h.c.Summary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum.Receipt)
	assert.Equal(t, "r1", sum.Receipt.ReceiptID)
}
