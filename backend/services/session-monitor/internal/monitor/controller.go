package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/pause"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

const stopAlertMessage = "Failed to stop the session. Please try again."

// Controller reconciles live telemetry for one mounted session view. All mutable state is owned by
// the controller and changed only by its transition functions.
type Controller struct {
	opts    Options
	deps    Deps
	logger  *zap.Logger
	session SessionContext

	mu             sync.Mutex
	filter         *telemetry.EnergyFilter
	detector       *telemetry.ChangeDetector
	classifier     *pause.Classifier
	countdown      *pause.Countdown
	freezer        telemetry.Freezer
	last           telemetry.Sample
	hasSample      bool
	lastSessionID  string
	deviceID       string
	energySelected float64
	amountPaid     float64
	episodeID      string
	alert          string
	terminated     bool
	target         Target
	generation     uint64
	started        bool
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewController builds an idle controller for a session view.
func NewController(sc SessionContext, opts Options, deps Deps) *Controller {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		opts:           opts,
		deps:           deps,
		logger:         logger.With(zap.String("session_id", sc.SessionID)),
		session:        sc,
		filter:         telemetry.NewEnergyFilter(opts.NoiseTolerance, opts.ResetTolerance),
		detector:       telemetry.NewChangeDetector(opts.Thresholds, opts.DeadTime, opts.Now()),
		classifier:     pause.NewClassifier(opts.Rules),
		countdown:      pause.NewCountdown(opts.CountdownSeconds),
		lastSessionID:  sc.SessionID,
		deviceID:       sc.DeviceID,
		energySelected: sc.EnergySelected,
		amountPaid:     sc.AmountPaid,
	}
}

// Session returns the context the controller was mounted with.
func (c *Controller) Session() SessionContext {
	return c.session
}

// Start restores any cached state and launches the poll, stale-check and countdown timers.
func (c *Controller) Start(ctx context.Context) error {
	if c.deps.Sessions == nil {
		return errors.New("monitor: sessions api is required")
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	gen := c.generation
	c.mu.Unlock()

	c.restore(loopCtx)

	c.logger.Info("session monitor started")
	go c.run(loopCtx, gen)
	return nil
}

// Stop cancels every timer and waits for the loop to exit. Results still in flight are dropped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.generation++
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	<-done
	c.logger.Info("session monitor stopped")
}

// Done is closed when the loop exits, after Stop or a terminal transition.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Snapshot returns the current reconciled state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(c.opts.Now())
}

// Terminated reports whether the terminal transition happened.
func (c *Controller) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// StopSession asks the backend to end the session. On failure the session stays active and an
// alert is raised; on success the view navigates to the summary.
func (c *Controller) StopSession(ctx context.Context) error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	sessionID := c.currentIDLocked()
	deviceID := c.deviceID
	gen := c.generation
	c.alert = ""
	c.mu.Unlock()

	if sessionID == "" {
		return ErrNoSession
	}

	now := c.opts.Now()
	err := c.deps.Sessions.StopSession(ctx, clients.StopSessionRequest{
		SessionID:  sessionID,
		DeviceID:   deviceID,
		EndTime:    now.UTC(),
		EndTrigger: "manual",
	})

	var fx effects
	c.mu.Lock()
	switch {
	case gen != c.generation:
		c.logger.Info("stop result dropped, view no longer mounted", zap.Error(err))
	case c.terminated:
	case err == nil:
		c.logger.Info("session stopped by user")
		c.terminateLocked(&fx, TargetSummary, sessionID, "manual_stop", now)
	case errors.Is(err, clients.ErrUnauthorized):
		c.logger.Warn("stop rejected credential", zap.Error(err))
		fx.clearCredentials = true
		c.terminateLocked(&fx, TargetLogin, sessionID, "unauthorized", now)
	default:
		c.logger.Error("failed to stop session", zap.Error(err))
		c.alert = stopAlertMessage
		fx.events = append(fx.events, Event{Type: EventAlert, SessionID: sessionID, Message: c.alert, At: now})
		c.journalLocked(&fx, models.EventStopFailed, "", err.Error(), now)
		c.publishStateLocked(&fx, now)
	}
	c.mu.Unlock()
	c.flush(fx)

	if err != nil {
		return fmt.Errorf("monitor: stop session: %w", err)
	}
	return nil
}

// Summary loads the final session snapshot and receipt. A missing receipt is not an error.
func (c *Controller) Summary(ctx context.Context) (*Summary, error) {
	st := c.Snapshot()
	if st.SessionID == "" {
		return nil, ErrNoSession
	}
	detail, err := c.deps.Sessions.SessionByID(ctx, st.SessionID)
	if err != nil {
		return nil, fmt.Errorf("monitor: load session: %w", err)
	}
	receipt, err := c.deps.Sessions.Receipt(ctx, st.SessionID)
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			return nil, fmt.Errorf("monitor: load receipt: %w", err)
		}
		receipt = nil
	}
	return &Summary{SessionID: st.SessionID, Session: detail, Receipt: receipt, State: st}, nil
}

// Summary is the post-session view.
type Summary struct {
	SessionID string                 `json:"session_id"`
	Session   *clients.SessionDetail `json:"session,omitempty"`
	Receipt   *clients.Receipt       `json:"receipt,omitempty"`
	State     State                  `json:"state"`
}

type fetchKind int

const (
	fetchActive fetchKind = iota
	fetchInitial
)

type fetchResult struct {
	gen    uint64
	kind   fetchKind
	active *clients.TelemetryPayload
	detail *clients.SessionDetail
	err    error
}

func (c *Controller) run(ctx context.Context, gen uint64) {
	defer close(c.done)

	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	stale := time.NewTicker(c.opts.StaleCheckInterval)
	defer stale.Stop()

	var (
		countdown  *time.Ticker
		countdownC <-chan time.Time
	)
	defer func() {
		if countdown != nil {
			countdown.Stop()
		}
	}()

	results := make(chan fetchResult, 2)
	c.fetch(ctx, gen, fetchInitial, results)
	c.fetch(ctx, gen, fetchActive, results)
	inFlight := true

	for {
		var fx effects
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if !inFlight {
				inFlight = true
				c.fetch(ctx, gen, fetchActive, results)
			}
			continue
		case <-stale.C:
			fx = c.checkStale(c.opts.Now())
		case <-countdownC:
			fx = c.tickCountdown(c.opts.Now())
		case res := <-results:
			if res.kind == fetchActive {
				inFlight = false
			}
			fx = c.applyResult(res, c.opts.Now())
		}
		c.flush(fx)

		running := c.countdownRunning()
		switch {
		case running && countdown == nil:
			countdown = time.NewTicker(c.opts.CountdownTick)
			countdownC = countdown.C
		case !running && countdown != nil:
			countdown.Stop()
			countdown, countdownC = nil, nil
		}
	}
}

func (c *Controller) fetch(ctx context.Context, gen uint64, kind fetchKind, out chan<- fetchResult) {
	sessionID := c.session.SessionID
	if kind == fetchInitial && sessionID == "" {
		return
	}
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()

		res := fetchResult{gen: gen, kind: kind}
		if kind == fetchInitial {
			res.detail, res.err = c.deps.Sessions.SessionByID(reqCtx, sessionID)
		} else {
			res.active, res.err = c.deps.Sessions.ActiveSession(reqCtx)
		}
		select {
		case out <- res:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) countdownRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown.Running()
}

func (c *Controller) restore(ctx context.Context) {
	if c.deps.Snapshots == nil || c.session.SessionID == "" {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	snap, err := c.deps.Snapshots.Load(loadCtx, c.session.SessionID)
	if err != nil {
		c.logger.Warn("failed to load snapshot", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}

	c.mu.Lock()
	c.filter.Restore(snap.Energy)
	c.freezer.Restore(snap.FrozenUsage)
	if c.deviceID == "" {
		c.deviceID = snap.DeviceID
	}
	c.mu.Unlock()
	c.logger.Info("restored reconciled state", zap.Float64("energy", snap.Energy.Display))
}

// flush performs the side effects collected by a transition, outside the lock.
func (c *Controller) flush(fx effects) {
	if fx.empty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()

	if fx.clearCredentials && c.deps.Credentials != nil {
		c.deps.Credentials.Clear()
	}

	if fx.save != nil && c.deps.Snapshots != nil {
		if err := c.deps.Snapshots.Save(ctx, *fx.save); err != nil {
			c.logger.Warn("failed to save snapshot", zap.Error(err))
		}
	}

	journal := fx.journal
	if t := fx.terminal; t != nil {
		record := true
		if c.deps.Snapshots != nil && t.sessionID != "" {
			claimed, err := c.deps.Snapshots.ClaimTermination(ctx, t.sessionID, string(t.target))
			switch {
			case err != nil:
				c.logger.Warn("failed to claim termination", zap.Error(err))
			case !claimed:
				record = false
				c.logger.Info("termination already recorded by another monitor")
			}
			if err := c.deps.Snapshots.Delete(ctx, t.sessionID); err != nil {
				c.logger.Warn("failed to delete snapshot", zap.Error(err))
			}
		}
		if !record {
			journal = withoutKind(journal, models.EventSessionTerminated)
		}
	}

	if c.deps.Journal != nil {
		for i := range journal {
			entry := journal[i]
			if entry.SessionID == "" {
				continue
			}
			if err := c.deps.Journal.Insert(ctx, &entry); err != nil {
				c.logger.Warn("failed to journal event", zap.String("kind", string(entry.Kind)), zap.Error(err))
			}
		}
	}

	if c.deps.Sink != nil {
		for _, e := range fx.events {
			c.deps.Sink.Publish(e)
		}
	}
}

func withoutKind(entries []models.MonitorEvent, kind models.EventKind) []models.MonitorEvent {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Kind != kind {
			out = append(out, e)
		}
	}
	return out
}
