package monitor

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/models"
	"sparx/backend/services/session-monitor/internal/pause"
	redisstore "sparx/backend/services/session-monitor/internal/redis"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

type terminal struct {
	target    Target
	sessionID string
	cause     string
}

// effects are the side effects of one transition, applied by flush after the lock is released.
type effects struct {
	events           []Event
	journal          []models.MonitorEvent
	save             *redisstore.Snapshot
	terminal         *terminal
	clearCredentials bool
}

func (fx effects) empty() bool {
	return len(fx.events) == 0 && len(fx.journal) == 0 && fx.save == nil && fx.terminal == nil && !fx.clearCredentials
}

func (c *Controller) applyResult(res fetchResult, now time.Time) effects {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fx effects
	if res.gen != c.generation || c.terminated {
		return fx
	}
	if res.kind == fetchInitial {
		c.applyInitialLocked(&fx, res.detail, res.err, now)
	} else {
		c.applyPollLocked(&fx, res.active, res.err, now)
	}
	return fx
}

func (c *Controller) applyPollLocked(fx *effects, payload *clients.TelemetryPayload, err error, now time.Time) {
	switch {
	case err == nil:
	case errors.Is(err, clients.ErrUnauthorized):
		c.logger.Warn("backend rejected credential", zap.Error(err))
		fx.clearCredentials = true
		c.terminateLocked(fx, TargetLogin, c.lastSessionID, "unauthorized", now)
		return
	case errors.Is(err, clients.ErrNotFound):
		target := TargetSummary
		if c.lastSessionID == "" {
			target = TargetHome
		}
		c.logger.Info("no active session", zap.String("target", string(target)))
		c.terminateLocked(fx, target, c.lastSessionID, "no_active_session", now)
		return
	default:
		c.logger.Warn("poll failed", zap.Error(err))
		return
	}
	if payload == nil {
		return
	}
	c.observeLocked(fx, telemetry.NewSample(payload.Reading(), now), now)
}

func (c *Controller) applyInitialLocked(fx *effects, detail *clients.SessionDetail, err error, now time.Time) {
	if err != nil {
		if errors.Is(err, clients.ErrUnauthorized) {
			c.applyPollLocked(fx, nil, err, now)
			return
		}
		c.logger.Warn("initial session load failed", zap.Error(err))
		return
	}
	if detail == nil {
		return
	}
	if c.deviceID == "" {
		c.deviceID = detail.DeviceID
	}
	if c.energySelected <= 0 && detail.EnergySelected.Valid {
		c.energySelected = detail.EnergySelected.Value
	}
	if c.amountPaid <= 0 && detail.AmountPaid.Valid {
		c.amountPaid = detail.AmountPaid.Value
	}
	if c.hasSample {
		c.publishStateLocked(fx, now)
		return
	}
	c.observeLocked(fx, telemetry.NewSample(detail.Reading(), now), now)
}

// observeLocked folds one sample into the reconciled state.
func (c *Controller) observeLocked(fx *effects, s telemetry.Sample, now time.Time) {
	if s.SessionID != "" {
		c.lastSessionID = s.SessionID
	}

	wasStale := c.detector.Stale()
	c.detector.Observe(s, now)
	if wasStale && !c.detector.Stale() {
		c.logger.Info("telemetry restored")
		fx.events = append(fx.events, Event{Type: EventConnectionRestored, SessionID: c.currentIDLocked(), At: now})
		c.journalLocked(fx, models.EventConnectionRestored, "", "", now)
	}

	if s.HasEnergy {
		c.filter.Apply(s.Energy)
	}
	c.last = s
	c.hasSample = true

	c.evaluateLocked(fx, now)
	c.recordUsageLocked()
	c.publishStateLocked(fx, now)

	if snap := c.snapshotLocked(now); snap.SessionID != "" {
		fx.save = &snap
	}
}

// evaluateLocked runs one classifier tick and reports whether the pause state moved.
func (c *Controller) evaluateLocked(fx *effects, now time.Time) bool {
	tr := c.classifier.Evaluate(pause.Input{
		Stale:   c.detector.Stale(),
		Status:  c.last.Status,
		Relay:   c.last.Relay,
		Voltage: c.last.Voltage,
	})

	switch {
	case tr.Entered:
		c.episodeID = uuid.NewString()
		if tr.To == pause.StatePausedButton {
			c.countdown.Start()
		}
		c.logger.Info("session paused",
			zap.String("state", string(tr.To)),
			zap.String("reason", string(tr.Reason)),
			zap.String("episode_id", c.episodeID),
		)
		fx.events = append(fx.events, Event{
			Type:      EventPauseStarted,
			SessionID: c.currentIDLocked(),
			Reason:    string(tr.Reason),
			Remaining: c.countdown.Remaining(),
			At:        now,
		})
		c.journalLocked(fx, models.EventPauseStarted, string(tr.Reason), "episode="+c.episodeID, now)
	case tr.Cleared:
		c.countdown.Cancel()
		c.logger.Info("session resumed", zap.String("episode_id", c.episodeID))
		fx.events = append(fx.events, Event{Type: EventPauseCleared, SessionID: c.currentIDLocked(), At: now})
		c.journalLocked(fx, models.EventPauseCleared, "", "episode="+c.episodeID, now)
		c.episodeID = ""
	}
	return tr.Changed()
}

func (c *Controller) checkStale(now time.Time) effects {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fx effects
	if c.terminated {
		return fx
	}
	stale, changed := c.detector.Check(now)
	if changed && stale {
		c.logger.Warn("telemetry stale, connection lost", zap.Time("last_change_at", c.detector.LastChange()))
		fx.events = append(fx.events, Event{Type: EventConnectionLost, SessionID: c.currentIDLocked(), At: now})
		c.journalLocked(&fx, models.EventConnectionLost, "", "", now)
	}
	moved := c.evaluateLocked(&fx, now)
	if changed || moved {
		c.recordUsageLocked()
		c.publishStateLocked(&fx, now)
	}
	return fx
}

func (c *Controller) tickCountdown(now time.Time) effects {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fx effects
	if c.terminated || !c.countdown.Running() {
		return fx
	}
	fired := c.countdown.Tick()
	fx.events = append(fx.events, Event{
		Type:      EventCountdown,
		SessionID: c.currentIDLocked(),
		Remaining: c.countdown.Remaining(),
		At:        now,
	})
	if fired {
		target := TargetSummary
		if c.lastSessionID == "" {
			target = TargetHome
		}
		c.logger.Warn("emergency pause timed out")
		c.terminateLocked(&fx, target, c.lastSessionID, "emergency_timeout", now)
		c.lastSessionID = ""
		return fx
	}
	c.publishStateLocked(&fx, now)
	return fx
}

// terminateLocked performs the terminal transition at most once per controller.
func (c *Controller) terminateLocked(fx *effects, target Target, sessionID, cause string, now time.Time) bool {
	if c.terminated {
		return false
	}
	c.terminated = true
	c.target = target
	c.countdown.Cancel()
	c.classifier.Reset()
	c.episodeID = ""
	if c.cancel != nil {
		c.cancel()
	}

	c.logger.Info("session view terminated",
		zap.String("target", string(target)),
		zap.String("cause", cause),
	)
	fx.terminal = &terminal{target: target, sessionID: sessionID, cause: cause}
	fx.events = append(fx.events, Event{
		Type:      EventNavigate,
		SessionID: sessionID,
		Target:    target,
		Reason:    cause,
		At:        now,
	})
	c.journalLocked(fx, models.EventSessionTerminated, cause, "target="+string(target), now)
	c.publishStateLocked(fx, now)
	return true
}

func (c *Controller) journalLocked(fx *effects, kind models.EventKind, reason, detail string, now time.Time) {
	fx.journal = append(fx.journal, models.MonitorEvent{
		SessionID:  c.currentIDLocked(),
		DeviceID:   c.deviceID,
		Kind:       kind,
		Reason:     reason,
		Detail:     detail,
		OccurredAt: now.UTC(),
	})
}

func (c *Controller) publishStateLocked(fx *effects, now time.Time) {
	st := c.viewLocked(now)
	fx.events = append(fx.events, Event{Type: EventState, SessionID: st.SessionID, State: &st, At: now})
}

// currentIDLocked is the id shown to the renderer: the mounted one, else the last one polled.
func (c *Controller) currentIDLocked() string {
	if c.session.SessionID != "" {
		return c.session.SessionID
	}
	return c.last.SessionID
}

func (c *Controller) chargingLocked() bool {
	return !c.terminated &&
		!c.detector.Stale() &&
		c.hasSample &&
		c.last.Relay == telemetry.RelayOn &&
		c.classifier.State() == pause.StateActive
}

func (c *Controller) recordUsageLocked() {
	live := telemetry.UsagePercent(c.filter.Display(), c.energySelected)
	c.freezer.Display(c.chargingLocked(), live)
}

func (c *Controller) viewLocked(now time.Time) State {
	stale := c.detector.Stale()
	st := State{
		SessionID:          c.currentIDLocked(),
		DeviceID:           c.deviceID,
		EnergySelected:     c.energySelected,
		AmountPaid:         c.amountPaid,
		Energy:             c.filter.Display(),
		Offset:             c.filter.Offset(),
		Relay:              telemetry.RelayOff,
		Status:             telemetry.StatusUnknown,
		PauseState:         c.classifier.State(),
		PauseReason:        c.classifier.Reason(),
		PopupVisible:       c.classifier.Paused(),
		CountdownRemaining: c.countdown.Remaining(),
		ConnectionLost:     stale,
		LastChangeAt:       c.detector.LastChange(),
		Terminated:         c.terminated,
		Target:             c.target,
		Alert:              c.alert,
		UpdatedAt:          now,
	}
	if c.hasSample {
		st.RawEnergy = c.last.Energy
		st.Status = c.last.Status
		if !stale {
			st.Relay = c.last.Relay
		}
		if !stale && c.last.Status != telemetry.StatusOffline {
			st.Voltage = c.last.Voltage
			st.Current = c.last.Current
			st.Power = c.last.Power
		}
	}

	st.Charging = c.chargingLocked()
	if st.Charging {
		st.UsagePercent = telemetry.UsagePercent(st.Energy, st.EnergySelected)
	} else {
		st.UsagePercent = c.freezer.Frozen()
	}
	st.AmountUtilized = telemetry.AmountUtilized(st.Energy, st.EnergySelected, st.AmountPaid)
	return st
}

func (c *Controller) snapshotLocked(now time.Time) redisstore.Snapshot {
	return redisstore.Snapshot{
		SessionID:    c.currentIDLocked(),
		DeviceID:     c.deviceID,
		Energy:       c.filter.State(),
		FrozenUsage:  c.freezer.Frozen(),
		LastChangeAt: c.detector.LastChange(),
		SavedAt:      now.UTC(),
	}
}
