package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Factory builds a controller for a newly mounted session view.
type Factory func(SessionContext) *Controller

// Manager owns the controller of the currently mounted session view. Controllers share no state.
type Manager struct {
	opMu    sync.Mutex
	mu      sync.RWMutex
	base    context.Context
	current *Controller
	factory Factory
	logger  *zap.Logger
}

// NewManager returns manager.
func NewManager(factory Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		base:    context.Background(),
		factory: factory,
		logger:  logger,
	}
}

// Mount stops any mounted controller and starts a new one for sc.
func (m *Manager) Mount(sc SessionContext) (*Controller, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prev, base := m.current, m.base
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	c := m.factory(sc)
	if err := c.Start(base); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = c
	m.mu.Unlock()

	go m.watch(c)
	m.logger.Info("session view mounted", zap.String("session_id", sc.SessionID))
	return c, nil
}

// watch reports when a controller's loop ends by a terminal transition rather than an unmount.
func (m *Manager) watch(c *Controller) {
	<-c.Done()
	if !c.Terminated() {
		return
	}
	m.logger.Info("session view ended",
		zap.String("session_id", c.Session().SessionID),
		zap.String("target", string(c.Snapshot().Target)))
}

// Unmount stops the mounted controller.
func (m *Manager) Unmount() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev == nil {
		return ErrNotMounted
	}
	prev.Stop()
	m.logger.Info("session view unmounted", zap.String("session_id", prev.Session().SessionID))
	return nil
}

// Current returns the mounted controller, or ErrNotMounted.
func (m *Manager) Current() (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNotMounted
	}
	return m.current, nil
}

// Run binds mounted controllers to ctx and unmounts on shutdown.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()

	<-ctx.Done()
	if err := m.Unmount(); err != nil && err != ErrNotMounted {
		return err
	}
	return nil
}
