package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/monitor"
)

// Hub is the controller's event sink: it fans each event out to every subscribed renderer.
type Hub struct {
	mu           sync.RWMutex
	renderers    map[string]*Renderer
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub returns a hub that pings renderers every pingInterval (30s when zero).
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		renderers:    make(map[string]*Renderer),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add subscribes r.
func (h *Hub) Add(r *Renderer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.renderers[r.ID()] = r
}

// Remove unsubscribes the renderer with id.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.renderers, id)
}

// Count returns the number of subscribed renderers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.renderers)
}

// Publish implements monitor.EventSink. State snapshots may be skipped for a lagging renderer;
// every other event is delivered.
func (h *Hub) Publish(e monitor.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.renderers {
		if e.Type == monitor.EventState {
			r.SendState(data)
		} else {
			r.Send(data)
		}
	}
}

// Run pings renderers until ctx is done, then closes them.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.mu.RLock()
			for _, r := range h.renderers {
				if err := r.Ping(); err != nil {
					h.logger.Debug("renderer ping failed", zap.String("renderer_id", r.ID()), zap.Error(err))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*Renderer, 0, len(h.renderers))
	for _, r := range h.renderers {
		all = append(all, r)
	}
	h.mu.RUnlock()
	for _, r := range all {
		r.Close()
	}
}
