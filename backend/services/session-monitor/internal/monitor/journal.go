package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sparx/backend/services/session-monitor/internal/models"
)

// Journal buffer defaults.
const (
	DefaultJournalBuffer       = 256
	defaultJournalWriteTimeout = 5 * time.Second
)

var (
	ErrJournalFull   = errors.New("monitor: journal buffer full")
	ErrJournalClosed = errors.New("monitor: journal closed")
)

// AsyncJournal queues journal entries for a single writer goroutine so the controller loop
// never waits on the database. Entries offered while the buffer is full are dropped.
type AsyncJournal struct {
	next    Journal
	queue   chan models.MonitorEvent
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsyncJournal wraps next with a buffer of size entries.
func NewAsyncJournal(next Journal, size int, timeout time.Duration, logger *zap.Logger) *AsyncJournal {
	if size <= 0 {
		size = DefaultJournalBuffer
	}
	if timeout <= 0 {
		timeout = defaultJournalWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncJournal{
		next:    next,
		queue:   make(chan models.MonitorEvent, size),
		timeout: timeout,
		logger:  logger,
	}
}

// Insert enqueues a copy of event without blocking.
func (j *AsyncJournal) Insert(_ context.Context, event *models.MonitorEvent) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	select {
	case j.queue <- *event:
		return nil
	default:
		j.dropped.Add(1)
		return ErrJournalFull
	}
}

// Dropped returns how many entries were rejected because the buffer was full.
func (j *AsyncJournal) Dropped() int64 {
	return j.dropped.Load()
}

// Run writes queued entries until ctx is done, then flushes what is left and refuses new ones.
func (j *AsyncJournal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.mu.Lock()
			j.closed = true
			j.mu.Unlock()
			j.drain()
			return nil
		case e := <-j.queue:
			j.write(e)
		}
	}
}

func (j *AsyncJournal) drain() {
	for {
		select {
		case e := <-j.queue:
			j.write(e)
		default:
			return
		}
	}
}

func (j *AsyncJournal) write(e models.MonitorEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.next.Insert(ctx, &e); err != nil {
		j.logger.Warn("failed to write journal entry",
			zap.String("session_id", e.SessionID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	}
}
