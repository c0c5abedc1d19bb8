package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"sparx/backend/services/session-monitor/internal/models"
)

// EventRepository persists the monitor journal. The SQL runs unchanged on Postgres and sqlite.
type EventRepository struct {
	db *sql.DB

	mu      sync.Mutex
	lastSeq int64
}

// NewEventRepository returns repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS session_monitor_events (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			device_id   TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL,
			reason      TEXT NOT NULL DEFAULT '',
			detail      TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP NOT NULL,
			seq         BIGINT NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	const index = `CREATE INDEX IF NOT EXISTS session_monitor_events_session_seq_idx ON session_monitor_events (session_id, occurred_at, seq)`
	_, err := r.db.ExecContext(ctx, index)
	return err
}

// Insert stores an event, assigning an id and timestamp when absent and always a fresh sequence.
func (r *EventRepository) Insert(ctx context.Context, event *models.MonitorEvent) error {
	if event.SessionID == "" {
		return errors.New("repository: event without session id")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Seq = r.nextSeq()
	const query = `
		INSERT INTO session_monitor_events (id, session_id, device_id, kind, reason, detail, occurred_at, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.DeviceID,
		string(event.Kind),
		event.Reason,
		event.Detail,
		event.OccurredAt.UTC(),
		event.Seq,
	)
	return err
}

// nextSeq is strictly increasing within the process and seeded from the wall clock so that
// restarts keep ordering after earlier rows.
func (r *EventRepository) nextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= r.lastSeq {
		seq = r.lastSeq + 1
	}
	r.lastSeq = seq
	return seq
}

// ListBySession returns the newest events for a session first.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.MonitorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, session_id, device_id, kind, reason, detail, occurred_at, seq
		FROM session_monitor_events
		WHERE session_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.MonitorEvent
	for rows.Next() {
		var (
			e    models.MonitorEvent
			kind string
		)
		if err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.DeviceID,
			&kind,
			&e.Reason,
			&e.Detail,
			&e.OccurredAt,
			&e.Seq,
		); err != nil {
			return nil, err
		}
		e.Kind = models.EventKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
