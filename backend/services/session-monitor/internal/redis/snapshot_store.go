package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sparx/backend/services/session-monitor/internal/telemetry"
)

// Snapshot is the reconciled state a restarted monitor resumes from.
type Snapshot struct {
	SessionID    string                `json:"session_id"`
	DeviceID     string                `json:"device_id"`
	Energy       telemetry.EnergyState `json:"energy"`
	FrozenUsage  float64               `json:"frozen_usage"`
	LastChangeAt time.Time             `json:"last_change_at"`
	SavedAt      time.Time             `json:"saved_at"`
}

// Commands is the go-redis subset used by Store.
type Commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store caches reconciled session state in redis.
type Store struct {
	client Commands
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client Commands, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) snapshotKey(sessionID string) string {
	return fmt.Sprintf("monitor:snapshot:%s", sessionID)
}

func (s *Store) terminalKey(sessionID string) string {
	return fmt.Sprintf("monitor:terminal:%s", sessionID)
}

// Save caches a snapshot.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return errors.New("redisstore: snapshot without session id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.snapshotKey(snap.SessionID), data, s.ttl).Err()
}

// Load returns the cached snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	result, err := s.client.Get(ctx, s.snapshotKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(result), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Delete removes the cached snapshot.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.snapshotKey(sessionID)).Err()
}

// ClaimTermination records that sessionID ended. It returns false if another monitor got there first.
func (s *Store) ClaimTermination(ctx context.Context, sessionID, target string) (bool, error) {
	return s.client.SetNX(ctx, s.terminalKey(sessionID), target, s.ttl).Result()
}
