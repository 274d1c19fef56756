package sessionsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ehr/scp/internal/domain/evaluation"
)

// SnapshotStore keeps the last normalized active list of each unit so a
// fresh view can start from the last-known state. It is a cache: the
// records service stays authoritative.
type SnapshotStore interface {
	Load(ctx context.Context, unitID string) ([]*evaluation.Session, bool, error)
	Save(ctx context.Context, unitID string, sessions []*evaluation.Session) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	units map[string][]*evaluation.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: make(map[string][]*evaluation.Session)}
}

func (m *MemoryStore) Load(_ context.Context, unitID string) ([]*evaluation.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.units[unitID]
	if !ok {
		return nil, false, nil
	}
	return cloneAll(list), true, nil
}

func (m *MemoryStore) Save(_ context.Context, unitID string, sessions []*evaluation.Session) error {
	m.mu.Lock()
	m.units[unitID] = cloneAll(sessions)
	m.mu.Unlock()
	return nil
}

// DefaultSnapshotTTL bounds how long a snapshot outlives its last refresh.
const DefaultSnapshotTTL = 10 * time.Minute

type RedisStore struct {
	c   *redis.Client
	ttl time.Duration
}

func NewRedisStore(c *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisStore{c: c, ttl: ttl}
}

func snapshotKey(unitID string) string {
	return fmt.Sprintf("scp:unit:%s:active-sessions", unitID)
}

func (r *RedisStore) Load(ctx context.Context, unitID string) ([]*evaluation.Session, bool, error) {
	val, err := r.c.Get(ctx, snapshotKey(unitID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var list []*evaluation.Session
	if err := json.Unmarshal([]byte(val), &list); err != nil {
		return nil, false, fmt.Errorf("decode snapshot of unit %s: %w", unitID, err)
	}
	return list, true, nil
}

func (r *RedisStore) Save(ctx context.Context, unitID string, sessions []*evaluation.Session) error {
	if sessions == nil {
		sessions = []*evaluation.Session{}
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return r.c.Set(ctx, snapshotKey(unitID), b, r.ttl).Err()
}

func cloneAll(in []*evaluation.Session) []*evaluation.Session {
	if in == nil {
		return nil
	}
	out := make([]*evaluation.Session, 0, len(in))
	for _, s := range in {
		out = append(out, s.Clone())
	}
	return out
}
