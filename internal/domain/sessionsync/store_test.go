package sessionsync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/scp/internal/domain/evaluation"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, time.Minute)
}

func TestRedisStore_SaveLoad(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	s := active("s1", "b1")
	s.Items = evaluation.Items{"Q1": 3}
	s.TotalPoints = 3
	s.ClassLabel = "MINIMOS"
	require.NoError(t, store.Save(ctx, "u1", []*evaluation.Session{s}))

	assert.True(t, mr.Exists("scp:unit:u1:active-sessions"))
	assert.Equal(t, time.Minute, mr.TTL("scp:unit:u1:active-sessions"))

	list, ok, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "b1", list[0].BedID)
	assert.Equal(t, 3.0, list[0].Items["Q1"])
	assert.Equal(t, "MINIMOS", list[0].ClassLabel)
}

func TestRedisStore_Miss(t *testing.T) {
	_, store := setupTestRedis(t)
	list, ok, err := store.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestRedisStore_EmptyList(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "u1", nil))

	list, ok, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "an empty unit is still a known state")
	assert.Empty(t, list)
}

func TestRedisStore_Corrupt(t *testing.T) {
	mr, store := setupTestRedis(t)
	require.NoError(t, mr.Set("scp:unit:u1:active-sessions", "not json"))
	_, _, err := store.Load(context.Background(), "u1")
	assert.Error(t, err)
}

func TestRedisStore_SharedAcrossReplicas(t *testing.T) {
	_, store := setupTestRedis(t)
	f := newFakeFetcher()
	f.set("u1", active("s1", "b1"))

	first := NewSynchronizer("u1", f, store, zeroLogger())
	_, err := first.Refresh(context.Background())
	require.NoError(t, err)

	second := NewSynchronizer("u1", newFakeFetcher(), store, zeroLogger())
	second.Warm(context.Background())
	got, ok := second.SessionForBed("b1")
	require.True(t, ok, "another replica starts from the last known state")
	assert.Equal(t, "s1", got.ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "u1", []*evaluation.Session{active("s1", "b1")}))

	list, _, _ := store.Load(ctx, "u1")
	list[0].BedID = "changed"
	again, _, _ := store.Load(ctx, "u1")
	assert.Equal(t, "b1", again[0].BedID)
}
