package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/liveness/backend/internal/config"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	v := liveness.NewVerdict(true, 0.95, "all gestures completed", time.Now())
	v.Final = true
	require.NoError(t, s.Save(ctx, "s1", v))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestMemoryStoreExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(context.Background(), "s1", liveness.NewVerdict(false, 0, "timeout", now)))

	now = now.Add(time.Minute)
	_, err := s.Load(context.Background(), "s1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerdictJSONRoundTrip(t *testing.T) {
	v := liveness.NewVerdict(true, 0.87, "gesture blink accepted", time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC))
	v.SessionID = "s1"
	v.State = liveness.StateChallengeInProgress
	v.Progress = &liveness.Progress{Completed: 1, Total: 3}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded liveness.Verdict
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, v, decoded.Normalize())
}

func TestCreateKeyUsesNamespace(t *testing.T) {
	require.Equal(t, "liveness:verdict:abc", createKey("liveness", "abc"))
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{VerdictTTL: time.Hour})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
}

func TestNewRedisClientInvalidHost(t *testing.T) {
	client, err := NewRedisClient(context.Background(), config.StoreConfig{RedisAddr: "invalid-redis-host-that-does-not-exist:6379"})
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestNewRedisClientEmptyAddr(t *testing.T) {
	client, err := NewRedisClient(context.Background(), config.StoreConfig{})
	require.Error(t, err)
	require.Nil(t, client)
}
