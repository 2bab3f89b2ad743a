package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func exerciseSlot(t *testing.T, s Slot) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", `{"step":2}`))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `{"step":2}`, v)

	require.NoError(t, s.Set(ctx, "k", "second"))
	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "second", v)

	require.NoError(t, s.Remove(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Remove(ctx, "k"))
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, NewMemorySlot())
}

func TestRedisSlot(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	slot := NewRedisSlot(client, "rxpad:test:")
	if err := slot.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseSlot(t, slot)
}
