package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisResetStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisResetStore(client)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.Put(ctx, "tok", id, time.Hour))
	assert.True(t, mr.Exists(resetPrefix+"tok"))

	got, ok, err := s.Take(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok, err = s.Take(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "short", id, time.Minute))
	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Take(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryResetStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryResetStore()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.Put(ctx, "tok", id, time.Hour))
	got, ok, err := s.Take(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok, _ = s.Take(ctx, "tok")
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "gone", id, -time.Second))
	_, ok, _ = s.Take(ctx, "gone")
	assert.False(t, ok)
}
