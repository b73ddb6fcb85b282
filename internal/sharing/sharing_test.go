package sharing

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(3*time.Hour, time.Hour)
	s.now = c.Now
	defer s.Close()
	ctx := context.Background()

	share, err := s.Create(ctx, 7)
	require.NoError(t, err)
	assert.NotEmpty(t, share.Token)
	assert.Equal(t, c.Now().Add(3*time.Hour), share.ExpiresAt)

	got, err := s.Resolve(ctx, share.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)

	c.Advance(3 * time.Hour)
	_, err = s.Resolve(ctx, share.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreRevoke(t *testing.T) {
	s := NewMemoryStore(time.Hour, time.Hour)
	defer s.Close()
	ctx := context.Background()

	share, err := s.Create(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, share.Token))
	require.ErrorIs(t, s.Revoke(ctx, share.Token), ErrTokenNotFound)
	_, err = s.Resolve(ctx, share.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreSweep(t *testing.T) {
	c := &clock{t: time.Now()}
	s := NewMemoryStore(time.Minute, time.Hour)
	s.now = c.Now
	defer s.Close()

	_, _ = s.Create(context.Background(), 1)
	_, _ = s.Create(context.Background(), 2)
	assert.Zero(t, s.removeExpired())

	c.Advance(2 * time.Minute)
	assert.Equal(t, 2, s.removeExpired())
}

func TestMemoryStoreCloseTwice(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, "", 0, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	share, err := s.Create(ctx, 11)
	require.NoError(t, err)

	got, err := s.Resolve(ctx, share.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.UserID)

	require.NoError(t, s.Revoke(ctx, share.Token))
	_, err = s.Resolve(ctx, share.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}
