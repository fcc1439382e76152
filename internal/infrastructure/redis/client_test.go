package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), "redis://"+mr.Addr(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url", nil)
	assert.ErrorContains(t, err, "invalid redis url")
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	lock, err := c.Acquire(ctx, "code:TL", time.Minute, 0)
	require.NoError(t, err)
	assert.True(t, mr.Exists("code:TL"))
	assert.Greater(t, mr.TTL("code:TL"), time.Duration(0))

	_, err = c.Acquire(ctx, "code:TL", time.Minute, 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("code:TL"))

	again, err := c.Acquire(ctx, "code:TL", time.Minute, 0)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLockWaitsForHolder(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	held, err := c.Acquire(ctx, "code:WO", time.Minute, 0)
	require.NoError(t, err)

	released := make(chan error, 1)
	go func() {
		time.Sleep(60 * time.Millisecond)
		released <- held.Release(ctx)
	}()

	start := time.Now()
	lock, err := c.Acquire(ctx, "code:WO", time.Minute, 2*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.NoError(t, <-released)
	require.NoError(t, lock.Release(ctx))
}

func TestLockWaitHonorsContext(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Acquire(context.Background(), "code:PO", time.Minute, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "code:PO", time.Minute, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseLeavesForeignToken(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	lock, err := c.Acquire(ctx, "code:EMP", time.Second, 0)
	require.NoError(t, err)

	// The lease expired and another holder took the key.
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("code:EMP"))
	other, err := c.Acquire(ctx, "code:EMP", time.Minute, 0)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	value, err := mr.Get("code:EMP")
	require.NoError(t, err)
	assert.Equal(t, other.token, value)

	_, err = c.Acquire(ctx, "code:EMP", time.Minute, 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, other.Release(ctx))
	assert.False(t, mr.Exists("code:EMP"))
}
