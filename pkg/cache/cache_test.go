package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newWithClock[V any]() (*Cache[V], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V]()
	c.now = clock.now
	return c, clock
}

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", time.Second)
	val, ok := c.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestExpiration(t *testing.T) {
	c, clock := newWithClock[int]()
	c.Set("key1", 42, 100*time.Millisecond)
	clock.t = clock.t.Add(150 * time.Millisecond)
	_, ok := c.Get("key1")
	assert.False(t, ok, "expected expired key to be absent")
}

func TestDelete(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New[string]()
	c.Set("user:1", "u1", time.Second)
	c.Set("user:2", "u2", time.Second)
	c.Set("tool:1", "t1", time.Second)
	c.Invalidate("user:")
	_, ok1 := c.Get("user:1")
	_, ok2 := c.Get("user:2")
	_, ok3 := c.Get("tool:1")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func TestPurge(t *testing.T) {
	c, clock := newWithClock[bool]()
	c.Set("short", true, time.Second)
	c.Set("long", true, time.Hour)
	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}
