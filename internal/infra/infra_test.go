package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSet(t *testing.T) {
	c := NewCache[int](time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	c := NewCache[string](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.SetWithTTL("long", "v", time.Hour)
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok, "entry past its TTL must miss")
	_, ok = c.Get("long")
	assert.True(t, ok)

	assert.Equal(t, 2, c.Len())
	c.Cleanup()
	assert.Equal(t, 1, c.Len())
}

func TestCacheGetOrCompute(t *testing.T) {
	c := NewCache[[]int](time.Minute)
	calls := 0
	compute := func() []int { calls++; return []int{calls} }

	v, hit := c.GetOrCompute("k", compute)
	assert.False(t, hit)
	assert.Equal(t, []int{1}, v)

	v, hit = c.GetOrCompute("k", compute)
	assert.True(t, hit)
	assert.Equal(t, []int{1}, v)
	assert.Equal(t, 1, calls)
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := NewCache[int](time.Minute)
	c.Set("nifty_50|1", 1)
	c.Set("nifty_50|2", 2)
	c.Set("bank_nifty|1", 3)

	c.InvalidatePrefix("nifty_50|")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("bank_nifty|1")
	assert.True(t, ok)

	c.Flush()
	assert.Zero(t, c.Len())
}

func TestCacheJanitorStops(t *testing.T) {
	c := NewCache[int](time.Millisecond)
	c.Set("k", 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestKeyedLimiterBurst(t *testing.T) {
	l := NewKeyedLimiter(0.001, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "third request exceeds burst")
	assert.True(t, l.Allow("b"), "keys have independent buckets")
	assert.Equal(t, 2, l.Len())
}

func TestKeyedLimiterDisabled(t *testing.T) {
	l := NewKeyedLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("a"))
	}
}

func TestKeyedLimiterWaitCancelled(t *testing.T) {
	l := NewKeyedLimiter(0.001, 1)
	require.True(t, l.Allow("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "a"))
}

func TestKeyedLimiterPrune(t *testing.T) {
	l := NewKeyedLimiter(1, 1)
	l.idle = 0
	l.Allow("a")
	time.Sleep(time.Millisecond)
	l.Prune()
	assert.Zero(t, l.Len())
}
