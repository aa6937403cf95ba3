package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, window time.Duration) (*Limiter, *time.Time) {
	t.Helper()
	l := New(window)
	t.Cleanup(l.Close)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute)

	for i := range 3 {
		assert.True(t, l.Allow("k", 3), "request %d", i)
	}
	assert.False(t, l.Allow("k", 3))
	assert.Equal(t, 20*time.Second, l.RetryAfter("k", 3))

	*clock = clock.Add(20 * time.Second)
	assert.True(t, l.Allow("k", 3))
	assert.False(t, l.Allow("k", 3))

	assert.True(t, l.Allow("other", 3), "keys are independent")
}

func TestResetAndEviction(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute)
	assert.True(t, l.Allow("k", 1))
	assert.False(t, l.Allow("k", 1))
	l.Reset("k")
	assert.True(t, l.Allow("k", 1))

	*clock = clock.Add(3 * time.Minute)
	l.evictIdle()
	assert.Empty(t, l.buckets)
}

func TestZeroLimitDenies(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute)
	assert.False(t, l.Allow("k", 0))
}
