package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// tracked reports how many sessions currently hold limiter state.
func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.sessions)
}

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, window)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(1), "message %d", i+1)
	}
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "limits are per session")
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, clock := newTestLimiter(2, time.Second)

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))

	clock.advance(999 * time.Millisecond)
	assert.False(t, rl.Allow(1))

	clock.advance(time.Millisecond)
	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
}

func TestRateLimiter_Forget(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)

	assert.True(t, rl.Allow(7))
	assert.False(t, rl.Allow(7))
	assert.Equal(t, 1, rl.tracked())

	rl.Forget(7)
	assert.Equal(t, 0, rl.tracked())
	assert.True(t, rl.Allow(7))

	rl.Forget(99)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow(1))
	}
	assert.Equal(t, 0, rl.tracked())
}

func TestRateLimiter_DefaultWindow(t *testing.T) {
	rl := NewRateLimiter(5, 0)
	assert.Equal(t, time.Minute, rl.window)
}
