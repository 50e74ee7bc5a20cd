package router

import (
	"sync"
	"time"
)

// RateLimiter caps how many messages one session may send per window.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	sessions map[uint32]*sessionLimit
}

type sessionLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit messages per window for each session. A limit
// of zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		sessions: make(map[uint32]*sessionLimit),
	}
}

// Allow records one message from session id and reports whether it is
// within the limit.
func (rl *RateLimiter) Allow(id uint32) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	l, exists := rl.sessions[id]
	if !exists {
		rl.sessions[id] = &sessionLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(l.windowStart) >= rl.window {
		l.messageCount = 1
		l.windowStart = now
		return true
	}

	if l.messageCount >= rl.limit {
		return false
	}

	l.messageCount++
	return true
}

// Forget drops the state for a session that has disconnected.
func (rl *RateLimiter) Forget(id uint32) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.sessions, id)
}
