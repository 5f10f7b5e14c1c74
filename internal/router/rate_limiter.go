package router

import (
	"sync"
	"time"
)

// RateLimiter caps how many events each user may route per window,
// across all of the user's sessions.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the user may route another event in the
// current window.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cw, exists := rl.clients[userID]
	if !exists || now.Sub(cw.windowStart) >= rl.window {
		rl.clients[userID] = &clientWindow{count: 1, windowStart: now}
		return true
	}
	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// Cleanup drops tracking state for users idle longer than five windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, cw := range rl.clients {
		if now.Sub(cw.windowStart) > 5*rl.window {
			delete(rl.clients, userID)
		}
	}
}
