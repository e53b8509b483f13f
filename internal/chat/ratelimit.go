package chat

import (
	"sync"
	"time"
)

// RateLimiter implements per-session send limiting at the chat input boundary
type RateLimiter struct {
	mu         sync.Mutex
	userCounts map[string]*userLimit
	config     RateLimitConfig
	now        func() time.Time
	stopChan   chan struct{}
	stopOnce   sync.Once
}

type userLimit struct {
	count     int
	windowEnd time.Time
	lastSend  time.Time
}

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	// MaxPerWindow is max messages per window
	MaxPerWindow int
	// WindowDuration is the sliding window size
	WindowDuration time.Duration
	// CooldownDuration is minimum time between messages
	CooldownDuration time.Duration
}

// DefaultRateLimitConfig for chat sends
var DefaultRateLimitConfig = RateLimitConfig{
	MaxPerWindow:     5,                      // 5 messages
	WindowDuration:   5 * time.Second,        // per 5 seconds
	CooldownDuration: 200 * time.Millisecond, // 200ms between messages
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		userCounts: make(map[string]*userLimit),
		config:     cfg,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if key (a session id) can send a message now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.userCounts[key]
	if !exists {
		rl.userCounts[key] = &userLimit{
			count:     1,
			windowEnd: now.Add(rl.config.WindowDuration),
			lastSend:  now,
		}
		return true
	}

	// Check cooldown
	if now.Sub(limit.lastSend) < rl.config.CooldownDuration {
		return false
	}

	// Check/reset window
	if now.After(limit.windowEnd) {
		limit.count = 1
		limit.windowEnd = now.Add(rl.config.WindowDuration)
		limit.lastSend = now
		return true
	}

	if limit.count >= rl.config.MaxPerWindow {
		return false
	}

	limit.count++
	limit.lastSend = now
	return true
}

// Forget drops the state for key (session teardown)
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.userCounts, key)
	rl.mu.Unlock()
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// cleanup removes old entries every minute
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-5 * time.Minute)
			for key, limit := range rl.userCounts {
				if limit.lastSend.Before(cutoff) {
					delete(rl.userCounts, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
