package chatapi

import (
	"sync"
	"time"
)

// RateLimiter limits requests per client IP over a sliding window
type RateLimiter struct {
	limits          map[string][]time.Time
	maxRequests     int
	window          time.Duration
	mu              sync.Mutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window. A
// non-positive maxRequests disables limiting.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}

	rl := &RateLimiter{
		limits:          make(map[string][]time.Time),
		maxRequests:     maxRequests,
		window:          window,
		cleanupInterval: 5 * window,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go rl.startCleanup()

	return rl
}

// Allow records a request from ip and reports whether it is within the limit
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.maxRequests <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	requests := rl.prune(rl.limits[ip], now)

	if len(requests) >= rl.maxRequests {
		rl.limits[ip] = requests
		return false
	}

	rl.limits[ip] = append(requests, now)
	return true
}

// RetryAfter returns the whole seconds until ip may send another request
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	requests := rl.limits[ip]
	if len(requests) == 0 {
		return 0
	}

	wait := rl.window - rl.now().Sub(requests[0])
	if wait <= 0 {
		return 0
	}

	// round up
	return int((wait + time.Second - 1) / time.Second)
}

// prune drops requests that fell out of the window; requests is oldest first
func (rl *RateLimiter) prune(requests []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(requests) && now.Sub(requests[i]) >= rl.window {
		i++
	}
	return requests[i:]
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets clients with no requests inside the window
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, requests := range rl.limits {
		remaining := rl.prune(requests, now)
		if len(remaining) == 0 {
			delete(rl.limits, ip)
		} else {
			rl.limits[ip] = remaining
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
