package logic

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultDenialInterval = 10 * time.Second
	defaultDenialBurst    = 5
	maxTrackedDenials     = 4096
)

// DenialLimiter throttles callers that keep failing permission checks.
// Every denial spends one token; a key with no tokens left is refused up front.
type DenialLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
	now      func() time.Time
}

// NewDenialLimiter allows burst denials per key, refilling one per interval.
func NewDenialLimiter(interval time.Duration, burst int) *DenialLimiter {
	if interval <= 0 {
		interval = defaultDenialInterval
	}
	if burst <= 0 {
		burst = defaultDenialBurst
	}
	return &DenialLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(interval),
		burst:    burst,
		now:      time.Now,
	}
}

// Limited reports whether key has exhausted its denial budget.
func (l *DenialLimiter) Limited(key string) bool {
	if l == nil || key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		return false
	}
	return limiter.TokensAt(l.now()) < 1
}

// Record spends one denial token for key.
func (l *DenialLimiter) Record(key string) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedDenials {
			l.pruneLocked(now)
		}
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = limiter
	}
	limiter.AllowN(now, 1)
}

// pruneLocked drops keys whose budget has fully refilled.
func (l *DenialLimiter) pruneLocked(now time.Time) {
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}
