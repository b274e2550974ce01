package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinSendInterval is the minimum gap between two accepted messages from one identity.
const DefaultMinSendInterval = 500 * time.Millisecond

// RateLimiter enforces a minimum interval between accepted sends per identity.
//
// Each identity gets a token bucket of capacity one refilled every interval. A send is
// accepted iff a full token is available at now, which is exactly "now - last accepted
// >= interval". Rejections consume nothing, so a burst of rejected sends cannot push the
// window forward.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limits   map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter. A non-positive interval disables flood control.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		limits:   make(map[string]*rate.Limiter),
	}
}

// Allow reports whether identity may send at now, recording the send when it may.
func (l *RateLimiter) Allow(identity string, now time.Time) bool {
	if l.interval <= 0 {
		return true
	}

	// The token is taken under mu so that Prune never drops a limiter between lookup
	// and consumption.
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limits[identity]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limits[identity] = limiter
	}

	return limiter.AllowN(now, 1)
}

// Prune forgets identities whose window has fully elapsed at now. A forgotten identity
// behaves exactly like one that waited, so pruning never loosens flood control.
func (l *RateLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, identity)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked identities.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.limits)
}
