package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestIPRateLimiter_PerIPBuckets(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestIPRateLimiter_CleanupRemovesIdleLimiters(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	l.GetLimiter("10.0.0.1").Allow()
	l.GetLimiter("10.0.0.2")

	removed, remaining := l.cleanUpVisitors(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, remaining)

	removed, remaining = l.cleanUpVisitors(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, remaining)
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/auth/guest", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/auth/guest", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:4242"
	assert.Equal(t, "198.51.100.7", ClientIP(r))

	r.RemoteAddr = ""
	assert.Equal(t, "unknown_ip", ClientIP(r))
}
