package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestLimiter(t *testing.T, limit rate.Limit, burst int) *RateLimiter {
	t.Helper()
	resolver, err := NewClientIPResolver(nil)
	require.NoError(t, err)
	rl := NewRateLimiter("test", limit, burst, resolver, nil, discardLogger())
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := newTestLimiter(t, rate.Every(time.Minute), 3)
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.10:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{200, 200, 200, 429}, codes)
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := newTestLimiter(t, rate.Every(time.Hour), 1)

	assert.True(t, rl.Allow("198.51.100.1"))
	assert.False(t, rl.Allow("198.51.100.1"))
	assert.True(t, rl.Allow("198.51.100.2"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newTestLimiter(t, rate.Limit(1), 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("198.51.100.1")
	now = now.Add(limiterIdleTTL / 2)
	rl.Allow("198.51.100.2")

	now = now.Add(limiterIdleTTL/2 + time.Second)
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "198.51.100.1")
	assert.Contains(t, rl.visitors, "198.51.100.2")
}
