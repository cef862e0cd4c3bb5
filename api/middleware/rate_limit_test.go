package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/repairdesk-backend/pkg/redis"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (pkgredis.WindowResult, error) {
	if f.err != nil {
		return pkgredis.WindowResult{}, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return pkgredis.WindowResult{
		Allowed: f.counts[scope] <= limit,
		Count:   f.counts[scope],
		ResetIn: 12500 * time.Millisecond,
	}, nil
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := RateLimit(limiter, 2, time.Minute, nil)(okHandler())
	userID := uuid.New()

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
		req = req.WithContext(WithActor(req.Context(), userID, enums.UserRoleStaff))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
		if i == 2 {
			assert.Equal(t, "13", resp.Header().Get("Retry-After"))
			assert.Equal(t, "0", resp.Header().Get("X-RateLimit-Remaining"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Contains(t, limiter.counts, "user:"+userID.String())
}

func TestRateLimitKeysAnonymousCallersByIP(t *testing.T) {
	limiter := &fakeLimiter{}
	handler := RateLimit(limiter, 10, time.Minute, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(1), limiter.counts["ip:203.0.113.7"])
	assert.Equal(t, int64(1), limiter.counts["ip:198.51.100.2"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler := RateLimit(&fakeLimiter{err: errors.New("redis down")}, 1, time.Minute, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, int64(1), retryAfterSeconds(0))
	assert.Equal(t, int64(1), retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, int64(60), retryAfterSeconds(time.Minute))
}
