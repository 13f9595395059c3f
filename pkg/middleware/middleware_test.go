package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wyfcoding/commissionhub/pkg/config"
	"github.com/wyfcoding/commissionhub/pkg/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, ratelimit.Limit) (*ratelimit.Result, error) {
	return nil, errors.New("redis unavailable")
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, QPS: 1, Burst: 2}
	r := newRouter(RateLimit(ratelimit.NewLocalRateLimiter(time.Minute), cfg))

	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)

	w := get(r, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

type recordingLimiter struct {
	keys   []string
	limits []ratelimit.Limit
}

func (r *recordingLimiter) Allow(_ context.Context, key string, limit ratelimit.Limit) (*ratelimit.Result, error) {
	r.keys = append(r.keys, key)
	r.limits = append(r.limits, limit)
	return &ratelimit.Result{Allowed: true, Remaining: limit.Burst - 1}, nil
}

func newAPIRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := newRouter(handlers...)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health", ok)
	r.GET("/api/v1/payment-requests", ok)
	r.POST("/api/v1/payment-requests/:id/confirm", ok)
	r.POST("/api/v1/maintenance/purge", ok)
	return r
}

func send(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitKeysByScope(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, QPS: 50, Burst: 100, MaintenanceQPS: 1, MaintenanceBurst: 2}
	limiter := &recordingLimiter{}
	r := newAPIRouter(RateLimit(limiter, cfg))

	assert.Equal(t, "read", send(r, http.MethodGet, "/api/v1/payment-requests").Header().Get("X-RateLimit-Scope"))
	assert.Equal(t, "write", send(r, http.MethodPost, "/api/v1/payment-requests/7/confirm").Header().Get("X-RateLimit-Scope"))
	w := send(r, http.MethodPost, "/api/v1/maintenance/purge")
	assert.Equal(t, "maintenance", w.Header().Get("X-RateLimit-Scope"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	send(r, http.MethodGet, "/health")

	assert.Equal(t, []string{
		"ratelimit:commission:read:10.0.0.1",
		"ratelimit:commission:write:10.0.0.1",
		"ratelimit:commission:maintenance:10.0.0.1",
	}, limiter.keys, "health checks are not counted")
	assert.Equal(t, 50, limiter.limits[0].Rate)
	assert.Equal(t, 1, limiter.limits[2].Rate)
	assert.Equal(t, 2, limiter.limits[2].Burst)
}

func TestRateLimitMaintenanceHasOwnBucket(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, QPS: 1, Burst: 1, MaintenanceQPS: 1, MaintenanceBurst: 1}
	r := newAPIRouter(RateLimit(ratelimit.NewLocalRateLimiter(time.Minute), cfg))

	assert.Equal(t, http.StatusOK, send(r, http.MethodPost, "/api/v1/maintenance/purge").Code)
	w := send(r, http.MethodPost, "/api/v1/maintenance/purge")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"), "sub-second waits round up")
	assert.Contains(t, w.Body.String(), "rate_limited")

	// 维护任务耗尽配额不影响查询
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/api/v1/payment-requests").Code)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/health").Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, QPS: 1, Burst: 1}
	r := newRouter(RateLimit(failingLimiter{}, cfg))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	}
}

func TestGinLoggingSetsRequestID(t *testing.T) {
	r := newRouter(GinLogging(nil))
	w := get(r, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGinRecovery(t *testing.T) {
	r := newRouter(GinLogging(nil), GinRecovery())
	w := get(r, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
