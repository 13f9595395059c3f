package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/commissionhub/pkg/config"
	"github.com/wyfcoding/commissionhub/pkg/logger"
	"github.com/wyfcoding/commissionhub/pkg/ratelimit"
)

const (
	scopeRead        = "read"
	scopeWrite       = "write"
	scopeMaintenance = "maintenance"

	maintenancePrefix = "/api/v1/maintenance"
)

// rateScope 查询、变更、维护任务分开计数，维护任务扫全表，限额更低
func rateScope(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	switch {
	case strings.HasPrefix(path, maintenancePrefix):
		return scopeMaintenance
	case c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead:
		return scopeRead
	default:
		return scopeWrite
	}
}

func scopeLimit(cfg config.RateLimitConfig, scope string) ratelimit.Limit {
	limit := ratelimit.Limit{Rate: cfg.QPS, Period: time.Second, Burst: cfg.Burst}
	if scope == scopeMaintenance && cfg.MaintenanceQPS > 0 {
		limit.Rate = cfg.MaintenanceQPS
		limit.Burst = max(cfg.MaintenanceBurst, 1)
	}
	return limit
}

// RateLimit 按 客户端 IP + 接口类别 限流，/health 不计数，限流后端出错时放行
func RateLimit(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		scope := rateScope(c)
		key := "ratelimit:commission:" + scope + ":" + c.ClientIP()
		limit := scopeLimit(cfg, scope)

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Scope", scope)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			// 向上取整，避免亚秒级等待被写成 0
			retry := int64((res.RetryAfter + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.FormatInt(max(retry, 1), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"kind":        "rate_limited",
				"error":       "too many " + scope + " requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}
		c.Next()
	}
}
