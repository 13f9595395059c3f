package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const settingsPathPrefix = "/api/v1/settings"

// MaintenanceGuard 维护模式下拒绝写请求，设置接口除外，以便关闭维护模式
func MaintenanceGuard(enabled func(ctx context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, settingsPathPrefix) || !enabled(c.Request.Context()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "service is in maintenance mode",
			"kind":  kindMaintenance,
		})
	}
}
