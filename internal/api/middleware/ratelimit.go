package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Kai-Ger/CardGallery/internal/pkg/metrics"
	"github.com/Kai-Ger/CardGallery/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit 按客户端 IP 限流，桶 key 形如 "<scope>:<ip>"。
//
// 挂在 /login 和 /forgot 上，限制撞库与邮箱枚举的速度。
// Redis 出错时放行（限流器坏了不该拖垮登录）。
func RateLimit(limiter *ratelimit.RateLimiter, logger *slog.Logger, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, wait, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("scope", scope), slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.Inc()
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
