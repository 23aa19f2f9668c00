package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ronalzhang/lawsker-sub001/pkg/config"
	"github.com/ronalzhang/lawsker-sub001/pkg/ratelimit"
)

// AccountIDHeader 上游协作方（案件、评价服务）标识目标律师账户的请求头，
// 写入类请求的账户 id 在请求体里，靠这个头在中间件层做单账户限速
const AccountIDHeader = "X-Account-ID"

// RateLimit 限流中间件：来源 IP 全局限速，可识别账户的请求再叠加单账户限速。
// 限流器故障时放行，限流不能成为积分主流程的单点
func RateLimit(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), ratelimit.IPKey(c.ClientIP()), ratelimit.PerSecond(cfg.QPS, cfg.Burst))
		if err != nil {
			c.Next()
			return
		}
		writeRateHeaders(c, cfg.Burst, res)
		if !res.Allowed {
			rejectRateLimited(c, res)
			return
		}

		if accountID := accountIDFrom(c); accountID != "" && cfg.AccountQPS > 0 {
			res, err := limiter.Allow(c.Request.Context(), ratelimit.AccountKey(accountID), ratelimit.PerSecond(cfg.AccountQPS, cfg.AccountBurst))
			if err != nil {
				c.Next()
				return
			}
			if !res.Allowed {
				rejectRateLimited(c, res)
				return
			}
		}

		c.Next()
	}
}

// accountIDFrom 从路径参数或请求头识别目标账户
func accountIDFrom(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.GetHeader(AccountIDHeader)
}

func writeRateHeaders(c *gin.Context, burst int, res *ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(burst))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))
}

func rejectRateLimited(c *gin.Context, res *ratelimit.Result) {
	c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Too Many Requests",
		"retry_after": res.RetryAfter.String(),
	})
}
