package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/store/redisstore"
)

// RateLimit enforces a fixed-window per-caller limit backed by redis. The
// window key is the authenticated user id when present, the client IP
// otherwise. A redis outage fails open: limiting is protection, not a
// correctness requirement.
func RateLimit(rds *redisstore.Store, perMin int, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if rds == nil || perMin <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		if v, ok := c.Get(UserIDKey); ok {
			if uid, ok := v.(uint64); ok {
				key = fmt.Sprintf("user:%d", uid)
			}
		}

		allowed, err := rds.Allow(c.Request.Context(), key, perMin, time.Minute)
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42900, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
