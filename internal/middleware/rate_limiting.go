package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"form-builder-backend/internal/config"
)

// RateLimitMiddleware limits the request rate per client IP.
func RateLimitMiddleware(manager *RateLimitManager, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil || shouldBypassRateLimit(c.Request) {
			c.Next()
			return
		}

		limiter := manager.GetVisitor(c.ClientIP(), cfg.RateLimitRequests, cfg.RateLimitWindow)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SaveRateLimitMiddleware limits form saves per authenticated owner. It must
// run after AuthMiddleware; anonymous requests are keyed by IP.
func SaveRateLimitMiddleware(manager *RateLimitManager, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if userID, ok := CurrentUserID(c); ok {
			key = fmt.Sprintf("user:%d", userID)
		}

		limiter := manager.GetSaveLimiter(key, cfg.SaveRateLimit)
		if limiter != nil && !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many saves, please wait before saving again",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func shouldBypassRateLimit(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	switch path := r.URL.Path; {
	case strings.HasPrefix(path, "/uploads/"):
		return true
	case path == "/health", path == "/metrics":
		return true
	}

	return false
}
