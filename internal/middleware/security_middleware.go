package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// buildContentSecurityPolicy returns the policy for API responses. Uploaded
// media is served from the same origin, so img-src and media-src allow self.
func buildContentSecurityPolicy(extraImageSources []string) string {
	imgSrc := append([]string{"'self'", "data:", "blob:"}, extraImageSources...)
	directives := []string{
		"default-src 'none'",
		"img-src " + strings.Join(imgSrc, " "),
		"media-src 'self' data: blob:",
		"frame-ancestors 'none'",
		"base-uri 'none'",
		"form-action 'none'",
	}
	return strings.Join(directives, "; ")
}

func SecurityHeadersMiddleware(extraImageSources ...string) gin.HandlerFunc {
	policy := buildContentSecurityPolicy(extraImageSources)
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cross-Origin-Resource-Policy", "same-site")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Header("Content-Security-Policy", policy)
		c.Header("Referrer-Policy", "no-referrer")
		if !strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
