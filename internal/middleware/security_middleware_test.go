package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBuildContentSecurityPolicyAddsMediaSrc(t *testing.T) {
	policy := buildContentSecurityPolicy([]string{"https://cdn.example.com"})
	directives := parseContentSecurityPolicy(policy)

	mediaSrc, ok := directives["media-src"]
	if !ok {
		t.Fatalf("expected media-src directive to be present in policy: %s", policy)
	}

	for _, required := range []string{"'self'", "data:", "blob:"} {
		if _, allowed := mediaSrc[required]; !allowed {
			t.Fatalf("expected media-src to allow %s, policy: %s", required, policy)
		}
	}

	if _, ok := directives["img-src"]["https://cdn.example.com"]; !ok {
		t.Fatalf("expected extra image source in policy: %s", policy)
	}
}

func TestSecurityHeadersSkipNoStoreForUploads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/forms/1/pages", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store for API responses, got %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/forms/1/a.png", nil))
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Fatalf("expected uploads to stay cacheable, got %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header")
	}
}

func parseContentSecurityPolicy(policy string) map[string]map[string]struct{} {
	result := make(map[string]map[string]struct{})

	for _, directive := range strings.Split(policy, ";") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}

		parts := strings.Fields(directive)
		if len(parts) == 0 {
			continue
		}

		name := parts[0]
		values := make(map[string]struct{}, len(parts)-1)
		for _, value := range parts[1:] {
			values[value] = struct{}{}
		}

		result[name] = values
	}

	return result
}
