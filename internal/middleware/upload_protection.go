package middleware

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// servedUploadExtensions are the extensions stored for image, picture option,
// video and PDF fields. SVG is excluded because it can carry script.
var servedUploadExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".avif": {},
	".mp4":  {},
	".webm": {},
	".mov":  {},
	".ogv":  {},
	".pdf":  {},
}

// UploadsProtection answers 404 for anything under /uploads that a form field
// could not have stored.
func UploadsProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawPath := strings.ToLower(strings.TrimSpace(c.Param("filepath")))
		if !strings.HasPrefix(rawPath, "/forms/") {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if _, ok := servedUploadExtensions[filepath.Ext(rawPath)]; !ok {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Next()
	}
}
