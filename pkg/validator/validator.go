package validator

import (
	"html"
	"mime"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	strict    *bluemonday.Policy

	spacePattern    = regexp.MustCompile(`\s+`)
	filenamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

func init() {
	Init()
}

func Init() {
	validate = validator.New()

	sanitizer = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()

	registerCustomValidations(validate)

	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerCustomValidations(engine)
	}
}

func registerCustomValidations(v *validator.Validate) {
	v.RegisterValidation("page_ref", validatePageRef)
	v.RegisterValidation("no_html", validateNoHTML)
}

func Validate(s interface{}) error {
	return validate.Struct(s)
}

// SanitizeHTML keeps the markup allowed in rich display fields.
func SanitizeHTML(markup string) string {
	return sanitizer.Sanitize(markup)
}

// SanitizeString strips all markup. The result is plain text, so entities
// escaped by the policy are decoded again.
func SanitizeString(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// SanitizeText strips markup and collapses whitespace.
func SanitizeText(s string) string {
	return strings.TrimSpace(NormalizeSpaces(SanitizeString(s)))
}

// IsPageRef reports whether value names a page: a positive id or "end".
func IsPageRef(value string) bool {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "end") {
		return true
	}
	id, err := strconv.ParseUint(value, 10, 64)
	return err == nil && id > 0
}

func validatePageRef(fl validator.FieldLevel) bool {
	return IsPageRef(fl.Field().String())
}

func validateNoHTML(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return !strings.Contains(value, "<") && !strings.Contains(value, ">")
}

func NormalizeSpaces(s string) string {
	return spacePattern.ReplaceAllString(s, " ")
}

func SanitizeFilename(filename string) string {
	return filenamePattern.ReplaceAllString(filename, "_")
}

func ValidateFileSize(size int64, maxSize int64) bool {
	return size > 0 && size <= maxSize
}

// ValidateContentType validates that the provided MIME type is in the allowed
// list. Entries ending in "/*" match a whole family.
func ValidateContentType(contentType string, allowedMimeTypes []string) bool {
	if contentType == "" || len(allowedMimeTypes) == 0 {
		return false
	}

	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	for _, allowed := range allowedMimeTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		if mimeType == allowed {
			return true
		}

		if strings.HasSuffix(allowed, "/*") {
			prefix := strings.TrimSuffix(allowed, "/*")
			if strings.HasPrefix(mimeType, prefix+"/") {
				return true
			}
		}
	}

	return false
}
