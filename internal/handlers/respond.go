package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/internal/service"
	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/logger"
)

var errInvalidPageRef = errors.New(`page must be a positive id or "end"`)

// respondError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsValidationError(err),
		errors.Is(err, service.ErrUnresolvedAttachment),
		errors.Is(err, service.ErrInvalidCopyCode):
		status = http.StatusBadRequest
	case errors.Is(err, attachments.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrFormNotFound),
		errors.Is(err, service.ErrPageNotFound),
		errors.Is(err, service.ErrVersionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateTitle):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).WithField("route", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

// parsePageRef accepts a positive page id or "end" for the end page.
func parsePageRef(value string) (uint, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "end") {
		return fields.EndPage, nil
	}
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil || id == 0 {
		return 0, errInvalidPageRef
	}
	return uint(id), nil
}

func pageParam(c *gin.Context) (uint, bool) {
	id, err := parsePageRef(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return id, true
}

// pageRef is a page reference in a request body: a JSON number, or a string
// holding an id or "end".
type pageRef struct {
	ID  uint
	Set bool
}

func (p *pageRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = pageRef{}
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		text = v
	default:
		return errInvalidPageRef
	}
	id, err := parsePageRef(text)
	if err != nil {
		return err
	}
	*p = pageRef{ID: id, Set: true}
	return nil
}
