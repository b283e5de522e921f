package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/internal/middleware"
	"form-builder-backend/internal/service"
	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/navigation"
)

type formService interface {
	Save(ctx context.Context, req service.SaveRequest) (*service.FormSnapshot, error)
	GetPage(ctx context.Context, userID, formID, pageID uint, version int) (*service.FormSnapshot, error)
	ListPages(ctx context.Context, userID, formID uint) ([]navigation.Page, error)
}

type FormHandler struct {
	formService   formService
	maxUploadSize int64
}

func NewFormHandler(formService formService, maxUploadSize int64) *FormHandler {
	return &FormHandler{formService: formService, maxUploadSize: maxUploadSize}
}

type saveFormRequest struct {
	FormID uint           `json:"form_id"`
	PageID pageRef        `json:"page_id"`
	Title  string         `json:"title" binding:"max=255"`
	Style  fields.Style   `json:"style"`
	Fields []fields.Field `json:"fields"`
}

// Save persists one page of a form. The body is either JSON or multipart
// with form_id, page_id, title, style and fields parts plus one file part per
// attachment placeholder. Media values may also be data URIs or file:<part>
// references, which are extracted into placeholders here.
func (h *FormHandler) Save(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	var (
		req   saveFormRequest
		reg   = attachments.NewRegistry()
		files map[string]attachments.Binary
		err   error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, reg, files, err = h.bindMultipart(c)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		if errors.Is(err, attachments.ErrTooLarge) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FormID != 0 && !req.PageID.Set {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_id is required when saving an existing form"})
		return
	}

	list, extracted, err := attachments.Extract(req.Fields, files)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reg.Merge(extracted)

	snapshot, err := h.formService.Save(c.Request.Context(), service.SaveRequest{
		UserID:      userID,
		FormID:      req.FormID,
		PageID:      req.PageID.ID,
		Title:       req.Title,
		Style:       req.Style,
		Fields:      list,
		Attachments: reg,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if req.FormID == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"page": snapshot})
}

func (h *FormHandler) bindMultipart(c *gin.Context) (saveFormRequest, *attachments.Registry, map[string]attachments.Binary, error) {
	var req saveFormRequest

	form, err := c.MultipartForm()
	if err != nil {
		return req, nil, nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	if value := strings.TrimSpace(c.PostForm("form_id")); value != "" {
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return req, nil, nil, errors.New("invalid form_id")
		}
		req.FormID = uint(id)
	}
	if value := strings.TrimSpace(c.PostForm("page_id")); value != "" {
		id, err := parsePageRef(value)
		if err != nil {
			return req, nil, nil, err
		}
		req.PageID = pageRef{ID: id, Set: true}
	}
	req.Title = c.PostForm("title")
	if value := c.PostForm("style"); value != "" {
		if err := json.Unmarshal([]byte(value), &req.Style); err != nil {
			return req, nil, nil, fmt.Errorf("invalid style: %w", err)
		}
	}
	if value := c.PostForm("fields"); value != "" {
		if err := json.Unmarshal([]byte(value), &req.Fields); err != nil {
			return req, nil, nil, fmt.Errorf("invalid fields: %w", err)
		}
	}

	reg, err := attachments.FromMultipart(form, h.maxUploadSize)
	if err != nil {
		return req, nil, nil, err
	}
	files, err := attachments.NamedFiles(form, h.maxUploadSize)
	if err != nil {
		return req, nil, nil, err
	}
	return req, reg, files, nil
}

// GetPage returns the style and fields of one page. ?version=N selects a
// previously saved version of that page.
func (h *FormHandler) GetPage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	formID, ok := parseID(c, "id")
	if !ok {
		return
	}
	pageID, ok := pageParam(c)
	if !ok {
		return
	}

	version := 0
	if value := c.Query("version"); value != "" {
		v, err := strconv.Atoi(value)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		version = v
	}

	snapshot, err := h.formService.GetPage(c.Request.Context(), userID, formID, pageID, version)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"page": snapshot})
}

func (h *FormHandler) ListPages(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	formID, ok := parseID(c, "id")
	if !ok {
		return
	}

	pages, err := h.formService.ListPages(c.Request.Context(), userID, formID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pages": pages})
}
