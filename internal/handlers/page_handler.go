package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"form-builder-backend/internal/middleware"
	"form-builder-backend/internal/service"
	"form-builder-backend/pkg/navigation"
)

type pageService interface {
	Create(ctx context.Context, userID, formID uint, req service.CreatePageRequest) (navigation.Page, error)
	Duplicate(ctx context.Context, userID, formID, pageID uint) (navigation.Page, error)
	Rename(ctx context.Context, userID, formID, pageID uint, title string) (navigation.Page, error)
	Delete(ctx context.Context, userID, formID, pageID uint) (uint, error)
	Reorder(ctx context.Context, userID, formID uint, updates []navigation.SortUpdate) ([]navigation.Page, error)
	SetFirst(ctx context.Context, userID, formID, pageID uint) ([]navigation.Page, error)
	CheckButtons(ctx context.Context, userID, formID uint, order []uint) (*service.ButtonReport, error)
	CopyCode(ctx context.Context, userID, formID, pageID uint) (string, error)
}

type PageHandler struct {
	pageService pageService
}

func NewPageHandler(pageService pageService) *PageHandler {
	return &PageHandler{pageService: pageService}
}

type renamePageRequest struct {
	Title string `json:"page_title" binding:"required,max=255"`
}

type reorderPagesRequest struct {
	Pages []navigation.SortUpdate `json:"pages" binding:"required,min=1,dive"`
}

type checkButtonsRequest struct {
	Order []uint `json:"page_order"`
}

// formScope resolves the caller and the :id form parameter, answering the
// request itself when either is missing.
func formScope(c *gin.Context) (userID, formID uint, ok bool) {
	userID, ok = middleware.CurrentUserID(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return 0, 0, false
	}
	formID, ok = parseID(c, "id")
	return userID, formID, ok
}

func pageScope(c *gin.Context) (userID, formID, pageID uint, ok bool) {
	userID, formID, ok = formScope(c)
	if !ok {
		return 0, 0, 0, false
	}
	pageID, ok = parseID(c, "page")
	return userID, formID, pageID, ok
}

func (h *PageHandler) Create(c *gin.Context) {
	userID, formID, ok := formScope(c)
	if !ok {
		return
	}

	var req service.CreatePageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	page, err := h.pageService.Create(c.Request.Context(), userID, formID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"page": page})
}

func (h *PageHandler) Duplicate(c *gin.Context) {
	userID, formID, pageID, ok := pageScope(c)
	if !ok {
		return
	}

	page, err := h.pageService.Duplicate(c.Request.Context(), userID, formID, pageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"page": page})
}

func (h *PageHandler) Rename(c *gin.Context) {
	userID, formID, pageID, ok := pageScope(c)
	if !ok {
		return
	}

	var req renamePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.pageService.Rename(c.Request.Context(), userID, formID, pageID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"page": page})
}

func (h *PageHandler) Delete(c *gin.Context) {
	userID, formID, pageID, ok := pageScope(c)
	if !ok {
		return
	}

	landing, err := h.pageService.Delete(c.Request.Context(), userID, formID, pageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "page deleted successfully", "landing_page_id": landing})
}

func (h *PageHandler) Reorder(c *gin.Context) {
	userID, formID, ok := formScope(c)
	if !ok {
		return
	}

	var req reorderPagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pages, err := h.pageService.Reorder(c.Request.Context(), userID, formID, req.Pages)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

func (h *PageHandler) SetFirst(c *gin.Context) {
	userID, formID, pageID, ok := pageScope(c)
	if !ok {
		return
	}

	pages, err := h.pageService.SetFirst(c.Request.Context(), userID, formID, pageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

// CheckButtons reconciles the navigation button of every page. An empty body
// uses the stored page order.
func (h *PageHandler) CheckButtons(c *gin.Context) {
	userID, formID, ok := formScope(c)
	if !ok {
		return
	}

	var req checkButtonsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := h.pageService.CheckButtons(c.Request.Context(), userID, formID, req.Order)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *PageHandler) CopyCode(c *gin.Context) {
	userID, formID, pageID, ok := pageScope(c)
	if !ok {
		return
	}

	code, err := h.pageService.CopyCode(c.Request.Context(), userID, formID, pageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"copy_code": code})
}
