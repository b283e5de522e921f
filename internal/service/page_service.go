package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"form-builder-backend/internal/models"
	"form-builder-backend/internal/repository"
	"form-builder-backend/pkg/cache"
	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/logger"
	"form-builder-backend/pkg/navigation"
	"form-builder-backend/pkg/validator"
)

type CreatePageRequest struct {
	Title    string `json:"page_title" binding:"omitempty,max=255"`
	CopyCode string `json:"copy_code" binding:"omitempty,max=128"`
}

// ButtonState compares the navigation button a page should end with against
// the one it currently carries.
type ButtonState struct {
	PageID   uint        `json:"page_id"`
	Expected fields.Type `json:"expected,omitempty"`
	Current  fields.Type `json:"current,omitempty"`
	FieldID  string      `json:"field_id,omitempty"`
}

type ButtonReport struct {
	Order    []uint        `json:"page_order"`
	Terminal uint          `json:"terminal_page_id"`
	Buttons  []ButtonState `json:"buttons"`
}

type PageService struct {
	repo       repository.FormRepository
	cache      formCache
	copySecret string
}

// NewPageService creates the page service. copySecret keys the signature
// carried by copy codes.
func NewPageService(repo repository.FormRepository, cacheService *cache.Cache, copySecret string) *PageService {
	s := &PageService{repo: repo, copySecret: copySecret}
	if cacheService.Enabled() {
		s.cache = cacheService
	}
	return s
}

type pageMutation func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error

// mutate runs fn on a locked, owned form inside one transaction. When
// reconcile is set every page's navigation button is brought in line with
// the resulting page order before the transaction commits.
func (s *PageService) mutate(ctx context.Context, operation string, userID, formID uint, reconcile bool, fn pageMutation) (err error) {
	defer func() { observePageOperation(operation, err) }()

	if userID == 0 {
		return ErrUnauthorized
	}

	err = s.repo.WithTx(ctx, func(repo repository.FormRepository) error {
		form, err := repo.LockForm(ctx, formID)
		if err != nil {
			return notFound(err, ErrFormNotFound)
		}
		if form.UserID != userID {
			return ErrFormNotFound
		}

		pages, err := repo.ListPages(ctx, form.ID)
		if err != nil {
			return err
		}
		if err := fn(repo, form, toNavigationPages(pages)); err != nil {
			return err
		}
		if !reconcile {
			return nil
		}
		return reconcileButtons(ctx, repo, form.ID)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if cacheErr := s.cache.InvalidateForm(formID); cacheErr != nil {
			logger.Warn("Failed to invalidate form cache", map[string]interface{}{"form_id": formID, "error": cacheErr.Error()})
		}
	}
	logger.FromContext(ctx).WithField("form_id", formID).Infof("Page %s completed", operation)
	return nil
}

// reconcileButtons rewrites the field list of every page whose trailing
// navigation button disagrees with the current page order.
func reconcileButtons(ctx context.Context, repo repository.FormRepository, formID uint) error {
	pages, err := repo.ListPages(ctx, formID)
	if err != nil {
		return err
	}
	order := navigation.Order(toNavigationPages(pages))

	for _, pageID := range append(append([]uint(nil), order...), fields.EndPage) {
		rows, err := repo.ListFields(ctx, formID, pageID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		list, err := rowsToFields(rows)
		if err != nil {
			return err
		}
		next, changed := navigation.Reconcile(list, navigation.ExpectedButton(pageID, order))
		if !changed {
			continue
		}
		updated, err := fieldsToRows(next)
		if err != nil {
			return err
		}
		if err := repo.ReplaceFields(ctx, formID, pageID, updated); err != nil {
			return err
		}
	}
	return nil
}

// Create appends a page to the form. A copy code seeds it with the content
// fields of the page the code names.
func (s *PageService) Create(ctx context.Context, userID, formID uint, req CreatePageRequest) (navigation.Page, error) {
	var created navigation.Page
	err := s.mutate(ctx, "create", userID, formID, true, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		title := validator.SanitizeText(req.Title)

		var source []fields.Field
		if code := strings.TrimSpace(req.CopyCode); code != "" {
			sourceForm, sourcePage, err := DecodeCopyCode(s.copySecret, code)
			if err != nil {
				return err
			}
			page, err := repo.GetPage(ctx, sourceForm, sourcePage)
			if err != nil {
				return notFound(err, ErrInvalidCopyCode)
			}
			if source, err = contentFields(ctx, repo, sourceForm, sourcePage); err != nil {
				return err
			}
			if title == "" {
				title = page.Title
			}
		}

		page, err := insertPage(ctx, repo, form.ID, pages, title, source)
		if err != nil {
			return err
		}
		created = page
		return nil
	})
	return created, err
}

// Duplicate copies a page of the form, naming it after the original with a
// "(Copy)" suffix that is unique among the form's pages.
func (s *PageService) Duplicate(ctx context.Context, userID, formID, pageID uint) (navigation.Page, error) {
	var created navigation.Page
	err := s.mutate(ctx, "duplicate", userID, formID, true, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		original, err := repo.GetPage(ctx, form.ID, pageID)
		if err != nil {
			return notFound(err, ErrPageNotFound)
		}
		source, err := contentFields(ctx, repo, form.ID, original.ID)
		if err != nil {
			return err
		}

		titles := make([]string, 0, len(pages))
		for _, p := range pages {
			titles = append(titles, p.Title)
		}
		page, err := insertPage(ctx, repo, form.ID, pages, CopyTitle(original.Title, titles), source)
		if err != nil {
			return err
		}
		created = page
		return nil
	})
	return created, err
}

func (s *PageService) Rename(ctx context.Context, userID, formID, pageID uint, title string) (navigation.Page, error) {
	var renamed navigation.Page
	err := s.mutate(ctx, "rename", userID, formID, false, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		title = validator.SanitizeText(title)
		if title == "" {
			return newValidationError("page title is required")
		}
		if len(title) > maxTitleLength {
			return newValidationError("page title must be at most %d characters", maxTitleLength)
		}
		page, err := repo.GetPage(ctx, form.ID, pageID)
		if err != nil {
			return notFound(err, ErrPageNotFound)
		}
		page.Title = title
		if err := repo.UpdatePage(ctx, page); err != nil {
			return err
		}
		renamed = toNavigationPages([]models.FormPage{*page})[0]
		return nil
	})
	return renamed, err
}

// Delete removes a page with its fields and returns the page the editor
// should open next.
func (s *PageService) Delete(ctx context.Context, userID, formID, pageID uint) (uint, error) {
	var landing uint
	err := s.mutate(ctx, "delete", userID, formID, true, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		remaining, next, err := navigation.Remove(pages, pageID)
		if err != nil {
			return pageError(err)
		}
		if err := repo.DeletePage(ctx, form.ID, pageID); err != nil {
			return notFound(err, ErrPageNotFound)
		}
		if err := repo.UpdatePageOrders(ctx, toPageModels(remaining)); err != nil {
			return err
		}
		landing = next
		return nil
	})
	return landing, err
}

// Reorder applies drag-and-drop sort orders and returns the compacted order.
func (s *PageService) Reorder(ctx context.Context, userID, formID uint, updates []navigation.SortUpdate) ([]navigation.Page, error) {
	var ordered []navigation.Page
	err := s.mutate(ctx, "reorder", userID, formID, true, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		next, err := navigation.ApplySortOrders(pages, updates)
		if err != nil {
			return pageError(err)
		}
		if err := repo.UpdatePageOrders(ctx, toPageModels(next)); err != nil {
			return err
		}
		ordered = next
		return nil
	})
	return ordered, err
}

// SetFirst moves a page to the front of the form.
func (s *PageService) SetFirst(ctx context.Context, userID, formID, pageID uint) ([]navigation.Page, error) {
	var ordered []navigation.Page
	err := s.mutate(ctx, "set_first", userID, formID, true, func(repo repository.FormRepository, form *models.Form, pages []navigation.Page) error {
		next, err := navigation.PromoteToFirst(pages, pageID)
		if err != nil {
			return pageError(err)
		}
		if err := repo.UpdatePageOrders(ctx, toPageModels(next)); err != nil {
			return err
		}
		ordered = next
		return nil
	})
	return ordered, err
}

// CheckButtons reports, for an ordering of the form's pages, which button
// each page should end with and which one it carries. An empty order uses the
// stored one.
func (s *PageService) CheckButtons(ctx context.Context, userID, formID uint, order []uint) (*ButtonReport, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	form, err := ownedForm(ctx, s.repo, userID, formID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListPages(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	pages := toNavigationPages(rows)
	if len(order) == 0 {
		order = navigation.Order(pages)
	} else if _, err := navigation.Reorder(pages, order); err != nil {
		return nil, pageError(err)
	}

	report := &ButtonReport{Order: order}
	report.Terminal, _ = navigation.Terminal(order)
	for _, pageID := range append(append([]uint(nil), order...), fields.EndPage) {
		fieldRows, err := s.repo.ListFields(ctx, form.ID, pageID)
		if err != nil {
			return nil, err
		}
		list, err := rowsToFields(fieldRows)
		if err != nil {
			return nil, err
		}
		state := ButtonState{PageID: pageID, Expected: navigation.ExpectedButton(pageID, order)}
		if button, ok := navigation.TrailingButton(list); ok {
			state.Current = button.Type()
			state.FieldID = button.ID()
		}
		report.Buttons = append(report.Buttons, state)
	}
	return report, nil
}

// CopyCode returns the code another form can use to import a page.
func (s *PageService) CopyCode(ctx context.Context, userID, formID, pageID uint) (string, error) {
	if userID == 0 {
		return "", ErrUnauthorized
	}
	form, err := ownedForm(ctx, s.repo, userID, formID)
	if err != nil {
		return "", err
	}
	if _, err := s.repo.GetPage(ctx, form.ID, pageID); err != nil {
		return "", notFound(err, ErrPageNotFound)
	}
	code, err := EncodeCopyCode(s.copySecret, form.ID, pageID)
	if err != nil {
		return "", fmt.Errorf("failed to sign copy code: %w", err)
	}
	return code, nil
}

func insertPage(ctx context.Context, repo repository.FormRepository, formID uint, pages []navigation.Page, title string, source []fields.Field) (navigation.Page, error) {
	_, page := navigation.Add(pages, navigation.Page{FormID: formID, Title: title})
	if page.Title == "" {
		page.Title = defaultPageTitle(page.PageNumber)
	}

	row := &models.FormPage{FormID: formID, PageNumber: page.PageNumber, SortOrder: page.SortOrder, Title: page.Title}
	if err := repo.CreatePage(ctx, row); err != nil {
		return navigation.Page{}, err
	}
	page.ID = row.ID

	if len(source) == 0 {
		return page, nil
	}
	copied := make([]fields.Field, 0, len(source))
	for _, f := range source {
		copied = append(copied, f.WithPageID(row.ID))
	}
	rows, err := fieldsToRows(copied)
	if err != nil {
		return navigation.Page{}, err
	}
	if err := repo.ReplaceFields(ctx, formID, row.ID, rows); err != nil {
		return navigation.Page{}, err
	}
	return page, nil
}

// contentFields loads the fields of a page without its navigation button.
func contentFields(ctx context.Context, repo repository.FormRepository, formID, pageID uint) ([]fields.Field, error) {
	rows, err := repo.ListFields(ctx, formID, pageID)
	if err != nil {
		return nil, err
	}
	list, err := rowsToFields(rows)
	if err != nil {
		return nil, err
	}
	content := make([]fields.Field, 0, len(list))
	for _, f := range list {
		if !f.Type().IsNavigation() {
			content = append(content, f)
		}
	}
	return content, nil
}

var copySuffix = regexp.MustCompile(`\s*\(Copy(?: \d+)?\)$`)

// CopyTitle returns "<title> (Copy)", or "<title> (Copy N)" with the
// smallest N >= 2 not already taken. A copy suffix on title is replaced.
func CopyTitle(title string, existing []string) string {
	base := strings.TrimSpace(copySuffix.ReplaceAllString(strings.TrimSpace(title), ""))
	if base == "" {
		base = "Page"
	}
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[strings.ToLower(strings.TrimSpace(t))] = true
	}

	candidate := base + " (Copy)"
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s (Copy %d)", base, n)
	}
	return candidate
}

// copyCodeKey keeps copy code signatures apart from auth tokens signed with
// the same secret.
func copyCodeKey(secret string) []byte {
	return []byte("page-copy:" + secret)
}

// EncodeCopyCode packs a page reference as base64 "form:page" followed by
// an HS256 signature of that payload.
func EncodeCopyCode(secret string, formID, pageID uint) (string, error) {
	payload := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d:%d", formID, pageID)))
	sig, err := jwt.SigningMethodHS256.Sign(payload, copyCodeKey(secret))
	if err != nil {
		return "", err
	}
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// DecodeCopyCode verifies the signature of code and returns the page it
// references. Unsigned or tampered codes yield ErrInvalidCopyCode.
func DecodeCopyCode(secret, code string) (formID, pageID uint, err error) {
	payload, encodedSig, ok := strings.Cut(strings.TrimSpace(code), ".")
	if !ok || payload == "" {
		return 0, 0, ErrInvalidCopyCode
	}
	sig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return 0, 0, ErrInvalidCopyCode
	}
	if err := jwt.SigningMethodHS256.Verify(payload, sig, copyCodeKey(secret)); err != nil {
		return 0, 0, ErrInvalidCopyCode
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, 0, ErrInvalidCopyCode
	}
	formPart, pagePart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, 0, ErrInvalidCopyCode
	}
	form, err := strconv.ParseUint(formPart, 10, 64)
	if err != nil || form == 0 {
		return 0, 0, ErrInvalidCopyCode
	}
	page, err := strconv.ParseUint(pagePart, 10, 64)
	if err != nil || page == 0 {
		return 0, 0, ErrInvalidCopyCode
	}
	return uint(form), uint(page), nil
}

func pageError(err error) error {
	switch {
	case errors.Is(err, navigation.ErrPageNotFound):
		return ErrPageNotFound
	case errors.Is(err, navigation.ErrLastPageGuard), errors.Is(err, navigation.ErrInvalidOrder):
		return newValidationError("%v", err)
	default:
		return err
	}
}

func toPageModels(pages []navigation.Page) []models.FormPage {
	out := make([]models.FormPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, models.FormPage{
			ID:         p.ID,
			FormID:     p.FormID,
			PageNumber: p.PageNumber,
			SortOrder:  p.SortOrder,
			Title:      p.Title,
		})
	}
	return out
}
