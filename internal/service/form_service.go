package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/internal/models"
	"form-builder-backend/internal/repository"
	"form-builder-backend/pkg/cache"
	"form-builder-backend/pkg/diff"
	"form-builder-backend/pkg/editor"
	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/logger"
	"form-builder-backend/pkg/navigation"
	"form-builder-backend/pkg/validator"
)

const maxTitleLength = 255

// SaveRequest carries one page of a form to be persisted. A zero FormID
// creates the form with its first page; otherwise PageID names the page, with
// fields.EndPage addressing the end page.
type SaveRequest struct {
	UserID      uint
	FormID      uint
	PageID      uint
	Title       string
	Style       fields.Style
	Fields      []fields.Field
	Attachments *attachments.Registry
}

// FormSnapshot is the authoritative state of one page together with the
// ordered page list of its form.
type FormSnapshot struct {
	editor.Snapshot
	Pages []navigation.Page `json:"pages"`
}

type attachmentStore interface {
	StoreAll(ownerID uint, reg *attachments.Registry) ([]StoredFile, error)
	Remove(files []StoredFile)
}

type formCache interface {
	CachePages(formID uint, pages interface{}, ttl time.Duration) error
	GetCachedPages(formID uint, dest interface{}) error
	CachePageSnapshot(formID, pageID uint, version int, snapshot interface{}, ttl time.Duration) error
	GetCachedPageSnapshot(formID, pageID uint, version int, dest interface{}) error
	InvalidateForm(formID uint) error
}

type FormService struct {
	repo     repository.FormRepository
	uploads  attachmentStore
	cache    formCache
	cacheTTL time.Duration
}

func NewFormService(repo repository.FormRepository, uploads *UploadService, cacheService *cache.Cache, cacheTTL time.Duration) *FormService {
	s := &FormService{repo: repo, cacheTTL: cacheTTL}
	if uploads != nil {
		s.uploads = uploads
	}
	if cacheService.Enabled() {
		s.cache = cacheService
	}
	return s
}

// Save validates the request, stores its attachments and replaces the
// fields of the addressed page in one transaction. Stored files are removed
// again when the transaction does not commit.
func (s *FormService) Save(ctx context.Context, req SaveRequest) (*FormSnapshot, error) {
	started := time.Now()
	snapshot, uploads, err := s.save(ctx, req)
	observeSave(err, started, uploads)
	return snapshot, err
}

func (s *FormService) save(ctx context.Context, req SaveRequest) (*FormSnapshot, int, error) {
	if req.UserID == 0 {
		return nil, 0, ErrUnauthorized
	}

	title, list, style, err := prepareSave(req)
	if err != nil {
		return nil, 0, err
	}

	stored, err := s.storeAttachments(req.UserID, list, req.Attachments)
	if err != nil {
		return nil, 0, err
	}
	committed := false
	defer func() {
		if !committed && len(stored) > 0 {
			s.uploads.Remove(stored)
		}
	}()

	paths := make(map[string]string, len(stored))
	for _, file := range stored {
		paths[file.Placeholder] = file.URL
	}
	list, err = attachments.Resolve(list, paths)
	if err != nil {
		return nil, 0, err
	}

	var (
		snapshot  *FormSnapshot
		unchanged bool
	)
	err = s.repo.WithTx(ctx, func(repo repository.FormRepository) error {
		taken, err := repo.TitleExists(ctx, req.UserID, title, req.FormID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateTitle
		}

		form, pageID, err := lockOrCreateForm(ctx, repo, req, title, style)
		if err != nil {
			return err
		}

		pages, err := repo.ListPages(ctx, form.ID)
		if err != nil {
			return err
		}
		navPages := toNavigationPages(pages)

		scoped := make([]fields.Field, 0, len(list))
		for _, f := range list {
			scoped = append(scoped, f.WithPageID(pageID))
		}
		scoped, _ = navigation.Reconcile(scoped, navigation.ExpectedButton(pageID, navigation.Order(navPages)))

		if req.FormID != 0 {
			if len(stored) == 0 {
				current, err := repo.ListFields(ctx, form.ID, pageID)
				if err != nil {
					return err
				}
				baseline, err := rowsToFields(current)
				if err != nil {
					return err
				}
				if form.Title == title && !diff.IsDirty(
					diff.State{Fields: scoped, Style: style},
					diff.State{Fields: baseline, Style: formStyle(form)},
				) {
					snapshot = buildSnapshot(form, pageID, baseline, navPages)
					unchanged = true
					return nil
				}
			}

			form.Title = title
			applyStyle(form, style)
			form.Version++
			if err := repo.UpdateForm(ctx, form); err != nil {
				return err
			}
		}

		rows, err := fieldsToRows(scoped)
		if err != nil {
			return err
		}
		if err := repo.ReplaceFields(ctx, form.ID, pageID, rows); err != nil {
			return err
		}

		if len(stored) > 0 {
			uploads := make([]models.FormUpload, 0, len(stored))
			for _, file := range stored {
				uploads = append(uploads, models.FormUpload{
					FormID:      form.ID,
					PageID:      pageID,
					Placeholder: file.Placeholder,
					Path:        file.URL,
					MimeType:    file.MimeType,
					Size:        file.Size,
				})
			}
			if err := repo.CreateUploads(ctx, uploads); err != nil {
				return err
			}
		}

		persisted, err := repo.ListFields(ctx, form.ID, pageID)
		if err != nil {
			return err
		}
		saved, err := rowsToFields(persisted)
		if err != nil {
			return err
		}

		snapshot = buildSnapshot(form, pageID, saved, navPages)
		record, err := snapshotRecord(snapshot)
		if err != nil {
			return err
		}
		return repo.CreateSnapshot(ctx, record)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, 0, ErrDuplicateTitle
		}
		return nil, 0, err
	}
	committed = true

	if unchanged {
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"form_id": snapshot.FormID,
			"page_id": snapshot.PageID,
			"version": snapshot.Version,
		}).Debug("Form page unchanged, save skipped")
		return snapshot, 0, nil
	}

	s.invalidate(snapshot.FormID)
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"form_id": snapshot.FormID,
		"page_id": snapshot.PageID,
		"version": snapshot.Version,
		"fields":  len(snapshot.Fields),
		"uploads": len(stored),
	}).Info("Form page saved")

	return snapshot, len(stored), nil
}

// lockOrCreateForm creates the form with its first page when req names no
// form. Otherwise it locks the owned form and checks the addressed page; the
// caller updates the locked row.
func lockOrCreateForm(ctx context.Context, repo repository.FormRepository, req SaveRequest, title string, style fields.Style) (*models.Form, uint, error) {
	if req.FormID == 0 {
		form := &models.Form{UserID: req.UserID, Title: title, Version: 1}
		applyStyle(form, style)
		if err := repo.CreateForm(ctx, form); err != nil {
			return nil, 0, err
		}
		page := &models.FormPage{FormID: form.ID, PageNumber: 1, Title: defaultPageTitle(1)}
		if err := repo.CreatePage(ctx, page); err != nil {
			return nil, 0, err
		}
		return form, page.ID, nil
	}

	form, err := repo.LockForm(ctx, req.FormID)
	if err != nil {
		return nil, 0, notFound(err, ErrFormNotFound)
	}
	if form.UserID != req.UserID {
		return nil, 0, ErrFormNotFound
	}
	if req.PageID != fields.EndPage {
		if _, err := repo.GetPage(ctx, form.ID, req.PageID); err != nil {
			return nil, 0, notFound(err, ErrPageNotFound)
		}
	}
	return form, req.PageID, nil
}

func (s *FormService) storeAttachments(ownerID uint, list []fields.Field, reg *attachments.Registry) ([]StoredFile, error) {
	keys := attachments.Placeholders(list)
	if len(keys) == 0 {
		return nil, nil
	}
	if s.uploads == nil {
		return nil, errors.New("attachment storage is not configured")
	}

	needed := attachments.NewRegistry()
	for _, key := range keys {
		b, ok := reg.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedAttachment, key)
		}
		if err := needed.Bind(key, b); err != nil {
			return nil, newValidationError("%v", err)
		}
	}

	stored, err := s.uploads.StoreAll(ownerID, needed)
	if err != nil {
		if errors.Is(err, attachments.ErrTooLarge) || errors.Is(err, attachments.ErrEmptyBinary) {
			return nil, newValidationError("%v", err)
		}
		return nil, err
	}
	return stored, nil
}

// prepareSave sanitizes the request and checks every precondition that does
// not need the database.
func prepareSave(req SaveRequest) (string, []fields.Field, fields.Style, error) {
	title := validator.SanitizeText(req.Title)
	if title == "" {
		return "", nil, fields.Style{}, newValidationError("form title is required")
	}
	if len(title) > maxTitleLength {
		return "", nil, fields.Style{}, newValidationError("form title must be at most %d characters", maxTitleLength)
	}

	style := req.Style.Normalize().WithDefaults(fields.DefaultStyle())
	if err := validator.Validate(style); err != nil {
		return "", nil, fields.Style{}, newValidationError("invalid style: %v", err)
	}

	list := make([]fields.Field, 0, len(req.Fields))
	for i, f := range req.Fields {
		if err := f.Validate(); err != nil {
			return "", nil, fields.Style{}, newValidationError("field %d: %v", i+1, err)
		}
		clean, err := sanitizeField(f)
		if err != nil {
			return "", nil, fields.Style{}, newValidationError("field %d: %v", i+1, err)
		}
		if err := checkField(i, clean); err != nil {
			return "", nil, fields.Style{}, err
		}
		list = append(list, clean)
	}

	if fields.CountContent(list) == 0 {
		return "", nil, fields.Style{}, newValidationError("add at least one field before saving")
	}

	if err := attachments.Check(list, req.Attachments); err != nil {
		if errors.Is(err, attachments.ErrUnsupportedMIME) {
			return "", nil, fields.Style{}, newValidationError("%v", err)
		}
		return "", nil, fields.Style{}, err
	}
	return title, list, style, nil
}

func checkField(i int, f fields.Field) error {
	t := f.Type()
	if !t.IsDecorative() && !t.IsNavigation() && strings.TrimSpace(f.Label()) == "" {
		return newValidationError("field %d (%s) needs a label", i+1, t)
	}
	if t.IsChoice() {
		for j, opt := range f.Options() {
			if strings.TrimSpace(opt.Text) == "" {
				return newValidationError("field %d (%s): option %d needs a text", i+1, t, j+1)
			}
			if t == fields.TypePicture && strings.TrimSpace(opt.ImagePath) == "" {
				return newValidationError("field %d (%s): option %d needs an image", i+1, t, j+1)
			}
		}
	}
	return nil
}

func sanitizeField(f fields.Field) (fields.Field, error) {
	f = f.WithLabel(validator.SanitizeText(f.Label())).
		WithCaption(validator.SanitizeText(f.Caption())).
		WithPlaceholder(validator.SanitizeText(f.Placeholder()))

	switch p := f.Payload().(type) {
	case fields.TextPayload:
		p.Value = validator.SanitizeString(p.Value)
		return f.WithPayload(p)
	case fields.ChoicePayload:
		for i := range p.Options {
			p.Options[i].Text = validator.SanitizeText(p.Options[i].Text)
		}
		return f.WithPayload(p)
	case fields.MatrixPayload:
		for i := range p.Rows {
			p.Rows[i].Label = validator.SanitizeText(p.Rows[i].Label)
		}
		for i := range p.Columns {
			p.Columns[i].Label = validator.SanitizeText(p.Columns[i].Label)
		}
		return f.WithPayload(p)
	case fields.DisplayPayload:
		switch f.Type() {
		case fields.TypeParagraph, fields.TypeBanner, fields.TypeThankYou:
			p.Value = validator.SanitizeHTML(p.Value)
		default:
			p.Value = validator.SanitizeText(p.Value)
		}
		return f.WithPayload(p)
	default:
		return f, nil
	}
}

// GetPage returns the current state of a page, or the state committed by
// the save that produced version when version is positive.
func (s *FormService) GetPage(ctx context.Context, userID, formID, pageID uint, version int) (*FormSnapshot, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	form, err := ownedForm(ctx, s.repo, userID, formID)
	if err != nil {
		return nil, err
	}
	if pageID != fields.EndPage {
		if _, err := s.repo.GetPage(ctx, form.ID, pageID); err != nil {
			return nil, notFound(err, ErrPageNotFound)
		}
	}

	if version > 0 && version != form.Version {
		return s.historicalPage(ctx, form, pageID, version)
	}

	if s.cache != nil {
		var cached FormSnapshot
		if err := s.cache.GetCachedPageSnapshot(form.ID, pageID, form.Version, &cached); err == nil {
			return &cached, nil
		}
	}

	pages, err := s.repo.ListPages(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListFields(ctx, form.ID, pageID)
	if err != nil {
		return nil, err
	}
	list, err := rowsToFields(rows)
	if err != nil {
		return nil, err
	}

	snapshot := buildSnapshot(form, pageID, list, toNavigationPages(pages))
	if s.cache != nil {
		if err := s.cache.CachePageSnapshot(form.ID, pageID, form.Version, snapshot, s.cacheTTL); err != nil {
			logger.Warn("Failed to cache page snapshot", map[string]interface{}{"form_id": form.ID, "error": err.Error()})
		}
	}
	return snapshot, nil
}

func (s *FormService) historicalPage(ctx context.Context, form *models.Form, pageID uint, version int) (*FormSnapshot, error) {
	record, err := s.repo.GetSnapshot(ctx, form.ID, pageID, version)
	if err != nil {
		return nil, notFound(err, ErrVersionNotFound)
	}
	list, err := fields.DecodeList(record.Fields)
	if err != nil {
		return nil, err
	}
	style := fields.DefaultStyle()
	if len(record.Style) > 0 {
		if err := json.Unmarshal(record.Style, &style); err != nil {
			return nil, fmt.Errorf("decode style of version %d: %w", version, err)
		}
	}
	pages, err := s.repo.ListPages(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	navPages := toNavigationPages(pages)
	return &FormSnapshot{
		Snapshot: editor.Snapshot{
			FormID:  form.ID,
			PageID:  pageID,
			Title:   record.Title,
			Version: record.Version,
			Style:   style,
			Fields:  list,
			Order:   navigation.Order(navPages),
		},
		Pages: navPages,
	}, nil
}

// ListPages returns the pages of a form in display order.
func (s *FormService) ListPages(ctx context.Context, userID, formID uint) ([]navigation.Page, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	form, err := ownedForm(ctx, s.repo, userID, formID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached []navigation.Page
		if err := s.cache.GetCachedPages(form.ID, &cached); err == nil {
			return cached, nil
		}
	}

	pages, err := s.repo.ListPages(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	navPages := toNavigationPages(pages)
	if s.cache != nil {
		if err := s.cache.CachePages(form.ID, navPages, s.cacheTTL); err != nil {
			logger.Warn("Failed to cache form pages", map[string]interface{}{"form_id": form.ID, "error": err.Error()})
		}
	}
	return navPages, nil
}

func (s *FormService) invalidate(formID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateForm(formID); err != nil {
		logger.Warn("Failed to invalidate form cache", map[string]interface{}{"form_id": formID, "error": err.Error()})
	}
}

func ownedForm(ctx context.Context, repo repository.FormRepository, userID, formID uint) (*models.Form, error) {
	form, err := repo.GetForm(ctx, formID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	if form.UserID != userID {
		return nil, ErrFormNotFound
	}
	return form, nil
}

func buildSnapshot(form *models.Form, pageID uint, list []fields.Field, pages []navigation.Page) *FormSnapshot {
	return &FormSnapshot{
		Snapshot: editor.Snapshot{
			FormID:  form.ID,
			PageID:  pageID,
			Title:   form.Title,
			Version: form.Version,
			Style:   formStyle(form),
			Fields:  list,
			Order:   navigation.Order(pages),
		},
		Pages: pages,
	}
}

func snapshotRecord(snapshot *FormSnapshot) (*models.FormSnapshot, error) {
	fieldsJSON, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return nil, err
	}
	styleJSON, err := json.Marshal(snapshot.Style)
	if err != nil {
		return nil, err
	}
	return &models.FormSnapshot{
		FormID:  snapshot.FormID,
		PageID:  snapshot.PageID,
		Version: snapshot.Version,
		Title:   snapshot.Title,
		Fields:  datatypes.JSON(fieldsJSON),
		Style:   datatypes.JSON(styleJSON),
	}, nil
}

func applyStyle(form *models.Form, style fields.Style) {
	form.BackgroundColor = style.BackgroundColor
	form.QuestionColor = style.QuestionColor
	form.AnswerColor = style.AnswerColor
	form.ButtonColor = style.ButtonColor
	form.ButtonTextColor = style.ButtonTextColor
	form.Font = style.Font
}

func formStyle(form *models.Form) fields.Style {
	return fields.Style{
		BackgroundColor: form.BackgroundColor,
		QuestionColor:   form.QuestionColor,
		AnswerColor:     form.AnswerColor,
		ButtonColor:     form.ButtonColor,
		ButtonTextColor: form.ButtonTextColor,
		Font:            form.Font,
	}
}

func toNavigationPages(pages []models.FormPage) []navigation.Page {
	out := make([]navigation.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, navigation.Page{
			ID:         p.ID,
			FormID:     p.FormID,
			PageNumber: p.PageNumber,
			SortOrder:  p.SortOrder,
			Title:      p.Title,
		})
	}
	return navigation.Sort(out)
}

func defaultPageTitle(number int) string {
	return fmt.Sprintf("Page %d", number)
}
