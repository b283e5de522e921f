package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/pkg/diff"
	"form-builder-backend/pkg/editor"
	"form-builder-backend/pkg/fields"
)

func newTestFormService() (*FormService, *fakeRepository, *fakeUploads) {
	repo := newFakeRepository()
	uploads := &fakeUploads{}
	return &FormService{repo: repo, uploads: uploads}, repo, uploads
}

func shortAnswer(label string) fields.Field {
	return fields.MustNew(fields.TypeShortAnswer).WithLabel(label)
}

func imageField(t *testing.T, path string) fields.Field {
	t.Helper()
	f, err := fields.MustNew(fields.TypeImage).WithPayload(fields.MediaPayload{
		Path:        path,
		Alignment:   fields.AlignCenter,
		PreviewSize: fields.PreviewMedium,
	})
	if err != nil {
		t.Fatalf("build image field: %v", err)
	}
	return f
}

func trailingType(list []fields.Field) fields.Type {
	if len(list) == 0 {
		return ""
	}
	last := list[len(list)-1]
	if !last.Type().IsNavigation() {
		return ""
	}
	return last.Type()
}

func TestSaveCreatesFormWithSubmitButton(t *testing.T) {
	svc, repo, _ := newTestFormService()

	snapshot, err := svc.Save(context.Background(), SaveRequest{
		UserID: 1,
		Title:  "  Customer   survey ",
		Fields: []fields.Field{shortAnswer("Name")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot.Title != "Customer survey" {
		t.Fatalf("expected sanitized title, got %q", snapshot.Title)
	}
	if snapshot.Version != 1 {
		t.Fatalf("expected version 1, got %d", snapshot.Version)
	}
	if len(snapshot.Pages) != 1 || snapshot.Pages[0].ID != snapshot.PageID {
		t.Fatalf("expected a single first page, got %+v", snapshot.Pages)
	}
	if len(snapshot.Fields) != 2 || trailingType(snapshot.Fields) != fields.TypeSubmit {
		t.Fatalf("expected content followed by Submit, got %d fields", len(snapshot.Fields))
	}
	if snapshot.Style != fields.DefaultStyle() {
		t.Fatalf("expected default style, got %+v", snapshot.Style)
	}
	for _, f := range snapshot.Fields {
		if fields.IsTempID(f.ID()) || f.PageID() != snapshot.PageID {
			t.Fatalf("expected persisted id and page, got %q on page %d", f.ID(), f.PageID())
		}
	}
	if len(repo.store.snapshots) != 1 {
		t.Fatalf("expected one snapshot row, got %d", len(repo.store.snapshots))
	}
}

func TestSaveRejectsPictureOptionWithoutImage(t *testing.T) {
	svc, repo, _ := newTestFormService()

	picture := fields.MustNew(fields.TypePicture).WithLabel("Pick one")
	_, err := svc.Save(context.Background(), SaveRequest{
		UserID: 1,
		Title:  "Gallery",
		Fields: []fields.Field{picture},
	})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.store.forms) != 0 || len(repo.store.fields) != 0 {
		t.Fatalf("expected nothing to be written, got %d forms and %d fields", len(repo.store.forms), len(repo.store.fields))
	}
}

func TestSavePreconditions(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveRequest{Title: "x", Fields: []fields.Field{shortAnswer("a")}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	cases := map[string]SaveRequest{
		"empty title":       {UserID: 1, Title: "<b></b>", Fields: []fields.Field{shortAnswer("a")}},
		"only navigation":   {UserID: 1, Title: "Form", Fields: []fields.Field{fields.MustNew(fields.TypeSubmit)}},
		"no fields":         {UserID: 1, Title: "Form"},
		"unlabeled input":   {UserID: 1, Title: "Form", Fields: []fields.Field{shortAnswer("  ")}},
		"bad style color":   {UserID: 1, Title: "Form", Fields: []fields.Field{shortAnswer("a")}, Style: fields.Style{ButtonColor: "blue"}},
		"blank option text": {UserID: 1, Title: "Form", Fields: []fields.Field{blankOptionDropdown(t)}},
	}
	for name, req := range cases {
		if _, err := svc.Save(ctx, req); !IsValidationError(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func blankOptionDropdown(t *testing.T) fields.Field {
	t.Helper()
	f := fields.MustNew(fields.TypeDropdown).WithLabel("Country")
	options := f.Options()
	options[1].Text = " "
	f, err := f.WithPayload(fields.ChoicePayload{Options: options})
	if err != nil {
		t.Fatalf("build dropdown: %v", err)
	}
	return f
}

func TestResaveDoesNotDuplicateRows(t *testing.T) {
	svc, repo, _ := newTestFormService()
	ctx := context.Background()

	first, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		Title:  "Survey",
		Fields: []fields.Field{shortAnswer("Name"), fields.MustNew(fields.TypeDropdown).WithLabel("Country")},
	})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	edited := fields.Clone(first.Fields)
	edited[0] = edited[0].WithLabel("Full name")
	second, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		FormID: first.FormID,
		PageID: first.PageID,
		Title:  first.Title,
		Style:  first.Style,
		Fields: edited,
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if got := repo.fieldCount(first.FormID); got != len(first.Fields) {
		t.Fatalf("expected %d field rows after re-save, got %d", len(first.Fields), got)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}
	for i := range first.Fields {
		if first.Fields[i].ID() != second.Fields[i].ID() {
			t.Fatalf("field %d changed id from %s to %s", i, first.Fields[i].ID(), second.Fields[i].ID())
		}
	}
	if diff.FieldsDirty(second.Fields, edited) {
		t.Fatal("expected re-saved fields to equal the submitted list")
	}
}

func TestUnchangedResaveKeepsVersion(t *testing.T) {
	svc, repo, _ := newTestFormService()
	cache := newMemoryCache()
	svc.cache = cache
	ctx := context.Background()

	first, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Survey", Fields: []fields.Field{shortAnswer("Name")}})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	fetched, err := svc.GetPage(ctx, 1, first.FormID, first.PageID, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	again, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		FormID: first.FormID,
		PageID: first.PageID,
		Title:  fetched.Title,
		Style:  fetched.Style,
		Fields: fetched.Fields,
	})
	if err != nil {
		t.Fatalf("unchanged save: %v", err)
	}
	if again.Version != 1 {
		t.Fatalf("expected version 1 after an unchanged save, got %d", again.Version)
	}
	if len(repo.store.snapshots) != 1 {
		t.Fatalf("expected no new snapshot row, got %d rows", len(repo.store.snapshots))
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected only the first save to invalidate the cache, got %v", cache.invalidated)
	}
	if diff.FieldsDirty(again.Fields, fetched.Fields) {
		t.Fatal("expected the stored fields to be returned")
	}

	renamed, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		FormID: first.FormID,
		PageID: first.PageID,
		Title:  "Survey 2024",
		Style:  fetched.Style,
		Fields: fetched.Fields,
	})
	if err != nil {
		t.Fatalf("rename save: %v", err)
	}
	if renamed.Version != 2 || len(repo.store.snapshots) != 2 {
		t.Fatalf("expected a title change to bump the version, got version %d with %d snapshots", renamed.Version, len(repo.store.snapshots))
	}
}

func TestSaveThenFetchIsClean(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	toggle, err := fields.MustNew(fields.TypeSwitch).WithLabel("Subscribe").WithPayload(fields.TogglePayload{Value: true})
	if err != nil {
		t.Fatalf("build switch: %v", err)
	}
	saved, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		Title:  "Newsletter",
		Fields: []fields.Field{
			shortAnswer("Email").WithRequired(true),
			toggle,
			fields.MustNew(fields.TypeChoiceMatrix).WithLabel("Rate us"),
			fields.MustNew(fields.TypeSlider).WithLabel("Score"),
			fields.MustNew(fields.TypeAddress).WithLabel("Address"),
			fields.MustNew(fields.TypeHeading),
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	fetched, err := svc.GetPage(ctx, 1, saved.FormID, saved.PageID, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff.FieldsDirty(fetched.Fields, saved.Fields) {
		t.Fatal("expected fetched fields to match the saved snapshot")
	}

	session := editor.NewSession(fetched.Snapshot)
	if session.Dirty() {
		t.Fatal("expected a freshly loaded session to be clean")
	}
}

func TestSaveDuplicateTitleConflicts(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Survey", Fields: []fields.Field{shortAnswer("a")}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	_, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "SURVEY", Fields: []fields.Field{shortAnswer("a")}})
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("expected ErrDuplicateTitle, got %v", err)
	}
	if _, err := svc.Save(ctx, SaveRequest{UserID: 2, Title: "Survey", Fields: []fields.Field{shortAnswer("a")}}); err != nil {
		t.Fatalf("another owner may reuse the title: %v", err)
	}
}

func TestSaveStoresAndResolvesAttachments(t *testing.T) {
	svc, repo, uploads := newTestFormService()

	reg := attachments.NewRegistry()
	if err := reg.Bind("field_file_1", attachments.Binary{Name: "hero.png", MimeType: "image/png", Data: pngHeader}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := reg.Bind("field_file_9", attachments.Binary{Name: "unused.png", MimeType: "image/png", Data: pngHeader}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	saved, err := svc.Save(context.Background(), SaveRequest{
		UserID:      4,
		Title:       "Launch",
		Fields:      []fields.Field{shortAnswer("Name"), imageField(t, "field_file_1")},
		Attachments: reg,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	path, _ := saved.Fields[1].MediaPath()
	if path != "/uploads/forms/4/field_file_1.png" {
		t.Fatalf("expected stored path, got %q", path)
	}
	if len(uploads.stored) != 1 {
		t.Fatalf("expected only referenced attachments to be stored, got %d", len(uploads.stored))
	}
	if len(repo.store.uploads) != 1 || repo.store.uploads[0].Placeholder != "field_file_1" {
		t.Fatalf("expected an upload row, got %+v", repo.store.uploads)
	}
}

func TestSaveUnresolvedAttachmentFails(t *testing.T) {
	svc, repo, uploads := newTestFormService()

	_, err := svc.Save(context.Background(), SaveRequest{
		UserID: 1,
		Title:  "Launch",
		Fields: []fields.Field{imageField(t, "field_file_0")},
	})
	if !errors.Is(err, ErrUnresolvedAttachment) {
		t.Fatalf("expected ErrUnresolvedAttachment, got %v", err)
	}
	if len(uploads.stored) != 0 || len(repo.store.forms) != 0 {
		t.Fatal("expected nothing to be stored")
	}
}

func TestSaveRejectsAttachmentOfWrongType(t *testing.T) {
	svc, _, _ := newTestFormService()

	reg := attachments.NewRegistry()
	if err := reg.Bind("field_file_0", attachments.Binary{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err := svc.Save(context.Background(), SaveRequest{
		UserID:      1,
		Title:       "Launch",
		Fields:      []fields.Field{imageField(t, "field_file_0")},
		Attachments: reg,
	})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSaveFailureRemovesStoredFiles(t *testing.T) {
	svc, repo, uploads := newTestFormService()
	repo.failOn = "CreateSnapshot"

	reg := attachments.NewRegistry()
	if err := reg.Bind("field_file_0", attachments.Binary{Name: "hero.png", MimeType: "image/png", Data: pngHeader}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err := svc.Save(context.Background(), SaveRequest{
		UserID:      1,
		Title:       "Launch",
		Fields:      []fields.Field{imageField(t, "field_file_0")},
		Attachments: reg,
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(uploads.removed) != 1 {
		t.Fatalf("expected the stored file to be removed, got %d", len(uploads.removed))
	}
	if len(repo.store.forms) != 0 || len(repo.store.fields) != 0 || len(repo.store.uploads) != 0 {
		t.Fatal("expected the transaction to leave no rows")
	}
}

func TestSaveEndPageKeepsNoButton(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	first, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Signup", Fields: []fields.Field{shortAnswer("Name")}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	end, err := svc.Save(ctx, SaveRequest{
		UserID: 1,
		FormID: first.FormID,
		PageID: fields.EndPage,
		Title:  "Signup",
		Fields: []fields.Field{fields.MustNew(fields.TypeThankYou), fields.MustNew(fields.TypeSubmit)},
	})
	if err != nil {
		t.Fatalf("save end page: %v", err)
	}
	if len(end.Fields) != 1 || end.Fields[0].Type() != fields.TypeThankYou {
		t.Fatalf("expected only the thank-you field, got %d fields", len(end.Fields))
	}
}

func TestGetPageByVersion(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	first, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Poll", Fields: []fields.Field{shortAnswer("Name")}})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	edited := append([]fields.Field(nil), first.Fields...)
	edited[0] = edited[0].WithLabel("Full name")
	if _, err := svc.Save(ctx, SaveRequest{UserID: 1, FormID: first.FormID, PageID: first.PageID, Title: "Poll", Fields: edited}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	old, err := svc.GetPage(ctx, 1, first.FormID, first.PageID, 1)
	if err != nil {
		t.Fatalf("fetch version 1: %v", err)
	}
	if old.Version != 1 || old.Fields[0].Label() != "Name" {
		t.Fatalf("expected version 1 content, got version %d label %q", old.Version, old.Fields[0].Label())
	}

	latest, err := svc.GetPage(ctx, 1, first.FormID, first.PageID, 0)
	if err != nil {
		t.Fatalf("fetch latest: %v", err)
	}
	if latest.Version != 2 || latest.Fields[0].Label() != "Full name" {
		t.Fatalf("expected latest content, got version %d label %q", latest.Version, latest.Fields[0].Label())
	}

	if _, err := svc.GetPage(ctx, 1, first.FormID, first.PageID, 9); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestFormsAreScopedToOwner(t *testing.T) {
	svc, _, _ := newTestFormService()
	ctx := context.Background()

	saved, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Private", Fields: []fields.Field{shortAnswer("Name")}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := svc.GetPage(ctx, 2, saved.FormID, saved.PageID, 0); !errors.Is(err, ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound on read, got %v", err)
	}
	_, err = svc.Save(ctx, SaveRequest{UserID: 2, FormID: saved.FormID, PageID: saved.PageID, Title: "Mine", Fields: saved.Fields})
	if !errors.Is(err, ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound on save, got %v", err)
	}
	if _, err := svc.GetPage(ctx, 1, saved.FormID, 999, 0); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}

type memoryCache struct {
	entries     map[string][]byte
	invalidated []uint
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *memoryCache) get(key string, dest interface{}) error {
	data, ok := c.entries[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) CachePages(formID uint, pages interface{}, ttl time.Duration) error {
	return c.put(fmt.Sprintf("pages:%d", formID), pages)
}

func (c *memoryCache) GetCachedPages(formID uint, dest interface{}) error {
	return c.get(fmt.Sprintf("pages:%d", formID), dest)
}

func (c *memoryCache) CachePageSnapshot(formID, pageID uint, version int, snapshot interface{}, ttl time.Duration) error {
	return c.put(fmt.Sprintf("page:%d:%d:%d", formID, pageID, version), snapshot)
}

func (c *memoryCache) GetCachedPageSnapshot(formID, pageID uint, version int, dest interface{}) error {
	return c.get(fmt.Sprintf("page:%d:%d:%d", formID, pageID, version), dest)
}

func (c *memoryCache) InvalidateForm(formID uint) error {
	c.invalidated = append(c.invalidated, formID)
	c.entries = map[string][]byte{}
	return nil
}

func TestGetPageUsesCacheUntilSave(t *testing.T) {
	svc, repo, _ := newTestFormService()
	cache := newMemoryCache()
	svc.cache = cache
	ctx := context.Background()

	saved, err := svc.Save(ctx, SaveRequest{UserID: 1, Title: "Cached", Fields: []fields.Field{shortAnswer("Name")}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != saved.FormID {
		t.Fatalf("expected the save to invalidate form %d, got %v", saved.FormID, cache.invalidated)
	}

	if _, err := svc.GetPage(ctx, 1, saved.FormID, saved.PageID, 0); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	for id := range repo.store.fields {
		delete(repo.store.fields, id)
	}

	cached, err := svc.GetPage(ctx, 1, saved.FormID, saved.PageID, 0)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if diff.FieldsDirty(cached.Fields, saved.Fields) {
		t.Fatal("expected the cached snapshot to be served")
	}
}
