package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"form-builder-backend/internal/attachments"
	"form-builder-backend/internal/models"
	"form-builder-backend/internal/repository"
)

var errInjected = errors.New("injected failure")

type memoryStore struct {
	nextID    uint
	forms     map[uint]models.Form
	pages     map[uint]models.FormPage
	fields    map[uint]models.FormField
	uploads   []models.FormUpload
	snapshots []models.FormSnapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		forms:  map[uint]models.Form{},
		pages:  map[uint]models.FormPage{},
		fields: map[uint]models.FormField{},
	}
}

func (m *memoryStore) id() uint {
	m.nextID++
	return m.nextID
}

func copyFieldRow(row models.FormField) models.FormField {
	row.Options = append([]models.FormFieldOption(nil), row.Options...)
	row.GridCells = append([]models.FormFieldGridCell(nil), row.GridCells...)
	return row
}

func (m *memoryStore) clone() *memoryStore {
	c := &memoryStore{
		nextID:    m.nextID,
		forms:     make(map[uint]models.Form, len(m.forms)),
		pages:     make(map[uint]models.FormPage, len(m.pages)),
		fields:    make(map[uint]models.FormField, len(m.fields)),
		uploads:   append([]models.FormUpload(nil), m.uploads...),
		snapshots: append([]models.FormSnapshot(nil), m.snapshots...),
	}
	for k, v := range m.forms {
		c.forms[k] = v
	}
	for k, v := range m.pages {
		c.pages[k] = v
	}
	for k, v := range m.fields {
		c.fields[k] = copyFieldRow(v)
	}
	return c
}

// fakeRepository keeps rows in memory. WithTx works on a copy that replaces
// the committed state only when fn succeeds.
type fakeRepository struct {
	store  *memoryStore
	failOn string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{store: newMemoryStore()}
}

func (r *fakeRepository) fail(method string) error {
	if r.failOn == method {
		return errInjected
	}
	return nil
}

func (r *fakeRepository) WithTx(ctx context.Context, fn func(repo repository.FormRepository) error) error {
	tx := &fakeRepository{store: r.store.clone(), failOn: r.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	*r.store = *tx.store
	return nil
}

func (r *fakeRepository) GetForm(ctx context.Context, id uint) (*models.Form, error) {
	form, ok := r.store.forms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &form, nil
}

func (r *fakeRepository) LockForm(ctx context.Context, id uint) (*models.Form, error) {
	return r.GetForm(ctx, id)
}

func (r *fakeRepository) TitleExists(ctx context.Context, userID uint, title string, excludeID uint) (bool, error) {
	for _, form := range r.store.forms {
		if form.UserID == userID && form.ID != excludeID && strings.EqualFold(form.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepository) CreateForm(ctx context.Context, form *models.Form) error {
	if err := r.fail("CreateForm"); err != nil {
		return err
	}
	form.ID = r.store.id()
	r.store.forms[form.ID] = *form
	return nil
}

func (r *fakeRepository) UpdateForm(ctx context.Context, form *models.Form) error {
	if _, ok := r.store.forms[form.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.store.forms[form.ID] = *form
	return nil
}

func (r *fakeRepository) ListPages(ctx context.Context, formID uint) ([]models.FormPage, error) {
	var pages []models.FormPage
	for _, p := range r.store.pages {
		if p.FormID == formID {
			pages = append(pages, p)
		}
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].SortOrder != pages[j].SortOrder {
			return pages[i].SortOrder < pages[j].SortOrder
		}
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages, nil
}

func (r *fakeRepository) GetPage(ctx context.Context, formID, pageID uint) (*models.FormPage, error) {
	page, ok := r.store.pages[pageID]
	if !ok || page.FormID != formID {
		return nil, gorm.ErrRecordNotFound
	}
	return &page, nil
}

func (r *fakeRepository) CreatePage(ctx context.Context, page *models.FormPage) error {
	for _, p := range r.store.pages {
		if p.FormID == page.FormID && p.PageNumber == page.PageNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	page.ID = r.store.id()
	r.store.pages[page.ID] = *page
	return nil
}

func (r *fakeRepository) UpdatePage(ctx context.Context, page *models.FormPage) error {
	if _, ok := r.store.pages[page.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.store.pages[page.ID] = *page
	return nil
}

func (r *fakeRepository) UpdatePageOrders(ctx context.Context, pages []models.FormPage) error {
	for _, p := range pages {
		stored, ok := r.store.pages[p.ID]
		if !ok || stored.FormID != p.FormID {
			return gorm.ErrRecordNotFound
		}
		stored.SortOrder = p.SortOrder
		r.store.pages[p.ID] = stored
	}
	return nil
}

func (r *fakeRepository) DeletePage(ctx context.Context, formID, pageID uint) error {
	if _, err := r.GetPage(ctx, formID, pageID); err != nil {
		return err
	}
	if err := r.ReplaceFields(ctx, formID, pageID, nil); err != nil {
		return err
	}
	delete(r.store.pages, pageID)
	return nil
}

func (r *fakeRepository) ListFields(ctx context.Context, formID, pageID uint) ([]models.FormField, error) {
	var rows []models.FormField
	for _, row := range r.store.fields {
		if row.FormID == formID && row.PageID == pageID {
			rows = append(rows, copyFieldRow(row))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Position != rows[j].Position {
			return rows[i].Position < rows[j].Position
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (r *fakeRepository) ReplaceFields(ctx context.Context, formID, pageID uint, rows []models.FormField) error {
	if err := r.fail("ReplaceFields"); err != nil {
		return err
	}
	ownedFields := map[uint]bool{}
	ownedOptions := map[uint]bool{}
	for id, row := range r.store.fields {
		if row.FormID == formID && row.PageID == pageID {
			ownedFields[id] = true
			for _, opt := range row.Options {
				ownedOptions[opt.ID] = true
			}
			delete(r.store.fields, id)
		}
	}

	for i := range rows {
		if !ownedFields[rows[i].ID] {
			rows[i].ID = r.store.id()
		}
		delete(ownedFields, rows[i].ID)
		rows[i].FormID = formID
		rows[i].PageID = pageID
		rows[i].Position = i
		for j := range rows[i].Options {
			if !ownedOptions[rows[i].Options[j].ID] {
				rows[i].Options[j].ID = r.store.id()
			}
			delete(ownedOptions, rows[i].Options[j].ID)
			rows[i].Options[j].FieldID = rows[i].ID
			rows[i].Options[j].SortOrder = j
		}
		for j := range rows[i].GridCells {
			rows[i].GridCells[j].ID = r.store.id()
			rows[i].GridCells[j].FieldID = rows[i].ID
		}
		r.store.fields[rows[i].ID] = copyFieldRow(rows[i])
	}
	return nil
}

func (r *fakeRepository) CreateUploads(ctx context.Context, uploads []models.FormUpload) error {
	for _, u := range uploads {
		u.ID = r.store.id()
		r.store.uploads = append(r.store.uploads, u)
	}
	return nil
}

func (r *fakeRepository) ListUploadPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0, len(r.store.uploads))
	for _, u := range r.store.uploads {
		paths = append(paths, u.Path)
	}
	return paths, nil
}

func (r *fakeRepository) CreateSnapshot(ctx context.Context, snapshot *models.FormSnapshot) error {
	if err := r.fail("CreateSnapshot"); err != nil {
		return err
	}
	for _, s := range r.store.snapshots {
		if s.FormID == snapshot.FormID && s.PageID == snapshot.PageID && s.Version == snapshot.Version {
			return gorm.ErrDuplicatedKey
		}
	}
	snapshot.ID = r.store.id()
	r.store.snapshots = append(r.store.snapshots, *snapshot)
	return nil
}

func (r *fakeRepository) GetSnapshot(ctx context.Context, formID, pageID uint, version int) (*models.FormSnapshot, error) {
	var found *models.FormSnapshot
	for i := range r.store.snapshots {
		s := r.store.snapshots[i]
		if s.FormID != formID || s.PageID != pageID {
			continue
		}
		if version > 0 && s.Version != version {
			continue
		}
		if found == nil || s.Version > found.Version {
			found = &s
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r *fakeRepository) fieldCount(formID uint) int {
	n := 0
	for _, row := range r.store.fields {
		if row.FormID == formID {
			n++
		}
	}
	return n
}

// fakeUploads records stored and removed attachments without touching disk.
type fakeUploads struct {
	stored  []StoredFile
	removed []StoredFile
	err     error
}

func (u *fakeUploads) StoreAll(ownerID uint, reg *attachments.Registry) ([]StoredFile, error) {
	if u.err != nil {
		return nil, u.err
	}
	var out []StoredFile
	for _, key := range reg.Keys() {
		b, _ := reg.Lookup(key)
		out = append(out, StoredFile{
			Placeholder: key,
			URL:         fmt.Sprintf("/uploads/forms/%d/%s.png", ownerID, key),
			Filename:    key + ".png",
			MimeType:    b.MimeType,
			Size:        b.Size(),
		})
	}
	u.stored = append(u.stored, out...)
	return out, nil
}

func (u *fakeUploads) Remove(files []StoredFile) {
	u.removed = append(u.removed, files...)
}
