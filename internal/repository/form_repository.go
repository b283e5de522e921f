package repository

import (
	"context"
	"errors"

	"form-builder-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormRepository persists forms, their pages and their normalized fields.
// Methods called on the repository handed to WithTx run inside that
// transaction.
type FormRepository interface {
	WithTx(ctx context.Context, fn func(repo FormRepository) error) error

	GetForm(ctx context.Context, id uint) (*models.Form, error)
	LockForm(ctx context.Context, id uint) (*models.Form, error)
	TitleExists(ctx context.Context, userID uint, title string, excludeID uint) (bool, error)
	CreateForm(ctx context.Context, form *models.Form) error
	UpdateForm(ctx context.Context, form *models.Form) error

	ListPages(ctx context.Context, formID uint) ([]models.FormPage, error)
	GetPage(ctx context.Context, formID, pageID uint) (*models.FormPage, error)
	CreatePage(ctx context.Context, page *models.FormPage) error
	UpdatePage(ctx context.Context, page *models.FormPage) error
	UpdatePageOrders(ctx context.Context, pages []models.FormPage) error
	DeletePage(ctx context.Context, formID, pageID uint) error

	ListFields(ctx context.Context, formID, pageID uint) ([]models.FormField, error)
	ReplaceFields(ctx context.Context, formID, pageID uint, rows []models.FormField) error

	CreateUploads(ctx context.Context, uploads []models.FormUpload) error
	ListUploadPaths(ctx context.Context) ([]string, error)
	CreateSnapshot(ctx context.Context, snapshot *models.FormSnapshot) error
	GetSnapshot(ctx context.Context, formID, pageID uint, version int) (*models.FormSnapshot, error)
}

var errRepositoryNotInitialised = errors.New("form repository is not initialised")

type formRepository struct {
	db *gorm.DB
}

func NewFormRepository(db *gorm.DB) FormRepository {
	return &formRepository{db: db}
}

func (r *formRepository) conn(ctx context.Context) (*gorm.DB, error) {
	if r == nil || r.db == nil {
		return nil, errRepositoryNotInitialised
	}
	return r.db.WithContext(ctx), nil
}

// WithTx runs fn in one transaction on a dedicated connection. gorm rolls
// back on error or panic and releases the connection on every path.
func (r *formRepository) WithTx(ctx context.Context, fn func(repo FormRepository) error) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&formRepository{db: tx})
	})
}

func (r *formRepository) GetForm(ctx context.Context, id uint) (*models.Form, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var form models.Form
	if err := db.First(&form, id).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

// LockForm loads the form and holds a row lock on it until the surrounding
// transaction ends, serializing saves of one form.
func (r *formRepository) LockForm(ctx context.Context, id uint) (*models.Form, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var form models.Form
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&form, id).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

func (r *formRepository) TitleExists(ctx context.Context, userID uint, title string, excludeID uint) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}
	query := db.Model(&models.Form{}).Where("user_id = ? AND LOWER(title) = LOWER(?)", userID, title)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *formRepository) CreateForm(ctx context.Context, form *models.Form) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if form == nil {
		return errors.New("form is required")
	}
	return db.Omit("Pages").Create(form).Error
}

func (r *formRepository) UpdateForm(ctx context.Context, form *models.Form) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if form == nil {
		return errors.New("form is required")
	}
	return db.Omit("Pages").Save(form).Error
}

func (r *formRepository) ListFields(ctx context.Context, formID, pageID uint) ([]models.FormField, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.FormField
	err = db.
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Preload("GridCells", func(tx *gorm.DB) *gorm.DB { return tx.Order("axis ASC, sort_order ASC, id ASC") }).
		Where("form_id = ? AND page_id = ?", formID, pageID).
		Order("position ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceFields deletes the option, grid and field rows of the (form, page)
// scope and inserts rows in order. A row or option keeps its id only when that
// id belonged to the scope before the call; every other row receives a new id.
func (r *formRepository) ReplaceFields(ctx context.Context, formID, pageID uint, rows []models.FormField) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	var existing []models.FormField
	if err := db.Preload("Options").Where("form_id = ? AND page_id = ?", formID, pageID).Find(&existing).Error; err != nil {
		return err
	}
	ownedFields := make(map[uint]bool, len(existing))
	ownedOptions := make(map[uint]bool)
	for _, row := range existing {
		ownedFields[row.ID] = true
		for _, opt := range row.Options {
			ownedOptions[opt.ID] = true
		}
	}

	scope := db.Model(&models.FormField{}).Select("id").Where("form_id = ? AND page_id = ?", formID, pageID)
	if err := db.Where("field_id IN (?)", scope).Delete(&models.FormFieldOption{}).Error; err != nil {
		return err
	}
	if err := db.Where("field_id IN (?)", scope).Delete(&models.FormFieldGridCell{}).Error; err != nil {
		return err
	}
	if err := db.Where("form_id = ? AND page_id = ?", formID, pageID).Delete(&models.FormField{}).Error; err != nil {
		return err
	}

	for i := range rows {
		if !ownedFields[rows[i].ID] {
			rows[i].ID = 0
		}
		delete(ownedFields, rows[i].ID)
		rows[i].FormID = formID
		rows[i].PageID = pageID
		rows[i].Position = i
		for j := range rows[i].Options {
			if !ownedOptions[rows[i].Options[j].ID] {
				rows[i].Options[j].ID = 0
			}
			delete(ownedOptions, rows[i].Options[j].ID)
			rows[i].Options[j].FieldID = rows[i].ID
			rows[i].Options[j].SortOrder = j
		}
		for j := range rows[i].GridCells {
			rows[i].GridCells[j].ID = 0
			rows[i].GridCells[j].FieldID = rows[i].ID
		}
		if err := db.Create(&rows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListUploadPaths returns the public path of every recorded upload.
func (r *formRepository) ListUploadPaths(ctx context.Context) ([]string, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	if err := db.Model(&models.FormUpload{}).Distinct().Pluck("path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *formRepository) CreateUploads(ctx context.Context, uploads []models.FormUpload) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		return nil
	}
	return db.Create(&uploads).Error
}

func (r *formRepository) CreateSnapshot(ctx context.Context, snapshot *models.FormSnapshot) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(snapshot).Error
}

// GetSnapshot returns the snapshot of a page at version, or the latest one
// when version is 0.
func (r *formRepository) GetSnapshot(ctx context.Context, formID, pageID uint, version int) (*models.FormSnapshot, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	query := db.Where("form_id = ? AND page_id = ?", formID, pageID)
	if version > 0 {
		query = query.Where("version = ?", version)
	}
	var snapshot models.FormSnapshot
	if err := query.Order("version DESC").First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}
