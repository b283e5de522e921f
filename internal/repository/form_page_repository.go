package repository

import (
	"context"

	"form-builder-backend/internal/models"

	"gorm.io/gorm"
)

func (r *formRepository) ListPages(ctx context.Context, formID uint) ([]models.FormPage, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var pages []models.FormPage
	if err := db.Where("form_id = ?", formID).Order("sort_order ASC, page_number ASC").Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *formRepository) GetPage(ctx context.Context, formID, pageID uint) (*models.FormPage, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var page models.FormPage
	if err := db.Where("form_id = ? AND id = ?", formID, pageID).First(&page).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

func (r *formRepository) CreatePage(ctx context.Context, page *models.FormPage) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(page).Error
}

func (r *formRepository) UpdatePage(ctx context.Context, page *models.FormPage) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Save(page).Error
}

// UpdatePageOrders writes only the sort_order column; page numbers are
// durable and never touched here.
func (r *formRepository) UpdatePageOrders(ctx context.Context, pages []models.FormPage) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	for _, page := range pages {
		result := db.Model(&models.FormPage{}).
			Where("id = ? AND form_id = ?", page.ID, page.FormID).
			Update("sort_order", page.SortOrder)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

// DeletePage removes the page together with its fields and their children.
func (r *formRepository) DeletePage(ctx context.Context, formID, pageID uint) error {
	if err := r.ReplaceFields(ctx, formID, pageID, nil); err != nil {
		return err
	}
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	result := db.Where("form_id = ? AND id = ?", formID, pageID).Delete(&models.FormPage{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
