package models

import (
	"time"

	"gorm.io/datatypes"
)

type Form struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"not null;uniqueIndex:idx_forms_user_title" json:"user_id"`
	Title  string `gorm:"not null;uniqueIndex:idx_forms_user_title" json:"title"`

	BackgroundColor string `gorm:"type:varchar(16)" json:"background_color"`
	QuestionColor   string `gorm:"type:varchar(16)" json:"question_color"`
	AnswerColor     string `gorm:"type:varchar(16)" json:"answer_color"`
	ButtonColor     string `gorm:"type:varchar(16)" json:"button_color"`
	ButtonTextColor string `gorm:"type:varchar(16)" json:"button_text_color"`
	Font            string `gorm:"type:varchar(100)" json:"font"`
	BackgroundImage string `json:"background_image"`

	Closed    bool       `gorm:"default:false" json:"closed"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Version int `gorm:"not null;default:0" json:"version"`

	Pages []FormPage `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"pages,omitempty"`
}

type FormPage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FormID     uint   `gorm:"not null;index;uniqueIndex:idx_form_pages_number" json:"form_id"`
	PageNumber int    `gorm:"not null;uniqueIndex:idx_form_pages_number" json:"page_number"`
	SortOrder  int    `gorm:"not null;default:0;index" json:"sort_order"`
	Title      string `gorm:"not null;default:''" json:"page_title"`
}

// FormField is one persisted field. PageID 0 binds it to the end pseudo-page.
// Scalar attributes live in columns; the remainder of the type-specific payload
// is kept in Settings.
type FormField struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FormID   uint `gorm:"not null;index:idx_form_fields_scope" json:"form_id"`
	PageID   uint `gorm:"not null;default:0;index:idx_form_fields_scope" json:"page_id"`
	Position int  `gorm:"not null;default:0" json:"position"`

	Type        string `gorm:"type:varchar(64);not null" json:"type"`
	Label       string `gorm:"type:text" json:"label"`
	Caption     string `gorm:"type:text" json:"caption"`
	Placeholder string `gorm:"type:text" json:"placeholder"`
	Required    bool   `gorm:"default:false" json:"required"`

	Value       string `gorm:"type:text" json:"value"`
	Alignment   string `gorm:"type:varchar(16)" json:"alignment"`
	PreviewSize string `gorm:"type:varchar(16)" json:"preview_size"`
	FilePath    string `json:"file_path"`

	Settings datatypes.JSON `json:"settings"`
	Matrix   datatypes.JSON `json:"matrix"`

	Options   []FormFieldOption   `gorm:"foreignKey:FieldID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
	GridCells []FormFieldGridCell `gorm:"foreignKey:FieldID;constraint:OnDelete:CASCADE" json:"grid_cells,omitempty"`
}

type FormFieldOption struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	FieldID      uint   `gorm:"not null;index" json:"field_id"`
	OptionText   string `gorm:"type:text" json:"option_text"`
	ImagePath    string `json:"image_path"`
	OptionsStyle string `gorm:"type:varchar(64)" json:"options_style"`
	SortOrder    int    `gorm:"not null;default:0" json:"sort_order"`
}

const (
	GridAxisRow    = "row"
	GridAxisColumn = "column"
)

type FormFieldGridCell struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	FieldID   uint   `gorm:"not null;index" json:"field_id"`
	Axis      string `gorm:"type:varchar(8);not null" json:"axis"`
	Label     string `gorm:"type:text" json:"label"`
	Value     string `gorm:"type:text" json:"value"`
	SortOrder int    `gorm:"not null;default:0" json:"sort_order"`
}

// FormUpload records a stored attachment and the placeholder it resolved.
type FormUpload struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FormID      uint   `gorm:"not null;index" json:"form_id"`
	PageID      uint   `gorm:"not null;default:0" json:"page_id"`
	Placeholder string `gorm:"type:varchar(64);not null" json:"placeholder"`
	Path        string `gorm:"not null" json:"path"`
	MimeType    string `gorm:"type:varchar(128)" json:"mime_type"`
	Size        int64  `json:"size"`
}

// FormSnapshot is the field list and style of one page as committed by a save.
type FormSnapshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FormID  uint           `gorm:"not null;uniqueIndex:idx_form_snapshots_version" json:"form_id"`
	PageID  uint           `gorm:"not null;uniqueIndex:idx_form_snapshots_version" json:"page_id"`
	Version int            `gorm:"not null;uniqueIndex:idx_form_snapshots_version" json:"version"`
	Title   string         `json:"title"`
	Fields  datatypes.JSON `json:"fields"`
	Style   datatypes.JSON `json:"style"`
}
