package service

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gorm.io/datatypes"

	"form-builder-backend/internal/models"
	"form-builder-backend/pkg/fields"
)

// Record keys that map onto dedicated columns or child tables. Everything
// else in a field record is kept in the settings document.
var columnKeys = map[string]bool{
	"id": true, "type": true, "label": true, "caption": true, "placeholder": true,
	"page_id": true, "required": true, "value": true, "alignment": true,
	"preview_size": true, "file_path": true, "options": true, "rows": true, "columns": true,
}

type matrixAxes struct {
	Rows    []fields.GridLabel `json:"rows"`
	Columns []fields.GridLabel `json:"columns"`
}

func parseRowID(id string) uint {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func formatRowID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func fieldToRow(f fields.Field) (models.FormField, error) {
	rec := f.Record()
	row := models.FormField{
		ID:          parseRowID(f.ID()),
		PageID:      f.PageID(),
		Type:        string(f.Type()),
		Label:       f.Label(),
		Caption:     f.Caption(),
		Placeholder: f.Placeholder(),
		Required:    f.Required(),
		Value:       recordString(rec["value"]),
		Alignment:   recordString(rec["alignment"]),
		PreviewSize: recordString(rec["preview_size"]),
		FilePath:    recordString(rec["file_path"]),
	}

	for i, opt := range f.Options() {
		row.Options = append(row.Options, models.FormFieldOption{
			ID:           parseRowID(opt.ID),
			OptionText:   opt.Text,
			ImagePath:    opt.ImagePath,
			OptionsStyle: opt.Style,
			SortOrder:    i,
		})
	}

	if matrix, ok := f.Payload().(fields.MatrixPayload); ok {
		axes, err := json.Marshal(matrixAxes{Rows: matrix.Rows, Columns: matrix.Columns})
		if err != nil {
			return models.FormField{}, err
		}
		row.Matrix = datatypes.JSON(axes)
		row.GridCells = append(gridCells(models.GridAxisRow, matrix.Rows), gridCells(models.GridAxisColumn, matrix.Columns)...)
	}

	settings := map[string]any{}
	for k, v := range rec {
		if !columnKeys[k] {
			settings[k] = v
		}
	}
	if len(settings) > 0 {
		data, err := json.Marshal(settings)
		if err != nil {
			return models.FormField{}, err
		}
		row.Settings = datatypes.JSON(data)
	}
	return row, nil
}

func gridCells(axis string, labels []fields.GridLabel) []models.FormFieldGridCell {
	cells := make([]models.FormFieldGridCell, 0, len(labels))
	for i, l := range labels {
		cells = append(cells, models.FormFieldGridCell{Axis: axis, Label: l.Label, Value: l.Value, SortOrder: i})
	}
	return cells
}

func fieldsToRows(list []fields.Field) ([]models.FormField, error) {
	rows := make([]models.FormField, 0, len(list))
	for i, f := range list {
		row, err := fieldToRow(f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowToField(row models.FormField) (fields.Field, error) {
	rec := fields.Record{}
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &rec); err != nil {
			return fields.Field{}, fmt.Errorf("field %d settings: %w", row.ID, err)
		}
	}

	rec["id"] = formatRowID(row.ID)
	rec["type"] = row.Type
	rec["label"] = row.Label
	rec["caption"] = row.Caption
	rec["placeholder"] = row.Placeholder
	rec["page_id"] = float64(row.PageID)
	rec["required"] = row.Required
	rec["value"] = row.Value
	rec["alignment"] = row.Alignment
	rec["preview_size"] = row.PreviewSize
	rec["file_path"] = row.FilePath

	if len(row.Options) > 0 {
		options := make([]any, 0, len(row.Options))
		for i, opt := range row.Options {
			options = append(options, map[string]any{
				"id":            formatRowID(opt.ID),
				"option_text":   opt.OptionText,
				"image_path":    opt.ImagePath,
				"options_style": opt.OptionsStyle,
				"sort_order":    float64(i),
			})
		}
		rec["options"] = options
	}

	rows, columns, err := matrixLabels(row)
	if err != nil {
		return fields.Field{}, err
	}
	if rows != nil {
		rec["rows"] = rows
	}
	if columns != nil {
		rec["columns"] = columns
	}

	return fields.FromRecord(rec)
}

// matrixLabels prefers the grid cell rows and falls back to the axes stored
// on the field itself.
func matrixLabels(row models.FormField) (rows, columns []any, err error) {
	if len(row.GridCells) > 0 {
		for _, cell := range row.GridCells {
			entry := map[string]any{"label": cell.Label, "value": cell.Value}
			switch cell.Axis {
			case models.GridAxisRow:
				rows = append(rows, entry)
			case models.GridAxisColumn:
				columns = append(columns, entry)
			}
		}
		return rows, columns, nil
	}
	if len(row.Matrix) == 0 {
		return nil, nil, nil
	}
	var axes matrixAxes
	if err := json.Unmarshal(row.Matrix, &axes); err != nil {
		return nil, nil, fmt.Errorf("field %d matrix: %w", row.ID, err)
	}
	for _, l := range axes.Rows {
		rows = append(rows, map[string]any{"label": l.Label, "value": l.Value})
	}
	for _, l := range axes.Columns {
		columns = append(columns, map[string]any{"label": l.Label, "value": l.Value})
	}
	return rows, columns, nil
}

func rowsToFields(rows []models.FormField) ([]fields.Field, error) {
	list := make([]fields.Field, 0, len(rows))
	for _, row := range rows {
		f, err := rowToField(row)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, nil
}

func recordString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
