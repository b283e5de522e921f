package fields

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is the flat, loosely typed representation of a field used on the wire
// and by the diff engine. Values are JSON-native (string, bool, float64, nil,
// []any, map[string]any).
type Record map[string]any

// Record flattens f into its wire representation.
func (f Field) Record() Record {
	return normalizeRecord(f.rawRecord())
}

func (f Field) rawRecord() Record {
	rec := Record{
		"id":          f.id,
		"type":        string(f.fieldType),
		"label":       f.label,
		"caption":     f.caption,
		"placeholder": f.placeholder,
		"page_id":     f.pageID,
	}
	if f.fieldType.CarriesRequired() {
		rec["required"] = f.required
	}
	if f.payload != nil {
		f.payload.encode(rec)
	}
	return rec
}

// normalizeRecord converts Go-typed values into their JSON-native shape so two
// records compare equal regardless of how they were produced.
func normalizeRecord(rec Record) Record {
	data, err := json.Marshal(map[string]any(rec))
	if err != nil {
		return rec
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return rec
	}
	return out
}

func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(f.rawRecord()))
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	parsed, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// FromRecord parses a wire record into a validated Field. String booleans
// ("true"/"false") and numeric strings are accepted.
func FromRecord(rec Record) (Field, error) {
	if rec == nil {
		return Field{}, errors.New("field record is empty")
	}
	t, ok := ParseType(getString(rec, "type"))
	if !ok {
		return Field{}, fmt.Errorf("unknown field type %q", getString(rec, "type"))
	}
	bp, _ := Lookup(t)

	payload, err := decodePayload(bp, rec)
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", getString(rec, "id"), err)
	}

	pageID, _ := getUint(rec, "page_id")
	return Build(
		getString(rec, "id"),
		t,
		getString(rec, "label"),
		getString(rec, "caption"),
		getString(rec, "placeholder"),
		parseBool(rec["required"], false),
		pageID,
		payload,
	)
}

func decodePayload(bp Blueprint, rec Record) (Payload, error) {
	switch bp.Kind {
	case KindText:
		return TextPayload{Value: getString(rec, "value")}, nil
	case KindToggle:
		return TogglePayload{Value: parseBool(rec["value"], false)}, nil
	case KindChoice:
		options, err := decodeOptions(rec["options"])
		if err != nil {
			return nil, err
		}
		return ChoicePayload{Options: options}, nil
	case KindRange:
		defaults := bp.Defaults().(RangePayload)
		p := RangePayload{Min: defaults.Min, Max: defaults.Max, Step: defaults.Step, Value: getString(rec, "value")}
		if v, ok := getFloat(rec, "min"); ok {
			p.Min = v
		}
		if v, ok := getFloat(rec, "max"); ok {
			p.Max = v
		}
		if v, ok := getFloat(rec, "step"); ok {
			p.Step = v
		}
		return p, nil
	case KindMatrix:
		rows, err := decodeGrid(rec["rows"])
		if err != nil {
			return nil, fmt.Errorf("rows: %w", err)
		}
		columns, err := decodeGrid(rec["columns"])
		if err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}
		selected := map[string]string{}
		if raw, ok := rec["selected"].(map[string]any); ok {
			for k, v := range raw {
				selected[k] = stringify(v)
			}
		}
		return MatrixPayload{Rows: rows, Columns: columns, Selected: selected}, nil
	case KindAddress:
		return AddressPayload{
			Street:  getString(rec, "street"),
			Street2: getString(rec, "street2"),
			City:    getString(rec, "city"),
			State:   getString(rec, "state"),
			Zip:     getString(rec, "zip"),
			Country: getString(rec, "country"),
		}, nil
	case KindDocument:
		p := DocumentPayload{}
		if raw, ok := rec["accept"].([]any); ok {
			for _, v := range raw {
				if s := strings.TrimSpace(stringify(v)); s != "" {
					p.Accept = append(p.Accept, s)
				}
			}
		}
		if v, ok := getFloat(rec, "max_size_mb"); ok {
			p.MaxSizeMB = int(v)
		}
		return p, nil
	case KindMedia:
		return MediaPayload{
			Path:        getString(rec, "file_path"),
			Alignment:   strings.ToLower(getString(rec, "alignment")),
			PreviewSize: strings.ToLower(getString(rec, "preview_size")),
		}, nil
	case KindDisplay:
		return DisplayPayload{
			Value:     getString(rec, "value"),
			Alignment: strings.ToLower(getString(rec, "alignment")),
		}, nil
	case KindNavigation:
		return NavigationPayload{
			Alignment:       strings.ToLower(getString(rec, "alignment")),
			BackgroundColor: getString(rec, "background_color"),
			LabelColor:      getString(rec, "label_color"),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", bp.Kind)
	}
}

func decodeOptions(value any) ([]Option, error) {
	if value == nil {
		return []Option{}, nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil, errors.New("options must be a list")
	}
	options := make([]Option, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("option %d is not an object", i)
		}
		opt := Option{
			ID:        getString(m, "id"),
			Text:      getString(m, "option_text"),
			ImagePath: getString(m, "image_path"),
			Style:     getString(m, "options_style"),
			SortOrder: i,
		}
		if v, ok := getFloat(m, "sort_order"); ok {
			opt.SortOrder = int(v)
		}
		options = append(options, opt)
	}
	return options, nil
}

func decodeGrid(value any) ([]GridLabel, error) {
	if value == nil {
		return nil, nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil, errors.New("must be a list")
	}
	labels := make([]GridLabel, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			labels = append(labels, GridLabel{Label: v, Value: v})
		case map[string]any:
			labels = append(labels, GridLabel{Label: getString(v, "label"), Value: getString(v, "value")})
		default:
			return nil, fmt.Errorf("unexpected grid entry %T", item)
		}
	}
	return labels, nil
}

// DecodeList parses a JSON array of field records.
func DecodeList(data []byte) ([]Field, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	list := make([]Field, 0, len(records))
	for i, rec := range records {
		f, err := FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		list = append(list, f)
	}
	return list, nil
}

func getString(content map[string]any, key string) string {
	if content == nil {
		return ""
	}
	return stringify(content[key])
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func getFloat(content map[string]any, key string) (float64, bool) {
	switch v := content[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case uint:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func getUint(content map[string]any, key string) (uint, bool) {
	if s, ok := content[key].(string); ok && strings.EqualFold(strings.TrimSpace(s), "end") {
		return EndPage, true
	}
	v, ok := getFloat(content, key)
	if !ok || v < 0 {
		return 0, false
	}
	return uint(v), true
}

// ParseBool normalizes boolean-like values, including the string literals
// stored by older clients.
func ParseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
	}
	return false, false
}

func parseBool(value any, fallback bool) bool {
	if b, ok := ParseBool(value); ok {
		return b
	}
	return fallback
}
