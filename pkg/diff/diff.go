// Package diff decides whether the editor state diverges from the last
// persisted baseline. It never fails: anything it cannot compare counts as dirty.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"form-builder-backend/pkg/fields"
)

// State is everything the editor compares against its baseline.
type State struct {
	Fields []fields.Field
	Style  fields.Style
}

// IsDirty reports whether current differs from baseline in its fields or its style.
func IsDirty(current, baseline State) bool {
	return FieldsDirty(current.Fields, baseline.Fields) || StyleDirty(current.Style, baseline.Style)
}

// StyleDirty compares the six style keys.
func StyleDirty(current, baseline fields.Style) bool {
	cur, base := current.Record(), baseline.Record()
	for _, key := range fields.StyleKeys {
		if cur[key] != base[key] {
			return true
		}
	}
	return false
}

// FieldsDirty compares two field lists positionally.
func FieldsDirty(current, baseline []fields.Field) bool {
	return RecordsDirty(toRecords(current), toRecords(baseline))
}

// IsDirtyJSON compares two JSON arrays of field records. Malformed input is dirty.
func IsDirtyJSON(current, baseline []byte) bool {
	var cur, base []fields.Record
	if err := json.Unmarshal(current, &cur); err != nil {
		return true
	}
	if err := json.Unmarshal(baseline, &base); err != nil {
		return true
	}
	return RecordsDirty(cur, base)
}

func toRecords(list []fields.Field) []fields.Record {
	out := make([]fields.Record, len(list))
	for i, f := range list {
		out[i] = f.Record()
	}
	return out
}

// RecordsDirty applies the comparison rules to raw field records.
func RecordsDirty(current, baseline []fields.Record) (dirty bool) {
	defer func() {
		if recover() != nil {
			dirty = true
		}
	}()

	if len(current) != len(baseline) {
		return true
	}
	for i := range baseline {
		if recordDirty(current[i], baseline[i]) {
			return true
		}
	}
	return false
}

var navigationKeys = []string{"type", "label", "alignment", "background_color", "label_color"}

var pictureOptionKeys = []string{"id", "option_text", "image_path", "options_style", "sort_order"}

func isFreeText(key string) bool {
	switch key {
	case "value", "caption", "placeholder":
		return true
	}
	for _, k := range fields.AddressKeys {
		if k == key {
			return true
		}
	}
	return false
}

func recordDirty(cur, base fields.Record) bool {
	if cur == nil || base == nil {
		return true
	}
	curType, ok := cur["type"].(string)
	if !ok {
		return true
	}
	baseType, ok := base["type"].(string)
	if !ok || curType != baseType {
		return true
	}
	fieldType := fields.Type(curType)

	if fieldType.IsNavigation() {
		for _, key := range navigationKeys {
			if !valuesEqual(fieldType, key, cur[key], base[key]) {
				return true
			}
		}
		return false
	}

	if text(cur["id"]) != text(base["id"]) {
		return true
	}

	for key, baseValue := range base {
		curValue, present := cur[key]
		if !present && !(isFreeText(key) && blank(baseValue)) {
			return true
		}
		if !valuesEqual(fieldType, key, curValue, baseValue) {
			return true
		}
	}
	for key, curValue := range cur {
		if _, present := base[key]; present {
			continue
		}
		if isFreeText(key) && blank(curValue) {
			continue
		}
		return true
	}
	return false
}

func valuesEqual(t fields.Type, key string, a, b any) bool {
	if isFreeText(key) && blank(a) && blank(b) {
		return true
	}
	if ab, ok := fields.ParseBool(a); ok && isBoolLike(a, b) {
		if bb, ok := fields.ParseBool(b); ok {
			return ab == bb
		}
	}
	if key == "options" && t == fields.TypePicture {
		return pictureOptionsEqual(a, b)
	}
	if isFreeText(key) {
		return text(a) == text(b)
	}
	return reflect.DeepEqual(a, b)
}

// isBoolLike limits string boolean normalization to pairs where one side is a
// real bool or both are boolean literals; "1" and "yes" stay plain text otherwise.
func isBoolLike(a, b any) bool {
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	if aBool || bBool {
		return true
	}
	return isBoolLiteral(a) && isBoolLiteral(b)
}

func isBoolLiteral(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false"
}

func pictureOptionsEqual(a, b any) bool {
	left, ok := a.([]any)
	if !ok {
		return a == nil && b == nil
	}
	right, ok := b.([]any)
	if !ok || len(left) != len(right) {
		return false
	}
	for i := range left {
		l, lok := left[i].(map[string]any)
		r, rok := right[i].(map[string]any)
		if !lok || !rok {
			return false
		}
		for _, key := range pictureOptionKeys {
			if text(l[key]) != text(r[key]) {
				return false
			}
		}
	}
	return true
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
