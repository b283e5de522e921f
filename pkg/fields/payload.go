package fields

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names the payload variant carried by a field.
type Kind string

const (
	KindText       Kind = "text"
	KindToggle     Kind = "toggle"
	KindChoice     Kind = "choice"
	KindRange      Kind = "range"
	KindMatrix     Kind = "matrix"
	KindAddress    Kind = "address"
	KindDocument   Kind = "document"
	KindMedia      Kind = "media"
	KindDisplay    Kind = "display"
	KindNavigation Kind = "navigation"
)

const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"

	PreviewSmall  = "small"
	PreviewMedium = "medium"
	PreviewLarge  = "large"
)

// Payload is the type-specific part of a field. Implementations are value
// types; Clone returns a copy that shares no slices or maps with the receiver.
type Payload interface {
	Kind() Kind
	Clone() Payload
	validate() error
	encode(rec map[string]any)
}

// Option is one entry of a choice-bearing field.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"option_text"`
	ImagePath string `json:"image_path"`
	Style     string `json:"options_style"`
	SortOrder int    `json:"sort_order"`
}

// GridLabel is one row or column of a choice matrix.
type GridLabel struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type TextPayload struct {
	Value string
}

func (p TextPayload) Kind() Kind      { return KindText }
func (p TextPayload) Clone() Payload  { return p }
func (p TextPayload) validate() error { return nil }
func (p TextPayload) encode(rec map[string]any) {
	rec["value"] = p.Value
}

type TogglePayload struct {
	Value bool
}

func (p TogglePayload) Kind() Kind      { return KindToggle }
func (p TogglePayload) Clone() Payload  { return p }
func (p TogglePayload) validate() error { return nil }
func (p TogglePayload) encode(rec map[string]any) {
	rec["value"] = p.Value
}

type ChoicePayload struct {
	Options []Option
}

func defaultChoicePayload() ChoicePayload {
	return ChoicePayload{Options: []Option{
		{ID: NewTempID(), Text: "Option 1", SortOrder: 0},
		{ID: NewTempID(), Text: "Option 2", SortOrder: 1},
	}}
}

func (p ChoicePayload) Kind() Kind { return KindChoice }

func (p ChoicePayload) Clone() Payload {
	p.Options = append([]Option(nil), p.Options...)
	return p
}

func (p ChoicePayload) validate() error {
	seen := make(map[string]struct{}, len(p.Options))
	for _, opt := range p.Options {
		if opt.ID == "" {
			continue
		}
		if _, ok := seen[opt.ID]; ok {
			return fmt.Errorf("duplicate option id %q", opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}
	return nil
}

func (p ChoicePayload) encode(rec map[string]any) {
	options := make([]any, 0, len(p.Options))
	for _, opt := range p.Options {
		options = append(options, map[string]any{
			"id":            opt.ID,
			"option_text":   opt.Text,
			"image_path":    opt.ImagePath,
			"options_style": opt.Style,
			"sort_order":    opt.SortOrder,
		})
	}
	rec["options"] = options
}

// WithOptions returns a copy whose options are renumbered by position.
func (p ChoicePayload) WithOptions(options []Option) ChoicePayload {
	cloned := make([]Option, len(options))
	copy(cloned, options)
	for i := range cloned {
		cloned[i].SortOrder = i
	}
	return ChoicePayload{Options: cloned}
}

type RangePayload struct {
	Min   float64
	Max   float64
	Step  float64
	Value string
}

func (p RangePayload) Kind() Kind     { return KindRange }
func (p RangePayload) Clone() Payload { return p }

func (p RangePayload) validate() error {
	if p.Min > p.Max {
		return fmt.Errorf("min %v exceeds max %v", p.Min, p.Max)
	}
	if p.Step < 0 {
		return errors.New("step must not be negative")
	}
	return nil
}

func (p RangePayload) encode(rec map[string]any) {
	rec["min"] = p.Min
	rec["max"] = p.Max
	rec["step"] = p.Step
	rec["value"] = p.Value
}

type MatrixPayload struct {
	Rows     []GridLabel
	Columns  []GridLabel
	Selected map[string]string
}

func defaultMatrixPayload() MatrixPayload {
	return MatrixPayload{
		Rows:     []GridLabel{{Label: "Row 1", Value: "row_1"}, {Label: "Row 2", Value: "row_2"}},
		Columns:  []GridLabel{{Label: "Column 1", Value: "column_1"}, {Label: "Column 2", Value: "column_2"}},
		Selected: map[string]string{},
	}
}

func (p MatrixPayload) Kind() Kind { return KindMatrix }

func (p MatrixPayload) Clone() Payload {
	p.Rows = append([]GridLabel(nil), p.Rows...)
	p.Columns = append([]GridLabel(nil), p.Columns...)
	selected := make(map[string]string, len(p.Selected))
	for k, v := range p.Selected {
		selected[k] = v
	}
	p.Selected = selected
	return p
}

func (p MatrixPayload) validate() error {
	if len(p.Rows) == 0 || len(p.Columns) == 0 {
		return errors.New("matrix needs at least one row and one column")
	}
	return nil
}

func (p MatrixPayload) encode(rec map[string]any) {
	rec["rows"] = encodeGrid(p.Rows)
	rec["columns"] = encodeGrid(p.Columns)
	selected := make(map[string]any, len(p.Selected))
	for k, v := range p.Selected {
		selected[k] = v
	}
	rec["selected"] = selected
}

func encodeGrid(labels []GridLabel) []any {
	out := make([]any, 0, len(labels))
	for _, l := range labels {
		out = append(out, map[string]any{"label": l.Label, "value": l.Value})
	}
	return out
}

type AddressPayload struct {
	Street  string
	Street2 string
	City    string
	State   string
	Zip     string
	Country string
}

// AddressKeys lists the free-text sub-fields of an address.
var AddressKeys = []string{"street", "street2", "city", "state", "zip", "country"}

func (p AddressPayload) Kind() Kind      { return KindAddress }
func (p AddressPayload) Clone() Payload  { return p }
func (p AddressPayload) validate() error { return nil }
func (p AddressPayload) encode(rec map[string]any) {
	rec["street"] = p.Street
	rec["street2"] = p.Street2
	rec["city"] = p.City
	rec["state"] = p.State
	rec["zip"] = p.Zip
	rec["country"] = p.Country
}

type DocumentPayload struct {
	Accept    []string
	MaxSizeMB int
}

func (p DocumentPayload) Kind() Kind { return KindDocument }

func (p DocumentPayload) Clone() Payload {
	p.Accept = append([]string(nil), p.Accept...)
	return p
}

func (p DocumentPayload) validate() error {
	if p.MaxSizeMB < 0 {
		return errors.New("max size must not be negative")
	}
	return nil
}

func (p DocumentPayload) encode(rec map[string]any) {
	accept := make([]any, 0, len(p.Accept))
	for _, a := range p.Accept {
		accept = append(accept, a)
	}
	rec["accept"] = accept
	rec["max_size_mb"] = p.MaxSizeMB
}

// MediaPayload holds the stored path (or placeholder key, or URL for YouTube)
// of an embedded media file.
type MediaPayload struct {
	Path        string
	Alignment   string
	PreviewSize string
}

func (p MediaPayload) Kind() Kind     { return KindMedia }
func (p MediaPayload) Clone() Payload { return p }

func (p MediaPayload) validate() error {
	if !validAlignment(p.Alignment) {
		return fmt.Errorf("invalid alignment %q", p.Alignment)
	}
	switch p.PreviewSize {
	case "", PreviewSmall, PreviewMedium, PreviewLarge:
		return nil
	default:
		return fmt.Errorf("invalid preview size %q", p.PreviewSize)
	}
}

func (p MediaPayload) encode(rec map[string]any) {
	rec["file_path"] = p.Path
	rec["alignment"] = p.Alignment
	rec["preview_size"] = p.PreviewSize
}

type DisplayPayload struct {
	Value     string
	Alignment string
}

func (p DisplayPayload) Kind() Kind     { return KindDisplay }
func (p DisplayPayload) Clone() Payload { return p }

func (p DisplayPayload) validate() error {
	if !validAlignment(p.Alignment) {
		return fmt.Errorf("invalid alignment %q", p.Alignment)
	}
	return nil
}

func (p DisplayPayload) encode(rec map[string]any) {
	rec["value"] = p.Value
	rec["alignment"] = p.Alignment
}

// NavigationPayload is the retained style of a Submit/Next button. It survives
// a Next <-> Submit flip.
type NavigationPayload struct {
	Alignment       string
	BackgroundColor string
	LabelColor      string
}

func (p NavigationPayload) Kind() Kind     { return KindNavigation }
func (p NavigationPayload) Clone() Payload { return p }

func (p NavigationPayload) validate() error {
	if !validAlignment(p.Alignment) {
		return fmt.Errorf("invalid alignment %q", p.Alignment)
	}
	return nil
}

func (p NavigationPayload) encode(rec map[string]any) {
	rec["alignment"] = p.Alignment
	rec["background_color"] = p.BackgroundColor
	rec["label_color"] = p.LabelColor
}

func validAlignment(value string) bool {
	switch strings.ToLower(value) {
	case "", AlignLeft, AlignCenter, AlignRight:
		return true
	default:
		return false
	}
}
