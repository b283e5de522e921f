package fields

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers generated by the editor before the first save.
const TempIDPrefix = "tmp_"

// EndPage is the page id of the terminal "end" pseudo-page.
const EndPage uint = 0

// NewTempID returns a client-side identifier for a field or option that has
// not been persisted yet.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id was generated by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Field is an immutable form field. Every With* method returns a new value and
// leaves the receiver untouched.
type Field struct {
	id          string
	fieldType   Type
	label       string
	caption     string
	placeholder string
	required    bool
	pageID      uint
	payload     Payload
}

// New builds a field of type t with the defaults of its blueprint and a fresh
// temporary id.
func New(t Type) (Field, error) {
	bp, ok := Lookup(t)
	if !ok {
		return Field{}, fmt.Errorf("unknown field type %q", t)
	}
	f := Field{
		id:        NewTempID(),
		fieldType: t,
		payload:   bp.Defaults(),
	}
	if t.IsNavigation() {
		f.label = NavigationLabel(t)
	}
	return f, nil
}

// MustNew is New for statically known types.
func MustNew(t Type) Field {
	f, err := New(t)
	if err != nil {
		panic(err)
	}
	return f
}

// Build assembles a field from explicit parts and validates it.
func Build(id string, t Type, label, caption, placeholder string, required bool, pageID uint, payload Payload) (Field, error) {
	f := Field{
		id:          id,
		fieldType:   t,
		label:       label,
		caption:     caption,
		placeholder: placeholder,
		required:    required,
		pageID:      pageID,
		payload:     payload,
	}
	if payload != nil {
		f.payload = payload.Clone()
	}
	if !t.CarriesRequired() {
		f.required = false
	}
	if err := f.Validate(); err != nil {
		return Field{}, err
	}
	return f, nil
}

func (f Field) ID() string          { return f.id }
func (f Field) Type() Type          { return f.fieldType }
func (f Field) Label() string       { return f.label }
func (f Field) Caption() string     { return f.caption }
func (f Field) Placeholder() string { return f.placeholder }
func (f Field) Required() bool      { return f.required }
func (f Field) PageID() uint        { return f.pageID }

// Payload returns a copy of the payload; mutating it does not affect f.
func (f Field) Payload() Payload {
	if f.payload == nil {
		return nil
	}
	return f.payload.Clone()
}

// Options returns the option list of choice-bearing fields, or nil.
func (f Field) Options() []Option {
	if p, ok := f.payload.(ChoicePayload); ok {
		return append([]Option(nil), p.Options...)
	}
	return nil
}

// IsZero reports whether f is the zero Field.
func (f Field) IsZero() bool {
	return f.fieldType == "" && f.id == ""
}

// Validate checks that the payload variant matches the blueprint of the type.
func (f Field) Validate() error {
	bp, ok := Lookup(f.fieldType)
	if !ok {
		return fmt.Errorf("unknown field type %q", f.fieldType)
	}
	if f.payload == nil {
		return fmt.Errorf("field %q has no payload", f.id)
	}
	if f.payload.Kind() != bp.Kind {
		return fmt.Errorf("field type %q expects %s payload, got %s", f.fieldType, bp.Kind, f.payload.Kind())
	}
	if f.required && !f.fieldType.CarriesRequired() {
		return fmt.Errorf("field type %q cannot be required", f.fieldType)
	}
	if err := f.payload.validate(); err != nil {
		return fmt.Errorf("field %q: %w", f.id, err)
	}
	return nil
}

func (f Field) WithID(id string) Field {
	f.id = id
	f.payload = clonePayload(f.payload)
	return f
}

func (f Field) WithLabel(label string) Field {
	f.label = label
	f.payload = clonePayload(f.payload)
	return f
}

func (f Field) WithCaption(caption string) Field {
	f.caption = caption
	f.payload = clonePayload(f.payload)
	return f
}

func (f Field) WithPlaceholder(placeholder string) Field {
	f.placeholder = placeholder
	f.payload = clonePayload(f.payload)
	return f
}

func (f Field) WithPageID(pageID uint) Field {
	f.pageID = pageID
	f.payload = clonePayload(f.payload)
	return f
}

// WithRequired is a no-op for types that never carry the flag.
func (f Field) WithRequired(required bool) Field {
	f.payload = clonePayload(f.payload)
	if f.fieldType.CarriesRequired() {
		f.required = required
	}
	return f
}

// WithPayload replaces the payload after checking it against the type.
func (f Field) WithPayload(p Payload) (Field, error) {
	if p == nil {
		return Field{}, fmt.Errorf("field %q: payload is required", f.id)
	}
	next := f
	next.payload = p.Clone()
	if err := next.Validate(); err != nil {
		return Field{}, err
	}
	return next, nil
}

// WithNavigationType flips a Submit/Next field to t. The id and the retained
// style (alignment and colors) are preserved; the label becomes the default
// label of t.
func (f Field) WithNavigationType(t Type) (Field, error) {
	if !f.fieldType.IsNavigation() || !t.IsNavigation() {
		return Field{}, fmt.Errorf("cannot change %q to %q", f.fieldType, t)
	}
	f.fieldType = t
	f.label = NavigationLabel(t)
	f.payload = clonePayload(f.payload)
	return f, nil
}

// NavigationStyle returns the retained style of a navigation field.
func (f Field) NavigationStyle() (NavigationPayload, bool) {
	p, ok := f.payload.(NavigationPayload)
	return p, ok
}

// MediaPath returns the path (or placeholder) of a media field.
func (f Field) MediaPath() (string, bool) {
	p, ok := f.payload.(MediaPayload)
	if !ok {
		return "", false
	}
	return p.Path, true
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return p.Clone()
}
