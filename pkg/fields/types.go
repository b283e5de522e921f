package fields

import (
	"sort"
	"strings"
)

// Type identifies a field variant. The set is closed: every value must have a
// blueprint registered below.
type Type string

const (
	TypeShortAnswer              Type = "Short Answer"
	TypeLongAnswer               Type = "Long Answer"
	TypeEmail                    Type = "Email"
	TypeNumber                   Type = "Number"
	TypePhoneNumber              Type = "Phone Number"
	TypeWebsite                  Type = "Website"
	TypeDropdown                 Type = "Dropdown"
	TypeMultipleChoice           Type = "Multiple Choice"
	TypeMultipleSelect           Type = "Multiple Select"
	TypeMultipleSelectCheckboxes Type = "Multiple Select Checkboxes"
	TypeCheckbox                 Type = "Checkbox"
	TypeSwitch                   Type = "Switch"
	TypeChoiceMatrix             Type = "Choice Matrix"
	TypePicture                  Type = "Picture"
	TypeRanking                  Type = "Ranking"
	TypeStarRating               Type = "Star Rating"
	TypeSlider                   Type = "Slider"
	TypeOpinionScale             Type = "Opinion Scale"
	TypeDatePicker               Type = "Date Picker"
	TypeTimePicker               Type = "Time Picker"
	TypeDateTimePicker           Type = "Date Time Picker"
	TypeDateRange                Type = "Date Range"
	TypeAddress                  Type = "Address"
	TypeDocumentType             Type = "Document Type"
	TypeSignature                Type = "Signature"
	TypeHidden                   Type = "Hidden"
	TypeHeading                  Type = "Heading"
	TypeParagraph                Type = "Paragraph"
	TypeBanner                   Type = "Banner"
	TypeDivider                  Type = "Divider"
	TypeImage                    Type = "Image"
	TypeVideo                    Type = "Video"
	TypePDF                      Type = "PDF"
	TypeYouTubeVideo             Type = "YouTubeVideo"
	TypeThankYou                 Type = "ThankYou"
	TypeSubmit                   Type = "Submit"
	TypeNext                     Type = "Next"
)

// Category groups field types the way the builder palette shows them.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryChoice     Category = "choice"
	CategoryScale      Category = "scale"
	CategoryMedia      Category = "media"
	CategoryDisplay    Category = "display"
	CategoryNavigation Category = "navigation"
)

// Capability is a bitmask describing which attributes a field type carries.
type Capability uint16

const (
	CapRequired Capability = 1 << iota
	CapPlaceholder
	CapOptions
	CapMedia
	CapNavigation
	CapDecorative
)

// Blueprint describes how a field type is constructed and which payload it owns.
type Blueprint struct {
	Type         Type
	Category     Category
	Kind         Kind
	Capabilities Capability
	Defaults     func() Payload
}

// Has reports whether the blueprint carries every capability in c.
func (b Blueprint) Has(c Capability) bool {
	return b.Capabilities&c == c
}

const (
	inputCaps   = CapRequired | CapPlaceholder
	choiceCaps  = CapRequired | CapOptions
	displayCaps = CapDecorative
	mediaCaps   = CapDecorative | CapMedia
)

var blueprints = map[Type]Blueprint{}

func register(t Type, category Category, caps Capability, defaults func() Payload) {
	blueprints[t] = Blueprint{
		Type:         t,
		Category:     category,
		Kind:         defaults().Kind(),
		Capabilities: caps,
		Defaults:     defaults,
	}
}

func init() {
	text := func() Payload { return TextPayload{} }
	for _, t := range []Type{
		TypeShortAnswer, TypeLongAnswer, TypeEmail, TypeNumber, TypePhoneNumber, TypeWebsite,
		TypeDatePicker, TypeTimePicker, TypeDateTimePicker, TypeDateRange, TypeHidden,
	} {
		register(t, CategoryInput, inputCaps, text)
	}
	register(TypeSignature, CategoryInput, CapRequired, text)

	toggle := func() Payload { return TogglePayload{} }
	register(TypeCheckbox, CategoryChoice, CapRequired, toggle)
	register(TypeSwitch, CategoryChoice, CapRequired, toggle)

	choice := func() Payload { return defaultChoicePayload() }
	for _, t := range []Type{
		TypeDropdown, TypeMultipleChoice, TypeMultipleSelect, TypeMultipleSelectCheckboxes,
		TypePicture, TypeRanking,
	} {
		register(t, CategoryChoice, choiceCaps, choice)
	}

	register(TypeChoiceMatrix, CategoryChoice, CapRequired, func() Payload { return defaultMatrixPayload() })

	register(TypeStarRating, CategoryScale, CapRequired, func() Payload { return RangePayload{Min: 1, Max: 5, Step: 1} })
	register(TypeSlider, CategoryScale, CapRequired, func() Payload { return RangePayload{Min: 0, Max: 100, Step: 1} })
	register(TypeOpinionScale, CategoryScale, CapRequired, func() Payload { return RangePayload{Min: 1, Max: 10, Step: 1} })

	register(TypeAddress, CategoryInput, CapRequired, func() Payload { return AddressPayload{} })
	register(TypeDocumentType, CategoryInput, CapRequired, func() Payload {
		return DocumentPayload{Accept: []string{".pdf", ".doc", ".docx"}, MaxSizeMB: 10}
	})

	display := func() Payload { return DisplayPayload{Alignment: AlignLeft} }
	for _, t := range []Type{TypeHeading, TypeParagraph, TypeBanner, TypeDivider, TypeThankYou} {
		register(t, CategoryDisplay, displayCaps, display)
	}

	media := func() Payload { return MediaPayload{Alignment: AlignCenter, PreviewSize: PreviewMedium} }
	for _, t := range []Type{TypeImage, TypeVideo, TypePDF} {
		register(t, CategoryMedia, mediaCaps, media)
	}
	register(TypeYouTubeVideo, CategoryMedia, CapDecorative, media)

	nav := func() Payload { return NavigationPayload{Alignment: AlignCenter} }
	register(TypeSubmit, CategoryNavigation, CapNavigation, nav)
	register(TypeNext, CategoryNavigation, CapNavigation, nav)
}

// Lookup returns the blueprint for t.
func Lookup(t Type) (Blueprint, bool) {
	bp, ok := blueprints[t]
	return bp, ok
}

// Types lists every registered field type in a stable order.
func Types() []Type {
	types := make([]Type, 0, len(blueprints))
	for t := range blueprints {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseType resolves a type name case-insensitively.
func ParseType(value string) (Type, bool) {
	trimmed := strings.TrimSpace(value)
	if _, ok := blueprints[Type(trimmed)]; ok {
		return Type(trimmed), true
	}
	for t := range blueprints {
		if strings.EqualFold(string(t), trimmed) {
			return t, true
		}
	}
	return "", false
}

func (t Type) has(c Capability) bool {
	bp, ok := blueprints[t]
	return ok && bp.Has(c)
}

func (t Type) Valid() bool {
	_, ok := blueprints[t]
	return ok
}

// IsNavigation reports whether t is one of the system-managed Submit/Next types.
func (t Type) IsNavigation() bool { return t.has(CapNavigation) }

func (t Type) IsDecorative() bool { return t.has(CapDecorative) }

func (t Type) IsMedia() bool { return t.has(CapMedia) }

// CarriesRequired is false for navigation and decorative types.
func (t Type) CarriesRequired() bool { return t.has(CapRequired) }

// IsChoice reports whether t carries an option list that must have non-empty texts.
func (t Type) IsChoice() bool {
	switch t {
	case TypeDropdown, TypeMultipleChoice, TypeMultipleSelect, TypeMultipleSelectCheckboxes, TypePicture:
		return true
	default:
		return false
	}
}

// NavigationLabel returns the default label of a navigation type.
func NavigationLabel(t Type) string {
	switch t {
	case TypeSubmit:
		return "Submit"
	case TypeNext:
		return "Next"
	default:
		return ""
	}
}
