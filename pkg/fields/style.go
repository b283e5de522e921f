package fields

import "strings"

// Style is the theme snapshot of a form: five colors and a font.
type Style struct {
	BackgroundColor string `json:"background_color" validate:"omitempty,hexcolor"`
	QuestionColor   string `json:"question_color" validate:"omitempty,hexcolor"`
	AnswerColor     string `json:"answer_color" validate:"omitempty,hexcolor"`
	ButtonColor     string `json:"button_color" validate:"omitempty,hexcolor"`
	ButtonTextColor string `json:"button_text_color" validate:"omitempty,hexcolor"`
	Font            string `json:"font" validate:"max=100"`
}

// StyleKeys lists the record keys of a Style in a stable order.
var StyleKeys = []string{"background_color", "question_color", "answer_color", "button_color", "button_text_color", "font"}

// DefaultStyle is applied to forms created without explicit theme settings.
func DefaultStyle() Style {
	return Style{
		BackgroundColor: "#ffffff",
		QuestionColor:   "#1f2937",
		AnswerColor:     "#374151",
		ButtonColor:     "#2563eb",
		ButtonTextColor: "#ffffff",
		Font:            "Inter",
	}
}

// Normalize trims every value and lowercases the colors.
func (s Style) Normalize() Style {
	return Style{
		BackgroundColor: strings.ToLower(strings.TrimSpace(s.BackgroundColor)),
		QuestionColor:   strings.ToLower(strings.TrimSpace(s.QuestionColor)),
		AnswerColor:     strings.ToLower(strings.TrimSpace(s.AnswerColor)),
		ButtonColor:     strings.ToLower(strings.TrimSpace(s.ButtonColor)),
		ButtonTextColor: strings.ToLower(strings.TrimSpace(s.ButtonTextColor)),
		Font:            strings.TrimSpace(s.Font),
	}
}

// Record returns the flat key/value form of s.
func (s Style) Record() map[string]string {
	return map[string]string{
		"background_color":  s.BackgroundColor,
		"question_color":    s.QuestionColor,
		"answer_color":      s.AnswerColor,
		"button_color":      s.ButtonColor,
		"button_text_color": s.ButtonTextColor,
		"font":              s.Font,
	}
}

// WithDefaults fills every blank value of s from def.
func (s Style) WithDefaults(def Style) Style {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Style{
		BackgroundColor: pick(s.BackgroundColor, def.BackgroundColor),
		QuestionColor:   pick(s.QuestionColor, def.QuestionColor),
		AnswerColor:     pick(s.AnswerColor, def.AnswerColor),
		ButtonColor:     pick(s.ButtonColor, def.ButtonColor),
		ButtonTextColor: pick(s.ButtonTextColor, def.ButtonTextColor),
		Font:            pick(s.Font, def.Font),
	}
}
