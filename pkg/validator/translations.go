package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// registerCustomTranslations registers English messages for the custom tags in rules.go.
func (v *Validator) registerCustomTranslations() {
	messages := map[string]string{
		TagDSN:     "{0} must be a DSN with a recognized scheme (sqlite://, mysql://, postgres://, mongodb://)",
		TagTrimmed: "{0} must not have leading or trailing spaces",
	}

	for tag, message := range messages {
		registerTranslation(v.validate, v.trans, tag, message)
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
