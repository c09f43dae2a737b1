package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags used by resource configuration structs.
const (
	// TagDSN validates a `scheme://` connection string against an allowed scheme list.
	TagDSN = "dsn"
	// TagTrimmed rejects strings with leading or trailing whitespace.
	TagTrimmed = "trimmed"
)

// allowedDSNSchemes are the session-manager and store DSN schemes this codebase understands.
var allowedDSNSchemes = []string{"sqlite://", "mysql://", "postgres://", "mongodb://", "mongodb+srv://"}

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagDSN, validateDSN)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
}

// validateDSN checks the value carries one of the recognized scheme prefixes.
func validateDSN(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // let 'required' handle empty values
	}
	for _, scheme := range allowedDSNSchemes {
		if strings.HasPrefix(value, scheme) {
			return true
		}
	}
	return false
}

func validateTrimmed(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == strings.TrimSpace(value)
}
