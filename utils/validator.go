package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct validates a request struct and collapses all field failures
// into a single readable error message.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var msgs []string
	for _, err := range err.(validator.ValidationErrors) {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must be at least "+param+" characters")
		case "max":
			msgs = append(msgs, field+" must be at most "+param+" characters")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+param)
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}

	// The joined text is user-derived, so it must never become a format string
	return errors.New(strings.Join(msgs, ", "))
}
